package IO

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var corpusCandidates = []string{
	"data/corpus.txt",
	"data/train.txt",
}

// FindCorpusFile returns explicit when set, otherwise the first candidate
// path that exists, otherwise the first .txt file found under data/.
func FindCorpusFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range corpusCandidates {
		if FileExists(p) {
			return p
		}
	}
	return fallbackFile("data")
}

func fallbackFile(root string) string {
	var first string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasSuffix(d.Name(), ".txt") && first == "" {
			first = path
		}
		return nil
	})
	return first
}

func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// readLines reads up to 'limit' lines (0 = no limit). Uses a large buffered reader.
func readLines(p string, limit int) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20) // 1MB
	out := make([]string, 0, 4096)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			if line[len(line)-1] == '\n' {
				line = line[:len(line)-1]
			}
			out = append(out, line)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// LoadCorpusLines reads the corpus and drops blank lines. limit 0 reads all.
func LoadCorpusLines(path string, limit int) ([]string, error) {
	raw, err := readLines(path, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
