package IO

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// ExportTokenIDsBinary encodes each line of inPath and writes the ID
// sequences to a binary data file plus an index:
//
//   - .bin = concatenated int32 token sequences
//   - .idx = int64 offsets (start,length) per example
//
// It will split into shards <= maxShardBytes (e.g. 10 GB).
func ExportTokenIDsBinary(inPath, outPrefix string, maxShardBytes int64, encode func(string) []int) error {
	if encode == nil {
		return fmt.Errorf("export: nil encode function")
	}
	inF, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer inF.Close()
	reader := bufio.NewReader(inF)

	shard := 0
	var (
		dataF *os.File
		idxF  *os.File
		wData io.Writer
		wIdx  io.Writer
		cur   int64
	)

	openShard := func() error {
		if dataF != nil {
			dataF.Close()
			idxF.Close()
		}
		dataF, err = os.Create(fmt.Sprintf("%s-%03d.bin", outPrefix, shard))
		if err != nil {
			return err
		}
		idxF, err = os.Create(fmt.Sprintf("%s-%03d.idx", outPrefix, shard))
		if err != nil {
			return err
		}
		wData = bufio.NewWriter(dataF)
		wIdx = bufio.NewWriter(idxF)
		cur = 0
		return nil
	}

	if err := openShard(); err != nil {
		return err
	}

	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	for {
		line, err := reader.ReadString('\n')
		if line == "" && err == io.EOF {
			break
		}
		if line == "" && err != nil {
			return err
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if err == io.EOF {
				break
			}
			continue
		}
		ids := encode(trimmed)
		if len(ids) == 0 {
			if err == io.EOF {
				break
			}
			continue
		}

		// write offset + length to idx
		start := cur
		binary.LittleEndian.PutUint64(buf8, uint64(start))
		if _, err := wIdx.Write(buf8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf8, uint64(len(ids)))
		if _, err := wIdx.Write(buf8); err != nil {
			return err
		}

		// write ids to bin
		for _, id := range ids {
			binary.LittleEndian.PutUint32(buf4, uint32(id))
			if _, err := wData.Write(buf4); err != nil {
				return err
			}
		}
		cur += int64(4 * len(ids))

		// rollover if shard too big
		if cur >= maxShardBytes {
			if bw, ok := wData.(*bufio.Writer); ok {
				bw.Flush()
			}
			if bw, ok := wIdx.(*bufio.Writer); ok {
				bw.Flush()
			}
			shard++
			if err := openShard(); err != nil {
				return err
			}
		}

		if err == io.EOF {
			break
		}
	}
	if bw, ok := wData.(*bufio.Writer); ok {
		bw.Flush()
	}
	if bw, ok := wIdx.(*bufio.Writer); ok {
		bw.Flush()
	}
	return nil
}

// ReadTokenIDShards reads every shard written by ExportTokenIDsBinary
// under outPrefix and returns the decoded ID sequences in order.
func ReadTokenIDShards(outPrefix string) ([][]int, error) {
	var seqs [][]int
	for shard := 0; ; shard++ {
		binPath := fmt.Sprintf("%s-%03d.bin", outPrefix, shard)
		idxPath := fmt.Sprintf("%s-%03d.idx", outPrefix, shard)
		if !FileExists(binPath) || !FileExists(idxPath) {
			if shard == 0 {
				return nil, fmt.Errorf("no shards found under %s", outPrefix)
			}
			break
		}
		idxBytes, err := os.ReadFile(idxPath)
		if err != nil {
			return nil, err
		}
		if len(idxBytes)%16 != 0 {
			return nil, fmt.Errorf("%s: truncated index", idxPath)
		}
		binBytes, err := os.ReadFile(binPath)
		if err != nil {
			return nil, err
		}
		for off := 0; off < len(idxBytes); off += 16 {
			start := int64(binary.LittleEndian.Uint64(idxBytes[off:]))
			length := int64(binary.LittleEndian.Uint64(idxBytes[off+8:]))
			end := start + 4*length
			if start < 0 || length < 0 || end > int64(len(binBytes)) {
				return nil, fmt.Errorf("%s: entry at %d points outside %s", idxPath, off, binPath)
			}
			ids := make([]int, length)
			for i := int64(0); i < length; i++ {
				ids[i] = int(int32(binary.LittleEndian.Uint32(binBytes[start+4*i:])))
			}
			seqs = append(seqs, ids)
		}
	}
	return seqs, nil
}
