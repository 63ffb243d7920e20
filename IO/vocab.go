package IO

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mdjhnsn/scrn/params"
)

// BuildCharVocab builds a character-level vocabulary from corpus lines:
// the reserved special tokens first, then every distinct rune in sorted
// order so the same corpus always yields the same ids.
func BuildCharVocab(lines []string) params.Vocabulary {
	seen := make(map[rune]bool)
	for _, line := range lines {
		for _, r := range line {
			seen[r] = true
		}
	}
	runes := make([]rune, 0, len(seen))
	for r := range seen {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	idToToken := make([]string, 0, len(params.Special)+len(runes))
	idToToken = append(idToToken, params.Special...)
	for _, r := range runes {
		idToToken = append(idToToken, string(r))
	}
	tokenToID := make(map[string]int, len(idToToken))
	for id, tok := range idToToken {
		tokenToID[tok] = id
	}
	return params.Vocabulary{TokenToID: tokenToID, IDToToken: idToToken}
}

// EncodeLine maps text to ids, wrapped in the start/end sentinels. Runes
// absent from the vocabulary become <unk>.
func EncodeLine(v params.Vocabulary, line string) []int {
	ids := make([]int, 0, len(line)+2)
	ids = append(ids, params.BosID)
	for _, r := range line {
		ids = append(ids, v.Lookup(string(r)))
	}
	ids = append(ids, params.EosID)
	return ids
}

// EncodePrompt maps text to ids behind the start sentinel, without the
// end sentinel. This is the seed form a decoder continues from.
func EncodePrompt(v params.Vocabulary, text string) []int {
	ids := make([]int, 0, len(text)+1)
	ids = append(ids, params.BosID)
	for _, r := range text {
		ids = append(ids, v.Lookup(string(r)))
	}
	return ids
}

// DecodeIDs maps ids back to text, skipping the special tokens.
func DecodeIDs(v params.Vocabulary, ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(v.IDToToken) {
			continue
		}
		if id < len(params.Special) {
			continue
		}
		b.WriteString(v.IDToToken[id])
	}
	return b.String()
}

// ExportVocabJSON writes TokenToID/IDToToken to path.
func ExportVocabJSON(v params.Vocabulary, path string) error {
	data := map[string]any{
		"TokenToID": v.TokenToID,
		"IDToToken": v.IDToToken,
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ImportVocabJSON loads a vocabulary written by ExportVocabJSON.
func ImportVocabJSON(path string) (params.Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return params.Vocabulary{}, err
	}
	defer f.Close()
	var data struct {
		TokenToID map[string]int `json:"TokenToID"`
		IDToToken []string       `json:"IDToToken"`
	}
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return params.Vocabulary{}, err
	}
	v := params.Vocabulary{TokenToID: data.TokenToID, IDToToken: data.IDToToken}
	if len(v.IDToToken) < len(params.Special) {
		return params.Vocabulary{}, fmt.Errorf("vocab at %s is missing the reserved special tokens", path)
	}
	// The decoder and sampler assume the sentinel ids are positional.
	for id, tok := range params.Special {
		if v.IDToToken[id] != tok {
			return params.Vocabulary{}, fmt.Errorf("vocab at %s has %q at id %d, want %q", path, v.IDToToken[id], id, tok)
		}
	}
	if len(v.TokenToID) != len(v.IDToToken) {
		return params.Vocabulary{}, fmt.Errorf("vocab at %s has %d tokens but %d ids", path, len(v.IDToToken), len(v.TokenToID))
	}
	for id, tok := range v.IDToToken {
		if got, ok := v.TokenToID[tok]; !ok || got != id {
			return params.Vocabulary{}, fmt.Errorf("vocab at %s maps %q to %d, but id %d holds it", path, tok, got, id)
		}
	}
	return v, nil
}
