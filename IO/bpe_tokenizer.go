package IO

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/models"
	"github.com/sugarme/tokenizer/normalizers"
	"github.com/sugarme/tokenizer/pretokenizers"
	"github.com/sugarme/tokenizer/processors"
	"github.com/sugarme/tokenizer/trainers"

	"github.com/mdjhnsn/scrn/params"
)

// BPETokenizer wraps a trained subword tokenizer together with the
// vocabulary extracted from it.
type BPETokenizer struct {
	t     *tk.Tokenizer
	vocab params.Vocabulary
}

// TrainOrLoadBPE trains a BPE tokenizer on corpusPath (if tokPath does
// not exist yet) and returns a ready handle. An existing tokenizer.json
// is loaded as-is so repeated runs reuse the same merges.
func TrainOrLoadBPE(corpusPath, tokPath string, vocabSize int) (*BPETokenizer, error) {
	if FileExists(tokPath) {
		t, err := tk.FromFile(tokPath)
		if err != nil {
			return nil, err
		}
		return newBPETokenizer(t)
	}

	bpe := models.NewBPE()
	t := tk.NewTokenizer(bpe)

	// Normalize to NFKC lower for English
	t.WithNormalizer(normalizers.NewSequence(
		normalizers.NewNFKC(),
		normalizers.NewLowercase(),
	))
	// Pretokenizer: whitespace is robust and simple; you can switch to ByteLevel later
	t.WithPreTokenizer(pretokenizers.NewWhitespaceSplit())

	// Sentinel handling via template processor. Window building adds the
	// sentinels itself, but this keeps decode robust for raw use.
	proc := processors.NewTemplateProcessing(
		"<bos> $A <eos>",
		"$A",
		map[string]int{
			"<bos>": params.BosID,
			"<eos>": params.EosID,
		},
	)
	t.WithPostProcessor(proc)

	tr := trainers.NewBpeTrainer()
	tr.VocabSize = vocabSize
	tr.SpecialTokens = params.Special

	if err := t.Train(tr, []string{corpusPath}); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(tokPath), 0o755); err != nil {
		return nil, err
	}
	if err := t.Save(tokPath); err != nil {
		return nil, err
	}
	return newBPETokenizer(t)
}

func newBPETokenizer(t *tk.Tokenizer) (*BPETokenizer, error) {
	vocab := t.GetVocab(true)
	// Build IDToToken in index order 0..N-1
	id2tok := make([]string, len(vocab))
	tok2id := make(map[string]int, len(vocab))
	for tok, id := range vocab {
		if id >= len(id2tok) {
			grown := make([]string, id+1)
			copy(grown, id2tok)
			id2tok = grown
		}
		tok2id[tok] = id
		id2tok[id] = tok
	}
	// The sampler and decoder assume the sentinel ids are positional.
	for want, tok := range params.Special {
		if got, ok := tok2id[tok]; !ok || got != want {
			return nil, fmt.Errorf("tokenizer vocab maps %q to %d, want %d", tok, got, want)
		}
	}
	return &BPETokenizer{
		t:     t,
		vocab: params.Vocabulary{TokenToID: tok2id, IDToToken: id2tok},
	}, nil
}

// Vocabulary returns the vocabulary extracted from the tokenizer.
func (b *BPETokenizer) Vocabulary() params.Vocabulary { return b.vocab }

// EncodeIDs encodes raw text into token IDs without sentinels.
func (b *BPETokenizer) EncodeIDs(text string) ([]int, error) {
	enc, err := b.t.EncodeSingle(text)
	if err != nil {
		return nil, err
	}
	ids := enc.Ids
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out, nil
}

// EncodeLine encodes one line with start/end sentinels, the form the
// window builder consumes. Lines the tokenizer rejects come back nil
// and are skipped upstream.
func (b *BPETokenizer) EncodeLine(text string) []int {
	ids, err := b.EncodeIDs(text)
	if err != nil {
		return nil
	}
	out := make([]int, 0, len(ids)+2)
	out = append(out, params.BosID)
	out = append(out, ids...)
	out = append(out, params.EosID)
	return out
}
