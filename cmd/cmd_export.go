package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/params"
)

func newExportCmd() *cobra.Command {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Tokenize a corpus and export binary token id shards",
		Args:  cobra.ExactArgs(0),
		RunE:  ExportHandler,
	}

	f := exportCmd.Flags()
	f.String("data", "", "Corpus to tokenize (default: first .txt under data/)")
	f.String("models", "models", "Directory for tokenizer and vocab")
	f.String("out", filepath.Join("data", "ids", "train"), "Shard path prefix")
	f.String("tokenizer", "bpe", "Tokenizer: char or bpe")
	f.Int("vocab-size", 2000, "Target vocab size (bpe tokenizer only)")
	f.Int64("shard-bytes", 10<<30, "Maximum bytes per shard")

	return exportCmd
}

// ExportHandler tokenizes the corpus once and writes the id shards plus
// the vocab the shards were encoded with.
func ExportHandler(cmd *cobra.Command, _ []string) error {
	dataPath, _ := cmd.Flags().GetString("data")
	modelsDir, _ := cmd.Flags().GetString("models")
	outPrefix, _ := cmd.Flags().GetString("out")
	tokenizer, _ := cmd.Flags().GetString("tokenizer")
	vocabSize, _ := cmd.Flags().GetInt("vocab-size")
	shardBytes, _ := cmd.Flags().GetInt64("shard-bytes")

	corpus := IO.FindCorpusFile(dataPath)
	if corpus == "" {
		return fmt.Errorf("no corpus found; pass --data")
	}

	var vocab params.Vocabulary
	var encode func(string) []int
	switch tokenizer {
	case "char":
		lines, err := IO.LoadCorpusLines(corpus, 0)
		if err != nil {
			return err
		}
		vocab = IO.BuildCharVocab(lines)
		encode = func(s string) []int { return IO.EncodeLine(vocab, s) }
	case "bpe":
		bpe, err := IO.TrainOrLoadBPE(corpus, filepath.Join(modelsDir, "tokenizer.json"), vocabSize)
		if err != nil {
			return err
		}
		vocab = bpe.Vocabulary()
		encode = bpe.EncodeLine
	default:
		return fmt.Errorf("unknown tokenizer %q", tokenizer)
	}

	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(vocab, filepath.Join(modelsDir, "vocab.json")); err != nil {
		return err
	}
	if dir := filepath.Dir(outPrefix); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := IO.ExportTokenIDsBinary(corpus, outPrefix, shardBytes, encode); err != nil {
		return err
	}
	slog.Info("export complete", "corpus", corpus, "prefix", outPrefix, "vocab", vocab.Size())
	return nil
}
