package cmd

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/scrn"
)

func newTrainCmd() *cobra.Command {
	defaults := params.DefaultConfig()

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on a text corpus",
		Args:  cobra.ExactArgs(0),
		RunE:  TrainHandler,
	}

	f := trainCmd.Flags()
	f.String("data", "", "Training corpus (default: first .txt under data/)")
	f.String("ids", "", "Read pre-exported token id shards under this prefix instead of raw text")
	f.String("models", "models", "Directory for checkpoints and vocab")
	f.String("tokenizer", "char", "Tokenizer: char or bpe")
	f.Int("vocab-size", 2000, "Target vocab size (bpe tokenizer only)")
	f.Int("epochs", defaults.MaxEpochs, "Maximum training epochs")
	f.Int("batch-size", defaults.BatchSize, "Samples per optimizer step")
	f.Int("seq-len", defaults.SeqLen, "History window length")
	f.Float64("alpha", defaults.DecayAlpha, "Context decay factor in [0,1]")
	f.Int("context-width", defaults.ContextWidth, "Context cell width (slow embedding width follows it)")
	f.Int("fast-width", defaults.FastEmbedWidth, "Fast embedding width")
	f.Int("hidden", defaults.HiddenWidth, "Recurrent hidden width")
	f.Float64("lr", defaults.LR, "Peak learning rate")
	f.Float64("val-frac", defaults.ValFrac, "Fraction of samples held out for eval")
	f.Uint64("seed", defaults.ShuffleSeed, "Shuffle seed")
	f.Int("workers", 0, "Parallel gradient workers (0 = GOMAXPROCS)")
	f.Int("limit", 0, "Maximum corpus lines to read (0 = all)")
	f.Int("sample-every", 0, "Print a sampled continuation every N epochs (0 = off)")

	return trainCmd
}

func trainConfigFromFlags(cmd *cobra.Command) params.Config {
	cfg := params.DefaultConfig()
	cfg.MaxEpochs, _ = cmd.Flags().GetInt("epochs")
	cfg.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	cfg.SeqLen, _ = cmd.Flags().GetInt("seq-len")
	cfg.DecayAlpha, _ = cmd.Flags().GetFloat64("alpha")
	cfg.ContextWidth, _ = cmd.Flags().GetInt("context-width")
	cfg.SlowEmbedWidth = cfg.ContextWidth
	cfg.FastEmbedWidth, _ = cmd.Flags().GetInt("fast-width")
	cfg.HiddenWidth, _ = cmd.Flags().GetInt("hidden")
	cfg.LR, _ = cmd.Flags().GetFloat64("lr")
	cfg.ValFrac, _ = cmd.Flags().GetFloat64("val-frac")
	cfg.ShuffleSeed, _ = cmd.Flags().GetUint64("seed")
	return cfg
}

// TrainHandler builds the dataset, trains and reports where the best
// checkpoint landed.
func TrainHandler(cmd *cobra.Command, _ []string) error {
	modelsDir, _ := cmd.Flags().GetString("models")
	idsPrefix, _ := cmd.Flags().GetString("ids")
	workers, _ := cmd.Flags().GetInt("workers")
	sampleEvery, _ := cmd.Flags().GetInt("sample-every")

	cfg := trainConfigFromFlags(cmd)

	var vocab params.Vocabulary
	var samples []IO.Sample

	if idsPrefix != "" {
		// shards carry ids only; the vocab must come from the export run
		var err error
		vocab, err = IO.ImportVocabJSON(filepath.Join(modelsDir, "vocab.json"))
		if err != nil {
			return fmt.Errorf("token id shards need an exported vocab: %w", err)
		}
		seqs, err := IO.ReadTokenIDShards(idsPrefix)
		if err != nil {
			return err
		}
		for _, seq := range seqs {
			for _, id := range seq {
				if id < 0 || id >= vocab.Size() {
					return fmt.Errorf("shard token id %d outside the exported vocab (size %d); shards and vocab.json must come from one export run", id, vocab.Size())
				}
			}
			samples = append(samples, IO.MakeWindowSamples(seq, cfg.SeqLen)...)
		}
	} else {
		dataPath, _ := cmd.Flags().GetString("data")
		limit, _ := cmd.Flags().GetInt("limit")
		tokenizer, _ := cmd.Flags().GetString("tokenizer")

		corpus := IO.FindCorpusFile(dataPath)
		if corpus == "" {
			return fmt.Errorf("no training corpus found; pass --data")
		}
		lines, err := IO.LoadCorpusLines(corpus, limit)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("corpus %s has no usable lines", corpus)
		}

		var encode func(string) []int
		switch tokenizer {
		case "char":
			vocab = IO.BuildCharVocab(lines)
			encode = func(s string) []int { return IO.EncodeLine(vocab, s) }
		case "bpe":
			vocabSize, _ := cmd.Flags().GetInt("vocab-size")
			bpe, err := IO.TrainOrLoadBPE(corpus, filepath.Join(modelsDir, "tokenizer.json"), vocabSize)
			if err != nil {
				return err
			}
			vocab = bpe.Vocabulary()
			encode = bpe.EncodeLine
		default:
			return fmt.Errorf("unknown tokenizer %q", tokenizer)
		}
		samples = IO.BuildDataset(lines, encode, cfg.SeqLen)
		slog.Info("dataset built", "corpus", corpus, "lines", len(lines), "tokenizer", tokenizer)
	}

	if len(samples) == 0 {
		return fmt.Errorf("no training samples; corpus too short for seq-len %d", cfg.SeqLen)
	}
	cfg.VocabSize = vocab.Size()

	net, err := scrn.NewNetwork(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return err
	}
	if err := IO.ExportVocabJSON(vocab, filepath.Join(modelsDir, "vocab.json")); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(cfg.ShuffleSeed, 0))
	trainSet, valSet := IO.SplitTrainVal(samples, cfg.ValFrac, rng)
	slog.Info("training", "samples", len(samples), "vocab", cfg.VocabSize,
		"alpha", cfg.DecayAlpha, "seq_len", cfg.SeqLen)

	var accuracies []float64
	genRng := rand.New(rand.NewPCG(cfg.ShuffleSeed, 1))
	opts := TrainOptions{
		CheckpointDir: modelsDir,
		Workers:       workers,
		Observer: func(st EpochStats) {
			accuracies = append(accuracies, st.Accuracy)
			if sampleEvery <= 0 || (st.Epoch+1)%sampleEvery != 0 {
				return
			}
			ids, err := net.Generate(nil, scrn.PolicySample, 0, genRng)
			if err != nil {
				slog.Warn("sample generation failed", "error", err)
				return
			}
			fmt.Printf("Sample: %q\n", IO.DecodeIDs(vocab, ids))
		},
	}

	res, err := trainNetwork(net, trainSet, valSet, rng, opts)
	if err != nil {
		return err
	}
	if len(accuracies) > 1 {
		fmt.Println("Eval accuracy by epoch:")
		asciiPlot(accuracies)
	}
	fmt.Printf("Training finished after %d epochs (%s); best checkpoint: %s\n",
		res.Epochs, res.StopReason, res.BestPath)
	return nil
}
