package cmd

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/scrn"
)

func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate [PROMPT]",
		Short: "Continue a prompt with a trained model",
		Args:  cobra.MaximumNArgs(1),
		RunE:  GenerateHandler,
	}

	f := generateCmd.Flags()
	f.String("models", "models", "Directory holding checkpoints and vocab")
	f.String("checkpoint", "", "Checkpoint file (default: best_model.gob, then last_epoch.gob)")
	f.String("policy", string(scrn.PolicySample), "Decode policy: greedy or sample")
	f.Int("max-tokens", 0, "Decode step budget (0 = training window length)")
	f.Int64("seed", 0, "Sampling seed (0 = time-based)")

	return generateCmd
}

// loadModel resolves the checkpoint path and loads network plus vocab.
func loadModel(modelsDir, checkpoint string) (*scrn.Network, params.Vocabulary, error) {
	if checkpoint == "" {
		checkpoint = filepath.Join(modelsDir, "best_model.gob")
		if !IO.FileExists(checkpoint) {
			checkpoint = filepath.Join(modelsDir, "last_epoch.gob")
		}
	}
	model, err := IO.LoadCheckpoint(checkpoint)
	if err != nil {
		return nil, params.Vocabulary{}, err
	}
	vocab, err := IO.ImportVocabJSON(filepath.Join(modelsDir, "vocab.json"))
	if err != nil {
		return nil, params.Vocabulary{}, err
	}
	if vocab.Size() != model.Cfg.VocabSize {
		return nil, params.Vocabulary{}, fmt.Errorf("vocab has %d tokens but checkpoint expects %d",
			vocab.Size(), model.Cfg.VocabSize)
	}
	return model, vocab, nil
}

func GenerateHandler(cmd *cobra.Command, args []string) error {
	modelsDir, _ := cmd.Flags().GetString("models")
	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	policyFlag, _ := cmd.Flags().GetString("policy")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	seedFlag, _ := cmd.Flags().GetInt64("seed")

	model, vocab, err := loadModel(modelsDir, checkpoint)
	if err != nil {
		return err
	}

	var prompt string
	if len(args) > 0 {
		prompt = args[0]
	}

	policy := scrn.Policy(policyFlag)
	var rng *rand.Rand
	if policy == scrn.PolicySample {
		if seedFlag <= 0 {
			seedFlag = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewPCG(uint64(seedFlag), uint64(seedFlag)))
	}

	out, err := model.Generate(IO.EncodePrompt(vocab, prompt), policy, maxTokens, rng)
	if err != nil {
		return err
	}
	fmt.Println(IO.DecodeIDs(vocab, out))
	return nil
}
