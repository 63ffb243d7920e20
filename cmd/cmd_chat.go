package cmd

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/IO"
	"github.com/mdjhnsn/scrn/params"
	"github.com/mdjhnsn/scrn/scrn"
)

func newChatCmd() *cobra.Command {
	chatCmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a trained model on stdin",
		Args:  cobra.NoArgs,
		RunE:  ChatHandler,
	}

	f := chatCmd.Flags()
	f.String("models", "models", "Directory holding checkpoints and vocab")
	f.String("checkpoint", "", "Checkpoint file (default: best_model.gob, then last_epoch.gob)")
	f.Int("max-tokens", 50, "Decode step budget per reply")
	f.Int64("seed", 0, "Sampling seed (0 = time-based)")

	return chatCmd
}

func ChatHandler(cmd *cobra.Command, _ []string) error {
	modelsDir, _ := cmd.Flags().GetString("models")
	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	seedFlag, _ := cmd.Flags().GetInt64("seed")

	model, vocab, err := loadModel(modelsDir, checkpoint)
	if err != nil {
		return err
	}
	if seedFlag <= 0 {
		seedFlag = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewPCG(uint64(seedFlag), uint64(seedFlag)))
	return chatLoop(model, vocab, scrn.PolicySample, maxTokens, rng, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chatLoop reads prompts line by line and prints each model reply.
// The reply holds only the continuation, never the prompt itself.
func chatLoop(model *scrn.Network, vocab params.Vocabulary, policy scrn.Policy, maxTokens int, rng *rand.Rand, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "Type 'exit' to quit.")
	for {
		fmt.Fprint(out, "You: ")
		line, readErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "exit" {
			return nil
		}
		if line != "" {
			dec, err := model.NewDecoder(IO.EncodePrompt(vocab, line), policy, maxTokens, rng)
			if err != nil {
				return err
			}
			for dec.State() == scrn.Running {
				if _, err := dec.Step(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "Bot: %s\n", IO.DecodeIDs(vocab, dec.Generated()))
		}
		if readErr != nil {
			fmt.Fprintln(out)
			return nil
		}
	}
}
