package cmd

import (
	"errors"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/server"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve a trained model over HTTP",
		Args:    cobra.ExactArgs(0),
		RunE:    RunServer,
	}

	f := serveCmd.Flags()
	f.String("models", "models", "Directory holding checkpoints and vocab")
	f.String("checkpoint", "", "Checkpoint file (default: best_model.gob, then last_epoch.gob)")
	f.String("host", "127.0.0.1:8080", "Listen address")

	return serveCmd
}

// RunServer loads the model and serves it until the listener closes.
func RunServer(cmd *cobra.Command, _ []string) error {
	modelsDir, _ := cmd.Flags().GetString("models")
	checkpoint, _ := cmd.Flags().GetString("checkpoint")
	host, _ := cmd.Flags().GetString("host")

	model, vocab, err := loadModel(modelsDir, checkpoint)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", host)
	if err != nil {
		return err
	}

	err = server.Serve(ln, model, vocab)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
