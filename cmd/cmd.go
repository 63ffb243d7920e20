package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mdjhnsn/scrn/version"
)

func versionHandler(_ *cobra.Command, _ []string) {
	fmt.Printf("scrn version is %s\n", version.Version)
}

// NewCLI builds the root command with every subcommand attached.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "scrn",
		Short:         "Character-level language model with a slow context branch",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}

			cmd.Print(cmd.UsageString())
		},
	}

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(
		newTrainCmd(),
		newGenerateCmd(),
		newChatCmd(),
		newServeCmd(),
		newExportCmd(),
	)

	return rootCmd
}
