// Command anycap trains and evaluates article-conditioned
// image caption models.
package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/unixpickle/anycap/anylog"
	"github.com/unixpickle/essentials"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		essentials.Die(err)
	}
}

// NewCLI creates the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "anycap",
		Short: "Train and evaluate news image captioners",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SilenceUsage = true
		},
		SilenceErrors: true,
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		newTrainCmd(),
		newScoreCmd(),
		newInspectCmd(),
	)
	return rootCmd
}

// newLogger creates the process logger.
//
// ANYCAP_DEBUG overrides the configured level: 1 selects
// debug and 2 selects trace.
func newLogger(level string) *slog.Logger {
	l := anylog.ParseLevel(level)
	if v, err := strconv.Atoi(os.Getenv("ANYCAP_DEBUG")); err == nil {
		switch {
		case v >= 2:
			l = anylog.LevelTrace
		case v == 1:
			l = slog.LevelDebug
		}
	}
	logger := anylog.NewLogger(os.Stderr, l)
	slog.SetDefault(logger)
	return logger
}
