package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/config"
	"github.com/sells-group/bankrot-cli/internal/pipeline"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFatal     = 1
	exitAborted   = 2
	exitCancelled = 130
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bankrot-cli",
	Short: "Bankruptcy lot collection and debt verification pipeline",
	Long:  "Collects bankruptcy-sale lots from the catalog, caches parsed records, filters them by named policies, resolves ambiguous debtors with an AI provider, and scores debt risk in four verification stages.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// exitCode maps a command error to the process exit status. Individual
// lot errors never reach here; only run-level aborts do.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pipeline.ErrCancelled):
		return exitCancelled
	case errors.Is(err, pipeline.ErrCollectionAborted):
		return exitAborted
	default:
		return exitFatal
	}
}

func main() {
	err := rootCmd.Execute()
	os.Exit(exitCode(err))
}
