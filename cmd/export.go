package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/bankrot-cli/internal/export"
	"github.com/sells-group/bankrot-cli/internal/model"
)

var (
	exportOut      string
	exportStatuses []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write cached lots to an XLSX report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("read"); err != nil {
			return err
		}
		opts, err := exportOptions(exportStatuses)
		if err != nil {
			return err
		}

		lots, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer lots.Close() //nolint:errcheck

		n, err := export.WriteXLSX(exportOut, lots.All(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d lots to %s\n", n, exportOut)
		return nil
	},
}

// exportOptions validates --status values against the known lot statuses.
func exportOptions(statuses []string) (export.Options, error) {
	known := make(map[model.LotStatus]bool)
	for _, s := range model.AllLotStatuses() {
		known[s] = true
	}
	var opts export.Options
	for _, raw := range statuses {
		s := model.LotStatus(strings.ToLower(strings.TrimSpace(raw)))
		if !known[s] {
			return opts, fmt.Errorf("export: unknown status %q", raw)
		}
		opts.Statuses = append(opts.Statuses, s)
	}
	return opts, nil
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "lots.xlsx", "output XLSX path")
	exportCmd.Flags().StringSliceVar(&exportStatuses, "status", nil, "only export lots with these statuses (comma separated)")
	rootCmd.AddCommand(exportCmd)
}
