package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the lot cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cached lots by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("read"); err != nil {
			return err
		}
		lots, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer lots.Close() //nolint:errcheck

		counts := lots.CountByStatus()
		verdicts := make(map[model.Verdict]int)
		for _, e := range lots.All() {
			if e.Verification != nil {
				verdicts[e.Verification.Verdict]++
			}
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.SetTitle(fmt.Sprintf("%s cache (%s)", cfg.Cache.Driver, cfg.Cache.Path))
		tw.AppendHeader(table.Row{"Status", "Lots"})
		for _, s := range model.AllLotStatuses() {
			tw.AppendRow(table.Row{s, counts[s]})
		}
		tw.AppendSeparator()
		for _, v := range []model.Verdict{model.VerdictLowRisk, model.VerdictMediumRisk, model.VerdictHighRisk, model.VerdictInsufficientData} {
			tw.AppendRow(table.Row{v, verdicts[v]})
		}
		tw.AppendFooter(table.Row{"total", lots.Len()})
		tw.Render()
		return nil
	},
}

// -- cache show --

var cacheShowCmd = &cobra.Command{
	Use:   "show <lot-id>",
	Short: "Print the cached record of a lot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("read"); err != nil {
			return err
		}
		lots, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer lots.Close() //nolint:errcheck

		entry, ok := lots.Get(args[0])
		if !ok {
			return eris.Errorf("cache show: lot %s not found", args[0])
		}
		return printJSON(cmd.OutOrStdout(), entry)
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheShowCmd)
	rootCmd.AddCommand(cacheCmd)
}
