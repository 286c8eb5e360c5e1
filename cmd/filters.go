package main

import (
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List the available filter variants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := loadRegistry(time.Now())
		if err != nil {
			return err
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(cmd.OutOrStdout())
		tw.AppendHeader(table.Row{"", "Variant", "Rules", "Description"})
		for _, v := range reg.Variants() {
			rules := make([]string, 0, len(v.Rules))
			for _, r := range v.Rules {
				rules = append(rules, r.RuleName())
			}
			active := ""
			if v.Name == cfg.Filter.Variant {
				active = "*"
			}
			tw.AppendRow(table.Row{active, v.Name, strings.Join(rules, ", "), v.Description})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(filtersCmd)
}
