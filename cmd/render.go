package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/bankrot-cli/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderSummary prints the end-of-run outcome counts.
func renderSummary(w io.Writer, s *model.RunSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle("Run " + s.RunID)
	tw.AppendHeader(table.Row{"Outcome", "Lots"})
	tw.AppendRows([]table.Row{
		{"references", s.References},
		{"skipped (cached)", s.Skipped},
		{"qualified", s.Qualified},
		{"filtered_out", s.FilteredOut},
		{"enriched", s.Enriched},
		{"verified", s.Verified},
		{"errored", s.Errored},
		{"empty pages", s.EmptyPages},
	})
	footer := "completed"
	if s.Aborted {
		footer = "aborted: " + s.AbortReason
	}
	tw.AppendFooter(table.Row{"variant " + s.Variant, footer})
	tw.Render()
}

// renderVerification prints per-stage scores and the verdict for a lot.
func renderVerification(w io.Writer, lot model.Lot, r *model.VerificationResult) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(fmt.Sprintf("Lot %s: %s (%s)", lot.ID, lot.DebtorName(), lot.CaseNumber))
	tw.AppendHeader(table.Row{"Stage", "Score", "Passed", "Data", "Notes"})
	for _, s := range r.Stages {
		tw.AppendRow(table.Row{s.Stage, fmt.Sprintf("%.2f", s.Score), s.Passed, s.HasData, strings.Join(s.Notes, "; ")})
	}
	agg := "n/a"
	if r.AggregateScore != nil {
		agg = fmt.Sprintf("%.3f", *r.AggregateScore)
	}
	tw.AppendFooter(table.Row{"aggregate " + agg, fmt.Sprintf("confidence %.2f", r.Confidence), "", "", r.Verdict})
	tw.Render()
}
