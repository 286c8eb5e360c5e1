package model

import "time"

// RunSummary tallies lot outcomes for one pipeline run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Variant     string        `json:"variant"`
	References  int           `json:"references"`
	Skipped     int           `json:"skipped"`
	Qualified   int           `json:"qualified"`
	FilteredOut int           `json:"filtered_out"`
	Enriched    int           `json:"enriched"`
	Verified    int           `json:"verified"`
	Errored     int           `json:"errored"`
	EmptyPages  int           `json:"empty_pages"`
	Aborted     bool          `json:"aborted"`
	AbortReason string        `json:"abort_reason,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Record counts one status milestone reached by a lot. A verified lot is
// usually recorded as qualified, possibly enriched, then verified.
func (s *RunSummary) Record(status LotStatus) {
	switch status {
	case LotStatusFilteredOut:
		s.FilteredOut++
	case LotStatusQualified:
		s.Qualified++
	case LotStatusEnriched:
		s.Enriched++
	case LotStatusVerified:
		s.Verified++
	case LotStatusError:
		s.Errored++
	}
}
