package model

import "time"

// StageName identifies a debt verification stage.
type StageName string

const (
	StageBasicValidation   StageName = "basic_validation"
	StageStructuralRisk    StageName = "structural_risk"
	StageFinancialAnalysis StageName = "financial_analysis"
	StageCaseAnalysis      StageName = "case_analysis"
)

// AllStages returns the stages in execution order.
func AllStages() []StageName {
	return []StageName{
		StageBasicValidation,
		StageStructuralRisk,
		StageFinancialAnalysis,
		StageCaseAnalysis,
	}
}

// Verdict is the risk classification of a verified lot.
type Verdict string

const (
	VerdictLowRisk          Verdict = "low_risk"
	VerdictMediumRisk       Verdict = "medium_risk"
	VerdictHighRisk         Verdict = "high_risk"
	VerdictInsufficientData Verdict = "insufficient_data"
)

// StageScore is the outcome of one verification stage. Score is a risk
// score in [0,1]; HasData is false when the stage ran without its inputs.
type StageScore struct {
	Stage    StageName `json:"stage"`
	Score    float64   `json:"score"`
	Passed   bool      `json:"passed"`
	HasData  bool      `json:"has_data"`
	Notes    []string  `json:"notes,omitempty"`
	Duration int64     `json:"duration_ms"`
}

// VerificationResult is the cumulative risk assessment for a lot.
type VerificationResult struct {
	Stages         []StageScore `json:"stages"`
	AggregateScore *float64     `json:"aggregate_score,omitempty"`
	Confidence     float64      `json:"confidence"`
	Verdict        Verdict      `json:"verdict"`
	VerifiedAt     time.Time    `json:"verified_at"`
}

// Stage returns the score recorded for name, if that stage ran.
func (r *VerificationResult) Stage(name StageName) (StageScore, bool) {
	if r == nil {
		return StageScore{}, false
	}
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageScore{}, false
}

// NormalizedDebtor is the output of AI enrichment for one lot.
type NormalizedDebtor struct {
	Name       string  `json:"name"`
	INN        string  `json:"inn,omitempty"`
	Confidence float64 `json:"confidence"`
	Matched    bool    `json:"matched"`
}
