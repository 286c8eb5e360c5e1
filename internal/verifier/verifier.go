// Package verifier runs the four-stage debt verification pipeline over a
// lot: a basic-validation gate followed by structural, financial and
// case/legal risk analysis. Stage scores are risk scores in [0,1]; the
// aggregate is a weighted mean of stages two to four.
package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/config"
	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

// SiblingSource returns already-cached lots sharing a debtor or case.
type SiblingSource interface {
	Siblings(lot model.Lot) []model.Lot
}

// Verifier scores lots. It is safe for concurrent use.
type Verifier struct {
	cfg         config.VerifierConfig
	finance     finance.Client
	siblings    SiblingSource
	years       int
	callTimeout time.Duration
	now         func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithFinance sets the financial-data collaborator.
func WithFinance(c finance.Client, years int, timeout time.Duration) Option {
	return func(v *Verifier) {
		v.finance = c
		if years > 0 {
			v.years = years
		}
		v.callTimeout = timeout
	}
}

// WithSiblings sets the source of cached sibling lots.
func WithSiblings(s SiblingSource) Option {
	return func(v *Verifier) { v.siblings = s }
}

// WithClock overrides the evaluation time.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// New creates a Verifier. Weights and thresholds are validated up front.
func New(cfg config.VerifierConfig, opts ...Option) (*Verifier, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	v := &Verifier{cfg: cfg, years: 3, callTimeout: 20 * time.Second, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// stageContext accumulates what earlier stages learned about a lot.
type stageContext struct {
	lot        model.Lot
	now        time.Time
	caseYear   int
	siblings   []model.Lot
	financials *model.Financials
}

// Verify runs the stages in order. Stage one failing short-circuits the
// rest with an INSUFFICIENT_DATA verdict. Only context cancellation is
// returned as an error; every other failure is recorded on its stage.
func (v *Verifier) Verify(ctx context.Context, lot model.Lot) (*model.VerificationResult, error) {
	log := zap.L().With(zap.String("lot_id", lot.ID))
	sc := &stageContext{lot: lot, now: v.now()}
	result := &model.VerificationResult{VerifiedAt: sc.now}

	trackStage := func(name model.StageName, fn func() model.StageScore) model.StageScore {
		start := time.Now()
		s := fn()
		s.Stage = name
		s.Duration = time.Since(start).Milliseconds()
		result.Stages = append(result.Stages, s)
		log.Debug("verifier: stage done",
			zap.String("stage", string(name)),
			zap.Float64("score", s.Score),
			zap.Bool("passed", s.Passed),
			zap.Bool("has_data", s.HasData),
		)
		return s
	}

	gate := trackStage(model.StageBasicValidation, func() model.StageScore { return basicValidation(sc) })
	if !gate.Passed {
		result.Verdict = model.VerdictInsufficientData
		return result, nil
	}

	trackStage(model.StageStructuralRisk, func() model.StageScore { return v.structural(sc) })
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trackStage(model.StageFinancialAnalysis, func() model.StageScore { return v.financial(ctx, sc) })
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	trackStage(model.StageCaseAnalysis, func() model.StageScore { return v.legal(ctx, sc) })
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agg, conf := v.aggregate(result.Stages)
	result.AggregateScore = &agg
	result.Confidence = conf
	result.Verdict = v.verdict(agg)
	return result, nil
}

func (v *Verifier) weight(name model.StageName) float64 {
	switch name {
	case model.StageStructuralRisk:
		return v.cfg.Weights.Structural
	case model.StageFinancialAnalysis:
		return v.cfg.Weights.Financial
	case model.StageCaseAnalysis:
		return v.cfg.Weights.Case
	}
	return 0
}

// aggregate returns the weight-normalized score of stages two to four and
// the share of weight carried by stages that passed with data.
func (v *Verifier) aggregate(stages []model.StageScore) (score, confidence float64) {
	var sum, total, trusted float64
	for _, s := range stages {
		w := v.weight(s.Stage)
		if w == 0 {
			continue
		}
		sum += w * s.Score
		total += w
		if s.Passed && s.HasData {
			trusted += w
		}
	}
	if total == 0 {
		return 0, 0
	}
	return clamp01(sum / total), trusted / total
}

func (v *Verifier) verdict(agg float64) model.Verdict {
	switch {
	case agg >= v.cfg.HighRiskThreshold:
		return model.VerdictHighRisk
	case agg >= v.cfg.MediumRiskThreshold:
		return model.VerdictMediumRisk
	default:
		return model.VerdictLowRisk
	}
}

// ValidateConfig checks that weights and thresholds are usable.
func ValidateConfig(c config.VerifierConfig) error {
	var errs []string

	weights := map[string]float64{
		"structural": c.Weights.Structural,
		"financial":  c.Weights.Financial,
		"case":       c.Weights.Case,
	}
	for _, name := range []string{"structural", "financial", "case"} {
		if weights[name] < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}
	if c.Weights.Structural+c.Weights.Financial+c.Weights.Case <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > 1 {
		errs = append(errs, "high_risk_threshold must be between 0 and 1")
	}
	if c.MediumRiskThreshold < 0 || c.MediumRiskThreshold > 1 {
		errs = append(errs, "medium_risk_threshold must be between 0 and 1")
	}
	if c.MediumRiskThreshold > c.HighRiskThreshold {
		errs = append(errs, "medium_risk_threshold must not exceed high_risk_threshold")
	}
	if c.LowestConfidenceScore < 0 || c.LowestConfidenceScore > 1 {
		errs = append(errs, "lowest_confidence_score must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("verifier: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func failed(note string) model.StageScore {
	return model.StageScore{Score: 0, Passed: false, HasData: false, Notes: []string{note}}
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
