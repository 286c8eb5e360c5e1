package verifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/config"
	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

var testNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeFinance struct {
	fin       *model.Financials
	finErr    error
	cases     *model.CaseIndicators
	caseErr   error
	finCalls  int
	caseCalls int
}

func (f *fakeFinance) GetFinancials(_ context.Context, _ string, _, _ int) (*model.Financials, error) {
	f.finCalls++
	if f.finErr != nil {
		return nil, f.finErr
	}
	if f.fin == nil {
		return nil, finance.ErrNotFound
	}
	return f.fin, nil
}

func (f *fakeFinance) GetCaseIndicators(_ context.Context, _, _ string) (*model.CaseIndicators, error) {
	f.caseCalls++
	if f.caseErr != nil {
		return nil, f.caseErr
	}
	if f.cases == nil {
		return nil, finance.ErrNotFound
	}
	return f.cases, nil
}

type fakeSiblings []model.Lot

func (s fakeSiblings) Siblings(model.Lot) []model.Lot { return s }

func testConfig() config.VerifierConfig {
	return config.VerifierConfig{
		Weights:               config.StageWeights{Structural: 0.3, Financial: 0.4, Case: 0.3},
		HighRiskThreshold:     0.7,
		MediumRiskThreshold:   0.4,
		LowestConfidenceScore: 0.5,
	}
}

func newTestVerifier(t *testing.T, fin finance.Client, opts ...Option) *Verifier {
	t.Helper()
	all := []Option{WithClock(func() time.Time { return testNow })}
	if fin != nil {
		all = append(all, WithFinance(fin, 3, time.Second))
	}
	v, err := New(testConfig(), append(all, opts...)...)
	require.NoError(t, err)
	return v
}

func TestVerify_ExampleLotWithoutFinancials(t *testing.T) {
	fin := &fakeFinance{cases: &model.CaseIndicators{
		ClaimCount: 1,
		CaseStatus: "Решение вступило в силу",
		CaseSum:    2_400_000,
	}}
	v := newTestVerifier(t, fin)

	res, err := v.Verify(context.Background(), model.Lot{ID: "L1", CaseNumber: "A40-123/25", DebtorRawName: "ООО Ромашка"})
	require.NoError(t, err)

	require.Len(t, res.Stages, 4)
	for i, name := range model.AllStages() {
		assert.Equal(t, name, res.Stages[i].Stage)
	}

	gate := res.Stages[0]
	assert.True(t, gate.Passed)

	structural := res.Stages[1]
	assert.True(t, structural.Passed)
	assert.InDelta(t, 0.28, structural.Score, 1e-9)

	financial := res.Stages[2]
	assert.True(t, financial.Passed)
	assert.False(t, financial.HasData)
	assert.InDelta(t, 0.5, financial.Score, 1e-9)

	legal := res.Stages[3]
	assert.True(t, legal.Passed)
	assert.InDelta(t, 0.1, legal.Score, 1e-9)

	require.NotNil(t, res.AggregateScore)
	assert.InDelta(t, 0.3*0.28+0.4*0.5+0.3*0.1, *res.AggregateScore, 1e-9)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
	assert.Equal(t, model.VerdictLowRisk, res.Verdict)
	assert.Equal(t, testNow, res.VerifiedAt)

	assert.Equal(t, 0, fin.finCalls, "no INN means no financial lookup")
	assert.Equal(t, 1, fin.caseCalls)
}

func TestVerify_ShortCircuitOnGate(t *testing.T) {
	lots := []model.Lot{
		{ID: "no-case", DebtorRawName: "ООО Ромашка"},
		{ID: "bad-case", CaseNumber: "40-123", DebtorRawName: "ООО Ромашка"},
		{ID: "no-debtor", CaseNumber: "А40-123/2025"},
		{ID: "bad-dates", CaseNumber: "А40-123/2025", DebtorRawName: "ООО Ромашка", AuctionEndDate: ptr(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC))},
	}
	for _, lot := range lots {
		t.Run(lot.ID, func(t *testing.T) {
			fin := &fakeFinance{}
			v := newTestVerifier(t, fin)
			res, err := v.Verify(context.Background(), lot)
			require.NoError(t, err)
			assert.Equal(t, model.VerdictInsufficientData, res.Verdict)
			assert.Nil(t, res.AggregateScore)
			require.Len(t, res.Stages, 1)
			assert.False(t, res.Stages[0].Passed)
			assert.NotEmpty(t, res.Stages[0].Notes)
			assert.Zero(t, fin.finCalls+fin.caseCalls)
		})
	}
}

func TestVerify_MissingFinancialsNeverGate(t *testing.T) {
	tests := []struct {
		name string
		fin  finance.Client
		inn  string
	}{
		{"no source", nil, "7701234567"},
		{"not found", &fakeFinance{}, "7701234567"},
		{"no inn", &fakeFinance{}, ""},
		{"empty record", &fakeFinance{fin: &model.Financials{INN: "7701234567"}}, "7701234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, tt.fin)
			res, err := v.Verify(context.Background(), model.Lot{ID: "L", CaseNumber: "А40-1/2024", DebtorRawName: "ООО X", DebtorINN: tt.inn})
			require.NoError(t, err)
			s, ok := res.Stage(model.StageFinancialAnalysis)
			require.True(t, ok)
			assert.True(t, s.Passed)
			assert.False(t, s.HasData)
			assert.Equal(t, 0.5, s.Score)
			assert.NotNil(t, res.AggregateScore)
		})
	}
}

func TestVerify_StageFailureDepressesConfidence(t *testing.T) {
	fin := &fakeFinance{finErr: context.DeadlineExceeded, caseErr: errors.New("boom")}
	v := newTestVerifier(t, fin)

	res, err := v.Verify(context.Background(), model.Lot{ID: "L", CaseNumber: "А40-1/2024", DebtorRawName: "ООО X", DebtorINN: "7701234567"})
	require.NoError(t, err)

	financial, _ := res.Stage(model.StageFinancialAnalysis)
	assert.True(t, financial.Passed, "an unreachable source does not gate")
	assert.False(t, financial.HasData)
	assert.InDelta(t, testConfig().LowestConfidenceScore, financial.Score, 1e-9)
	require.NotEmpty(t, financial.Notes)
	assert.Contains(t, financial.Notes[0], "deadline exceeded")

	legal, _ := res.Stage(model.StageCaseAnalysis)
	assert.False(t, legal.Passed)
	assert.Zero(t, legal.Score)

	require.NotNil(t, res.AggregateScore)
	structural, _ := res.Stage(model.StageStructuralRisk)
	assert.InDelta(t, 0.3*structural.Score+0.4*financial.Score, *res.AggregateScore, 1e-9)
	assert.InDelta(t, 0.3, res.Confidence, 1e-9)
}

func TestVerify_SourceOutageScoresLikeMissingData(t *testing.T) {
	lot := model.Lot{ID: "L", CaseNumber: "А40-1/2024", DebtorRawName: "ООО X", DebtorINN: "7701234567"}
	cases := &model.CaseIndicators{CaseSum: 1_000_000, CaseStatus: "решение вступило в силу"}

	missing, err := newTestVerifier(t, &fakeFinance{finErr: finance.ErrNotFound, cases: cases}).Verify(context.Background(), lot)
	require.NoError(t, err)
	outage, err := newTestVerifier(t, &fakeFinance{finErr: context.DeadlineExceeded, cases: cases}).Verify(context.Background(), lot)
	require.NoError(t, err)

	require.NotNil(t, missing.AggregateScore)
	require.NotNil(t, outage.AggregateScore)
	assert.InDelta(t, *missing.AggregateScore, *outage.AggregateScore, 1e-9)
	assert.Equal(t, missing.Verdict, outage.Verdict)
	assert.InDelta(t, missing.Confidence, outage.Confidence, 1e-9)
}

func TestVerify_DistressedDebtorIsHighRisk(t *testing.T) {
	fin := &fakeFinance{
		fin: &model.Financials{
			INN:           "7701234567",
			CompanyStatus: "Признан банкротом: конкурсное производство. 01.02.2024",
			Lines: map[string]map[int]float64{
				model.LineEquity:             {2023: -100, 2024: -500},
				model.LineCurrentAssets:      {2024: 100},
				model.LineInventories:        {2024: 50},
				model.LineCash:               {2024: 1},
				model.LineCurrentLiabilities: {2024: 1000},
			},
		},
		cases: &model.CaseIndicators{ClaimCount: 12, OutstandingAmount: 9_000_000, CaseStatus: "отказ от иска со стороны кредитора"},
	}
	v := newTestVerifier(t, fin, WithSiblings(fakeSiblings{{ID: "a"}, {ID: "b"}, {ID: "c"}}))

	res, err := v.Verify(context.Background(), model.Lot{ID: "L", CaseNumber: "А40-1/2019", DebtorRawName: "ООО X", DebtorINN: "7701234567", NominalDebt: 5_000_000})
	require.NoError(t, err)

	financial, _ := res.Stage(model.StageFinancialAnalysis)
	assert.True(t, financial.HasData)
	assert.GreaterOrEqual(t, financial.Score, 0.9)
	assert.Contains(t, financial.Notes, "autopass: one_strong_two_mediums")

	structural, _ := res.Stage(model.StageStructuralRisk)
	assert.InDelta(t, 0.4*0.9+0.4*0.9+0.2*0.6, structural.Score, 1e-9)

	legal, _ := res.Stage(model.StageCaseAnalysis)
	assert.Equal(t, 1.0, legal.Score)

	assert.Equal(t, model.VerdictHighRisk, res.Verdict)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
}

func TestVerify_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := newTestVerifier(t, &fakeFinance{})
	_, err := v.Verify(ctx, model.Lot{ID: "L", CaseNumber: "А40-1/2024", DebtorRawName: "ООО X"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerdictThresholds(t *testing.T) {
	v := newTestVerifier(t, nil)
	assert.Equal(t, model.VerdictHighRisk, v.verdict(0.7))
	assert.Equal(t, model.VerdictMediumRisk, v.verdict(0.69))
	assert.Equal(t, model.VerdictMediumRisk, v.verdict(0.4))
	assert.Equal(t, model.VerdictLowRisk, v.verdict(0.39))
}

func TestAggregate_ZeroWeightStageIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = config.StageWeights{Structural: 1}
	v, err := New(cfg)
	require.NoError(t, err)

	score, conf := v.aggregate([]model.StageScore{
		{Stage: model.StageBasicValidation, Score: 1, Passed: true, HasData: true},
		{Stage: model.StageStructuralRisk, Score: 0.8, Passed: true, HasData: true},
		{Stage: model.StageFinancialAnalysis, Score: 0.1, Passed: true, HasData: true},
	})
	assert.InDelta(t, 0.8, score, 1e-9)
	assert.InDelta(t, 1.0, conf, 1e-9)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.VerifierConfig)
		wantErr string
	}{
		{"valid", func(*config.VerifierConfig) {}, ""},
		{"negative weight", func(c *config.VerifierConfig) { c.Weights.Case = -1 }, "case weight must be >= 0"},
		{"zero sum", func(c *config.VerifierConfig) { c.Weights = config.StageWeights{} }, "weight sum must be > 0"},
		{"high above one", func(c *config.VerifierConfig) { c.HighRiskThreshold = 1.5 }, "high_risk_threshold"},
		{"unordered", func(c *config.VerifierConfig) { c.MediumRiskThreshold = 0.8 }, "must not exceed"},
		{"lowest out of range", func(c *config.VerifierConfig) { c.LowestConfidenceScore = 2 }, "lowest_confidence_score"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := New(config.VerifierConfig{})
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
