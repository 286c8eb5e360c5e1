package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/bankrot-cli/internal/model"
)

var evalDate = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func daysOut(n int) *time.Time {
	t := evalDate.AddDate(0, 0, n)
	return &t
}

func TestMinDebt(t *testing.T) {
	t.Parallel()
	r := MinDebt{Amount: 2_000_000}
	assert.False(t, r.Accepts(model.Lot{NominalDebt: 2_000_000}))
	assert.True(t, r.Accepts(model.Lot{NominalDebt: 2_000_000.01}))
	assert.Equal(t, "min_debt", r.RuleName())
}

func TestAuctionEndWindow(t *testing.T) {
	t.Parallel()
	r := AuctionEndWindow{Now: evalDate, MinDays: 21, MaxDays: 90}

	tests := []struct {
		name string
		end  *time.Time
		want bool
	}{
		{"missing", nil, false},
		{"too soon", daysOut(20), false},
		{"lower bound", daysOut(21), true},
		{"inside", daysOut(45), true},
		{"upper bound", daysOut(90), true},
		{"too far", daysOut(91), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Accepts(model.Lot{AuctionEndDate: tt.end}))
		})
	}

	r.AllowMissing = true
	assert.True(t, r.Accepts(model.Lot{}))
}

func TestAuctionEndWindow_IgnoresTimeOfDay(t *testing.T) {
	t.Parallel()
	r := AuctionEndWindow{Now: evalDate, MinDays: 21, MaxDays: 90}
	end := time.Date(2025, 9, 22, 0, 30, 0, 0, time.UTC)
	assert.True(t, r.Accepts(model.Lot{AuctionEndDate: &end}))
}

func TestApplicationOpen(t *testing.T) {
	t.Parallel()
	r := ApplicationOpen{Now: evalDate}
	assert.True(t, r.Accepts(model.Lot{}))
	assert.False(t, r.Accepts(model.Lot{ApplicationEndDate: daysOut(0)}))
	assert.True(t, r.Accepts(model.Lot{ApplicationEndDate: daysOut(1)}))
	assert.False(t, r.Accepts(model.Lot{ApplicationEndDate: daysOut(-3)}))
}

func TestAuctionEndAfter(t *testing.T) {
	t.Parallel()
	r := AuctionEndAfter{Now: evalDate, Days: 14}
	assert.True(t, r.Accepts(model.Lot{}))
	assert.False(t, r.Accepts(model.Lot{AuctionEndDate: daysOut(14)}))
	assert.True(t, r.Accepts(model.Lot{AuctionEndDate: daysOut(15)}))
}

func TestIdentityRules(t *testing.T) {
	t.Parallel()
	assert.False(t, RequireINN{}.Accepts(model.Lot{}))
	assert.True(t, RequireINN{}.Accepts(model.Lot{DebtorINN: "7701234567"}))

	assert.False(t, RequireDebtorName{}.Accepts(model.Lot{}))
	assert.True(t, RequireDebtorName{}.Accepts(model.Lot{DebtorNormalizedName: "ООО Ромашка"}))

	assert.False(t, ExcludeIndividuals{}.Accepts(model.Lot{Individuals: true}))
	assert.True(t, ExcludeIndividuals{}.Accepts(model.Lot{}))

	assert.False(t, RequireCaseNumber{}.Accepts(model.Lot{}))
	assert.True(t, RequireCaseNumber{}.Accepts(model.Lot{CaseNumber: "А40-123/25"}))
}

func TestVariantEvaluate_FirstRejectingRule(t *testing.T) {
	t.Parallel()
	v := &Variant{
		Name:  "test",
		Rules: []Filter{RequireCaseNumber{}, MinDebt{Amount: 100}},
	}

	ok, rule := v.Evaluate(model.Lot{})
	assert.False(t, ok)
	assert.Equal(t, "require_case_number", rule)

	ok, rule = v.Evaluate(model.Lot{CaseNumber: "А40-1/25", NominalDebt: 50})
	assert.False(t, ok)
	assert.Equal(t, "min_debt", rule)

	ok, rule = v.Evaluate(model.Lot{CaseNumber: "А40-1/25", NominalDebt: 500})
	assert.True(t, ok)
	assert.Empty(t, rule)
	assert.Equal(t, "test", v.RuleName())
}

func TestVariantAccepts_Deterministic(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(evalDate)
	lot := model.Lot{NominalDebt: 3_000_000, AuctionEndDate: daysOut(30)}
	for _, v := range reg.Variants() {
		first := v.Accepts(lot)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, v.Accepts(lot), v.Name)
		}
	}
}
