package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/model"
)

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(evalDate)

	names := make([]string, 0)
	for _, v := range reg.Variants() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{VariantDeadline, VariantDebtWindow, VariantHasIdentity}, names)
	assert.Equal(t, evalDate, reg.Now())

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown variant")
}

func TestBuiltinVariantsDisagree(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(evalDate)
	debt, err := reg.Get(VariantDebtWindow)
	require.NoError(t, err)
	deadline, err := reg.Get(VariantDeadline)
	require.NoError(t, err)

	// Small debt, auction a month out, applications still open.
	lot := model.Lot{
		DebtorRawName:      "ООО Ромашка",
		NominalDebt:        500_000,
		AuctionEndDate:     daysOut(30),
		ApplicationEndDate: daysOut(25),
	}

	ok, rule := debt.Evaluate(lot)
	assert.False(t, ok)
	assert.Equal(t, "min_debt", rule)

	ok, _ = deadline.Evaluate(lot)
	assert.True(t, ok)
}

func TestRegistryLoad(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(evalDate)
	data := []byte(`
variants:
  - name: big_debt
    description: large claims only
    rules:
      - rule: require_inn
      - rule: min_debt
        amount: 5000000
      - rule: auction_end_window
        min_days: 10
        max_days: 60
  - name: debt_window
    rules:
      - rule: min_debt
        amount: 1
`)
	require.NoError(t, reg.Load(data))

	v, err := reg.Get("big_debt")
	require.NoError(t, err)
	assert.Equal(t, "large claims only", v.Description)
	require.Len(t, v.Rules, 3)

	ok, rule := v.Evaluate(model.Lot{DebtorINN: "7701234567", NominalDebt: 6_000_000, AuctionEndDate: daysOut(70)})
	assert.False(t, ok)
	assert.Equal(t, "auction_end_window", rule)

	ok, _ = v.Evaluate(model.Lot{DebtorINN: "7701234567", NominalDebt: 6_000_000, AuctionEndDate: daysOut(40)})
	assert.True(t, ok)

	overridden, err := reg.Get(VariantDebtWindow)
	require.NoError(t, err)
	assert.True(t, overridden.Accepts(model.Lot{NominalDebt: 2}))
}

func TestRegistryLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "variants: [", "filter: parse variants"},
		{"no name", "variants:\n  - rules:\n      - rule: require_inn\n", "without name"},
		{"no rules", "variants:\n  - name: empty\n", "has no rules"},
		{"unknown rule", "variants:\n  - name: x\n    rules:\n      - rule: moon_phase\n", "unknown rule"},
		{"inverted window", "variants:\n  - name: x\n    rules:\n      - rule: auction_end_window\n        min_days: 30\n        max_days: 10\n", "max_days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry(evalDate).Load([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRegistryLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "variants.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variants:\n  - name: inn_only\n    rules:\n      - rule: require_inn\n"), 0o644))

	reg := NewRegistry(evalDate)
	require.NoError(t, reg.LoadFile(path))
	_, err := reg.Get("inn_only")
	assert.NoError(t, err)

	err = reg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read variants file")
}
