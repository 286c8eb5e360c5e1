package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/model"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.LotFinished(model.LotStatusVerified, "low_risk", 2*time.Second)
	m.LotFinished(model.LotStatusVerified, "high_risk", time.Second)
	m.LotFinished(model.LotStatusError, model.ReasonParseFailed, time.Millisecond)
	m.LotSkipped()
	m.EmptyPage()
	m.EmptyPage()
	m.EnrichAttempt("anthropic", "transient")
	m.EnrichAttempt("anthropic", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LotOutcomes.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LotOutcomes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LotsSkipped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmptyPages))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichAttempts.WithLabelValues("anthropic", "transient")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LotDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LotFinished(model.LotStatusVerified, "", time.Second)
		m.LotSkipped()
		m.EmptyPage()
		m.EnrichAttempt("openrouter", "ok")
	})
	assert.NoError(t, m.WriteTextfile("ignored.prom"))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.LotFinished(model.LotStatusFilteredOut, "min_debt", time.Second)

	path := filepath.Join(t.TempDir(), "bankrot.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bankrot_lots_total{status="filtered_out"} 1`)
	assert.Contains(t, string(data), "bankrot_lot_duration_seconds_bucket")
}

func TestMetrics_WriteTextfileEmptyPath(t *testing.T) {
	assert.NoError(t, New().WriteTextfile(""))
}

func TestMetrics_RegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.LotSkipped()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LotsSkipped))
}
