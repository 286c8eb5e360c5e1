package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

var errUpstream = errors.New("upstream 503")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)}
	b := New(Config{Name: "test", FailureThreshold: threshold, ResetTimeout: time.Minute})
	b.now = clk.now
	return b, clk
}

func fail(context.Context) (int, error) { return 0, errUpstream }
func ok(context.Context) (int, error)   { return 1, nil }

func TestBreaker_Defaults(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, 5, b.cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, b.cfg.ResetTimeout)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for range 3 {
		_, err := Call(ctx, b, fail)
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, Open, b.State())

	called := false
	_, err := Call(ctx, b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, fail)
	_, err := Call(ctx, b, ok)
	require.NoError(t, err)
	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, fail)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	require.Equal(t, Open, b.State())

	clk.advance(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	// A failed probe reopens.
	_, err := Call(ctx, b, fail)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, Open, b.State())

	clk.advance(time.Minute)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_CancelledProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	clk.advance(time.Minute)
	require.Equal(t, HalfOpen, b.State())

	_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Open, b.State())

	_, err = Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.cfg.Ignore = func(err error) bool { return errors.Is(err, errUpstream) }
	ctx := context.Background()

	_, _ = Call(ctx, b, fail)
	_, _ = Call(ctx, b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.Equal(t, Closed, b.State())
}

type stubFinance struct {
	err   error
	calls int
}

func (s *stubFinance) GetFinancials(context.Context, string, int, int) (*model.Financials, error) {
	s.calls++
	return nil, s.err
}

func (s *stubFinance) GetCaseIndicators(context.Context, string, string) (*model.CaseIndicators, error) {
	s.calls++
	return nil, s.err
}

func TestGuardFinance_NotFoundKeepsCircuitClosed(t *testing.T) {
	stub := &stubFinance{err: finance.ErrNotFound}
	c := GuardFinance(stub, Config{FailureThreshold: 1})

	for range 3 {
		_, err := c.GetFinancials(context.Background(), "7707083893", 2022, 2025)
		assert.ErrorIs(t, err, finance.ErrNotFound)
	}
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, Closed, c.Breaker().State())
}

func TestGuardFinance_SharedBreakerRejects(t *testing.T) {
	stub := &stubFinance{err: errUpstream}
	c := GuardFinance(stub, Config{FailureThreshold: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	_, _ = c.GetFinancials(ctx, "7707083893", 2022, 2025)
	_, _ = c.GetCaseIndicators(ctx, "7707083893", "А40-1/24")
	require.Equal(t, Open, c.Breaker().State())

	_, err := c.GetCaseIndicators(ctx, "7707083893", "А40-1/24")
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "finance")
	assert.Equal(t, 2, stub.calls)
}
