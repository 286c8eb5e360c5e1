package resilience

import (
	"context"
	"errors"

	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

// FinanceClient wraps a finance.Client with a shared breaker. Not-found
// answers are healthy responses and never trip it.
type FinanceClient struct {
	next    finance.Client
	breaker *Breaker
}

var _ finance.Client = (*FinanceClient)(nil)

// GuardFinance wraps next. cfg.Ignore is extended to skip finance.ErrNotFound.
func GuardFinance(next finance.Client, cfg Config) *FinanceClient {
	ignore := cfg.Ignore
	cfg.Ignore = func(err error) bool {
		if errors.Is(err, finance.ErrNotFound) {
			return true
		}
		return ignore != nil && ignore(err)
	}
	if cfg.Name == "" {
		cfg.Name = "finance"
	}
	return &FinanceClient{next: next, breaker: New(cfg)}
}

// Breaker exposes the underlying breaker.
func (c *FinanceClient) Breaker() *Breaker { return c.breaker }

// GetFinancials implements finance.Client.
func (c *FinanceClient) GetFinancials(ctx context.Context, inn string, fromYear, toYear int) (*model.Financials, error) {
	return Call(ctx, c.breaker, func(ctx context.Context) (*model.Financials, error) {
		return c.next.GetFinancials(ctx, inn, fromYear, toYear)
	})
}

// GetCaseIndicators implements finance.Client.
func (c *FinanceClient) GetCaseIndicators(ctx context.Context, inn, caseNumber string) (*model.CaseIndicators, error) {
	return Call(ctx, c.breaker, func(ctx context.Context) (*model.CaseIndicators, error) {
		return c.next.GetCaseIndicators(ctx, inn, caseNumber)
	})
}
