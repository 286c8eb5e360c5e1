package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/cache"
	"github.com/sells-group/bankrot-cli/internal/filter"
	"github.com/sells-group/bankrot-cli/internal/resilience"
	"github.com/sells-group/bankrot-cli/internal/verifier"
	"github.com/sells-group/bankrot-cli/pkg/finance"
)

// openCache opens the configured lot cache. Callers should defer Close.
func openCache(ctx context.Context) (*cache.Cache, error) {
	c, err := cache.OpenFromConfig(ctx, cfg.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "open cache")
	}
	return c, nil
}

// loadRegistry returns the built-in filter variants plus any defined in
// filter.variants_file, all evaluated as of now.
func loadRegistry(now time.Time) (*filter.Registry, error) {
	reg := filter.NewRegistry(now)
	if cfg.Filter.VariantsFile != "" {
		if err := reg.LoadFile(cfg.Filter.VariantsFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newVerifier builds the debt verifier. Without finance.base_url the
// financial stage has no data and the case stage cannot run.
func newVerifier(siblings verifier.SiblingSource) (*verifier.Verifier, error) {
	opts := []verifier.Option{verifier.WithSiblings(siblings)}
	if cfg.Finance.BaseURL != "" {
		client := resilience.GuardFinance(finance.NewClient(cfg.Finance.BaseURL, cfg.Finance.Key), resilience.Config{
			FailureThreshold: cfg.Finance.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.Finance.BreakerResetSecs) * time.Second,
		})
		timeout := time.Duration(cfg.Finance.TimeoutSecs) * time.Second
		opts = append(opts, verifier.WithFinance(client, cfg.Finance.Years, timeout))
	} else {
		zap.L().Warn("finance.base_url not set, financial and case stages run without data")
	}
	return verifier.New(cfg.Verifier, opts...)
}
