package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/browser"
	"github.com/sells-group/bankrot-cli/internal/collector"
	"github.com/sells-group/bankrot-cli/internal/enrich"
	"github.com/sells-group/bankrot-cli/internal/metrics"
	"github.com/sells-group/bankrot-cli/internal/pipeline"
)

var (
	runVariant        string
	runMaxPages       int
	runNonInteractive bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, filter, enrich and verify catalog lots",
	Long:  "Walks the catalog, skips lots already finished in the cache, and persists every outcome after each lot. Exit status is 2 when collection aborts and 130 on interrupt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runVariant != "" {
			cfg.Filter.Variant = runVariant
		}
		if runMaxPages > 0 {
			cfg.Catalog.MaxPages = runMaxPages
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		reg, err := loadRegistry(time.Now())
		if err != nil {
			return err
		}
		variant, err := reg.Get(cfg.Filter.Variant)
		if err != nil {
			return err
		}

		lots, err := openCache(ctx)
		if err != nil {
			return err
		}
		defer lots.Close() //nolint:errcheck

		m := metrics.New()
		enricher, err := enrich.NewFromConfig(cfg.Enrich, enrich.WithAttemptHook(m.EnrichAttempt))
		if err != nil {
			return err
		}
		ver, err := newVerifier(lots)
		if err != nil {
			return err
		}

		b := browser.NewHTTPBrowser(browser.Options{
			BaseURL:           cfg.Catalog.BaseURL,
			SearchPath:        cfg.Catalog.SearchPath,
			DetailAPIURL:      cfg.Catalog.DetailAPIURL,
			UserAgent:         cfg.Catalog.UserAgent,
			Cookie:            cfg.Catalog.Cookie,
			PageTimeout:       time.Duration(cfg.Catalog.PageTimeoutSecs) * time.Second,
			DetailTimeout:     time.Duration(cfg.Catalog.DetailTimeoutSecs) * time.Second,
			MaxRetries:        cfg.Catalog.Retries,
			RequestsPerSecond: cfg.Catalog.RequestsPerSecond,
			ZeroResultMarker:  cfg.Catalog.ZeroResultMarker,
		})

		var resolver browser.CaptchaResolver = browser.PromptResolver{In: os.Stdin, Out: os.Stderr}
		if runNonInteractive || cfg.Catalog.NonInteractive {
			resolver = browser.FailResolver
		}

		opts := []pipeline.Option{
			pipeline.WithWorkers(cfg.Pipeline.Workers),
			pipeline.WithEmptyPageThreshold(cfg.Pipeline.EmptyPageThreshold),
			pipeline.WithCaptchaResolver(resolver),
			pipeline.WithObserver(m),
		}
		if enricher != nil {
			opts = append(opts, pipeline.WithEnricher(enricher))
			zap.L().Info("enrichment enabled", zap.String("provider", enricher.Provider()))
		}

		orch := pipeline.New(
			collector.New(b, resolver, cfg.Catalog.BaseURL, cfg.Catalog.MaxPages),
			b, lots, variant, ver, opts...,
		)
		summary, runErr := orch.Run(ctx)
		renderSummary(cmd.OutOrStdout(), summary)

		if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			zap.L().Warn("failed to write metrics textfile", zap.Error(err))
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runVariant, "variant", "", "filter variant to apply (overrides filter.variant)")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "maximum catalog pages to walk (overrides catalog.max_pages)")
	runCmd.Flags().BoolVar(&runNonInteractive, "non-interactive", false, "fail on captcha instead of waiting for the operator")
	rootCmd.AddCommand(runCmd)
}
