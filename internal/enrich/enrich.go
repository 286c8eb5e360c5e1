// Package enrich resolves ambiguous debtor identities through a language
// model. Calls are bounded by a per-call timeout and retried with
// exponential backoff up to a fixed attempt cap.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/config"
	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/pkg/anthropic"
	"github.com/sells-group/bankrot-cli/pkg/openrouter"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// Request is one enrichment call.
type Request struct {
	LotID       string
	RawName     string
	CaseContext string
}

// EnrichmentError is returned once the attempt cap is exhausted or a
// permanent failure occurs.
type EnrichmentError struct {
	LotID    string
	Attempts int
	Err      error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich: lot %s failed after %d attempt(s): %v", e.LotID, e.Attempts, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// AttemptHook observes every provider call with its outcome:
// "ok", "no_match", "transient", "malformed" or "failed".
type AttemptHook func(provider, outcome string)

// Enricher applies the retry and validation policy around a Provider.
type Enricher struct {
	provider       Provider
	timeout        time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	minConfidence  float64
	hook           AttemptHook
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithAttemptHook installs an attempt observer.
func WithAttemptHook(h AttemptHook) Option {
	return func(e *Enricher) { e.hook = h }
}

// WithInitialBackoff overrides the first retry delay.
func WithInitialBackoff(d time.Duration) Option {
	return func(e *Enricher) { e.initialBackoff = d }
}

// WithMinConfidence sets the confidence below which a match is not applied
// to a lot.
func WithMinConfidence(c float64) Option {
	return func(e *Enricher) { e.minConfidence = c }
}

// New creates an Enricher.
func New(p Provider, timeout time.Duration, maxAttempts int, opts ...Option) *Enricher {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	e := &Enricher{
		provider:       p,
		timeout:        timeout,
		maxAttempts:    maxAttempts,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewFromConfig builds the configured provider. It returns nil when
// enrichment is disabled.
func NewFromConfig(cfg config.EnrichConfig, opts ...Option) (*Enricher, error) {
	var p Provider
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		p = NewAnthropicProvider(anthropic.NewClient(cfg.AnthropicKey), model)
	case "openrouter":
		client := openrouter.NewClient(cfg.OpenRouterKey, openrouter.WithURL(cfg.OpenRouterURL), openrouter.WithModel(cfg.Model))
		p = NewOpenRouterProvider(client, cfg.Model)
	default:
		return nil, eris.Errorf("enrich: unknown provider %q", cfg.Provider)
	}
	base := []Option{
		WithInitialBackoff(time.Duration(cfg.InitialBackoffMS) * time.Millisecond),
		WithMinConfidence(cfg.MinConfidence),
	}
	return New(p, cfg.Timeout(), cfg.MaxAttempts, append(base, opts...)...), nil
}

// Provider returns the provider name.
func (e *Enricher) Provider() string { return e.provider.Name() }

// Enrich resolves the debtor for one lot. A well-formed no-match answer is
// returned as a result with Matched=false, not as an error. Transient
// failures are retried up to the attempt cap; a malformed answer is retried
// once.
func (e *Enricher) Enrich(ctx context.Context, req Request) (model.NormalizedDebtor, error) {
	log := zap.L().With(zap.String("lot_id", req.LotID), zap.String("provider", e.provider.Name()))
	prompt := buildPrompt(req)

	var (
		result    model.NormalizedDebtor
		attempts  int
		malformed int
	)
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		raw, err := e.provider.Complete(callCtx, systemPrompt, prompt, req.LotID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if IsTransient(err) {
				e.observe("transient")
				log.Warn("enrich: transient failure", zap.Int("attempt", attempts), zap.Error(err))
				return err
			}
			e.observe("failed")
			return backoff.Permanent(err)
		}

		parsed, err := parseResponse(raw)
		if err != nil {
			malformed++
			e.observe("malformed")
			log.Warn("enrich: malformed response", zap.Int("attempt", attempts), zap.Error(err))
			if malformed > 1 {
				return backoff.Permanent(err)
			}
			return err
		}
		if parsed.Matched {
			e.observe("ok")
		} else {
			e.observe("no_match")
		}
		result = parsed
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.initialBackoff
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.maxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if ctx.Err() != nil {
			return model.NormalizedDebtor{}, ctx.Err()
		}
		return model.NormalizedDebtor{}, &EnrichmentError{LotID: req.LotID, Attempts: attempts, Err: err}
	}

	log.Debug("enrich: resolved",
		zap.Bool("matched", result.Matched),
		zap.Float64("confidence", result.Confidence),
		zap.Int("attempts", attempts),
	)
	return result, nil
}

// EnrichLot enriches lot in place and reports whether anything changed.
func (e *Enricher) EnrichLot(ctx context.Context, lot *model.Lot) (bool, error) {
	d, err := e.Enrich(ctx, Request{
		LotID:       lot.ID,
		RawName:     lot.DebtorRawName,
		CaseContext: lot.AnnouncementText,
	})
	if err != nil {
		return false, err
	}
	return Apply(lot, d, e.minConfidence), nil
}

// Apply copies a confident match onto lot. The INN is only filled when the
// lot has none.
func Apply(lot *model.Lot, d model.NormalizedDebtor, minConfidence float64) bool {
	lot.EnrichmentConfidence = d.Confidence
	if !d.Matched || d.Confidence < minConfidence {
		return false
	}
	changed := false
	if d.Name != lot.DebtorNormalizedName {
		lot.DebtorNormalizedName = d.Name
		changed = true
	}
	if lot.DebtorINN == "" && d.INN != "" {
		lot.DebtorINN = d.INN
		changed = true
	}
	return changed
}

// NeedsEnrichment reports whether a lot's debtor identity is ambiguous: the
// INN is missing or the raw name carries no legal form.
func NeedsEnrichment(lot model.Lot) bool {
	if lot.DebtorINN == "" || lot.DebtorRawName == "" {
		return true
	}
	return !hasLegalForm(lot.DebtorRawName)
}

var legalForms = []string{"ООО", "АО", "ПАО", "ЗАО", "ОАО", "НАО", "ИП", "ГУП", "МУП", "ФГУП", "АНО", "ТОО"}

func hasLegalForm(name string) bool {
	upper := strings.ToUpper(name)
	for _, f := range legalForms {
		if strings.HasPrefix(upper, f+" ") || strings.Contains(upper, " "+f+" ") || strings.HasPrefix(upper, f+"«") || strings.HasPrefix(upper, f+"\"") {
			return true
		}
	}
	return strings.Contains(upper, "ОБЩЕСТВО С ОГРАНИЧЕННОЙ") || strings.Contains(upper, "АКЦИОНЕРНОЕ ОБЩЕСТВО")
}

func (e *Enricher) observe(outcome string) {
	if e.hook != nil {
		e.hook(e.provider.Name(), outcome)
	}
}
