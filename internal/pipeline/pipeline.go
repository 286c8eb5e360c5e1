// Package pipeline drives lots from the catalog through fetch, parse,
// filter, enrichment and verification, persisting every outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bankrot-cli/internal/browser"
	"github.com/sells-group/bankrot-cli/internal/collector"
	"github.com/sells-group/bankrot-cli/internal/enrich"
	"github.com/sells-group/bankrot-cli/internal/filter"
	"github.com/sells-group/bankrot-cli/internal/model"
	"github.com/sells-group/bankrot-cli/internal/parser"
)

var (
	// ErrCollectionAborted means the catalog stopped yielding work: too many
	// consecutive empty pages or a browser session blocked by a captcha.
	ErrCollectionAborted = eris.New("pipeline: collection aborted")
	// ErrCancelled means the operator interrupted the run.
	ErrCancelled = eris.New("pipeline: run cancelled")
)

// ReferenceSource yields lot references for one collection pass.
type ReferenceSource interface {
	References(ctx context.Context) iter.Seq2[model.LotReference, error]
}

// Store is the lot cache as seen by the orchestrator, its only writer.
type Store interface {
	Get(id string) (model.CacheEntry, bool)
	Put(entry model.CacheEntry) error
	Flush(ctx context.Context) error
}

// Enricher resolves ambiguous debtor identities in place.
type Enricher interface {
	EnrichLot(ctx context.Context, lot *model.Lot) (bool, error)
}

// Verifier produces the risk assessment for a qualified lot.
type Verifier interface {
	Verify(ctx context.Context, lot model.Lot) (*model.VerificationResult, error)
}

// Observer receives run events, typically for metrics.
type Observer interface {
	LotFinished(status model.LotStatus, reason string, elapsed time.Duration)
	LotSkipped()
	EmptyPage()
}

type nopObserver struct{}

func (nopObserver) LotFinished(model.LotStatus, string, time.Duration) {}
func (nopObserver) LotSkipped() {}
func (nopObserver) EmptyPage() {}

// Orchestrator runs the lot pipeline. Catalog and detail fetches share one
// browser and are strictly sequential; enrichment and verification of
// different lots run on a small worker pool; a single writer persists
// outcomes and flushes after every lot.
type Orchestrator struct {
	refs     ReferenceSource
	browser  browser.Browser
	resolver browser.CaptchaResolver
	store    Store
	variant  *filter.Variant
	enricher Enricher
	verifier Verifier
	observer Observer

	workers            int
	emptyPageThreshold int
	now                func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnricher enables AI enrichment of ambiguous debtors.
func WithEnricher(e Enricher) Option {
	return func(o *Orchestrator) { o.enricher = e }
}

// WithWorkers sets the enrichment and verification pool size.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithEmptyPageThreshold sets how many consecutive empty catalog pages
// abort collection.
func WithEmptyPageThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.emptyPageThreshold = n
		}
	}
}

// WithCaptchaResolver sets who clears captchas met on detail pages.
func WithCaptchaResolver(r browser.CaptchaResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithObserver attaches run event hooks.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithClock overrides the time source for fetchedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator for the active filter variant.
func New(refs ReferenceSource, b browser.Browser, st Store, variant *filter.Variant, v Verifier, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		refs:               refs,
		browser:            b,
		resolver:           browser.FailResolver,
		store:              st,
		variant:            variant,
		verifier:           v,
		observer:           nopObserver{},
		workers:            3,
		emptyPageThreshold: 5,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// outcome is one lot's final state on its way to the writer.
type outcome struct {
	entry      model.CacheEntry
	milestones []model.LotStatus
	started    time.Time
	err        error
}

// Run processes every reference of one collection pass. Per-lot failures
// are persisted as ERROR and never stop the run. The returned error is
// ErrCollectionAborted, ErrCancelled or a *cache.IOError when the run
// stopped early; the summary is valid in every case.
func (o *Orchestrator) Run(ctx context.Context) (*model.RunSummary, error) {
	start := o.now()
	summary := &model.RunSummary{RunID: uuid.New().String(), Variant: o.variant.Name}
	log := zap.L().With(zap.String("run_id", summary.RunID), zap.String("variant", summary.Variant))
	log.Info("pipeline: run starting", zap.Int("workers", o.workers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan outcome, o.workers)
	var ioErr error
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for res := range results {
			if ioErr != nil {
				continue
			}
			if err := o.persist(ctx, summary, res); err != nil {
				ioErr = err
				log.Error("pipeline: cache write failed, aborting run", zap.Error(err))
				cancel()
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(o.workers)

	abortErr := o.collect(runCtx, log, summary, results, &g)

	_ = g.Wait()
	close(results)
	<-writerDone

	summary.Duration = o.now().Sub(start)
	switch {
	case ioErr != nil:
		summary.Aborted = true
		summary.AbortReason = "cache write failed"
		abortErr = ioErr
	case abortErr != nil:
		summary.Aborted = true
		summary.AbortReason = abortErr.Error()
	case ctx.Err() != nil:
		summary.Aborted = true
		summary.AbortReason = "cancelled"
		abortErr = eris.Wrap(ErrCancelled, ctx.Err().Error())
	}

	log.Info("pipeline: run finished",
		zap.Int("references", summary.References),
		zap.Int("skipped", summary.Skipped),
		zap.Int("qualified", summary.Qualified),
		zap.Int("filtered_out", summary.FilteredOut),
		zap.Int("enriched", summary.Enriched),
		zap.Int("verified", summary.Verified),
		zap.Int("errored", summary.Errored),
		zap.Bool("aborted", summary.Aborted),
		zap.Duration("duration", summary.Duration),
	)
	return summary, abortErr
}

// collect walks the references on the calling goroutine, which owns the
// browser. It returns a non-nil error only when collection must abort.
func (o *Orchestrator) collect(ctx context.Context, log *zap.Logger, summary *model.RunSummary, results chan<- outcome, g *errgroup.Group) error {
	consecutiveEmpty := 0

	for ref, err := range o.refs.References(ctx) {
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			var empty *collector.EmptyPageError
			if !errors.As(err, &empty) {
				if ctx.Err() != nil {
					return nil
				}
				return eris.Wrap(ErrCollectionAborted, err.Error())
			}
			summary.EmptyPages++
			consecutiveEmpty++
			o.observer.EmptyPage()
			log.Warn("pipeline: empty catalog page",
				zap.Int("page", empty.Page),
				zap.Int("consecutive", consecutiveEmpty),
				zap.Error(err),
			)
			if consecutiveEmpty >= o.emptyPageThreshold {
				return eris.Wrapf(ErrCollectionAborted, "%d consecutive empty pages", consecutiveEmpty)
			}
			continue
		}
		consecutiveEmpty = 0
		summary.References++

		res, dispatch, err := o.admit(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if dispatch == nil && res == nil {
			summary.Skipped++
			o.observer.LotSkipped()
			continue
		}
		if res != nil {
			results <- *res
			continue
		}

		lot, started := dispatch.entry.Lot, dispatch.started
		g.Go(func() error {
			out := o.process(ctx, lot, started)
			if ctx.Err() != nil {
				zap.L().Info("pipeline: discarding in-flight lot", zap.String("lot_id", lot.ID))
				return nil
			}
			results <- out
			return nil
		})
	}
	return nil
}

// admit runs the sequential part for one reference: the cache check,
// detail fetch, parse and filter. It returns either a finished outcome for
// the writer, a qualified lot for the worker pool, or neither when the
// lot is skipped. An error aborts the run.
func (o *Orchestrator) admit(ctx context.Context, ref model.LotReference) (res, dispatch *outcome, err error) {
	log := zap.L().With(zap.String("lot_id", ref.ID))
	started := o.now()

	var lot model.Lot
	cached, ok := o.store.Get(ref.ID)
	switch {
	case ok && cached.Lot.Finished(o.variant.Name):
		log.Debug("pipeline: skipping cached lot", zap.String("status", string(cached.Lot.Status)))
		return nil, nil, nil
	case ok && cached.Lot.Status == model.LotStatusFilteredOut:
		log.Debug("pipeline: re-filtering cached lot", zap.String("previous_variant", cached.Lot.FilterVariant))
		lot = cached.Lot
		lot.Status = model.LotStatusNew
		lot.StatusReason = ""
	default:
		var content []byte
		content, err = o.fetchDetail(ctx, ref)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, browser.ErrCaptchaUnresolved) {
				return nil, nil, eris.Wrap(ErrCollectionAborted, err.Error())
			}
			log.Error("pipeline: fetch failed", zap.Error(err))
			failedLot := model.Lot{
				ID:            ref.ID,
				SourceURL:     ref.SourceURL,
				PrevLotsCount: -1,
				FetchedAt:     o.now().UTC(),
			}
			return o.failure(failedLot, model.ReasonFetchFailed, started, err), nil, nil
		}

		lot, err = o.parse(ref, content)
		if err != nil {
			log.Error("pipeline: parse failed", zap.Error(err))
			return o.failure(lot, model.ReasonParseFailed, started, err), nil, nil
		}
	}

	accepted, rule := o.variant.Evaluate(lot)
	lot.FilterVariant = o.variant.Name
	if !accepted {
		lot.Status = model.LotStatusFilteredOut
		lot.StatusReason = rule
		log.Debug("pipeline: filtered out", zap.String("rule", rule))
		return &outcome{
			entry:      model.CacheEntry{Lot: lot},
			milestones: []model.LotStatus{model.LotStatusFilteredOut},
			started:    started,
		}, nil, nil
	}

	lot.Status = model.LotStatusQualified
	return nil, &outcome{entry: model.CacheEntry{Lot: lot}, started: started}, nil
}

// fetchDetail downloads lot content, handing a captcha to the resolver and
// refetching once.
func (o *Orchestrator) fetchDetail(ctx context.Context, ref model.LotReference) ([]byte, error) {
	page, err := o.browser.FetchLotDetail(ctx, ref.SourceURL)
	if err != nil {
		return nil, err
	}
	if page.Kind != browser.KindCaptcha {
		return page.Content, nil
	}

	zap.L().Warn("pipeline: captcha on detail page", zap.String("lot_id", ref.ID))
	if err := o.resolver.Resolve(ctx, page); err != nil {
		return nil, eris.Wrapf(err, "pipeline: resolve captcha for lot %s", ref.ID)
	}
	page, err = o.browser.FetchLotDetail(ctx, ref.SourceURL)
	if err != nil {
		return nil, err
	}
	if page.Kind == browser.KindCaptcha {
		return nil, eris.Wrapf(browser.ErrCaptchaUnresolved, "pipeline: lot %s", ref.ID)
	}
	return page.Content, nil
}

// parse wraps parser.Parse so a panic on hostile content becomes a
// per-lot error.
func (o *Orchestrator) parse(ref model.LotReference, content []byte) (lot model.Lot, err error) {
	defer func() {
		if r := recover(); r != nil {
			lot = model.Lot{ID: ref.ID, SourceURL: ref.SourceURL, PrevLotsCount: -1, FetchedAt: o.now().UTC()}
			err = fmt.Errorf("pipeline: parser panic: %v", r)
		}
	}()
	lot, err = parser.Parse(ref, content, o.now())
	return lot, err
}

// process enriches and verifies one qualified lot. It runs on the worker
// pool and never touches the browser or the store.
func (o *Orchestrator) process(ctx context.Context, lot model.Lot, started time.Time) (out outcome) {
	log := zap.L().With(zap.String("lot_id", lot.ID))
	milestones := []model.LotStatus{model.LotStatusQualified}

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline: panic while processing lot",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			out = *o.failure(lot, model.ReasonPanic, started, fmt.Errorf("panic: %v", r))
			out.milestones = append(milestones, out.milestones...)
		}
	}()

	if o.enricher != nil && enrich.NeedsEnrichment(lot) {
		changed, err := o.enricher.EnrichLot(ctx, &lot)
		if err != nil {
			if ctx.Err() != nil {
				return outcome{err: ctx.Err()}
			}
			log.Error("pipeline: enrichment exhausted", zap.Error(err))
			res := o.failure(lot, model.ReasonEnrichmentExhausted, started, err)
			res.milestones = append(milestones, res.milestones...)
			return *res
		}
		if changed {
			lot.Status = model.LotStatusEnriched
			milestones = append(milestones, model.LotStatusEnriched)
		}
	}

	result, err := o.verifier.Verify(ctx, lot)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{err: ctx.Err()}
		}
		log.Error("pipeline: verification failed", zap.Error(err))
		res := o.failure(lot, model.ReasonVerificationFailed, started, err)
		res.milestones = append(milestones, res.milestones...)
		return *res
	}

	lot.Status = model.LotStatusVerified
	lot.StatusReason = string(result.Verdict)
	lot.UpdatedAt = o.now().UTC()
	return outcome{
		entry:      model.CacheEntry{Lot: lot, Verification: result},
		milestones: append(milestones, model.LotStatusVerified),
		started:    started,
	}
}

// failure builds the ERROR outcome for a lot.
func (o *Orchestrator) failure(lot model.Lot, reason string, started time.Time, err error) *outcome {
	lot.Status = model.LotStatusError
	lot.StatusReason = reason
	lot.UpdatedAt = o.now().UTC()
	return &outcome{
		entry:      model.CacheEntry{Lot: lot},
		milestones: []model.LotStatus{model.LotStatusError},
		started:    started,
		err:        err,
	}
}

// persist writes one outcome and flushes. Only the writer goroutine calls it.
func (o *Orchestrator) persist(ctx context.Context, summary *model.RunSummary, res outcome) error {
	lot := res.entry.Lot
	if lot.UpdatedAt.IsZero() {
		lot.UpdatedAt = o.now().UTC()
		res.entry.Lot = lot
	}
	if err := o.store.Put(res.entry); err != nil {
		return eris.Wrapf(err, "pipeline: stage lot %s", lot.ID)
	}
	// A flush already under way finishes even if the operator interrupts.
	if err := o.store.Flush(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	for _, m := range res.milestones {
		summary.Record(m)
	}
	elapsed := o.now().Sub(res.started)
	o.observer.LotFinished(lot.Status, lot.StatusReason, elapsed)

	fields := []zap.Field{
		zap.String("lot_id", lot.ID),
		zap.String("status", string(lot.Status)),
		zap.String("reason", lot.StatusReason),
		zap.Duration("elapsed", elapsed),
	}
	if res.entry.Verification != nil {
		fields = append(fields, zap.String("verdict", string(res.entry.Verification.Verdict)))
	}
	if res.err != nil {
		fields = append(fields, zap.Error(res.err))
	}
	zap.L().Info("pipeline: lot persisted", fields...)
	return nil
}
