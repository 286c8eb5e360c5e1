// Package collector walks catalog pages and yields deduplicated lot
// references.
package collector

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bankrot-cli/internal/browser"
	"github.com/sells-group/bankrot-cli/internal/model"
)

// EmptyPageError marks a catalog page that produced no references. It is
// recoverable; the caller decides when too many in a row means the site
// layout changed.
type EmptyPageError struct {
	Page int
	Err  error
}

func (e *EmptyPageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collector: page %d yielded no references: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("collector: page %d yielded no references", e.Page)
}

func (e *EmptyPageError) Unwrap() error { return e.Err }

// Collector pages through the catalog with the shared browser.
type Collector struct {
	browser  browser.Browser
	resolver browser.CaptchaResolver
	baseURL  string
	maxPages int
}

// New creates a Collector. A nil resolver fails on any captcha.
func New(b browser.Browser, resolver browser.CaptchaResolver, baseURL string, maxPages int) *Collector {
	if resolver == nil {
		resolver = browser.FailResolver
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return &Collector{browser: b, resolver: resolver, baseURL: baseURL, maxPages: maxPages}
}

// References returns a lazy sequence of lot references. Each call starts a
// fresh pass with its own seen set. Pages with no references yield an
// *EmptyPageError and the walk continues; a captcha that cannot be resolved
// or a cancelled context yields its error and ends the sequence.
func (c *Collector) References(ctx context.Context) iter.Seq2[model.LotReference, error] {
	return func(yield func(model.LotReference, error) bool) {
		seen := make(map[string]struct{})
		last := c.maxPages

		for pageIndex := 1; pageIndex <= last; pageIndex++ {
			if err := ctx.Err(); err != nil {
				yield(model.LotReference{}, eris.Wrap(err, "collector: cancelled"))
				return
			}

			page, err := c.fetch(ctx, pageIndex)
			if err != nil {
				var fe *browser.FetchError
				if errors.As(err, &fe) {
					if !yield(model.LotReference{}, &EmptyPageError{Page: pageIndex, Err: err}) {
						return
					}
					continue
				}
				yield(model.LotReference{}, err)
				return
			}
			if page.Kind == browser.KindZeroResult {
				zap.L().Info("collector: catalog exhausted", zap.Int("page", pageIndex))
				return
			}

			parsed, err := ParseCatalogPage(c.baseURL, page.Content)
			if pageIndex == 1 && parsed.TotalPages > 0 {
				last = min(parsed.TotalPages, c.maxPages)
				zap.L().Info("collector: detected catalog pages",
					zap.Int("total", parsed.TotalPages),
					zap.Int("walking", last),
				)
			}
			if err != nil || len(parsed.References) == 0 {
				if !yield(model.LotReference{}, &EmptyPageError{Page: pageIndex, Err: err}) {
					return
				}
				continue
			}

			for _, ref := range parsed.References {
				if _, dup := seen[ref.ID]; dup {
					zap.L().Debug("collector: duplicate reference dropped",
						zap.String("lot_id", ref.ID),
						zap.Int("page", pageIndex),
					)
					continue
				}
				seen[ref.ID] = struct{}{}
				if !yield(ref, nil) {
					return
				}
			}
		}
	}
}

// fetch gets one catalog page, handing a captcha to the resolver and
// refetching once.
func (c *Collector) fetch(ctx context.Context, pageIndex int) (browser.Page, error) {
	page, err := c.browser.FetchCatalogPage(ctx, pageIndex)
	if err != nil || page.Kind != browser.KindCaptcha {
		return page, err
	}

	zap.L().Warn("collector: captcha on catalog page", zap.Int("page", pageIndex))
	if err := c.resolver.Resolve(ctx, page); err != nil {
		return browser.Page{}, eris.Wrapf(err, "collector: resolve captcha on page %d", pageIndex)
	}
	page, err = c.browser.FetchCatalogPage(ctx, pageIndex)
	if err != nil {
		return page, err
	}
	if page.Kind == browser.KindCaptcha {
		return browser.Page{}, eris.Wrapf(browser.ErrCaptchaUnresolved, "collector: page %d", pageIndex)
	}
	return page, nil
}
