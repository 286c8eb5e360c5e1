// Package browser fetches raw catalog and lot-detail content. Navigation,
// retries and anti-bot detection live here; callers only see typed pages.
package browser

import (
	"context"
	"fmt"
)

// PageKind classifies a fetched page.
type PageKind string

const (
	KindNormal     PageKind = "normal"
	KindZeroResult PageKind = "zero_result"
	KindCaptcha    PageKind = "captcha"
)

// Page is one fetched document.
type Page struct {
	URL     string
	Content []byte
	Kind    PageKind
	Matched bool
}

// Browser is the single shared session used to reach the catalog. It must
// not be used from two goroutines at once.
type Browser interface {
	FetchCatalogPage(ctx context.Context, pageIndex int) (Page, error)
	FetchLotDetail(ctx context.Context, url string) (Page, error)
}

// FetchError is a transport-level failure after the browser's own retries.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("browser: fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("browser: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
