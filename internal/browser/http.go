package browser

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"
)

// Options configures HTTPBrowser.
type Options struct {
	BaseURL           string
	SearchPath        string
	DetailAPIURL      string // optional, "{id}" is replaced with the lot id
	UserAgent         string
	Cookie            string
	PageTimeout       time.Duration
	DetailTimeout     time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	ZeroResultMarker  string
	BaseBackoff       time.Duration
}

// AdaptiveLimiter wraps a rate.Limiter that halves its rate on 429s and
// creeps back up on success, never leaving [initial/4, initial].
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, up to the initial rate.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.initialRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("browser: reducing request rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPBrowser implements Browser over plain HTTP with rate limiting,
// retries and charset decoding.
type HTTPBrowser struct {
	client  *http.Client
	opts    Options
	limiter *AdaptiveLimiter
}

// NewHTTPBrowser creates an HTTPBrowser.
func NewHTTPBrowser(opts Options) *HTTPBrowser {
	if opts.PageTimeout == 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.DetailTimeout == 0 {
		opts.DetailTimeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 1
	}
	if opts.BaseBackoff == 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "bankrot-cli/1.0"
	}
	return &HTTPBrowser{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:    opts,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

// CatalogURL returns the URL of the 1-based catalog page.
func (b *HTTPBrowser) CatalogURL(pageIndex int) (string, error) {
	u, err := url.Parse(strings.TrimRight(b.opts.BaseURL, "/") + b.opts.SearchPath)
	if err != nil {
		return "", eris.Wrap(err, "browser: parse catalog url")
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(pageIndex))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchCatalogPage fetches one catalog page.
func (b *HTTPBrowser) FetchCatalogPage(ctx context.Context, pageIndex int) (Page, error) {
	target, err := b.CatalogURL(pageIndex)
	if err != nil {
		return Page{}, &FetchError{URL: b.opts.BaseURL, Err: err}
	}
	return b.fetch(ctx, target, b.opts.PageTimeout)
}

var lotIDParam = regexp.MustCompile(`[?&]id=(\d+)`)

// FetchLotDetail fetches a lot's detail content. With DetailAPIURL set, the
// JSON trade endpoint is used instead of the HTML page.
func (b *HTTPBrowser) FetchLotDetail(ctx context.Context, detailURL string) (Page, error) {
	target := detailURL
	if b.opts.DetailAPIURL != "" {
		if m := lotIDParam.FindStringSubmatch(detailURL); m != nil {
			target = strings.ReplaceAll(b.opts.DetailAPIURL, "{id}", m[1])
		}
	}
	page, err := b.fetch(ctx, target, b.opts.DetailTimeout)
	page.URL = detailURL
	return page, err
}

func (b *HTTPBrowser) fetch(ctx context.Context, target string, timeout time.Duration) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{URL: target}, &FetchError{URL: target, Err: eris.Wrap(err, "create request")}
	}
	req.Header.Set("User-Agent", b.opts.UserAgent)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	if b.opts.Cookie != "" {
		req.Header.Set("Cookie", b.opts.Cookie)
	}

	resp, body, err := b.doWithRetry(ctx, req)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return Page{URL: target}, &FetchError{URL: target, Status: status, Err: err}
	}

	content, err := decodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return Page{URL: target}, &FetchError{URL: target, Status: resp.StatusCode, Err: err}
	}

	kind := classify(resp, content, b.opts.ZeroResultMarker)
	if kind == KindNormal && resp.StatusCode != http.StatusOK {
		return Page{URL: target}, &FetchError{URL: target, Status: resp.StatusCode, Err: eris.New("unexpected status")}
	}
	return Page{
		URL:     target,
		Content: content,
		Kind:    kind,
		Matched: kind == KindNormal && len(bytes.TrimSpace(content)) > 0,
	}, nil
}

// doWithRetry returns the last response with its body read. Anti-bot
// responses (403/503) are returned without retry so they can be classified.
func (b *HTTPBrowser) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, []byte, error) {
	var (
		resp    *http.Response
		body    []byte
		attempt int
	)
	op := func() error {
		attempt++
		if err := b.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(eris.Wrap(err, "rate limiter wait"))
		}

		r, err := b.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			zap.L().Warn("browser: request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}

		data, err := io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			return eris.Wrap(err, "read body")
		}
		resp = r

		switch {
		case r.StatusCode == http.StatusTooManyRequests:
			b.limiter.OnRateLimit()
			return eris.Errorf("http 429 from %s", req.URL.String())
		case r.StatusCode >= 500 && !isChallenge(r, data):
			zap.L().Warn("browser: server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", r.StatusCode),
				zap.Int("attempt", attempt),
			)
			return eris.Errorf("http %d from %s", r.StatusCode, req.URL.String())
		}

		b.limiter.OnSuccess()
		body = data
		return nil
	}

	if err := backoff.Retry(op, b.retryPolicy(ctx)); err != nil {
		return resp, nil, eris.Wrap(err, "all retries exhausted")
	}
	return resp, body, nil
}

// retryPolicy allows MaxRetries attempts in total with jittered
// exponential delays starting at BaseBackoff, capped at 30s.
func (b *HTTPBrowser) retryPolicy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.opts.BaseBackoff
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(b.opts.MaxRetries-1)), ctx)
}

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([\w-]+)`)

// decodeBody converts body to UTF-8 using the declared charset. Catalog
// pages are frequently windows-1251.
func decodeBody(contentType string, body []byte) ([]byte, error) {
	charset := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		charset = params["charset"]
	}
	if charset == "" {
		head := body
		if len(head) > 2048 {
			head = head[:2048]
		}
		if m := metaCharset.FindSubmatch(head); m != nil {
			charset = string(m[1])
		}
	}
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: unsupported charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, eris.Wrapf(err, "browser: decode %s", charset)
	}
	return out, nil
}
