package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"
)

func newTestBrowser(baseURL string) *HTTPBrowser {
	return NewHTTPBrowser(Options{
		BaseURL:           baseURL,
		SearchPath:        "/search?sort=created",
		UserAgent:         "test-agent",
		PageTimeout:       2 * time.Second,
		DetailTimeout:     2 * time.Second,
		MaxRetries:        3,
		RequestsPerSecond: 1000,
		ZeroResultMarker:  "ничего не найдено",
		BaseBackoff:       time.Millisecond,
	})
}

func TestCatalogURL(t *testing.T) {
	b := newTestBrowser("https://tbankrot.ru/")
	got, err := b.CatalogURL(3)
	require.NoError(t, err)
	assert.Equal(t, "https://tbankrot.ru/search?page=3&sort=created", got)
}

func TestFetchCatalogPage_Normal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<a class="lot_num" href="/item?id=1">1</a>`))
	}))
	defer srv.Close()

	page, err := newTestBrowser(srv.URL).FetchCatalogPage(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, KindNormal, page.Kind)
	assert.True(t, page.Matched)
	assert.Contains(t, string(page.Content), "lot_num")
}

func TestFetchCatalogPage_ZeroResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div class="empty">По вашему запросу Ничего не найдено</div>`))
	}))
	defer srv.Close()

	page, err := newTestBrowser(srv.URL).FetchCatalogPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, KindZeroResult, page.Kind)
	assert.False(t, page.Matched)
}

func TestFetchLotDetail_Captcha(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<form id="captcha-form"></form>`))
	}))
	defer srv.Close()

	page, err := newTestBrowser(srv.URL).FetchLotDetail(context.Background(), srv.URL+"/item?id=5")
	require.NoError(t, err)
	assert.Equal(t, KindCaptcha, page.Kind)
	assert.False(t, page.Matched)
}

func TestFetchLotDetail_UsesAPIURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/trade/77", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true}`))
	}))
	defer srv.Close()

	b := newTestBrowser(srv.URL)
	b.opts.DetailAPIURL = srv.URL + "/api/trade/{id}"
	page, err := b.FetchLotDetail(context.Background(), "https://tbankrot.ru/item?id=77")
	require.NoError(t, err)
	assert.Equal(t, "https://tbankrot.ru/item?id=77", page.URL)
	assert.JSONEq(t, `{"status":true}`, string(page.Content))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	page, err := newTestBrowser(srv.URL).FetchLotDetail(context.Background(), srv.URL+"/item?id=1")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(page.Content))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_RateLimitedIsRetriedMoreSlowly(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	b := newTestBrowser(srv.URL)
	page, err := b.FetchLotDetail(context.Background(), srv.URL+"/item?id=1")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(page.Content))
	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, float64(b.limiter.Limit()), 1000.0)
}

func TestFetch_ExhaustedRetriesIsFetchError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestBrowser(srv.URL).FetchLotDetail(context.Background(), srv.URL+"/item?id=1")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusInternalServerError, fe.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_NotFoundIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestBrowser(srv.URL).FetchLotDetail(context.Background(), srv.URL+"/item?id=1")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
}

func TestFetch_TimeoutIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	b := newTestBrowser(srv.URL)
	b.opts.DetailTimeout = 50 * time.Millisecond
	_, err := b.FetchLotDetail(context.Background(), srv.URL+"/item?id=1")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestDecodeBody_Windows1251(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String("Должник ООО Ромашка")
	require.NoError(t, err)

	out, err := decodeBody("text/html; charset=windows-1251", []byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, "Должник ООО Ромашка", string(out))
}

func TestDecodeBody_MetaCharset(t *testing.T) {
	encoded, err := charmap.Windows1251.NewEncoder().String(`<meta charset="windows-1251"><p>Лот</p>`)
	require.NoError(t, err)

	out, err := decodeBody("text/html", []byte(encoded))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Лот")
}

func TestDecodeBody_UnknownCharset(t *testing.T) {
	_, err := decodeBody("text/html; charset=klingon", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported charset")
}

func TestClassify(t *testing.T) {
	cf := &http.Response{StatusCode: http.StatusServiceUnavailable, Header: http.Header{"Cf-Ray": []string{"abc"}}}
	assert.Equal(t, KindCaptcha, classify(cf, nil, ""))
	assert.Equal(t, KindCaptcha, classify(&http.Response{StatusCode: 200}, []byte("Checking your browser"), ""))
	assert.Equal(t, KindNormal, classify(&http.Response{StatusCode: 200}, []byte("<html>lots</html>"), "ничего не найдено"))
	assert.Equal(t, KindCaptcha, classify(&http.Response{StatusCode: 200}, []byte(`<span class="h1">Проверка, что Вы не робот</span>`), ""))

	// Lot pages that embed a recaptcha widget script are still normal pages.
	page := []byte(`<html><script src="https://www.google.com/recaptcha/api.js"></script><div class="lot">Лот</div></html>`)
	assert.Equal(t, KindNormal, classify(&http.Response{StatusCode: 200}, page, ""))
}

func TestAdaptiveLimiter(t *testing.T) {
	a := NewAdaptiveLimiter(rate.Limit(8), 1)
	a.OnRateLimit()
	assert.InDelta(t, 4, float64(a.Limit()), 0.001)
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 2, float64(a.Limit()), 0.001, "floored at initial/4")
	for range 20 {
		a.OnSuccess()
	}
	assert.InDelta(t, 8, float64(a.Limit()), 0.001, "capped at initial")
}

func TestPromptResolver(t *testing.T) {
	var out strings.Builder
	r := PromptResolver{In: strings.NewReader("\n"), Out: &out}
	require.NoError(t, r.Resolve(context.Background(), Page{URL: "https://tbankrot.ru"}))
	assert.Contains(t, out.String(), "Captcha at https://tbankrot.ru")

	r = PromptResolver{In: strings.NewReader(""), Out: &out}
	assert.ErrorIs(t, r.Resolve(context.Background(), Page{}), ErrCaptchaUnresolved)
}

func TestFailResolver(t *testing.T) {
	err := FailResolver.Resolve(context.Background(), Page{URL: "u"})
	assert.True(t, errors.Is(err, ErrCaptchaUnresolved))
}
