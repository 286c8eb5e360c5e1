// Package finance is a client for the financial-data service that supplies
// balance-sheet lines and arbitration case indicators keyed by INN.
package finance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/internal/model"
)

// ErrNotFound is returned when the service has no record for the INN.
var ErrNotFound = errors.New("finance: not found")

// Client defines the financial-data operations used by the verifier.
type Client interface {
	GetFinancials(ctx context.Context, inn string, fromYear, toYear int) (*model.Financials, error)
	GetCaseIndicators(ctx context.Context, inn, caseNumber string) (*model.CaseIndicators, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryBackoff sets the delay before the first retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.backoff = d
	}
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	backoff time.Duration
}

// NewClient creates a financial-data client. Request deadlines come from
// the caller's context.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		backoff: time.Second,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type financialsWire struct {
	INN              string                     `json:"inn"`
	Status           string                     `json:"status"`
	RegistrationDate string                     `json:"registration_date"`
	LastReportDate   string                     `json:"last_report_date"`
	Lines            map[string]map[int]float64 `json:"lines"`
}

type casesWire struct {
	ClaimCount        int     `json:"claim_count"`
	OutstandingAmount float64 `json:"outstanding_amount"`
	CaseStatus        string  `json:"case_status"`
	CaseSum           float64 `json:"case_sum"`
	DecidedAt         string  `json:"decided_at"`
}

func (c *httpClient) GetFinancials(ctx context.Context, inn string, fromYear, toYear int) (*model.Financials, error) {
	q := url.Values{}
	q.Set("inn", inn)
	q.Set("from", strconv.Itoa(fromYear))
	q.Set("to", strconv.Itoa(toYear))

	var w financialsWire
	if err := c.getJSON(ctx, "/v1/financials", q, &w); err != nil {
		return nil, err
	}
	return &model.Financials{
		INN:              w.INN,
		CompanyStatus:    w.Status,
		RegistrationDate: parseDate(w.RegistrationDate),
		LastReportDate:   parseDate(w.LastReportDate),
		Lines:            w.Lines,
	}, nil
}

func (c *httpClient) GetCaseIndicators(ctx context.Context, inn, caseNumber string) (*model.CaseIndicators, error) {
	q := url.Values{}
	if inn != "" {
		q.Set("inn", inn)
	}
	if caseNumber != "" {
		q.Set("case", caseNumber)
	}

	var w casesWire
	if err := c.getJSON(ctx, "/v1/cases", q, &w); err != nil {
		return nil, err
	}
	return &model.CaseIndicators{
		ClaimCount:        w.ClaimCount,
		OutstandingAmount: w.OutstandingAmount,
		CaseStatus:        w.CaseStatus,
		CaseSum:           w.CaseSum,
		DecidedAt:         parseDate(w.DecidedAt),
	}, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "finance: create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	body, status, err := c.retryDo(ctx, req)
	if err != nil {
		return eris.Wrap(err, "finance: request failed")
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return eris.Errorf("finance: unexpected status %d: %s", status, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "finance: unmarshal response")
	}
	return nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a GET with exponential backoff on transport errors and
// retryable statuses. The body of the final response is returned with its
// status.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, error) {
	const maxAttempts = 3

	var (
		body   []byte
		status int
	)
	op := func() error {
		body, status = nil, 0
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return backoff.Permanent(eris.Wrap(err, "finance: read response body"))
		}
		body, status = data, resp.StatusCode
		if retryableStatusCode(resp.StatusCode) {
			return eris.Errorf("finance: status %d", resp.StatusCode)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		if status != 0 {
			// Retries exhausted on a retryable status: the caller reports it.
			return body, status, nil
		}
		return nil, 0, err
	}
	return body, status, nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
