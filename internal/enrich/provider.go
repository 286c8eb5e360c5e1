package enrich

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bankrot-cli/pkg/anthropic"
	"github.com/sells-group/bankrot-cli/pkg/openrouter"
)

// Provider sends one prompt to a language model and returns its raw text.
type Provider interface {
	Complete(ctx context.Context, system, prompt, lotID string) (string, error)
	Name() string
}

// transientError marks a provider failure worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is a timeout or was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider wraps an Anthropic client.
func NewAnthropicProvider(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, system, prompt, lotID string) (string, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   512,
		System:      []anthropic.SystemBlock{{Text: system, Cached: true}},
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); code == 0 || retryableStatus(code) {
			return "", Transient(err)
		}
		return "", err
	}
	resp.Usage.LogCost(p.model, lotID)
	return resp.Text(), nil
}

// OpenRouterProvider calls an OpenAI-compatible completions endpoint.
type OpenRouterProvider struct {
	client openrouter.Client
	model  string
}

// NewOpenRouterProvider wraps an OpenRouter client.
func NewOpenRouterProvider(client openrouter.Client, model string) *OpenRouterProvider {
	return &OpenRouterProvider{client: client, model: model}
}

func (p *OpenRouterProvider) Name() string { return "openrouter" }

func (p *OpenRouterProvider) Complete(ctx context.Context, system, prompt, _ string) (string, error) {
	temp := 0.0
	resp, err := p.client.ChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model: p.model,
		Messages: []openrouter.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		var se *openrouter.StatusError
		if errors.As(err, &se) {
			if retryableStatus(se.StatusCode) {
				return "", Transient(err)
			}
			return "", eris.Wrap(err, "enrich: openrouter")
		}
		return "", Transient(err)
	}
	return resp.Content(), nil
}
