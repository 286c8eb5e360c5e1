package browser

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// ErrCaptchaUnresolved is returned when a captcha page cannot be cleared.
var ErrCaptchaUnresolved = eris.New("browser: captcha not resolved")

// CaptchaResolver clears a captcha challenge so the page can be refetched.
type CaptchaResolver interface {
	Resolve(ctx context.Context, page Page) error
}

// ResolverFunc adapts a function to CaptchaResolver.
type ResolverFunc func(ctx context.Context, page Page) error

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, page Page) error { return f(ctx, page) }

// FailResolver refuses every challenge. Used for unattended runs.
var FailResolver = ResolverFunc(func(_ context.Context, page Page) error {
	return eris.Wrapf(ErrCaptchaUnresolved, "non-interactive run at %s", page.URL)
})

// PromptResolver asks an operator to clear the captcha out of band and
// waits for a line on in.
type PromptResolver struct {
	In  io.Reader
	Out io.Writer
}

// Resolve blocks until the operator presses enter or ctx is done.
func (p PromptResolver) Resolve(ctx context.Context, page Page) error {
	fmt.Fprintf(p.Out, "Captcha at %s. Solve it in the browser, then press Enter to continue...\n", page.URL)

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(p.In).ReadString('\n')
		done <- err
	}()

	select {
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "browser: wait for captcha")
	case err := <-done:
		if err != nil && err != io.EOF {
			return eris.Wrap(err, "browser: read operator input")
		}
		if err == io.EOF {
			return ErrCaptchaUnresolved
		}
		return nil
	}
}
