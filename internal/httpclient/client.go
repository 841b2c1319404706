package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrsteele09/fixit-auth/internal/logging"
	"github.com/rs/zerolog"
)

// LeveledZerolog adapts zerolog to retryablehttp. Errors are logged as
// warnings because they are usually followed by a retry.
type LeveledZerolog struct {
	inner zerolog.Logger
}

var _ retryablehttp.LeveledLogger = LeveledZerolog{}

func (l LeveledZerolog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l LeveledZerolog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn().Fields(keysAndValues).Msg(msg)
}

func (l LeveledZerolog) Info(msg string, keysAndValues ...any) {
	l.inner.Info().Fields(keysAndValues).Msg(msg)
}

func (l LeveledZerolog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug().Fields(keysAndValues).Msg(msg)
}

type Option func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries for the HTTP client.
func WithMaxRetries(maxRetries int) Option {
	return func(client *retryablehttp.Client) {
		client.RetryMax = maxRetries
	}
}

// WithRetryWait sets the wait bounds between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(client *retryablehttp.Client) {
		client.RetryWaitMin = waitMin
		client.RetryWaitMax = waitMax
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(client *retryablehttp.Client) {
		client.Logger = retryablehttp.LeveledLogger(LeveledZerolog{inner: logger})
	}
}

// WithTransport sets a custom transport for the HTTP client.
func WithTransport(transport http.RoundTripper) Option {
	return func(client *retryablehttp.Client) {
		client.HTTPClient.Transport = transport
	}
}

// New returns a standard *http.Client backed by retryablehttp. It retries
// connection errors and 5xx responses (except 501), never 4xx: a rejected
// code or token must surface immediately.
func New(timeout time.Duration, options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledZerolog{inner: logging.Component("httpclient")})
	retryClient.CheckRetry = RetryPolicy

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

type singleAttemptKey struct{}

// SingleAttempt marks requests made with ctx as non-repeatable. Redeeming an
// authorization code or a rotating refresh token is not idempotent: once the
// first POST reaches the issuer a retry can only fail with invalid_grant.
func SingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, singleAttemptKey{}, true)
}

func isSingleAttempt(ctx context.Context) bool {
	v, _ := ctx.Value(singleAttemptKey{}).(bool)
	return v
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy. It treats 429 as final,
// leaving rate limiting to the caller, and never retries a request whose
// context was marked with SingleAttempt.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if isSingleAttempt(ctx) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
