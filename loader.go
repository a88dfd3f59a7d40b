package mergeload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts  = 10
	DefaultRetryWaitMin = 200 * time.Millisecond
	DefaultRetryWaitMax = 30 * time.Second
	DefaultHTTPTimeout  = 30 * time.Second

	bodyExcerptMax = 2048
)

// ErrRetriesExhausted marks a delivery that kept failing with retryable
// outcomes until the attempt budget ran out.
var ErrRetriesExhausted = errors.New("retries exhausted")

// DeliveryError reports a record the sink did not accept. Payload holds the
// exact bytes that were sent so the record can be dead-lettered and replayed.
type DeliveryError struct {
	URL      string
	Status   int // 0 when no response was received
	Attempts int
	Body     string
	Payload  []byte
	Err      error
}

func (e *DeliveryError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "deliver to %s", e.URL)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, ": %s", e.Body)
	}
	return b.String()
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// LoaderOptions configures an HTTPLoader.
type LoaderOptions struct {
	// APIRoot is the sink's API base, e.g. http://localhost:7000/api.
	APIRoot string

	// Headers are added to every request, e.g. Authorization.
	Headers map[string]string

	// MaxAttempts bounds the total number of requests per record.
	MaxAttempts int

	// Backoff bounds for exponential retry waits.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Timeout applies to each request attempt.
	Timeout time.Duration

	Logger zerolog.Logger
}

// HTTPLoader delivers records to the sink's records endpoint, retrying
// transient failures with exponential backoff.
type HTTPLoader struct {
	client      *retryablehttp.Client
	url         string
	headers     map[string]string
	maxAttempts int
	log         zerolog.Logger
}

// NewHTTPLoader creates an HTTPLoader with defaults for any zero option.
func NewHTTPLoader(o LoaderOptions) *HTTPLoader {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryWaitMin <= 0 {
		o.RetryWaitMin = DefaultRetryWaitMin
	}
	if o.RetryWaitMax < o.RetryWaitMin {
		o.RetryWaitMax = max(DefaultRetryWaitMax, o.RetryWaitMin)
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultHTTPTimeout
	}

	l := &HTTPLoader{
		url:         strings.TrimRight(o.APIRoot, "/") + "/records/",
		headers:     o.Headers,
		maxAttempts: o.MaxAttempts,
		log:         o.Logger,
	}

	c := retryablehttp.NewClient()
	c.HTTPClient = &http.Client{Timeout: o.Timeout}
	c.Logger = leveled{l.log}
	c.RetryMax = o.MaxAttempts - 1
	c.RetryWaitMin = o.RetryWaitMin
	c.RetryWaitMax = o.RetryWaitMax
	c.Backoff = retryablehttp.DefaultBackoff
	c.CheckRetry = l.checkRetry
	c.RequestLogHook = countAttempt
	c.ErrorHandler = l.giveUp
	l.client = c

	return l
}

// URL returns the endpoint records are posted to.
func (l *HTTPLoader) URL() string { return l.url }

// Load posts rec as JSON and returns once the sink answers 201 Created.
//
// Transport errors, 408, 429 and 5xx (except 501) are retried with the
// identical body. Any other status, or running out of attempts, returns a
// *DeliveryError. A cancelled ctx stops retrying and returns ctx.Err().
func (l *HTTPLoader) Load(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var attempts int
	ctx = context.WithValue(ctx, attemptsKey{}, &attempts)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, l.url, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range l.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, doErr := l.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if doErr == nil && resp.StatusCode == http.StatusCreated {
		return nil
	}

	derr := &DeliveryError{URL: l.url, Attempts: attempts, Payload: payload, Err: doErr}
	if resp != nil {
		derr.Status = resp.StatusCode
		derr.Body = peekBody(resp)
	}
	return derr
}

// checkRetry decides whether an attempt should be repeated and logs every
// failed one.
func (l *HTTPLoader) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		retry, perr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		l.log.Warn().Err(err).Bool("retry", retry).Msg("delivery transport error")
		return retry, perr
	}
	if resp.StatusCode == http.StatusCreated {
		return false, nil
	}

	retry := retryableStatus(resp.StatusCode)
	l.log.Error().
		Int("status", resp.StatusCode).
		Str("body", peekBody(resp)).
		Bool("retry", retry).
		Msg("delivery rejected")
	return retry, nil
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code == http.StatusNotImplemented:
		return false
	case code >= 500:
		return true
	}
	return false
}

// giveUp runs once the attempt budget is spent or an attempt failed in a way
// that is not retried. Only a spent budget is reported as ErrRetriesExhausted.
// The last response is kept so the caller can report its status.
func (l *HTTPLoader) giveUp(resp *http.Response, err error, tries int) (*http.Response, error) {
	if tries < l.maxAttempts {
		return resp, err
	}
	if err != nil {
		return resp, fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, tries, err)
	}
	return resp, fmt.Errorf("%w after %d attempt(s)", ErrRetriesExhausted, tries)
}

type attemptsKey struct{}

func countAttempt(_ retryablehttp.Logger, req *http.Request, _ int) {
	if n, ok := req.Context().Value(attemptsKey{}).(*int); ok {
		*n++
	}
}

// peekBody returns up to bodyExcerptMax bytes of the body and leaves the body
// readable from the start.
func peekBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	head, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptMax))
	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), resp.Body), resp.Body}
	return strings.TrimSpace(string(head))
}

// leveled adapts zerolog to retryablehttp's LeveledLogger.
type leveled struct{ l zerolog.Logger }

func (z leveled) Error(msg string, kv ...any) { z.l.Error().Fields(kv).Msg(msg) }
func (z leveled) Warn(msg string, kv ...any)  { z.l.Warn().Fields(kv).Msg(msg) }
func (z leveled) Info(msg string, kv ...any)  { z.l.Info().Fields(kv).Msg(msg) }
func (z leveled) Debug(msg string, kv ...any) { z.l.Debug().Fields(kv).Msg(msg) }
