package modeladapter

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

var _ Completer = (*RetryCompleter)(nil)

// Defaults for RetryOpts.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxDelay   = 30 * time.Second
)

// RetryCompleter wraps a Completer with a bounded number of retries for
// retryable failures (see IsRetryable). Backoff is exponential with ±25%
// jitter; a Retry-After hint is honored when it is longer. No single wait
// exceeds MaxDelay. The last failure is returned once retries are exhausted.
//
// Waits between attempts end early when the context passed to Complete is
// done, or when the context handed to Detach is.
type RetryCompleter struct {
	inner      Completer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	timeout    time.Duration

	fallbackTracker usage.Tracker

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter.
	randFunc func() float64
}

// RetryOpts configures the RetryCompleter.
type RetryOpts struct {
	MaxRetries int           // Retries after the first attempt (default 2, negative disables retries).
	BaseDelay  time.Duration // Initial backoff delay (default 500ms).
	MaxDelay   time.Duration // Upper bound for one backoff (default 30s).
	Timeout    time.Duration // Per-attempt timeout (0 = none).
}

// NewRetryCompleter wraps a Completer with bounded retries.
func NewRetryCompleter(inner Completer, opts RetryOpts) *RetryCompleter {
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}

	return &RetryCompleter{
		inner:      inner,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		timeout:    opts.Timeout,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RetryCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

// Complete implements Completer. Non-retryable errors are returned at once.
func (r *RetryCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var lastErr error

	for attempt := range r.maxRetries + 1 {
		msg, err := r.attempt(ctx, c, tools)
		if err == nil {
			return msg, nil
		}

		if !IsRetryable(err) {
			return message.Message{}, err
		}

		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		wait := CallerContext(ctx)
		if err := wait.Err(); err != nil {
			return message.Message{}, errors.Join(lastErr, err)
		}
		if err := r.sleepFunc(wait, r.backoff(attempt, err)); err != nil {
			return message.Message{}, errors.Join(lastErr, err)
		}
	}

	return message.Message{}, lastErr
}

func (r *RetryCompleter) attempt(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	if r.timeout <= 0 {
		return r.inner.Complete(ctx, c, tools)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := r.inner.Complete(ctx, c, tools)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var te *TimeoutError
		if !errors.As(err, &te) {
			err = &TimeoutError{Err: err}
		}
	}
	return msg, err
}

// backoff returns baseDelay * 2^attempt or the Retry-After hint of a rate
// limit error if larger, with jitter applied and capped at maxDelay.
func (r *RetryCompleter) backoff(attempt int, err error) time.Duration {
	d := r.baseDelay << attempt
	if d <= 0 {
		d = r.maxDelay
	}

	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > d {
		d = rle.RetryAfter
	}

	return min(r.jitter(min(d, r.maxDelay)), r.maxDelay)
}

// jitter applies ±25% random jitter to a duration.
func (r *RetryCompleter) jitter(d time.Duration) time.Duration {
	// Scale factor in [0.75, 1.25).
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// UsageTracker forwards to the inner completer if it implements UsageReporter.
func (r *RetryCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}

type callerKey struct{}

// Detach returns a context that carries the values of ctx but not its
// cancellation, for work that must run to completion once started. The
// original ctx stays reachable through CallerContext, so a RetryCompleter
// still stops waiting between attempts once ctx is done.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), callerKey{}, ctx)
}

// CallerContext returns the context most recently passed to Detach on the
// way to ctx, or ctx itself if it was never detached.
func CallerContext(ctx context.Context) context.Context {
	if caller, ok := ctx.Value(callerKey{}).(context.Context); ok {
		return caller
	}
	return ctx
}

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
