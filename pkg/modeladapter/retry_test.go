package modeladapter_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter is a test double for modeladapter.Completer that also
// implements UsageReporter.
type fakeCompleter struct {
	tracker usage.Tracker
	calls   atomic.Int32
	handler func(ctx context.Context, call int) (message.Message, error)
}

func (f *fakeCompleter) Complete(ctx context.Context, _ *chat.Chat, _ []toolbox.Tool) (message.Message, error) {
	return f.handler(ctx, int(f.calls.Add(1)))
}

func (f *fakeCompleter) UsageTracker() *usage.Tracker { return &f.tracker }

func okMessage() message.Message {
	return message.NewText("bot", role.Assistant, "ok")
}

func newRetry(fc modeladapter.Completer, opts modeladapter.RetryOpts, sleeps *[]time.Duration) *modeladapter.RetryCompleter {
	rc := modeladapter.NewRetryCompleter(fc, opts)
	rc.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	})
	rc.SetRandFunc(func() float64 { return 0.5 }) // zero jitter
	return rc
}

func TestRetryCompleter_PassthroughOnSuccess(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return okMessage(), nil
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{}, &sleeps)

	msg, err := rc.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.TextContent())
	assert.Equal(t, int32(1), fc.calls.Load())
	assert.Empty(t, sleeps)
}

func TestRetryCompleter_RetriesTransientFailures(t *testing.T) {
	fc := &fakeCompleter{handler: func(_ context.Context, call int) (message.Message, error) {
		switch call {
		case 1:
			return message.Message{}, &modeladapter.TransportError{StatusCode: 503}
		case 2:
			return message.Message{}, &modeladapter.TimeoutError{Err: context.DeadlineExceeded}
		}
		return okMessage(), nil
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{BaseDelay: 100 * time.Millisecond}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fc.calls.Load())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps)
}

func TestRetryCompleter_ExhaustsAndSurfacesLastError(t *testing.T) {
	fc := &fakeCompleter{handler: func(_ context.Context, call int) (message.Message, error) {
		return message.Message{}, &modeladapter.TransportError{StatusCode: 500, Body: string(rune('0' + call))}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{MaxRetries: 2}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)

	var te *modeladapter.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "3", te.Body)
	assert.Equal(t, int32(3), fc.calls.Load())
	assert.Len(t, sleeps, 2)
}

func TestRetryCompleter_NonRetryableReturnsImmediately(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.MalformedOutputError{Reason: "no choices"}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)

	var me *modeladapter.MalformedOutputError
	assert.ErrorAs(t, err, &me)
	assert.Equal(t, int32(1), fc.calls.Load())
	assert.Empty(t, sleeps)
}

func TestRetryCompleter_NegativeMaxRetriesDisablesRetry(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.RateLimitError{}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{MaxRetries: -1}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), fc.calls.Load())
}

func TestRetryCompleter_HonorsRetryAfter(t *testing.T) {
	fc := &fakeCompleter{handler: func(_ context.Context, call int) (message.Message, error) {
		if call == 1 {
			return message.Message{}, &modeladapter.RateLimitError{RetryAfter: 5 * time.Second}
		}
		return okMessage(), nil
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{BaseDelay: time.Millisecond}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, sleeps)
}

func TestRetryCompleter_BackoffCappedAtMaxDelay(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.TransportError{}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{MaxRetries: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second}, &sleeps)

	_, _ = rc.Complete(context.Background(), chat.New(), nil)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, sleeps)
}

func TestRetryCompleter_Jitter(t *testing.T) {
	fc := &fakeCompleter{handler: func(_ context.Context, call int) (message.Message, error) {
		if call == 1 {
			return message.Message{}, &modeladapter.TransportError{}
		}
		return okMessage(), nil
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{BaseDelay: time.Second}, &sleeps)
	rc.SetRandFunc(func() float64 { return 0 })

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{750 * time.Millisecond}, sleeps)
}

func TestRetryCompleter_SleepCancelled(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.TransportError{}
	}}

	rc := modeladapter.NewRetryCompleter(fc, modeladapter.RetryOpts{})
	rc.SetSleepFunc(func(context.Context, time.Duration) error { return context.Canceled })

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	assert.ErrorIs(t, err, context.Canceled)

	var te *modeladapter.TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, int32(1), fc.calls.Load())
}

func TestRetryCompleter_PerAttemptTimeout(t *testing.T) {
	fc := &fakeCompleter{handler: func(ctx context.Context, call int) (message.Message, error) {
		if call == 1 {
			<-ctx.Done()
			return message.Message{}, ctx.Err()
		}
		return okMessage(), nil
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{Timeout: 10 * time.Millisecond}, &sleeps)

	_, err := rc.Complete(context.Background(), chat.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fc.calls.Load())
	assert.Len(t, sleeps, 1)
}

func TestRetryCompleter_UsageTracker(t *testing.T) {
	fc := &fakeCompleter{}
	rc := modeladapter.NewRetryCompleter(fc, modeladapter.RetryOpts{})
	assert.Same(t, &fc.tracker, rc.UsageTracker())

	plain := modeladapter.NewRetryCompleter(&modeladapter.ModelAdapter{}, modeladapter.RetryOpts{})
	assert.NotNil(t, plain.UsageTracker())
}

func TestRetryCompleter_RetryAfterCappedAtMaxDelay(t *testing.T) {
	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.RateLimitError{RetryAfter: time.Hour}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{MaxRetries: 2, MaxDelay: time.Second}, &sleeps)
	rc.SetRandFunc(func() float64 { return 0.99 })

	_, _ = rc.Complete(context.Background(), chat.New(), nil)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps)
}

func TestRetryCompleter_DetachedRequestStopsWaitingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var requestErrs []error
	fc := &fakeCompleter{handler: func(reqCtx context.Context, _ int) (message.Message, error) {
		requestErrs = append(requestErrs, reqCtx.Err())
		return message.Message{}, &modeladapter.RateLimitError{RetryAfter: time.Hour}
	}}

	rc := modeladapter.NewRetryCompleter(fc, modeladapter.RetryOpts{MaxRetries: 2, MaxDelay: time.Hour})
	var waits []time.Duration
	rc.SetSleepFunc(func(waitCtx context.Context, d time.Duration) error {
		waits = append(waits, d)
		cancel()
		<-waitCtx.Done()
		return waitCtx.Err()
	})

	_, err := rc.Complete(modeladapter.Detach(ctx), chat.New(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var rle *modeladapter.RateLimitError
	assert.ErrorAs(t, err, &rle)
	assert.Len(t, waits, 1)
	assert.Equal(t, []error{nil}, requestErrs, "the request itself never sees the cancellation")
	assert.Equal(t, int32(1), fc.calls.Load())
}

func TestRetryCompleter_DetachedRequestAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeCompleter{handler: func(context.Context, int) (message.Message, error) {
		return message.Message{}, &modeladapter.TransportError{}
	}}

	var sleeps []time.Duration
	rc := newRetry(fc, modeladapter.RetryOpts{MaxRetries: 3}, &sleeps)

	_, err := rc.Complete(modeladapter.Detach(ctx), chat.New(), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sleeps)
	assert.Equal(t, int32(1), fc.calls.Load())
}

func TestDetach(t *testing.T) {
	type key struct{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	cancel()

	detached := modeladapter.Detach(ctx)

	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	assert.Equal(t, "v", detached.Value(key{}))

	assert.Equal(t, ctx, modeladapter.CallerContext(detached))
	assert.ErrorIs(t, modeladapter.CallerContext(detached).Err(), context.Canceled)

	plain := context.Background()
	assert.Equal(t, plain, modeladapter.CallerContext(plain))
}
