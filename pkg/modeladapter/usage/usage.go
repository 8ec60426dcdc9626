// Package usage tracks token consumption of model calls.
package usage

import (
	"sync"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
)

// MetadataKey is the message metadata key under which providers attach the
// TokenCount of the call that produced an assistant message.
const MetadataKey = "usage"

// TokenCount holds input and output token counts for a single LLM call.
type TokenCount struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Plus returns the element-wise sum of tc and other.
func (tc TokenCount) Plus(other TokenCount) TokenCount {
	return TokenCount{
		InputTokens:  tc.InputTokens + other.InputTokens,
		OutputTokens: tc.OutputTokens + other.OutputTokens,
	}
}

// FromMessage returns the TokenCount attached to msg, if any.
func FromMessage(msg message.Message) (TokenCount, bool) {
	v, ok := msg.GetMeta(MetadataKey)
	if !ok {
		return TokenCount{}, false
	}
	tc, ok := v.(TokenCount)
	return tc, ok
}

// Tracker accumulates token usage across multiple LLM calls.
// It is safe for concurrent use; the zero value is ready to use.
type Tracker struct {
	mu    sync.Mutex
	total TokenCount
	calls int
	last  TokenCount
}

// Add records the usage of one call.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = t.total.Plus(tc)
	t.last = tc
	t.calls++
}

// Last returns the most recent token count.
// The bool is false when nothing has been recorded.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.last, t.calls > 0
}

// Total returns the aggregate token count.
func (t *Tracker) Total() TokenCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Count returns the number of recorded calls.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.calls
}

// Reset clears all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total, t.last, t.calls = TokenCount{}, TokenCount{}, 0
}
