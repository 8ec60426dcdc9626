package conversation

import (
	"context"
	"time"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
)

// EventKind identifies the type of conversation event.
type EventKind string

const (
	EventModelRequest EventKind = "model_request"
	EventModelReply   EventKind = "model_reply"
	EventToolCall     EventKind = "tool_call"
	EventToolResult   EventKind = "tool_result"
	EventTerminal     EventKind = "terminal"
)

// Event is a notification of conversation progress. Only the field matching
// Kind is set: Message for model replies, ToolCall, ToolResult, or Outcome
// for the terminal event.
type Event struct {
	Kind           EventKind
	ConversationID string
	Agent          string
	Turn           int
	Timestamp      time.Time

	Message    *message.Message
	ToolCall   *content.ToolCall
	ToolResult *content.ToolResult
	Outcome    *Outcome
}

// EventHandler receives events synchronously from the conversation loop.
type EventHandler func(ctx context.Context, e Event)

type eventsKey struct{}

// WithEvents returns a context whose conversations also report to h, in
// addition to any Options.OnEvent handler. Nested conversations started
// from tool handlers inherit it.
func WithEvents(ctx context.Context, h EventHandler) context.Context {
	return context.WithValue(ctx, eventsKey{}, h)
}

func eventsFrom(ctx context.Context) EventHandler {
	h, _ := ctx.Value(eventsKey{}).(EventHandler)
	return h
}
