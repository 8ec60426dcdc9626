package modeladapter

import (
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
)

// Reply is the classified result of one model call. It is one of
// [TextAnswer], [ToolCallsRequested] or [ReplyError].
type Reply interface {
	isReply()
}

// TextAnswer is a reply without tool calls: the final answer of a turn.
type TextAnswer struct {
	Message message.Message
}

// Text returns the answer text.
func (a TextAnswer) Text() string { return a.Message.TextContent() }

// ToolCallsRequested is a reply asking for one or more tool invocations.
// Calls are in the order the model listed them.
type ToolCallsRequested struct {
	Message message.Message
	Calls   []content.ToolCall
}

// ReplyError is a failed model call.
type ReplyError struct {
	Err error
}

func (TextAnswer) isReply()         {}
func (ToolCallsRequested) isReply() {}
func (ReplyError) isReply()         {}

// Classify turns the return values of [Completer.Complete] into a Reply.
func Classify(msg message.Message, err error) Reply {
	if err != nil {
		return ReplyError{Err: err}
	}

	if calls := msg.ToolCalls(); len(calls) > 0 {
		return ToolCallsRequested{Message: msg, Calls: calls}
	}

	return TextAnswer{Message: msg}
}
