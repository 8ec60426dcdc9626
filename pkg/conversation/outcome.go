package conversation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
)

// Kind classifies a terminal outcome.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindParseFailure Kind = "parse_failure"
	KindTurnLimit    Kind = "turn_limit"
	KindCancelled    Kind = "cancelled"
	KindError        Kind = "error"
)

// Outcome is the typed terminal result of one conversation.
type Outcome struct {
	Kind Kind
	// Text is the final answer as the model wrote it. It is set for
	// KindSuccess and, when the answer failed to parse, KindParseFailure.
	Text string
	// Payload is the validated JSON answer for structured formats.
	// It is nil for free-text conversations.
	Payload json.RawMessage
	// Err explains every kind except KindSuccess: a *structured.ParseError
	// or *modeladapter.MalformedOutputError, a *TurnLimitExceededError, an
	// error wrapping ErrCancelled, or the model failure.
	Err error

	Transcript     []message.Message
	Turns          int
	ConversationID string
	Usage          usage.TokenCount
}

// OK reports whether the conversation succeeded.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess
}

// Decode unmarshals the payload of a successful structured outcome into v.
func (o Outcome) Decode(v any) error {
	if !o.OK() {
		if o.Err != nil {
			return fmt.Errorf("conversation: %s outcome: %w", o.Kind, o.Err)
		}
		return fmt.Errorf("conversation: %s outcome", o.Kind)
	}
	if len(o.Payload) == 0 {
		return errors.New("conversation: outcome has no structured payload")
	}
	return structured.Unmarshal(o.Payload, v)
}
