// Package message defines the Message type used in LLM conversations.
package message

import (
	"maps"
	"slices"
	"strings"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
)

// Message represents a single message in a conversation.
// It is a value type; once appended to a chat.Chat it is never mutated.
type Message struct {
	Sender   string
	Role     role.Role
	Parts    []content.Part
	Metadata map[string]any
}

// New creates a message with the given sender, role, and content parts.
func New(sender string, r role.Role, parts ...content.Part) Message {
	return Message{
		Sender: sender,
		Role:   r,
		Parts:  parts,
	}
}

// NewText creates a message with a single Text content part.
func NewText(sender string, r role.Role, text string) Message {
	return New(sender, r, content.Text{Text: text})
}

// NewToolResult creates a tool-role message carrying a single result.
func NewToolResult(sender string, tr content.ToolResult) Message {
	return New(sender, role.Tool, tr)
}

// TextContent concatenates the text of all Text parts in the message.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(content.Text); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolCalls returns all ToolCall parts in the message.
func (m Message) ToolCalls() []content.ToolCall {
	var calls []content.ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(content.ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolResults returns all ToolResult parts in the message.
func (m Message) ToolResults() []content.ToolResult {
	var results []content.ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(content.ToolResult); ok {
			results = append(results, tr)
		}
	}
	return results
}

// GetMeta retrieves a metadata value by key.
func (m Message) GetMeta(key string) (any, bool) {
	if m.Metadata == nil {
		return nil, false
	}
	v, ok := m.Metadata[key]
	return v, ok
}

// WithMeta returns a copy of m with the metadata key set. The receiver is
// left untouched.
func (m Message) WithMeta(key string, value any) Message {
	cp := m.Clone()
	if cp.Metadata == nil {
		cp.Metadata = make(map[string]any, 1)
	}
	cp.Metadata[key] = value
	return cp
}

// Clone returns a copy of m that shares no slices or maps with it.
func (m Message) Clone() Message {
	cp := m
	cp.Parts = slices.Clone(m.Parts)
	if m.Metadata != nil {
		cp.Metadata = maps.Clone(m.Metadata)
	}
	return cp
}
