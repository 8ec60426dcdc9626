package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
)

// renderer formats agent responses for the terminal. A nil markdown
// renderer prints markdown as is.
type renderer struct {
	md *glamour.TermRenderer
}

func newRenderer(width int) *renderer {
	if width <= 0 {
		width = 100
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &renderer{}
	}
	return &renderer{md: md}
}

func (r *renderer) markdown(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(out)
}

// humanReadable extracts the human_readable field of a structured answer.
func humanReadable(text string) (string, bool) {
	var v struct {
		HumanReadable *string `json:"human_readable"`
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil || v.HumanReadable == nil {
		return "", false
	}
	return *v.HumanReadable, true
}

// response renders resp and the responses of the agents it ran.
func (r *renderer) response(resp agents.Response) string {
	var sb strings.Builder
	r.writeResponse(&sb, resp)
	return strings.TrimRight(sb.String(), "\n")
}

func (r *renderer) writeResponse(sb *strings.Builder, resp agents.Response) {
	sb.WriteString(answerPrefixStyle.Render(resp.Agent+" >"))
	sb.WriteString(" ")
	sb.WriteString(statusLine(resp))
	sb.WriteString("\n")

	text := resp.Text
	if hr, ok := humanReadable(text); ok {
		text = hr
	}
	if text != "" {
		sb.WriteString(r.markdown(text))
		sb.WriteString("\n")
	}
	if err := resp.Err(); err != nil {
		sb.WriteString(errorStyle.Render("error: " + err.Error()))
		sb.WriteString("\n")
	}

	for _, step := range resp.Steps {
		r.writeResponse(sb, step)
	}
}

func statusLine(resp agents.Response) string {
	kind := resp.Outcome.Kind
	label := fmt.Sprintf("[%s, %d turns]", kind, resp.Outcome.Turns)

	switch kind {
	case conversation.KindSuccess:
		return successStyle.Render(label)
	case conversation.KindParseFailure, conversation.KindTurnLimit:
		return warnStyle.Render(label)
	default:
		return errorStyle.Render(label)
	}
}

// formatEvent renders one conversation event as a single line.
func formatEvent(e conversation.Event) string {
	prefix := dimStyle.Render(fmt.Sprintf("[%s #%d]", e.Agent, e.Turn))

	switch e.Kind {
	case conversation.EventModelRequest:
		return prefix + " " + dimStyle.Render("calling model")
	case conversation.EventModelReply:
		text := ""
		if e.Message != nil {
			text = e.Message.TextContent()
		}
		if text == "" {
			return prefix + " " + dimStyle.Render("model replied")
		}
		return prefix + " " + dimStyle.Render("model: "+truncate(text, 120))
	case conversation.EventToolCall:
		if e.ToolCall == nil {
			return prefix + " tool call"
		}
		return prefix + " " + toolNameStyle.Render(e.ToolCall.Name) + " " + dimStyle.Render(truncate(e.ToolCall.Arguments, 120))
	case conversation.EventToolResult:
		if e.ToolResult == nil {
			return prefix + " tool result"
		}
		if e.ToolResult.IsError {
			return prefix + " " + toolErrorStyle.Render("✗ "+e.ToolResult.Name+": "+truncate(e.ToolResult.Content, 120))
		}
		return prefix + " " + toolResultStyle.Render("✓ "+e.ToolResult.Name+": "+truncate(e.ToolResult.Content, 120))
	case conversation.EventTerminal:
		if e.Outcome == nil {
			return prefix + " done"
		}
		return prefix + " " + dimStyle.Render("done: "+string(e.Outcome.Kind))
	default:
		return prefix + " " + string(e.Kind)
	}
}

// truncate returns s shortened to at most n runes, with "..." appended if
// truncated. Newlines are replaced with spaces for single-line display.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
