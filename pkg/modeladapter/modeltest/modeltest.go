// Package modeltest provides a scripted Completer for tests of code that
// drives a model.
package modeltest

import (
	"context"
	"sync"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// Step produces one scripted model reply.
type Step func(ctx context.Context, c *chat.Chat) (message.Message, error)

// Completer replays steps in order. Once the script is exhausted the last
// step repeats. Every request is recorded.
type Completer struct {
	mu       sync.Mutex
	steps    []Step
	requests []Request
}

// Request is one recorded model call.
type Request struct {
	Messages []message.Message
	Tools    []string
}

// Script returns a Completer that replies with steps.
func Script(steps ...Step) *Completer {
	return &Completer{steps: steps}
}

// Complete implements modeladapter.Completer.
func (s *Completer) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}

	s.mu.Lock()
	i := len(s.requests)
	s.requests = append(s.requests, Request{Messages: c.Messages(), Tools: names})
	var st Step
	if len(s.steps) > 0 {
		st = s.steps[min(i, len(s.steps)-1)]
	}
	s.mu.Unlock()

	if st == nil {
		return Text(""), nil
	}
	return st(ctx, c)
}

// Calls returns the number of model calls made so far.
func (s *Completer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns every recorded call.
func (s *Completer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// LastUserText returns the text of the last user message of the most recent
// call.
func (s *Completer) LastUserText() string {
	reqs := s.Requests()
	if len(reqs) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role.User {
			return msgs[i].TextContent()
		}
	}
	return ""
}

// Text is an assistant message holding text.
func Text(text string) message.Message {
	return message.NewText("model", role.Assistant, text)
}

// Reply answers with text.
func Reply(text string) Step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		return Text(text), nil
	}
}

// Fail answers with err.
func Fail(err error) Step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		return message.Message{}, err
	}
}

// Call is a tool call with JSON arguments.
func Call(id, name, args string) content.ToolCall {
	return content.ToolCall{ID: id, Name: name, Arguments: args}
}

// ToolCalls answers by requesting calls.
func ToolCalls(calls ...content.ToolCall) Step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		parts := make([]content.Part, len(calls))
		for i, tc := range calls {
			parts[i] = tc
		}
		return message.New("model", role.Assistant, parts...), nil
	}
}

// Echo answers with prefix followed by the last user message of the
// transcript.
func Echo(prefix string) Step {
	return func(_ context.Context, c *chat.Chat) (message.Message, error) {
		var last string
		c.Each(func(_ int, m message.Message) bool {
			if m.Role == role.User {
				last = m.TextContent()
			}
			return true
		})
		return Text(prefix + last), nil
	}
}
