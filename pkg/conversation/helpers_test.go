package conversation_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
)

// step produces one scripted model reply.
type step func(ctx context.Context, c *chat.Chat) (message.Message, error)

// scriptedCompleter replays steps in order and records every transcript it
// was sent. Once the script is exhausted the last step repeats.
type scriptedCompleter struct {
	mu    sync.Mutex
	steps []step
	seen  [][]message.Message
	tools [][]string
}

func script(steps ...step) *scriptedCompleter {
	return &scriptedCompleter{steps: steps}
}

func (s *scriptedCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	s.mu.Lock()
	i := len(s.seen)
	s.seen = append(s.seen, c.Messages())
	names := make([]string, len(tools))
	for j, t := range tools {
		names[j] = t.Name
	}
	s.tools = append(s.tools, names)
	st := s.steps[min(i, len(s.steps)-1)]
	s.mu.Unlock()

	return st(ctx, c)
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *scriptedCompleter) transcripts() [][]message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

func reply(text string) step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		return message.NewText("model", role.Assistant, text), nil
	}
}

func fail(err error) step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		return message.Message{}, err
	}
}

func toolCalls(calls ...content.ToolCall) step {
	return func(context.Context, *chat.Chat) (message.Message, error) {
		parts := make([]content.Part, len(calls))
		for i, tc := range calls {
			parts[i] = tc
		}
		return message.New("model", role.Assistant, parts...), nil
	}
}

func call(id, name, args string) content.ToolCall {
	return content.ToolCall{ID: id, Name: name, Arguments: args}
}

// orderTools returns a registry with place_order and check_inventory.
func orderTools(t *testing.T) *toolbox.ToolBox {
	t.Helper()

	type orderArgs struct {
		ProductName string `json:"product_name"`
		Quantity    int    `json:"quantity"`
	}

	tb := toolbox.New()
	tb.MustRegister(
		toolbox.MustTypedTool("place_order", "Place an order",
			func(_ context.Context, in orderArgs) (map[string]any, error) {
				return map[string]any{"status": "ok", "product_name": in.ProductName, "quantity": in.Quantity}, nil
			},
			toolbox.Minimum("quantity", 1),
		),
		toolbox.Tool{
			Name:        "check_inventory",
			Description: "Check inventory",
			Handler: func(_ context.Context, input json.RawMessage) (string, error) {
				return fmt.Sprintf("in stock: %s", input), nil
			},
		},
	)
	return tb
}

// assertToolResultsPaired checks that every assistant tool call in each
// recorded transcript is answered, in order, by the tool messages directly
// after it.
func assertToolResultsPaired(t *testing.T, transcript []message.Message) {
	t.Helper()

	for i := 0; i < len(transcript); i++ {
		calls := transcript[i].ToolCalls()
		if len(calls) == 0 {
			continue
		}
		for j, tc := range calls {
			k := i + 1 + j
			if !assert.Less(t, k, len(transcript), "missing result for %s", tc.ID) {
				return
			}
			results := transcript[k].ToolResults()
			if assert.Len(t, results, 1) {
				assert.Equal(t, role.Tool, transcript[k].Role)
				assert.Equal(t, tc.ID, results[0].ToolCallID)
			}
		}
	}
}
