package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
)

type entry struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// ToolBox is the tool registry. It registers tools once, validates arguments
// against each tool's schema, and dispatches calls to handlers. A ToolBox is
// safe for concurrent use; many conversations may invoke tools on one shared
// instance. It never deduplicates or memoizes calls.
type ToolBox struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		entries: make(map[string]entry),
	}
}

// Register adds one or more tools to the ToolBox. It fails with a
// DuplicateToolError if a name is already registered (or repeated within
// tools), and with a SchemaError if an InputSchema does not resolve. On
// failure no tool from the call is registered.
func (tb *ToolBox) Register(tools ...Tool) error {
	pending := make([]entry, 0, len(tools))
	seen := make(map[string]struct{}, len(tools))

	for _, t := range tools {
		if t.Name == "" {
			return ErrEmptyName
		}
		if t.Handler == nil {
			return fmt.Errorf("%w: %s", ErrNilHandler, t.Name)
		}
		if _, dup := seen[t.Name]; dup {
			return &DuplicateToolError{Name: t.Name}
		}
		seen[t.Name] = struct{}{}

		resolved, err := resolveSchema(t.InputSchema)
		if err != nil {
			return &SchemaError{Tool: t.Name, Err: err}
		}
		pending = append(pending, entry{tool: t, schema: resolved})
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.entries == nil {
		tb.entries = make(map[string]entry)
	}

	for _, e := range pending {
		if _, exists := tb.entries[e.tool.Name]; exists {
			return &DuplicateToolError{Name: e.tool.Name}
		}
	}

	for _, e := range pending {
		tb.entries[e.tool.Name] = e
		tb.order = append(tb.order, e.tool.Name)
	}

	return nil
}

// MustRegister is like Register but panics on error. It is intended for
// static tool sets wired at startup.
func (tb *ToolBox) MustRegister(tools ...Tool) *ToolBox {
	if err := tb.Register(tools...); err != nil {
		panic(err)
	}
	return tb
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	e, ok := tb.entries[name]
	return e.tool, ok
}

// Len returns the number of registered tools.
func (tb *ToolBox) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	return len(tb.order)
}

// Merge registers all tools from other into this ToolBox. Name collisions
// fail the whole merge with a DuplicateToolError.
func (tb *ToolBox) Merge(other *ToolBox) error {
	if other == nil || other == tb {
		return nil
	}
	return tb.Register(other.Tools()...)
}

// Filter returns a new ToolBox containing only the named tools. Unknown names
// are skipped. An empty names slice returns the receiver itself.
func (tb *ToolBox) Filter(names []string) *ToolBox {
	if len(names) == 0 {
		return tb
	}

	tb.mu.RLock()
	defer tb.mu.RUnlock()

	out := New()
	for _, name := range names {
		e, ok := tb.entries[name]
		if !ok {
			continue
		}
		if _, dup := out.entries[name]; dup {
			continue
		}
		out.entries[name] = e
		out.order = append(out.order, name)
	}

	return out
}

// Tools returns all registered tools in registration order.
func (tb *ToolBox) Tools() []Tool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	result := make([]Tool, 0, len(tb.order))
	for _, name := range tb.order {
		result = append(result, tb.entries[name].tool)
	}
	return result
}

// Invoke validates args against the named tool's schema and runs its handler.
// It returns an UnknownToolError, InvalidArgumentsError, or ToolExecutionError
// on failure. Empty args are treated as an empty JSON object.
func (tb *ToolBox) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tb.mu.RLock()
	e, ok := tb.entries[name]
	tb.mu.RUnlock()

	if !ok {
		return "", &UnknownToolError{Name: name}
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return "", &InvalidArgumentsError{Tool: name, Err: fmt.Errorf("decode arguments: %w", err)}
	}

	if e.schema != nil {
		if err := e.schema.Validate(instance); err != nil {
			return "", &InvalidArgumentsError{Tool: name, Err: err}
		}
	}

	result, err := runHandler(ctx, e.tool.Handler, args)
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}

	return result, nil
}

// Call executes a tool call and returns a ToolResult. Every failure from
// Invoke becomes a result with IsError set, so the caller can feed it back to
// the model instead of aborting.
func (tb *ToolBox) Call(ctx context.Context, tc content.ToolCall) content.ToolResult {
	result, err := tb.Invoke(ctx, tc.Name, json.RawMessage(tc.Arguments))
	if err != nil {
		return content.ToolResult{
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Content:    failureContent(err),
			IsError:    true,
		}
	}

	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    result,
	}
}

// failureContent renders an Invoke error for the model. Execution errors are
// unwrapped to the handler's own message.
func failureContent(err error) string {
	var execErr *ToolExecutionError
	if errors.As(err, &execErr) {
		return execErr.Err.Error()
	}
	return err.Error()
}

func runHandler(ctx context.Context, h Handler, args json.RawMessage) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return h(ctx, args)
}

func resolveSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}

	return s.Resolve(nil)
}
