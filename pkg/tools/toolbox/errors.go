package toolbox

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyName is returned when registering a tool without a name.
	ErrEmptyName = errors.New("toolbox: tool name is empty")
	// ErrNilHandler is returned when registering a tool without a handler.
	ErrNilHandler = errors.New("toolbox: tool handler is nil")
)

// DuplicateToolError is returned by Register when a tool name is taken.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("toolbox: tool %q already registered", e.Name)
}

// SchemaError is returned by Register when a tool's InputSchema cannot be
// parsed or resolved.
type SchemaError struct {
	Tool string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("toolbox: tool %q: invalid input schema: %v", e.Tool, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// UnknownToolError is returned by Invoke when no tool has the requested name.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// InvalidArgumentsError is returned by Invoke when the arguments are not
// valid JSON or do not satisfy the tool's schema. The handler is not called.
type InvalidArgumentsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// ToolExecutionError wraps any failure raised by a tool handler, including
// recovered panics.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s execution failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
