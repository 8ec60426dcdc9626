package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// DefaultArgName is the tool argument used when ToolSpec.ArgName is empty.
const DefaultArgName = "task"

// ToolSpec describes how an agent is exposed as a tool.
type ToolSpec struct {
	Name           string
	Description    string
	ArgName        string
	ArgDescription string
}

// AgentError is returned by an agent tool whose agent run did not succeed.
// The calling model sees its message as the failed tool result.
type AgentError struct {
	Agent string
	Resp  Response
}

func (e *AgentError) Error() string {
	if err := e.Resp.Err(); err != nil {
		return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Resp.Outcome.Kind, err)
	}
	return fmt.Sprintf("agent %s: %s", e.Agent, e.Resp.Outcome.Kind)
}

func (e *AgentError) Unwrap() error { return e.Resp.Err() }

// AsTool wraps the agents produced by factory as a tool taking a single
// required string argument. Each call spawns an agent, runs it on the
// argument and returns its final text. Other properties in the arguments
// are ignored.
//
// The agent runs under the caller's context as recovered by
// modeladapter.CallerContext, so a cancelled parent conversation stops the
// agent at its next turn boundary.
func AsTool(factory Factory, spec ToolSpec) (toolbox.Tool, error) {
	if factory == nil {
		return toolbox.Tool{}, errors.New("agents: tool has no agent factory")
	}
	if spec.Name == "" {
		return toolbox.Tool{}, errors.New("agents: tool name must not be empty")
	}

	arg := spec.ArgName
	if arg == "" {
		arg = DefaultArgName
	}

	desc := spec.Description
	if desc == "" {
		desc = fmt.Sprintf("Delegates to the %s agent.", spec.Name)
	}

	schema := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			arg: {Type: "string", Description: spec.ArgDescription},
		},
		Required: []string{arg},
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return toolbox.Tool{}, &toolbox.SchemaError{Tool: spec.Name, Err: err}
	}

	return toolbox.Tool{
		Name:        spec.Name,
		Description: desc,
		InputSchema: raw,
		Handler: func(ctx context.Context, input json.RawMessage) (string, error) {
			var args map[string]any
			if err := json.Unmarshal(input, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			text, ok := args[arg].(string)
			if !ok {
				return "", fmt.Errorf("argument %q must be a string", arg)
			}

			a := factory()
			resp := a.Run(modeladapter.CallerContext(ctx), text)
			if !resp.OK() {
				return "", &AgentError{Agent: a.Name(), Resp: resp}
			}

			return resp.Text, nil
		},
	}, nil
}

// MustAsTool is like AsTool but panics on error.
func MustAsTool(factory Factory, spec ToolSpec) toolbox.Tool {
	t, err := AsTool(factory, spec)
	if err != nil {
		panic(err)
	}
	return t
}
