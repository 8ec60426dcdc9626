package agents

import (
	"context"

	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// Agent answers a single user input.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string) Response
}

// Response is the result of one agent run.
type Response struct {
	// Agent is the name of the agent that produced the response.
	Agent string
	// Text is the final output: the validated JSON payload for structured
	// agents, the answer text otherwise.
	Text string
	// Outcome is the terminal outcome of the conversation that produced Text.
	Outcome conversation.Outcome
	// Steps holds the responses of inner agents, in run order, for
	// composite agents.
	Steps []Response
}

// OK reports whether the run succeeded.
func (r Response) OK() bool { return r.Outcome.OK() }

// Err returns the failure of an unsuccessful run, nil otherwise.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return r.Outcome.Err
}

// FromOutcome builds the Response of agent for a conversation outcome.
func FromOutcome(agent string, out conversation.Outcome) Response {
	text := out.Text
	if len(out.Payload) > 0 {
		text = string(out.Payload)
	}
	return Response{Agent: agent, Text: text, Outcome: out}
}

// Options configures a ConversationAgent.
type Options struct {
	Name         string
	Description  string
	Instructions string
	// Tools available to the model. Nil means none.
	Tools         *toolbox.ToolBox
	MaxTurns      int
	ParallelTools bool
	Output        structured.Format
	OnEvent       conversation.EventHandler
	Middleware    []conversation.Middleware
}

// ConversationAgent is an Agent backed by a conversation Controller.
type ConversationAgent struct {
	name        string
	description string
	ctrl        *conversation.Controller
}

// New creates a ConversationAgent. Instructions become the system prompt.
func New(completer modeladapter.Completer, opts Options) (*ConversationAgent, error) {
	ctrl, err := conversation.New(completer, opts.Tools, conversation.Options{
		Name:          opts.Name,
		SystemPrompt:  opts.Instructions,
		MaxTurns:      opts.MaxTurns,
		ParallelTools: opts.ParallelTools,
		Output:        opts.Output,
		OnEvent:       opts.OnEvent,
		Middleware:    opts.Middleware,
	})
	if err != nil {
		return nil, err
	}

	return &ConversationAgent{
		name:        opts.Name,
		description: opts.Description,
		ctrl:        ctrl,
	}, nil
}

// Name returns the agent's name.
func (a *ConversationAgent) Name() string { return a.name }

// Description returns the agent's description.
func (a *ConversationAgent) Description() string { return a.description }

// Controller returns the underlying controller.
func (a *ConversationAgent) Controller() *conversation.Controller { return a.ctrl }

// Run runs one conversation for input.
func (a *ConversationAgent) Run(ctx context.Context, input string) Response {
	return FromOutcome(a.name, a.ctrl.Run(ctx, input))
}

// Func adapts a function to the Agent interface.
type Func struct {
	AgentName        string
	AgentDescription string
	Fn               func(ctx context.Context, input string) Response
}

func (f Func) Name() string        { return f.AgentName }
func (f Func) Description() string { return f.AgentDescription }

func (f Func) Run(ctx context.Context, input string) Response {
	r := f.Fn(ctx, input)
	if r.Agent == "" {
		r.Agent = f.AgentName
	}
	return r
}
