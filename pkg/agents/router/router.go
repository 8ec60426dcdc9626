// Package router classifies a shopper's request and decides which agent
// should handle it next: the product search agent, the order agent, or
// neither.
//
// The router never fails a request because of the model. Model errors,
// empty replies and unparseable replies all become a "none" decision that
// carries the failure in GotoDecision.Error.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
)

// NextAgent is a routing decision.
type NextAgent string

const (
	ProductSearch NextAgent = "product-search"
	OrderAgent    NextAgent = "order-agent"
	None          NextAgent = "none"
)

// Valid reports whether n is one of the known decisions.
func (n NextAgent) Valid() bool {
	switch n {
	case ProductSearch, OrderAgent, None:
		return true
	}
	return false
}

// GotoDecision is the machine-readable routing decision.
type GotoDecision struct {
	NextAgent NextAgent `json:"next_agent"`
	Reason    string    `json:"reason"`
	UserInput string    `json:"user_input"`
	Error     string    `json:"error,omitempty"`
}

// Output is the router's final answer.
type Output struct {
	HumanReadable string       `json:"human_readable"`
	Goto          GotoDecision `json:"goto"`
}

// classification is what the model is asked to produce. Every field is
// optional: a missing agent means none, a missing reason gets a default.
type classification struct {
	NextAgent string `json:"next_agent,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Input     string `json:"input,omitempty"`
}

const (
	DefaultName        = "order-orchestrator"
	DefaultDescription = "Routes user requests to either the product search agent or the order agent."

	// Greeting answers an empty request.
	Greeting = "I'm your shopping assistant. Ask me to search for products " +
		"or place an order, and I'll route your request to the best capability."

	maxRawInError = 500
)

var humanMessages = map[NextAgent]string{
	ProductSearch: "I'll forward your request to the product search agent to look up relevant items.",
	OrderAgent:    "I'll send your request to the order agent to help you place or manage an order.",
	None:          "I couldn't clearly determine whether you want to search for products or place an order. Please clarify.",
}

// HumanMessage returns the user-facing sentence for a decision.
func HumanMessage(n NextAgent) string {
	if m, ok := humanMessages[n]; ok {
		return m
	}
	return humanMessages[None]
}

// Options configures a Router.
type Options struct {
	Name        string
	Description string
	// Preference is the decision to favour when the request is ambiguous.
	// It must be ProductSearch (default) or OrderAgent.
	Preference NextAgent
	// ResolveNone rewrites a "none" classification of a non-empty request
	// to Preference. Routing failures are never rewritten.
	ResolveNone bool
	// ProductSearchAgent and OrderAgentName are the registry names of the
	// downstream agents. They default to the decision values.
	ProductSearchAgent string
	OrderAgentName     string
	// Forward, when set, runs the chosen downstream agent from this
	// registry and records its response as a step.
	Forward *agents.Registry

	OnEvent    conversation.EventHandler
	Middleware []conversation.Middleware
}

// Router is the intent routing agent.
type Router struct {
	opts Options
	ctrl *conversation.Controller
}

// New creates a Router that classifies with completer.
func New(completer modeladapter.Completer, opts Options) (*Router, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.Preference == "" {
		opts.Preference = ProductSearch
	}
	if opts.Preference != ProductSearch && opts.Preference != OrderAgent {
		return nil, fmt.Errorf("router: invalid preference %q", opts.Preference)
	}
	if opts.ProductSearchAgent == "" {
		opts.ProductSearchAgent = string(ProductSearch)
	}
	if opts.OrderAgentName == "" {
		opts.OrderAgentName = string(OrderAgent)
	}

	format, err := structured.For[classification]("routing decision", structured.AllowExtraFields())
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	ctrl, err := conversation.New(completer, nil, conversation.Options{
		Name:         opts.Name,
		SystemPrompt: Prompt(opts.Preference),
		MaxTurns:     1,
		Output:       format,
		OnEvent:      opts.OnEvent,
		Middleware:   opts.Middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	return &Router{opts: opts, ctrl: ctrl}, nil
}

func (r *Router) Name() string        { return r.opts.Name }
func (r *Router) Description() string { return r.opts.Description }

// Target returns the registry name of the agent for a decision, or false
// for None.
func (r *Router) Target(n NextAgent) (string, bool) {
	switch n {
	case ProductSearch:
		return r.opts.ProductSearchAgent, true
	case OrderAgent:
		return r.opts.OrderAgentName, true
	}
	return "", false
}

// Route classifies input. The returned outcome is that of the model
// conversation; it is the zero Outcome when no model call was needed.
func (r *Router) Route(ctx context.Context, input string) (Output, conversation.Outcome) {
	if strings.TrimSpace(input) == "" {
		return Output{
			HumanReadable: Greeting,
			Goto: GotoDecision{
				NextAgent: None,
				Reason:    "No user query provided yet.",
				UserInput: "",
			},
		}, conversation.Outcome{}
	}

	out := r.ctrl.Run(ctx, input)
	decision := decide(input, out)

	if r.opts.ResolveNone && decision.NextAgent == None && decision.Error == "" {
		decision.NextAgent = r.opts.Preference
		decision.Reason = fmt.Sprintf("%s Resolved to %s by preference.", decision.Reason, r.opts.Preference)
	}

	return Output{HumanReadable: HumanMessage(decision.NextAgent), Goto: decision}, out
}

// Run routes input and answers with the JSON encoded Output. Only a
// cancelled context makes the response unsuccessful.
func (r *Router) Run(ctx context.Context, input string) agents.Response {
	output, out := r.Route(ctx, input)

	if out.Kind == conversation.KindCancelled {
		return agents.Response{Agent: r.opts.Name, Outcome: out}
	}

	payload, err := json.Marshal(output)
	if err != nil {
		return agents.Response{Agent: r.opts.Name, Outcome: conversation.Outcome{Kind: conversation.KindError, Err: err}}
	}

	routed := out
	routed.Kind = conversation.KindSuccess
	routed.Err = nil
	routed.Text = string(payload)
	routed.Payload = payload

	resp := agents.Response{Agent: r.opts.Name, Text: string(payload), Outcome: routed}

	if r.opts.Forward != nil {
		if target, ok := r.Target(output.Goto.NextAgent); ok {
			resp.Steps = append(resp.Steps, r.forward(ctx, target, input))
		}
	}

	return resp
}

func (r *Router) forward(ctx context.Context, target, input string) agents.Response {
	a, err := r.opts.Forward.Spawn(target)
	if err != nil {
		return agents.Response{Agent: target, Outcome: conversation.Outcome{Kind: conversation.KindError, Err: err}}
	}
	return a.Run(ctx, input)
}

// decide maps the classification conversation to a decision.
func decide(input string, out conversation.Outcome) GotoDecision {
	if out.OK() {
		var c classification
		if err := out.Decode(&c); err != nil {
			return failed(input, "Failed to parse LLM response.", fmt.Sprintf("JSON parse error: %v. Raw response: %s", err, truncate(out.Text)))
		}

		next := NextAgent(c.NextAgent)
		if c.NextAgent == "" || !next.Valid() {
			next = None
		}

		reason := c.Reason
		if reason == "" {
			reason = "No reason provided."
		}

		return GotoDecision{NextAgent: next, Reason: reason, UserInput: input}
	}

	var pe *structured.ParseError
	switch {
	case errors.As(out.Err, &pe) && errors.Is(pe, structured.ErrEmpty):
		return failed(input, "LLM returned empty response.", "LLM returned empty response")
	case pe != nil:
		return failed(input, "Failed to parse LLM response.", fmt.Sprintf("JSON parse error: %v. Raw response: %s", pe.Err, truncate(pe.Raw)))
	default:
		return failed(input, "LLM routing failed.", fmt.Sprintf("LLM call failed: %v", out.Err))
	}
}

func failed(input, reason, detail string) GotoDecision {
	return GotoDecision{NextAgent: None, Reason: reason, UserInput: input, Error: detail}
}

// truncate cuts s to at most maxRawInError bytes on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxRawInError {
		return s
	}
	cut := maxRawInError
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
