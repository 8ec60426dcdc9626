// Package order implements the order agent: a tool-calling agent that checks
// inventory and places orders against a Catalog, then answers the customer
// in free text.
package order

import (
	"fmt"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
)

const (
	DefaultName        = "order-agent"
	DefaultDescription = "Places orders and checks product inventory."

	Instructions = "You are a helpful order assistant. You help customers place orders and check product inventory. " +
		"When a customer wants to order something, use the available tools to check inventory and place orders. " +
		"Generate friendly, professional order confirmations based on the order results."
)

// Options configures the order agent.
type Options struct {
	Name          string
	Description   string
	Instructions  string
	MaxTurns      int
	ParallelTools bool
	OnEvent       conversation.EventHandler
	Middleware    []conversation.Middleware
}

// New creates the order agent. A nil catalog gets a fresh NewCatalog().
func New(completer modeladapter.Completer, catalog *Catalog, opts Options) (*agents.ConversationAgent, error) {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.Instructions == "" {
		opts.Instructions = Instructions
	}

	a, err := agents.New(completer, agents.Options{
		Name:          opts.Name,
		Description:   opts.Description,
		Instructions:  opts.Instructions,
		Tools:         catalog.Tools(),
		MaxTurns:      opts.MaxTurns,
		ParallelTools: opts.ParallelTools,
		OnEvent:       opts.OnEvent,
		Middleware:    opts.Middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("order: %w", err)
	}

	return a, nil
}
