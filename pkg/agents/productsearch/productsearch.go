// Package productsearch implements the product search agent, which turns a
// search query into a product suggestion.
package productsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

const (
	DefaultName        = "product-search"
	DefaultDescription = "Searches for products based on user queries."

	// DefaultQuery is searched for when the request is empty.
	DefaultQuery = "something useful"

	Instructions = `You are a product generator. Generate a product based on an online search, taking the user's prompt as the search query.
Output ONLY valid JSON, no markdown, no extra text:
{"name": "<product name>", "price": "<X.XX€>", "description": "<short description>"}
`
)

// Product is a product search result. Price is formatted in EUR, e.g.
// "99.99€".
type Product struct {
	Name        string `json:"name,omitempty" jsonschema:"the name of the product"`
	Price       string `json:"price,omitempty" jsonschema:"the price in EUR format, e.g. 99.99€"`
	Description string `json:"description,omitempty" jsonschema:"a short description of the product"`
}

// withDefaults fills the fields the model left out.
func (p Product) withDefaults() Product {
	if p.Name == "" {
		p.Name = "Product"
	}
	if p.Price == "" {
		p.Price = "0.00€"
	}
	if p.Description == "" {
		p.Description = "A great product."
	}
	return p
}

// Output is the agent's final answer.
type Output struct {
	HumanReadable string  `json:"human_readable"`
	Product       Product `json:"product"`
}

// NewOutput builds the answer for a product.
func NewOutput(p Product) Output {
	p = p.withDefaults()
	return Output{
		HumanReadable: fmt.Sprintf("Found: **%s** at %s. %s", p.Name, p.Price, p.Description),
		Product:       p,
	}
}

// Options configures an Agent.
type Options struct {
	Name         string
	Description  string
	Instructions string
	// Tools the model may use while searching, such as a catalog lookup
	// imported over MCP. Nil means none.
	Tools      *toolbox.ToolBox
	MaxTurns   int
	OnEvent    conversation.EventHandler
	Middleware []conversation.Middleware
}

// Agent is the product search agent.
type Agent struct {
	inner *agents.ConversationAgent
}

// New creates a product search agent.
func New(completer modeladapter.Completer, opts Options) (*Agent, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}
	if opts.Instructions == "" {
		opts.Instructions = Instructions
	}

	format, err := structured.For[Product]("product", structured.AllowExtraFields())
	if err != nil {
		return nil, fmt.Errorf("productsearch: %w", err)
	}

	inner, err := agents.New(completer, agents.Options{
		Name:         opts.Name,
		Description:  opts.Description,
		Instructions: opts.Instructions,
		Tools:        opts.Tools,
		MaxTurns:     opts.MaxTurns,
		Output:       format,
		OnEvent:      opts.OnEvent,
		Middleware:   opts.Middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("productsearch: %w", err)
	}

	return &Agent{inner: inner}, nil
}

func (a *Agent) Name() string        { return a.inner.Name() }
func (a *Agent) Description() string { return a.inner.Description() }

// Search runs a search for query and returns the decoded answer along with
// the conversation outcome.
func (a *Agent) Search(ctx context.Context, query string) (Output, conversation.Outcome, error) {
	if strings.TrimSpace(query) == "" {
		query = DefaultQuery
	}

	resp := a.inner.Run(ctx, query)

	var p Product
	if err := resp.Outcome.Decode(&p); err != nil {
		return Output{}, resp.Outcome, err
	}

	return NewOutput(p), resp.Outcome, nil
}

// Run searches for input and answers with the JSON encoded Output.
func (a *Agent) Run(ctx context.Context, input string) agents.Response {
	output, out, err := a.Search(ctx, input)
	if err != nil {
		return agents.Response{Agent: a.Name(), Text: out.Text, Outcome: out}
	}

	payload, err := json.Marshal(output)
	if err != nil {
		out.Kind = conversation.KindError
		out.Err = err
		return agents.Response{Agent: a.Name(), Outcome: out}
	}

	out.Text = string(payload)
	out.Payload = payload

	return agents.Response{Agent: a.Name(), Text: string(payload), Outcome: out}
}
