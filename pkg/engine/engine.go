package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/helpdesk"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/order"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/productsearch"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/router"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/writer"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/mcpclient"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// Built-in toolbox names.
const (
	ToolboxOrder = "order"
	ToolboxHR    = "hr"
)

var builtinToolboxNames = map[string]struct{}{
	ToolboxOrder: {},
	ToolboxHR:    {},
}

// Engine is the composition root that assembles providers, toolboxes and
// agents from configuration and exposes them through a frontend-agnostic API.
type Engine struct {
	cfg        Config
	log        *slog.Logger
	events     *EventBus
	registry   *agents.Registry
	catalog    *order.Catalog
	completers map[completerKey]modeladapter.Completer
	overrides  map[string]modeladapter.Completer
	toolboxes  map[string]*toolbox.ToolBox
	mcpClients []*mcpclient.Client
	agents     map[string]agents.Agent
}

type completerKey struct {
	provider string
	json     bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by agent middleware.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCompleter replaces the completer of the named provider instead of
// building one from its config.
func WithCompleter(provider string, c modeladapter.Completer) Option {
	return func(e *Engine) { e.overrides[provider] = c }
}

// WithCatalog sets the catalog behind the order toolbox.
func WithCatalog(c *order.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithToolBox adds a named toolbox agents can reference.
func WithToolBox(name string, tb *toolbox.ToolBox) Option {
	return func(e *Engine) { e.toolboxes[name] = tb }
}

// New creates an Engine from the given configuration. It validates the
// config, connects MCP servers, and builds and registers every agent.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		events:     NewEventBus(),
		registry:   agents.NewRegistry(),
		completers: make(map[completerKey]modeladapter.Completer),
		overrides:  make(map[string]modeladapter.Completer),
		toolboxes:  make(map[string]*toolbox.ToolBox),
		agents:     make(map[string]agents.Agent, len(cfg.Agents)),
	}
	for _, opt := range opts {
		opt(e)
	}

	injected := make([]string, 0, len(e.toolboxes))
	for name := range e.toolboxes {
		injected = append(injected, name)
	}
	if err := cfg.validate(injected); err != nil {
		return nil, err
	}

	if e.catalog == nil {
		e.catalog = order.NewCatalog()
	}
	e.toolboxes[ToolboxOrder] = e.catalog.Tools()
	e.toolboxes[ToolboxHR] = helpdesk.HRTools()

	for _, mc := range cfg.MCPServers {
		if err := e.connectMCP(ctx, mc); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	for _, ac := range cfg.Agents {
		if err := e.registerAgent(ac); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) connectMCP(ctx context.Context, mc MCPConfig) error {
	var (
		client *mcpclient.Client
		err    error
	)
	if mc.URL != "" {
		client, err = mcpclient.NewHTTP(ctx, mc.URL)
	} else {
		client, err = mcpclient.New(ctx, mc.Command, mc.Args...)
	}
	if err != nil {
		return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
	}
	e.mcpClients = append(e.mcpClients, client)

	tb, err := client.ToolBox(ctx)
	if err != nil {
		return fmt.Errorf("engine: mcp %q: %w", mc.Name, err)
	}
	e.toolboxes[mc.Name] = tb

	e.log.Info("mcp server connected", "name", mc.Name, "tools", tb.Len())

	return nil
}

// Events returns the engine's event bus. Every agent publishes its
// conversation events to it.
func (e *Engine) Events() *EventBus { return e.events }

// Registry returns the agent directory.
func (e *Engine) Registry() *agents.Registry { return e.registry }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// EntryAgent returns the name of the default agent: the configured entry
// agent, or the first agent.
func (e *Engine) EntryAgent() string {
	if e.cfg.EntryAgent != "" {
		return e.cfg.EntryAgent
	}
	return e.cfg.Agents[0].Name
}

// Agent returns the named agent. An empty name selects the entry agent.
func (e *Engine) Agent(name string) (agents.Agent, error) {
	if name == "" {
		name = e.EntryAgent()
	}
	a, err := e.registry.Spawn(name)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return a, nil
}

// Agents lists the registered agents sorted by name.
func (e *Engine) Agents() []agents.Entry { return e.registry.List() }

// ToolBox returns a named toolbox: a built-in one or an imported MCP server.
func (e *Engine) ToolBox(name string) (*toolbox.ToolBox, bool) {
	tb, ok := e.toolboxes[name]
	return tb, ok
}

// Close shuts down MCP clients and releases resources.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.mcpClients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.mcpClients = nil
	return errors.Join(errs...)
}

// completer returns the completer of a provider, building it on first use.
// Structured agents ask for the JSON variant.
func (e *Engine) completer(provider string, structuredOutput bool) (modeladapter.Completer, error) {
	if provider == "" {
		provider = e.cfg.Providers[0].Name
	}

	if c, ok := e.overrides[provider]; ok {
		return c, nil
	}

	var pc ProviderConfig
	for _, p := range e.cfg.Providers {
		if p.Name == provider {
			pc = p
		}
	}
	if pc.Name == "" {
		return nil, fmt.Errorf("provider %q not found", provider)
	}

	key := completerKey{provider: provider, json: structuredOutput && pc.JSONMode}
	if c, ok := e.completers[key]; ok {
		return c, nil
	}

	pc.JSONMode = key.json
	c, err := buildCompleter(pc)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", provider, err)
	}
	e.completers[key] = c

	return c, nil
}

// registerAgent builds the agent for ac and registers it.
func (e *Engine) registerAgent(ac AgentConfig) error {
	a, err := e.buildAgent(ac)
	if err != nil {
		return fmt.Errorf("engine: agent %q: %w", ac.Name, err)
	}

	e.agents[ac.Name] = a

	desc := ac.Description
	if desc == "" {
		desc = a.Description()
	}

	return e.registry.Register(ac.Name, desc, agents.Static(a))
}

func (e *Engine) middleware(name string) []conversation.Middleware {
	return []conversation.Middleware{
		conversation.Recovery(),
		conversation.Logger(e.log.With("component", "agent"), name),
	}
}

func (e *Engine) tools(ac AgentConfig) (*toolbox.ToolBox, error) {
	tb := toolbox.New()

	for _, name := range ac.Toolboxes {
		src, ok := e.toolboxes[name]
		if !ok {
			return nil, fmt.Errorf("toolbox %q not found", name)
		}
		if err := tb.Merge(src); err != nil {
			return nil, err
		}
	}

	for _, at := range ac.AgentTools {
		inner, ok := e.agents[at.Agent]
		if !ok {
			return nil, fmt.Errorf("agent tool %q: agent not built", at.Agent)
		}

		name := at.Name
		if name == "" {
			name = at.Agent
		}
		desc := at.Description
		if desc == "" {
			desc = inner.Description()
		}

		t, err := agents.AsTool(agents.Static(inner), agents.ToolSpec{
			Name:           name,
			Description:    desc,
			ArgName:        at.ArgName,
			ArgDescription: at.ArgDescription,
		})
		if err != nil {
			return nil, err
		}
		if err := tb.Register(t); err != nil {
			return nil, err
		}
	}

	return tb, nil
}

func (e *Engine) buildAgent(ac AgentConfig) (agents.Agent, error) {
	structuredOutput := ac.kind() == KindRouter || ac.kind() == KindProductSearch || ac.JSONOutput

	var completer modeladapter.Completer
	if ac.kind() != KindSequential {
		c, err := e.completer(ac.Provider, structuredOutput)
		if err != nil {
			return nil, err
		}
		completer = c
	}

	onEvent := e.events.Handler()
	mw := e.middleware(ac.Name)

	switch ac.kind() {
	case KindRouter:
		opts := router.Options{
			Name:               ac.Name,
			Description:        ac.Description,
			Preference:         router.NextAgent(ac.Router.Preference),
			ResolveNone:        ac.Router.ResolveNone,
			ProductSearchAgent: ac.Router.ProductSearchAgent,
			OrderAgentName:     ac.Router.OrderAgent,
			OnEvent:            onEvent,
			Middleware:         mw,
		}
		if ac.Router.Forward {
			opts.Forward = e.registry
		}
		return router.New(completer, opts)

	case KindProductSearch:
		tb, err := e.tools(ac)
		if err != nil {
			return nil, err
		}
		return productsearch.New(completer, productsearch.Options{
			Name:         ac.Name,
			Description:  ac.Description,
			Instructions: ac.Instructions,
			Tools:        tb,
			MaxTurns:     ac.MaxTurns,
			OnEvent:      onEvent,
			Middleware:   mw,
		})

	case KindOrder:
		return order.New(completer, e.catalog, order.Options{
			Name:          ac.Name,
			Description:   ac.Description,
			Instructions:  ac.Instructions,
			MaxTurns:      ac.MaxTurns,
			ParallelTools: ac.ParallelTools,
			OnEvent:       onEvent,
			Middleware:    mw,
		})

	case KindHelpdesk:
		return helpdesk.New(completer, helpdesk.Options{
			Name:        ac.Name,
			Description: ac.Description,
			MaxTurns:    ac.MaxTurns,
			OnEvent:     onEvent,
			Middleware:  mw,
		})

	case KindWriter:
		return writer.New(completer, writer.Options{
			Name:        ac.Name,
			Description: ac.Description,
			MaxTurns:    ac.MaxTurns,
			OnEvent:     onEvent,
			Middleware:  mw,
		})

	case KindSequential:
		steps := make([]agents.Agent, 0, len(ac.Steps))
		for _, s := range ac.Steps {
			a, ok := e.agents[s]
			if !ok {
				return nil, fmt.Errorf("step %q: agent not built", s)
			}
			steps = append(steps, a)
		}
		return agents.Sequential(ac.Name, ac.Description, steps...), nil

	default:
		tb, err := e.tools(ac)
		if err != nil {
			return nil, err
		}

		var output structured.Format
		if ac.JSONOutput {
			output = structured.JSON(ac.Name)
		}

		return agents.New(completer, agents.Options{
			Name:          ac.Name,
			Description:   ac.Description,
			Instructions:  ac.Instructions,
			Tools:         tb,
			MaxTurns:      ac.MaxTurns,
			ParallelTools: ac.ParallelTools,
			Output:        output,
			OnEvent:       onEvent,
			Middleware:    mw,
		})
	}
}
