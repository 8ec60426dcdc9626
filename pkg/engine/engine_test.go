package engine

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/order"
	"github.com/jplck/mf-samples-with-speckit/pkg/agents/router"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/modeltest"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(agentConfigs ...AgentConfig) Config {
	return Config{
		Providers: []ProviderConfig{{Name: "p", Kind: "openai", Model: "gpt-4o", JSONMode: true}},
		Agents:    agentConfigs,
	}
}

func newTestEngine(t *testing.T, cfg Config, c *modeltest.Completer, opts ...Option) *Engine {
	t.Helper()

	opts = append([]Option{WithCompleter(cfg.Providers[0].Name, c)}, opts...)
	e, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestNew_DefaultConfig(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), modeltest.Script(modeltest.Reply("ok")))

	names := make([]string, 0, len(e.Agents()))
	for _, entry := range e.Agents() {
		names = append(names, entry.Name)
		assert.NotEmpty(t, entry.Description, entry.Name)
	}
	assert.Equal(t, []string{"helpdesk", "order-agent", "order-orchestrator", "product-search", "writer-reviewer"}, names)

	entry, err := e.Agent("")
	require.NoError(t, err)
	assert.Equal(t, "order-orchestrator", entry.Name())

	tb, ok := e.ToolBox(ToolboxOrder)
	require.True(t, ok)
	assert.Equal(t, 2, tb.Len())

	_, ok = e.ToolBox(ToolboxHR)
	assert.True(t, ok)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), Config{})

	assert.ErrorContains(t, err, "engine: config")
}

func TestNew_MCPConnectFailure(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	cfg := testConfig(AgentConfig{Name: "a"})
	cfg.MCPServers = []MCPConfig{{Name: "catalog", URL: url}}

	_, err := New(context.Background(), cfg, WithCompleter("p", modeltest.Script()))

	assert.ErrorContains(t, err, `engine: mcp "catalog"`)
}

func TestEngine_Agent_Unknown(t *testing.T) {
	e := newTestEngine(t, testConfig(AgentConfig{Name: "a"}), modeltest.Script())

	_, err := e.Agent("ghost")

	assert.ErrorIs(t, err, agents.ErrUnknownAgent)
}

func TestEngine_EntryAgentDefaultsToFirst(t *testing.T) {
	e := newTestEngine(t, testConfig(AgentConfig{Name: "first"}, AgentConfig{Name: "second"}), modeltest.Script())

	assert.Equal(t, "first", e.EntryAgent())
}

func TestEngine_RouteAndForward(t *testing.T) {
	c := modeltest.Script(
		modeltest.Reply(`{"next_agent":"order-agent","reason":"The user wants to buy.","input":"two mugs"}`),
		modeltest.Reply("Your order is on its way."),
	)
	e := newTestEngine(t, DefaultConfig(), c)

	a, err := e.Agent("")
	require.NoError(t, err)

	resp := a.Run(context.Background(), "I want to buy two mugs")
	require.True(t, resp.OK(), resp.Err())

	var out router.Output
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &out))
	assert.Equal(t, router.OrderAgent, out.Goto.NextAgent)
	assert.Equal(t, "I want to buy two mugs", out.Goto.UserInput)
	assert.Equal(t, router.HumanMessage(router.OrderAgent), out.HumanReadable)

	require.Len(t, resp.Steps, 1)
	assert.Equal(t, "order-agent", resp.Steps[0].Agent)
	assert.Equal(t, "Your order is on its way.", resp.Steps[0].Text)
	assert.Equal(t, 2, c.Calls())
}

func TestEngine_PublishesEvents(t *testing.T) {
	e := newTestEngine(t, testConfig(AgentConfig{Name: "clerk", Kind: KindOrder}), modeltest.Script(modeltest.Reply("done")))

	sub := e.Events().Subscribe(32)
	defer e.Events().Unsubscribe(sub)

	a, err := e.Agent("clerk")
	require.NoError(t, err)
	require.True(t, a.Run(context.Background(), "order a lamp").OK())

	var kinds []conversation.EventKind
	for len(sub.C) > 0 {
		ev := <-sub.C
		assert.Equal(t, "clerk", ev.Agent)
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, conversation.EventTerminal, kinds[len(kinds)-1])
}

func TestEngine_OrderToolsUseCatalog(t *testing.T) {
	catalog := order.NewCatalog(order.WithSeed(7), order.WithIDGenerator(func() string { return "ORD00001" }))
	c := modeltest.Script(
		modeltest.ToolCalls(modeltest.Call("c1", "place_order", `{"product_name":"Lamp","quantity":2}`)),
		modeltest.Reply("Order ORD00001 confirmed."),
	)
	e := newTestEngine(t, testConfig(AgentConfig{Name: "clerk", Kind: KindOrder}), c, WithCatalog(catalog))

	a, err := e.Agent("clerk")
	require.NoError(t, err)

	resp := a.Run(context.Background(), "two lamps please")
	require.True(t, resp.OK(), resp.Err())
	assert.Equal(t, "Order ORD00001 confirmed.", resp.Text)

	reqs := c.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	results := last.ToolResults()
	require.Len(t, results, 1)
	assert.False(t, results[0].IsError)
	assert.Contains(t, results[0].Content, `"order_id":"ORD00001"`)
}

func TestEngine_ToolboxesAndAgentTools(t *testing.T) {
	extra := toolbox.New().MustRegister(toolbox.Tool{
		Name:        "store_hours",
		Description: "Returns opening hours.",
		Handler:     func(context.Context, json.RawMessage) (string, error) { return "9-17", nil },
	})

	c := modeltest.Script(modeltest.Reply("done"))
	e := newTestEngine(t, testConfig(
		AgentConfig{Name: "clerk", Kind: KindOrder},
		AgentConfig{
			Name:         "front",
			Instructions: "Help shoppers.",
			Toolboxes:    []string{ToolboxHR, "extra"},
			AgentTools:   []AgentToolConfig{{Agent: "clerk", Name: "Clerk", ArgName: "request"}},
		},
	), c, WithToolBox("extra", extra))

	a, err := e.Agent("front")
	require.NoError(t, err)
	require.True(t, a.Run(context.Background(), "hi").OK())

	reqs := c.Requests()
	require.Len(t, reqs, 1)
	assert.ElementsMatch(t, []string{"vacation_request", "user_profile", "store_hours", "Clerk"}, reqs[0].Tools)
}

func TestEngine_Sequential(t *testing.T) {
	e := newTestEngine(t, testConfig(
		AgentConfig{Name: "draft"},
		AgentConfig{Name: "polish"},
		AgentConfig{Name: "chain", Kind: KindSequential, Steps: []string{"draft", "polish"}},
	), modeltest.Script(modeltest.Echo("> ")))

	a, err := e.Agent("chain")
	require.NoError(t, err)

	resp := a.Run(context.Background(), "hi")
	require.True(t, resp.OK(), resp.Err())
	assert.Equal(t, "> > hi", resp.Text)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "draft", resp.Steps[0].Agent)
	assert.Equal(t, "> hi", resp.Steps[0].Text)
}

func TestEngine_JSONOutput(t *testing.T) {
	e := newTestEngine(t, testConfig(AgentConfig{Name: "json", JSONOutput: true}), modeltest.Script(modeltest.Reply("not json")))

	a, err := e.Agent("json")
	require.NoError(t, err)

	resp := a.Run(context.Background(), "hi")
	assert.Equal(t, conversation.KindParseFailure, resp.Outcome.Kind)
}

func TestEngine_CompleterCache(t *testing.T) {
	e, err := New(context.Background(), testConfig(AgentConfig{Name: "a"}))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	text1, err := e.completer("p", false)
	require.NoError(t, err)
	text2, err := e.completer("", false)
	require.NoError(t, err)
	jsonC, err := e.completer("p", true)
	require.NoError(t, err)

	assert.Same(t, text1, text2)
	assert.NotSame(t, text1, jsonC)

	_, err = e.completer("missing", false)
	assert.ErrorContains(t, err, `provider "missing" not found`)
}

func TestEngine_Close(t *testing.T) {
	e, err := New(context.Background(), testConfig(AgentConfig{Name: "a"}), WithCompleter("p", modeltest.Script()))
	require.NoError(t, err)

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}
