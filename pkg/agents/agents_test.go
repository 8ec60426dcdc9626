package agents_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/modeltest"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAgent(t *testing.T, sc *modeltest.Completer, opts agents.Options) *agents.ConversationAgent {
	t.Helper()

	a, err := agents.New(sc, opts)
	require.NoError(t, err)
	return a
}

func TestConversationAgent_Text(t *testing.T) {
	sc := modeltest.Script(modeltest.Reply("hello there"))
	a := newAgent(t, sc, agents.Options{Name: "greeter", Description: "Greets", Instructions: "Be nice."})

	resp := a.Run(context.Background(), "hi")

	require.True(t, resp.OK())
	assert.NoError(t, resp.Err())
	assert.Equal(t, "greeter", resp.Agent)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "greeter", a.Name())
	assert.Equal(t, "Greets", a.Description())

	req := sc.Requests()[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, role.System, req.Messages[0].Role)
	assert.Equal(t, "Be nice.", req.Messages[0].TextContent())
}

func TestConversationAgent_StructuredTextIsPayload(t *testing.T) {
	sc := modeltest.Script(modeltest.Reply("```json\n{ \"name\": \"Lamp\" }\n```"))
	a := newAgent(t, sc, agents.Options{Name: "p", Output: structured.JSON("product")})

	resp := a.Run(context.Background(), "lamp")

	require.True(t, resp.OK())
	assert.JSONEq(t, `{"name":"Lamp"}`, resp.Text)
	assert.Equal(t, `{"name":"Lamp"}`, resp.Text)
}

func TestConversationAgent_Failure(t *testing.T) {
	sc := modeltest.Script(modeltest.Fail(errors.New("boom")))
	a := newAgent(t, sc, agents.Options{Name: "p"})

	resp := a.Run(context.Background(), "x")

	assert.False(t, resp.OK())
	assert.Equal(t, conversation.KindError, resp.Outcome.Kind)
	assert.ErrorContains(t, resp.Err(), "boom")
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := agents.New(nil, agents.Options{Name: "x"})
	assert.ErrorIs(t, err, conversation.ErrMissingCompleter)

	_, err = agents.New(modeltest.Script(), agents.Options{Name: "x", MaxTurns: -1})
	assert.ErrorIs(t, err, conversation.ErrInvalidMaxTurns)
}

func TestFunc(t *testing.T) {
	f := agents.Func{
		AgentName:        "static",
		AgentDescription: "Says the same",
		Fn: func(_ context.Context, input string) agents.Response {
			return agents.Response{Text: "got " + input, Outcome: conversation.Outcome{Kind: conversation.KindSuccess}}
		},
	}

	resp := f.Run(context.Background(), "x")

	assert.Equal(t, "static", resp.Agent)
	assert.Equal(t, "got x", resp.Text)
	assert.Equal(t, "Says the same", f.Description())
}

// --- Registry ---

func staticAgent(name string) agents.Agent {
	return agents.Func{AgentName: name, Fn: func(context.Context, string) agents.Response {
		return agents.Response{Outcome: conversation.Outcome{Kind: conversation.KindSuccess}}
	}}
}

func TestRegistryRegisterAndSpawn(t *testing.T) {
	r := agents.NewRegistry()
	require.NoError(t, r.Register("worker", "Does work", agents.Static(staticAgent("worker"))))

	a, err := r.Spawn("worker")

	require.NoError(t, err)
	assert.Equal(t, "worker", a.Name())

	f, ok := r.Get("worker")
	require.True(t, ok)
	assert.Equal(t, "worker", f().Name())
}

func TestRegistryDuplicate(t *testing.T) {
	r := agents.NewRegistry()
	require.NoError(t, r.Add(staticAgent("worker")))

	err := r.Add(staticAgent("worker"))

	var dup *agents.DuplicateAgentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "worker", dup.Name)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryInvalid(t *testing.T) {
	r := agents.NewRegistry()

	assert.Error(t, r.Register("", "x", agents.Static(staticAgent("a"))))
	assert.Error(t, r.Register("a", "x", nil))
	assert.Zero(t, r.Len())
}

func TestRegistrySpawnMissing(t *testing.T) {
	r := agents.NewRegistry()

	_, err := r.Spawn("nonexistent")

	assert.ErrorIs(t, err, agents.ErrUnknownAgent)

	_, ok := r.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	r := agents.NewRegistry()
	require.NoError(t, r.Register("charlie", "Third", agents.Static(staticAgent("charlie"))))
	require.NoError(t, r.Register("alpha", "First", agents.Static(staticAgent("alpha"))))
	require.NoError(t, r.Register("bravo", "Second", agents.Static(staticAgent("bravo"))))

	entries := r.List()

	require.Len(t, entries, 3)
	assert.Equal(t, agents.Entry{Name: "alpha", Description: "First"}, entries[0])
	assert.Equal(t, "bravo", entries[1].Name)
	assert.Equal(t, "charlie", entries[2].Name)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := agents.NewRegistry()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			name := fmt.Sprintf("agent-%d", i)
			assert.NoError(t, r.Add(staticAgent(name)))
			_, err := r.Spawn(name)
			assert.NoError(t, err)
			r.List()
		})
	}
	wg.Wait()

	assert.Equal(t, 20, r.Len())
}

// --- AsTool ---

func TestAsTool_Schema(t *testing.T) {
	tool, err := agents.AsTool(agents.Static(staticAgent("hr")), agents.ToolSpec{
		Name:           "HRSpecialist",
		Description:    "Handles employee questions.",
		ArgName:        "prompt",
		ArgDescription: "The request details.",
	})
	require.NoError(t, err)

	assert.Equal(t, "HRSpecialist", tool.Name)
	assert.Equal(t, "Handles employee questions.", tool.Description)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {"prompt": {"type": "string", "description": "The request details."}},
		"required": ["prompt"]
	}`, string(tool.InputSchema))
}

func TestAsTool_Defaults(t *testing.T) {
	tool, err := agents.AsTool(agents.Static(staticAgent("x")), agents.ToolSpec{Name: "X"})
	require.NoError(t, err)

	assert.Equal(t, "Delegates to the X agent.", tool.Description)

	var schema struct {
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
	assert.Equal(t, []string{agents.DefaultArgName}, schema.Required)
}

func TestAsTool_Invalid(t *testing.T) {
	_, err := agents.AsTool(nil, agents.ToolSpec{Name: "X"})
	assert.Error(t, err)

	_, err = agents.AsTool(agents.Static(staticAgent("x")), agents.ToolSpec{})
	assert.Error(t, err)

	assert.Panics(t, func() { agents.MustAsTool(nil, agents.ToolSpec{}) })
}

func TestAsTool_RunsAgentThroughToolBox(t *testing.T) {
	inner := modeltest.Script(modeltest.Echo("handled: "))
	specialist := newAgent(t, inner, agents.Options{Name: "tech"})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{
		Name:    "TechSupportSpecialist",
		ArgName: "issue",
	}))

	out, err := tb.Invoke(context.Background(), "TechSupportSpecialist", json.RawMessage(`{"issue":"printer on fire"}`))

	require.NoError(t, err)
	assert.Equal(t, "handled: printer on fire", out)
	assert.Equal(t, "printer on fire", inner.LastUserText())
}

func TestAsTool_MissingArgumentIsRejectedBeforeAgentRuns(t *testing.T) {
	inner := modeltest.Script(modeltest.Reply("unused"))
	specialist := newAgent(t, inner, agents.Options{Name: "tech"})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{
		Name:    "TechSupportSpecialist",
		ArgName: "issue",
	}))

	_, err := tb.Invoke(context.Background(), "TechSupportSpecialist", json.RawMessage(`{"prompt":"x"}`))

	var iae *toolbox.InvalidArgumentsError
	assert.ErrorAs(t, err, &iae)
	assert.Zero(t, inner.Calls())
}

func TestAsTool_ExtraArgumentsAreIgnored(t *testing.T) {
	inner := modeltest.Script(modeltest.Echo("handled: "))
	specialist := newAgent(t, inner, agents.Options{Name: "tech"})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{
		Name:    "TechSupportSpecialist",
		ArgName: "issue",
	}))

	out, err := tb.Invoke(context.Background(), "TechSupportSpecialist",
		json.RawMessage(`{"issue":"printer on fire","urgent":true,"floor":3}`))

	require.NoError(t, err)
	assert.Equal(t, "handled: printer on fire", out)
}

func TestAsTool_WrongArgumentTypeIsInvalidArguments(t *testing.T) {
	inner := modeltest.Script(modeltest.Reply("unused"))
	specialist := newAgent(t, inner, agents.Options{Name: "tech"})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{
		Name:    "TechSupportSpecialist",
		ArgName: "issue",
	}))

	_, err := tb.Invoke(context.Background(), "TechSupportSpecialist", json.RawMessage(`{"issue":42}`))

	var iae *toolbox.InvalidArgumentsError
	assert.ErrorAs(t, err, &iae)
	assert.Zero(t, inner.Calls())
}

func TestAsTool_ParentCancellationStopsNestedAgent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lookups := toolbox.New().MustRegister(toolbox.Tool{
		Name:    "lookup_order",
		Handler: func(context.Context, json.RawMessage) (string, error) { return "shipped", nil },
	})
	inner := modeltest.Script(
		func(context.Context, *chat.Chat) (message.Message, error) {
			cancel()
			return message.New("model", role.Assistant, modeltest.Call("i1", "lookup_order", `{}`)), nil
		},
		modeltest.Reply("unreachable"),
	)
	specialist := newAgent(t, inner, agents.Options{Name: "orders", Tools: lookups})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{Name: "OrderDesk"}))
	outer := modeltest.Script(
		modeltest.ToolCalls(modeltest.Call("c1", "OrderDesk", `{"task":"where is order 7"}`)),
		modeltest.Reply("unreachable"),
	)
	orchestrator := newAgent(t, outer, agents.Options{Name: "orchestrator", Tools: tb})

	resp := orchestrator.Run(ctx, "where is my order")

	assert.Equal(t, conversation.KindCancelled, resp.Outcome.Kind)
	assert.Equal(t, 1, inner.Calls(), "the nested agent stops at its next turn boundary")
	assert.Equal(t, 1, outer.Calls())
}

func TestAsTool_AgentFailureBecomesToolError(t *testing.T) {
	inner := modeltest.Script(modeltest.Fail(errors.New("model down")))
	specialist := newAgent(t, inner, agents.Options{Name: "tech"})

	tool := agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{Name: "Tech"})

	_, err := tool.Handler(context.Background(), json.RawMessage(`{"task":"help"}`))

	var ae *agents.AgentError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "tech", ae.Agent)
	assert.Contains(t, err.Error(), "model down")
}

func TestAsTool_OrchestratorDelegates(t *testing.T) {
	inner := modeltest.Script(modeltest.Echo("profile for "))
	specialist := newAgent(t, inner, agents.Options{Name: "hr"})

	tb := toolbox.New().MustRegister(agents.MustAsTool(agents.Static(specialist), agents.ToolSpec{
		Name:    "HRSpecialist",
		ArgName: "prompt",
	}))

	outer := modeltest.Script(
		modeltest.ToolCalls(modeltest.Call("c1", "HRSpecialist", `{"prompt":"alice"}`)),
		modeltest.Reply("Alice is onboarded."),
	)
	orchestrator := newAgent(t, outer, agents.Options{Name: "orchestrator", Tools: tb})

	resp := orchestrator.Run(context.Background(), "Onboard Alice")

	require.True(t, resp.OK())
	assert.Equal(t, "Alice is onboarded.", resp.Text)

	transcript := resp.Outcome.Transcript
	results := transcript[len(transcript)-2].ToolResults()
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Equal(t, "profile for alice", results[0].Content)
	assert.False(t, results[0].IsError)
}

// --- Sequential ---

func TestSequential_FeedsOutputForward(t *testing.T) {
	writer := newAgent(t, modeltest.Script(modeltest.Echo("draft: ")), agents.Options{Name: "writer"})
	reviewerModel := modeltest.Script(modeltest.Echo("review of "))
	reviewer := newAgent(t, reviewerModel, agents.Options{Name: "reviewer"})

	chain := agents.Sequential("writer-reviewer", "Writes then reviews", writer, reviewer)

	resp := chain.Run(context.Background(), "a slogan")

	require.True(t, resp.OK())
	assert.Equal(t, "writer-reviewer", resp.Agent)
	assert.Equal(t, "review of draft: a slogan", resp.Text)
	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "writer", resp.Steps[0].Agent)
	assert.Equal(t, "draft: a slogan", resp.Steps[0].Text)
	assert.Equal(t, "draft: a slogan", reviewerModel.LastUserText())
	assert.Len(t, chain.Steps(), 2)
	assert.Equal(t, "Writes then reviews", chain.Description())
}

func TestSequential_StopsAtFailure(t *testing.T) {
	writer := newAgent(t, modeltest.Script(modeltest.Fail(errors.New("no ideas"))), agents.Options{Name: "writer"})
	reviewerModel := modeltest.Script(modeltest.Reply("unused"))
	reviewer := newAgent(t, reviewerModel, agents.Options{Name: "reviewer"})

	resp := agents.Sequential("chain", "", writer, reviewer).Run(context.Background(), "x")

	assert.False(t, resp.OK())
	assert.ErrorContains(t, resp.Err(), "no ideas")
	assert.Len(t, resp.Steps, 1)
	assert.Zero(t, reviewerModel.Calls())
}

func TestSequential_Empty(t *testing.T) {
	resp := agents.Sequential("noop", "").Run(context.Background(), "same")

	assert.True(t, resp.OK())
	assert.Equal(t, "same", resp.Text)
	assert.Empty(t, resp.Steps)
}
