package writer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents/writer"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/modeltest"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bySystemPrompt map[string]*modeltest.Completer

func (b bySystemPrompt) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	return b[c.SystemPrompt()].Complete(ctx, c, tools)
}

func TestWorkflow(t *testing.T) {
	w := modeltest.Script(modeltest.Reply("Fresh coffee, every morning."))
	r := modeltest.Script(modeltest.Reply("Add a call to action."))

	chain, err := writer.New(bySystemPrompt{
		writer.WriterInstructions:   w,
		writer.ReviewerInstructions: r,
	}, writer.Options{})
	require.NoError(t, err)

	resp := chain.Run(context.Background(), "Write a slogan for a coffee shop.")

	require.True(t, resp.OK())
	assert.Equal(t, writer.DefaultName, resp.Agent)
	assert.Equal(t, "Add a call to action.", resp.Text)

	require.Len(t, resp.Steps, 2)
	assert.Equal(t, "writer", resp.Steps[0].Agent)
	assert.Equal(t, "Fresh coffee, every morning.", resp.Steps[0].Text)
	assert.Equal(t, "reviewer", resp.Steps[1].Agent)

	assert.Equal(t, "Write a slogan for a coffee shop.", w.LastUserText())
	assert.Equal(t, "Fresh coffee, every morning.", r.LastUserText())
}

func TestWorkflow_WriterFailureSkipsReview(t *testing.T) {
	w := modeltest.Script(modeltest.Fail(errors.New("quota")))
	r := modeltest.Script(modeltest.Reply("unused"))

	chain, err := writer.New(bySystemPrompt{
		writer.WriterInstructions:   w,
		writer.ReviewerInstructions: r,
	}, writer.Options{Name: "copy"})
	require.NoError(t, err)

	resp := chain.Run(context.Background(), "x")

	assert.False(t, resp.OK())
	assert.Equal(t, "copy", resp.Agent)
	assert.Equal(t, conversation.KindError, resp.Outcome.Kind)
	assert.Zero(t, r.Calls())
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := writer.New(modeltest.Script(), writer.Options{MaxTurns: -1})

	assert.ErrorIs(t, err, conversation.ErrInvalidMaxTurns)
}
