package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage"
	"github.com/jplck/mf-samples-with-speckit/pkg/structured"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

// DefaultMaxTurns bounds a conversation when Options.MaxTurns is zero.
const DefaultMaxTurns = 10

// Options configures a Controller.
type Options struct {
	// Name is the sender recorded on assistant and tool messages.
	Name string
	// SystemPrompt seeds every transcript. Empty means no system message.
	SystemPrompt string
	// MaxTurns is the maximum number of model calls (default 10).
	MaxTurns int
	// ParallelTools runs the calls of one reply concurrently. Results are
	// still appended in request order.
	ParallelTools bool
	// Output is the expected shape of the final answer. The zero value
	// accepts free text.
	Output structured.Format
	// OnEvent, when set, receives progress events synchronously.
	OnEvent EventHandler
	// Middleware wraps every Run, first entry outermost.
	Middleware []Middleware
}

// Controller runs conversations against one model and one tool registry.
// It holds no per-conversation state and is safe for concurrent use.
type Controller struct {
	completer modeladapter.Completer
	tools     *toolbox.ToolBox
	opts      Options
	runner    Runner
}

// New creates a Controller. tools may be nil for a model without tools.
func New(completer modeladapter.Completer, tools *toolbox.ToolBox, opts Options) (*Controller, error) {
	if completer == nil {
		return nil, ErrMissingCompleter
	}

	switch {
	case opts.MaxTurns < 0:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxTurns, opts.MaxTurns)
	case opts.MaxTurns == 0:
		opts.MaxTurns = DefaultMaxTurns
	}

	if tools == nil {
		tools = toolbox.New()
	}

	c := &Controller{
		completer: completer,
		tools:     tools,
		opts:      opts,
	}
	c.runner = Chain(RunnerFunc(c.run), opts.Middleware...)

	return c, nil
}

// Name returns the configured sender name.
func (c *Controller) Name() string { return c.opts.Name }

// MaxTurns returns the effective turn bound.
func (c *Controller) MaxTurns() int { return c.opts.MaxTurns }

// Run executes one conversation for userInput and returns its outcome.
func (c *Controller) Run(ctx context.Context, userInput string) Outcome {
	return c.runner.Run(ctx, userInput)
}

// run holds the state of a single conversation.
type run struct {
	c     *Controller
	id    string
	chat  *chat.Chat
	state State
	turn  int
	usage usage.TokenCount
}

func (c *Controller) run(ctx context.Context, userInput string) (out Outcome) {
	r := &run{
		c:     c,
		id:    newConversationID(),
		chat:  chat.New(),
		state: StateAwaitingModel,
	}

	defer func() {
		if p := recover(); p != nil {
			out = r.finish(ctx, Outcome{Kind: KindError, Err: fmt.Errorf("conversation panicked: %v", p)})
		}
	}()

	if c.opts.SystemPrompt != "" {
		r.chat.Append(message.NewText(c.opts.Name, role.System, c.opts.SystemPrompt))
	}
	r.chat.Append(message.NewText("user", role.User, userInput))

	tools := c.tools.Tools()

	for {
		if ctx.Err() != nil {
			return r.cancelled(ctx)
		}

		r.turn++
		r.emit(ctx, Event{Kind: EventModelRequest})

		// The request itself is never aborted; cancellation is observed
		// once it has returned. Retry waits still end on cancellation.
		msg, err := c.completer.Complete(modeladapter.Detach(ctx), r.chat, tools)
		if err := r.to(StateModelReplied); err != nil {
			return r.fail(ctx, err)
		}

		if ctx.Err() != nil {
			return r.cancelled(ctx)
		}

		if tc, ok := usage.FromMessage(msg); ok {
			r.usage = r.usage.Plus(tc)
		}

		switch reply := modeladapter.Classify(msg, err).(type) {
		case modeladapter.ReplyError:
			return r.modelFailed(ctx, reply.Err)

		case modeladapter.TextAnswer:
			r.appendReply(ctx, reply.Message)
			return r.answer(ctx, reply.Text())

		case modeladapter.ToolCallsRequested:
			if err := validateToolCalls(reply.Calls); err != nil {
				return r.modelFailed(ctx, err)
			}

			r.appendReply(ctx, reply.Message)

			if err := r.to(StateExecutingTools); err != nil {
				return r.fail(ctx, err)
			}

			if cancelled := r.executeTools(ctx, reply.Calls); cancelled {
				return r.cancelled(ctx)
			}

			if r.turn >= c.opts.MaxTurns {
				return r.finish(ctx, Outcome{
					Kind: KindTurnLimit,
					Err:  &TurnLimitExceededError{MaxTurns: c.opts.MaxTurns},
				})
			}

			if err := r.to(StateAwaitingModel); err != nil {
				return r.fail(ctx, err)
			}
		}
	}
}

func (r *run) to(next State) error {
	s, err := TransitionState(r.state, next)
	if err != nil {
		return err
	}
	r.state = s
	return nil
}

func (r *run) appendReply(ctx context.Context, msg message.Message) {
	msg.Sender = r.c.opts.Name
	msg.Role = role.Assistant
	r.chat.Append(msg)

	r.emit(ctx, Event{Kind: EventModelReply, Message: &msg})
}

// answer decodes the final text against the expected format.
func (r *run) answer(ctx context.Context, text string) Outcome {
	payload, err := r.c.opts.Output.Decode(text)
	if err != nil {
		kind := KindParseFailure
		var pe *structured.ParseError
		if !errors.As(err, &pe) {
			kind = KindError
		}
		return r.finish(ctx, Outcome{Kind: kind, Text: text, Err: err})
	}

	return r.finish(ctx, Outcome{Kind: KindSuccess, Text: text, Payload: payload})
}

func (r *run) modelFailed(ctx context.Context, err error) Outcome {
	var me *modeladapter.MalformedOutputError
	if errors.As(err, &me) {
		return r.finish(ctx, Outcome{Kind: KindParseFailure, Err: err})
	}
	return r.finish(ctx, Outcome{Kind: KindError, Err: err})
}

func (r *run) fail(ctx context.Context, err error) Outcome {
	return r.finish(ctx, Outcome{Kind: KindError, Err: err})
}

func (r *run) cancelled(ctx context.Context) Outcome {
	return r.finish(ctx, Outcome{
		Kind: KindCancelled,
		Err:  fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)),
	})
}

// finish moves the run to Terminal and fills in the shared outcome fields.
func (r *run) finish(ctx context.Context, out Outcome) Outcome {
	r.state = StateTerminal

	out.Transcript = r.chat.Messages()
	out.Turns = r.turn
	out.ConversationID = r.id
	out.Usage = r.usage

	r.emit(ctx, Event{Kind: EventTerminal, Outcome: &out})

	return out
}

// executeTools runs every call and appends exactly one result per call, in
// request order. It reports whether the context was cancelled; calls that
// had not started by then get a failed result so the transcript stays
// complete.
func (r *run) executeTools(ctx context.Context, calls []content.ToolCall) bool {
	for i := range calls {
		r.emit(ctx, Event{Kind: EventToolCall, ToolCall: &calls[i]})
	}

	// Running tools finish with a live context. Nested agents can still
	// observe cancellation through modeladapter.CallerContext.
	callCtx := modeladapter.Detach(ctx)
	results := make([]content.ToolResult, len(calls))

	if r.c.opts.ParallelTools && len(calls) > 1 {
		var wg sync.WaitGroup
		for i, tc := range calls {
			wg.Go(func() {
				results[i] = r.c.tools.Call(callCtx, tc)
			})
		}
		wg.Wait()
	} else {
		for i, tc := range calls {
			if ctx.Err() != nil {
				results[i] = skippedResult(tc)
				continue
			}
			results[i] = r.c.tools.Call(callCtx, tc)
		}
	}

	for i := range results {
		r.chat.Append(message.NewToolResult(r.c.opts.Name, results[i]))
		r.emit(ctx, Event{Kind: EventToolResult, ToolResult: &results[i]})
	}

	return ctx.Err() != nil
}

func skippedResult(tc content.ToolCall) content.ToolResult {
	return content.ToolResult{
		ToolCallID: tc.ID,
		Name:       tc.Name,
		Content:    "tool call skipped: conversation cancelled",
		IsError:    true,
	}
}

func (r *run) emit(ctx context.Context, e Event) {
	scoped := eventsFrom(ctx)
	if r.c.opts.OnEvent == nil && scoped == nil {
		return
	}

	e.ConversationID = r.id
	e.Agent = r.c.opts.Name
	e.Turn = r.turn
	e.Timestamp = time.Now()

	if r.c.opts.OnEvent != nil {
		r.c.opts.OnEvent(ctx, e)
	}
	if scoped != nil {
		scoped(ctx, e)
	}
}

// validateToolCalls rejects replies whose tool calls cannot be answered
// unambiguously: missing names, missing ids, or ids repeated in one reply.
func validateToolCalls(calls []content.ToolCall) error {
	seen := make(map[string]struct{}, len(calls))
	for i, tc := range calls {
		if tc.Name == "" {
			return &modeladapter.MalformedOutputError{Reason: fmt.Sprintf("tool call %d has no name", i)}
		}
		if tc.ID == "" {
			return &modeladapter.MalformedOutputError{Reason: fmt.Sprintf("tool call %q has no id", tc.Name)}
		}
		if _, dup := seen[tc.ID]; dup {
			return &modeladapter.MalformedOutputError{Reason: fmt.Sprintf("duplicate tool call id %q", tc.ID)}
		}
		seen[tc.ID] = struct{}{}
	}
	return nil
}

func newConversationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
