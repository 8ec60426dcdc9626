package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Runner runs one conversation for the given user input.
type Runner interface {
	Run(ctx context.Context, input string) Outcome
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, input string) Outcome

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context, input string) Outcome {
	return f(ctx, input)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// Chain applies middleware to r so that the first middleware is outermost.
func Chain(r Runner, mws ...Middleware) Runner {
	for i := len(mws) - 1; i >= 0; i-- {
		r = mws[i](r)
	}
	return r
}

// --- Timeout middleware ---

// Timeout returns a Middleware that wraps the runner's context with a
// deadline. An expired deadline surfaces as a KindCancelled outcome once the
// in-flight model or tool call returns.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, input string) Outcome {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx, input)
		})
	}
}

// --- Recovery middleware ---

// Recovery returns a Middleware that converts panics into KindError outcomes.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, input string) (out Outcome) {
			defer func() {
				if r := recover(); r != nil {
					out = Outcome{Kind: KindError, Err: fmt.Errorf("conversation panicked: %v", r)}
				}
			}()

			return next.Run(ctx, input)
		})
	}
}

// --- Logger middleware ---

// Logger returns a Middleware that logs conversation start, duration, and
// outcome.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context, input string) Outcome {
			log.InfoContext(ctx, "conversation started", "agent", name, "input_len", len(input))

			start := time.Now()

			out := next.Run(ctx, input)

			attrs := []any{
				"agent", name,
				"conversation_id", out.ConversationID,
				"outcome", out.Kind,
				"turns", out.Turns,
				"duration", time.Since(start),
				"input_tokens", out.Usage.InputTokens,
				"output_tokens", out.Usage.OutputTokens,
			}

			if out.OK() {
				log.InfoContext(ctx, "conversation finished", attrs...)
			} else {
				log.WarnContext(ctx, "conversation finished without success", append(attrs, "error", out.Err)...)
			}

			return out
		})
	}
}
