package agents

import (
	"context"

	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
)

// SequentialAgent runs its steps in order. The input goes to the first step
// and the output of each step is the input of the next.
type SequentialAgent struct {
	name        string
	description string
	steps       []Agent
}

// Sequential builds a SequentialAgent from steps.
func Sequential(name, description string, steps ...Agent) *SequentialAgent {
	return &SequentialAgent{name: name, description: description, steps: steps}
}

func (s *SequentialAgent) Name() string        { return s.name }
func (s *SequentialAgent) Description() string { return s.description }

// Steps returns the agents of the chain.
func (s *SequentialAgent) Steps() []Agent { return append([]Agent(nil), s.steps...) }

// Run runs the chain. It stops at the first step that does not succeed and
// returns that step's outcome; otherwise the text and outcome are those of
// the last step. Every step response is kept in Steps.
func (s *SequentialAgent) Run(ctx context.Context, input string) Response {
	resp := Response{
		Agent:   s.name,
		Text:    input,
		Outcome: conversation.Outcome{Kind: conversation.KindSuccess, Text: input},
	}

	next := input
	for _, step := range s.steps {
		r := step.Run(ctx, next)
		resp.Steps = append(resp.Steps, r)
		resp.Text = r.Text
		resp.Outcome = r.Outcome

		if !r.OK() {
			break
		}
		next = r.Text
	}

	return resp
}
