// Package writer implements a two step content workflow: a writer drafts
// content and a reviewer gives concise feedback on the draft.
package writer

import (
	"fmt"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
)

const (
	DefaultName        = "writer-reviewer"
	DefaultDescription = "Drafts content and reviews the draft."

	WriterInstructions = "You are an excellent content writer. You create new content and edit contents based on the feedback."

	ReviewerInstructions = "You are an excellent content reviewer. " +
		"Provide actionable feedback to the writer about the provided content. " +
		"Provide the feedback in the most concise manner possible."
)

// Options configures the workflow.
type Options struct {
	Name        string
	Description string
	MaxTurns    int
	OnEvent     conversation.EventHandler
	Middleware  []conversation.Middleware
}

// New creates the writer → reviewer chain.
func New(completer modeladapter.Completer, opts Options) (*agents.SequentialAgent, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}

	step := func(name, instructions string) (*agents.ConversationAgent, error) {
		a, err := agents.New(completer, agents.Options{
			Name:         name,
			Instructions: instructions,
			MaxTurns:     opts.MaxTurns,
			OnEvent:      opts.OnEvent,
			Middleware:   opts.Middleware,
		})
		if err != nil {
			return nil, fmt.Errorf("writer: %s: %w", name, err)
		}
		return a, nil
	}

	w, err := step("writer", WriterInstructions)
	if err != nil {
		return nil, err
	}

	r, err := step("reviewer", ReviewerInstructions)
	if err != nil {
		return nil, err
	}

	return agents.Sequential(opts.Name, opts.Description, w, r), nil
}
