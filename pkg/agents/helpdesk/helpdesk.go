// Package helpdesk implements an employee help desk: an orchestrator that
// delegates to an HR specialist and a technical support specialist, both
// exposed to it as tools.
package helpdesk

import (
	"context"
	"fmt"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

const (
	DefaultName        = "helpdesk"
	DefaultDescription = "Routes employee requests to HR and technical support specialists."

	OrchestratorInstructions = "Your task is to route prompts and tasks to specialized agents based on user prompts and inquiries. " +
		"Your agents are connected as tools. Plan your steps carefully and use the available tools to delegate tasks appropriately."

	HRInstructions = "You are an HR specialist agent that handles all employee related questions and tasks. " +
		"Use your tools to fetch user profiles and other related information as needed."

	TechSupportInstructions = "You are a technical support specialist agent that assists with IT-related issues and requests. " +
		"This might be hardware or software problems, network issues, general IT support, and hardware procurement requests."
)

// VacationInput are the arguments of the vacation_request tool.
type VacationInput struct {
	FromDate string `json:"from_date" jsonschema:"first day of the vacation"`
	ToDate   string `json:"to_date" jsonschema:"last day of the vacation"`
	Reason   string `json:"reason" jsonschema:"reason for the vacation"`
}

// ProfileInput are the arguments of the user_profile tool.
type ProfileInput struct {
	UserID string `json:"user_id" jsonschema:"id of the user"`
}

func requestVacation(_ context.Context, in VacationInput) (string, error) {
	return fmt.Sprintf("Vacation set from %s to %s for reason: %s", in.FromDate, in.ToDate, in.Reason), nil
}

func userProfile(_ context.Context, in ProfileInput) (string, error) {
	return fmt.Sprintf("User profile for %s: Name: John Doe, Role: Software Engineer, Department: IT", in.UserID), nil
}

// HRTools returns the tools of the HR specialist.
func HRTools() *toolbox.ToolBox {
	return toolbox.New().MustRegister(
		toolbox.MustTypedTool("vacation_request", "Generates a vacation request.", requestVacation),
		toolbox.MustTypedTool("user_profile",
			"Returns the user profile of the currently logged-in user including full name, role and department.", userProfile),
	)
}

// Options configures the help desk.
type Options struct {
	Name        string
	Description string
	MaxTurns    int
	OnEvent     conversation.EventHandler
	Middleware  []conversation.Middleware
}

func (o Options) agent(name, description, instructions string, tools *toolbox.ToolBox) agents.Options {
	return agents.Options{
		Name:         name,
		Description:  description,
		Instructions: instructions,
		Tools:        tools,
		MaxTurns:     o.MaxTurns,
		OnEvent:      o.OnEvent,
		Middleware:   o.Middleware,
	}
}

// NewHRSpecialist creates the HR specialist.
func NewHRSpecialist(completer modeladapter.Completer, opts Options) (*agents.ConversationAgent, error) {
	return agents.New(completer, opts.agent("hr-specialist",
		"Handles all employee related questions and tasks.", HRInstructions, HRTools()))
}

// NewTechSupportSpecialist creates the technical support specialist.
func NewTechSupportSpecialist(completer modeladapter.Completer, opts Options) (*agents.ConversationAgent, error) {
	return agents.New(completer, opts.agent("tech-support-specialist",
		"Assists with IT-related issues and requests.", TechSupportInstructions, nil))
}

// New creates the orchestrator with both specialists as tools.
func New(completer modeladapter.Completer, opts Options) (*agents.ConversationAgent, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Description == "" {
		opts.Description = DefaultDescription
	}

	hr, err := NewHRSpecialist(completer, opts)
	if err != nil {
		return nil, fmt.Errorf("helpdesk: %w", err)
	}

	tech, err := NewTechSupportSpecialist(completer, opts)
	if err != nil {
		return nil, fmt.Errorf("helpdesk: %w", err)
	}

	hrTool, err := agents.AsTool(agents.Static(hr), agents.ToolSpec{
		Name:           "HRSpecialist",
		Description:    "Handles all employee related questions and tasks.",
		ArgName:        "prompt",
		ArgDescription: "The onboarding or offboarding request details.",
	})
	if err != nil {
		return nil, fmt.Errorf("helpdesk: %w", err)
	}

	techTool, err := agents.AsTool(agents.Static(tech), agents.ToolSpec{
		Name:           "TechSupportSpecialist",
		Description:    "Assists with IT-related issues and requests.",
		ArgName:        "issue",
		ArgDescription: "The IT issue or request details.",
	})
	if err != nil {
		return nil, fmt.Errorf("helpdesk: %w", err)
	}

	tools := toolbox.New()
	if err := tools.Register(hrTool, techTool); err != nil {
		return nil, fmt.Errorf("helpdesk: %w", err)
	}

	return agents.New(completer, agents.Options{
		Name:          opts.Name,
		Description:   opts.Description,
		Instructions:  OrchestratorInstructions,
		Tools:         tools,
		MaxTurns:      opts.MaxTurns,
		ParallelTools: true,
		OnEvent:       opts.OnEvent,
		Middleware:    opts.Middleware,
	})
}
