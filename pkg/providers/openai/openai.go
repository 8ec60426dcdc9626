// Package openai provides a Completer implementation for the OpenAI Chat
// Completions API and for Azure OpenAI deployments of it.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jplck/mf-samples-with-speckit/pkg/chats/chat"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/content"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/message"
	"github.com/jplck/mf-samples-with-speckit/pkg/chats/role"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter"
	"github.com/jplck/mf-samples-with-speckit/pkg/modeladapter/usage"
	"github.com/jplck/mf-samples-with-speckit/pkg/tools/toolbox"
)

const (
	completionsPath = "/v1/chat/completions"

	// DefaultAzureAPIVersion is used when NewAzure is given no API version.
	DefaultAzureAPIVersion = "2024-10-21"
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Adapter implements modeladapter.Completer for the OpenAI Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter

	// JSONMode asks the API for a JSON object response
	// (response_format json_object). Only set it for agents whose final
	// answer is structured.
	JSONMode bool

	path string
}

// New creates an Adapter configured for the OpenAI API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{path: completionsPath}
	a.BaseURL = baseURL
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.MaxTokens = 4096

	return a
}

// NewAzure creates an Adapter for an Azure OpenAI deployment. endpoint is the
// resource endpoint (e.g. "https://my-resource.openai.azure.com"); requests go
// to /openai/deployments/{deployment}/chat/completions with the api-key header.
func NewAzure(endpoint, apiKey, deployment, apiVersion string) *Adapter {
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	a := &Adapter{
		path: "/openai/deployments/" + url.PathEscape(deployment) +
			"/chat/completions?api-version=" + url.QueryEscape(apiVersion),
	}
	a.BaseURL = strings.TrimRight(endpoint, "/")
	a.Auth = modeladapter.Auth{Key: apiKey, Header: "api-key"}
	a.Name = deployment
	a.MaxTokens = 4096

	return a
}

// Complete sends a conversation to the Chat Completions API and returns
// the assistant's reply. The reply carries its token usage under
// usage.MetadataKey.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	req := a.buildRequest(c, tools)

	var resp apiResponse
	if err := a.PostJSON(ctx, a.path, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}

	tc := usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	a.Usage.Add(tc)

	if len(resp.Choices) == 0 {
		return message.Message{}, fmt.Errorf("openai: %w", &modeladapter.MalformedOutputError{Reason: "empty choices in response"})
	}

	msg, err := a.parseChoice(resp.Choices[0])
	if err != nil {
		return message.Message{}, fmt.Errorf("openai: %w", err)
	}

	return msg.WithMeta(usage.MetadataKey, tc), nil
}

// --- request types ---

type apiRequest struct {
	Model          string             `json:"model,omitempty"`
	Messages       []apiMessage       `json:"messages"`
	MaxTokens      int                `json:"max_tokens,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	Tools          []apiToolDef       `json:"tools,omitempty"`
	ResponseFormat *apiResponseFormat `json:"response_format,omitempty"`
}

type apiResponseFormat struct {
	Type string `json:"type"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    *string       `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiToolFunction `json:"function"`
}

type apiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role      string        `json:"role"`
	Content   *string       `json:"content"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		Model:     a.Name,
		MaxTokens: a.MaxTokens,
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.Temperature = &t
	}

	if a.JSONMode {
		req.ResponseFormat = &apiResponseFormat{Type: "json_object"}
	}

	if len(tools) > 0 {
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			schema := t.InputSchema
			if schema == nil {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			req.Tools[i] = apiToolDef{
				Type: "function",
				Function: apiToolDefFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  schema,
				},
			}
		}
	}

	c.Each(func(_ int, m message.Message) bool {
		req.Messages = appendMessages(req.Messages, m)
		return true
	})

	return req
}

func appendMessages(msgs []apiMessage, m message.Message) []apiMessage {
	switch m.Role {
	case role.System, role.User:
		text := m.TextContent()
		return append(msgs, apiMessage{Role: m.Role.String(), Content: &text})

	case role.Assistant:
		msg := apiMessage{Role: "assistant"}

		if text := m.TextContent(); text != "" {
			msg.Content = &text
		}

		for _, tc := range m.ToolCalls() {
			msg.ToolCalls = append(msg.ToolCalls, apiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: apiToolFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		return append(msgs, msg)

	case role.Tool:
		for _, tr := range m.ToolResults() {
			text := tr.Content
			if tr.IsError {
				text = "error: " + text
			}
			msgs = append(msgs, apiMessage{
				Role:       "tool",
				Content:    &text,
				ToolCallID: tr.ToolCallID,
			})
		}
	}

	return msgs
}

func (a *Adapter) parseChoice(choice apiChoice) (message.Message, error) {
	var parts []content.Part

	if choice.Message.Content != nil && *choice.Message.Content != "" {
		parts = append(parts, content.Text{Text: *choice.Message.Content})
	}

	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			return message.Message{}, &modeladapter.MalformedOutputError{Reason: fmt.Sprintf("unsupported tool call type %q", tc.Type)}
		}
		parts = append(parts, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return message.New(a.Name, role.Assistant, parts...), nil
}
