package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
)

const maxRequestBodyBytes = 1 << 20

const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeNotFound       = "not_found"
	errorCodeRuntime        = "runtime_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type runRequest struct {
	Input string `json:"input"`
}

// runResponse is the wire form of agents.Response. Output holds the JSON
// answer of structured agents; Text is always the final answer text.
type runResponse struct {
	Agent  string            `json:"agent"`
	Status conversation.Kind `json:"status"`
	Output json.RawMessage   `json:"output,omitempty"`
	Text   string            `json:"text"`
	Error  string            `json:"error,omitempty"`
	Turns  int               `json:"turns"`
	Steps  []runResponse     `json:"steps,omitempty"`
}

func newRunResponse(r agents.Response) runResponse {
	resp := runResponse{
		Agent:  r.Agent,
		Status: r.Outcome.Kind,
		Text:   r.Text,
		Turns:  r.Outcome.Turns,
	}
	if len(r.Outcome.Payload) > 0 {
		resp.Output = r.Outcome.Payload
	}
	if err := r.Err(); err != nil {
		resp.Error = err.Error()
	}
	for _, step := range r.Steps {
		resp.Steps = append(resp.Steps, newRunResponse(step))
	}
	return resp
}

type agentsResponse struct {
	Agents []agents.Entry `json:"agents"`
}

func decodeJSONBody(r *http.Request, dest any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func writeInvalidRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, errorCodeInvalidRequest, message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
