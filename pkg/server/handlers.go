package server

import (
	"errors"
	"net/http"

	"github.com/jplck/mf-samples-with-speckit/pkg/agents"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	list := s.agents.Agents()
	if list == nil {
		list = []agents.Entry{}
	}
	writeJSON(w, http.StatusOK, agentsResponse{Agents: list})
}

// handleResponse runs the agent once. Every finished run answers 200; the
// outcome kind is reported in status.
func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req runRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	ctx, cancel := s.runContext(r.Context())
	defer cancel()

	resp := a.Run(ctx, req.Input)

	s.log.Info("agent run", "agent", a.Name(), "status", resp.Outcome.Kind, "turns", resp.Outcome.Turns)

	writeJSON(w, http.StatusOK, newRunResponse(resp))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (agents.Agent, bool) {
	name := r.PathValue("name")

	a, err := s.agents.Agent(name)
	if err != nil {
		if errors.Is(err, agents.ErrUnknownAgent) {
			writeError(w, http.StatusNotFound, errorCodeNotFound, "unknown agent "+name)
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, err.Error())
		return nil, false
	}
	return a, true
}
