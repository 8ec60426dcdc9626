package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jplck/mf-samples-with-speckit/pkg/conversation"
)

// Frame types sent on the stream.
const (
	FrameEvent    = "event"
	FrameResponse = "response"
	FrameError    = "error"
)

// frame is one server message on the stream. Exactly one of Event,
// Response and Error is set, matching Type.
type frame struct {
	Type     string       `json:"type"`
	Event    *eventFrame  `json:"event,omitempty"`
	Response *runResponse `json:"response,omitempty"`
	Error    *apiError    `json:"error,omitempty"`
}

type eventFrame struct {
	Kind           conversation.EventKind `json:"kind"`
	Agent          string                 `json:"agent"`
	ConversationID string                 `json:"conversation_id"`
	Turn           int                    `json:"turn"`
	Time           time.Time              `json:"time"`
	Text           string                 `json:"text,omitempty"`
	ToolCall       *toolCallFrame         `json:"tool_call,omitempty"`
	ToolResult     *toolResultFrame       `json:"tool_result,omitempty"`
	Status         conversation.Kind      `json:"status,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

type toolCallFrame struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolResultFrame struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

func newEventFrame(e conversation.Event) *eventFrame {
	f := &eventFrame{
		Kind:           e.Kind,
		Agent:          e.Agent,
		ConversationID: e.ConversationID,
		Turn:           e.Turn,
		Time:           e.Timestamp,
	}
	if e.Message != nil {
		f.Text = e.Message.TextContent()
	}
	if tc := e.ToolCall; tc != nil {
		f.ToolCall = &toolCallFrame{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
	}
	if tr := e.ToolResult; tr != nil {
		f.ToolResult = &toolResultFrame{ToolCallID: tr.ToolCallID, Name: tr.Name, Content: tr.Content, IsError: tr.IsError}
	}
	if o := e.Outcome; o != nil {
		f.Status = o.Kind
		if o.Err != nil {
			f.Error = o.Err.Error()
		}
	}
	return f
}

// handleStream upgrades to a websocket. Each client message {"input": ...}
// runs the agent once; the server answers with an event frame per
// conversation event, including those of nested agents, then one response
// frame. The connection stays open for further inputs until the client
// closes it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := r.Context()

	for {
		req, err := readRequest(ctx, conn)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			if errors.Is(err, context.Canceled) {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if isDecodeError(err) {
				_ = wsjson.Write(ctx, conn, frame{Type: FrameError, Error: &apiError{Code: errorCodeInvalidRequest, Message: err.Error()}})
				continue
			}
			s.log.Debug("websocket read failed", "error", err)
			return
		}

		runCtx, cancel := s.runContext(ctx)
		runCtx = conversation.WithEvents(runCtx, func(ctx context.Context, e conversation.Event) {
			if err := wsjson.Write(ctx, conn, frame{Type: FrameEvent, Event: newEventFrame(e)}); err != nil {
				s.log.Debug("websocket write failed", "error", err)
			}
		})

		resp := a.Run(runCtx, req.Input)
		cancel()

		s.log.Info("agent stream run", "agent", a.Name(), "status", resp.Outcome.Kind, "turns", resp.Outcome.Turns)

		out := newRunResponse(resp)
		if err := wsjson.Write(ctx, conn, frame{Type: FrameResponse, Response: &out}); err != nil {
			s.log.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// readRequest reads one client message. A message that is not a valid
// request is reported as a decode error and leaves the connection usable.
func readRequest(ctx context.Context, conn *websocket.Conn) (runRequest, error) {
	var req runRequest

	_, data, err := conn.Read(ctx)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, err
	}
	return req, nil
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
