package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jdt2/agents-in-the-loop/pkg/query"
	"github.com/jdt2/agents-in-the-loop/pkg/transcript"
)

const maxRequestBody = 1 << 20

// handleQueryForm accepts the browser form: prompt plus an optional
// max_turns field. An absent max_turns gets the configured default; a
// present value is passed through as given, so an explicit zero is rejected
// as invalid input. Completed runs redirect to the session view; failed runs
// answer with the mapped status and carry the session id so the transcript
// stays reachable.
func (s *Server) handleQueryForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		Error(w, query.KindInvalidInput, "failed to parse form", "")
		return
	}

	prompt := strings.TrimSpace(r.PostFormValue("prompt"))

	maxTurns := s.orchestrator.DefaultTurns()
	if raw := strings.TrimSpace(r.PostFormValue("max_turns")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			Error(w, query.KindInvalidInput, "max_turns must be an integer", "")
			return
		}
		maxTurns = parsed
	}

	result, err := s.orchestrator.Submit(r.Context(), prompt, maxTurns)
	if err != nil {
		sessionID := ""
		if result != nil {
			sessionID = result.ID
		}
		Error(w, query.KindOf(err), err.Error(), sessionID)
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/session/%s", result.ID), http.StatusSeeOther)
}

// queryResponse is the JSON API success shape.
type queryResponse struct {
	Success bool                   `json:"success"`
	Session *transcript.Transcript `json:"session"`
}

// handleQueryJSON accepts a JSON query and returns the terminal transcript.
func (s *Server) handleQueryJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		Error(w, query.KindInvalidInput, "failed to read request body", "")
		return
	}

	if err := validateQueryRequest(body); err != nil {
		Error(w, query.KindInvalidInput, err.Error(), "")
		return
	}

	var req struct {
		Prompt   string `json:"prompt"`
		MaxTurns int    `json:"max_turns"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		Error(w, query.KindInvalidInput, "request body is not valid JSON", "")
		return
	}

	// The schema rejects any explicit max_turns below 1, so a zero here
	// means the field was omitted.
	maxTurns := req.MaxTurns
	if maxTurns == 0 {
		maxTurns = s.orchestrator.DefaultTurns()
	}

	result, err := s.orchestrator.Submit(r.Context(), req.Prompt, maxTurns)
	if err != nil {
		sessionID := ""
		if result != nil {
			sessionID = result.ID
		}
		Error(w, query.KindOf(err), err.Error(), sessionID)
		return
	}

	JSON(w, http.StatusOK, queryResponse{Success: true, Session: result})
}

// handleGetSession returns a session snapshot at any point in its lifecycle.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := s.orchestrator.Get(id)
	if err != nil {
		Error(w, query.KindOf(err), err.Error(), "")
		return
	}
	JSON(w, http.StatusOK, session)
}

// handleHealth reports service liveness and whether the agent backend is
// usable. The service stays healthy without credentials; queries then fail
// with service_unavailable instead.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":           "healthy",
		"service":          "agents-in-the-loop",
		"agent_configured": s.agentConfigured,
		"active_sessions":  s.store.Len(),
	})
}

// streamEvent is one websocket frame on the session stream.
type streamEvent struct {
	Type    string                 `json:"type"`
	Turn    *transcript.Turn       `json:"turn,omitempty"`
	Session *transcript.Transcript `json:"session,omitempty"`
}

// handleStream upgrades to a websocket and forwards session progress. For a
// terminal session the final frame is delivered immediately.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, cancel, err := s.store.Subscribe(id)
	if err != nil {
		Error(w, query.KindNotFound, "no such session", "")
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			frame := streamEvent{}
			switch {
			case event.Turn != nil:
				frame.Type = "turn"
				frame.Turn = event.Turn
			case event.Final != nil:
				frame.Type = "final"
				frame.Session = event.Final
			default:
				continue
			}

			if err := conn.WriteJSON(frame); err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					s.logger.Debug().Err(err).Str("session_id", id).Msg("Stream write failed")
				}
				return
			}
		}
	}
}
