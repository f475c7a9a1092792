package webapi

import (
	"encoding/json"
	"net/http"

	"github.com/jdt2/agents-in-the-loop/pkg/query"
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

// Error writes a classified JSON error response.
func Error(w http.ResponseWriter, kind query.Kind, message, sessionID string) {
	var body errorBody
	body.Error.Kind = string(kind)
	body.Error.Message = message
	body.SessionID = sessionID
	JSON(w, statusForKind(kind), body)
}

// statusForKind maps an error kind onto an HTTP status code. Cancellation has
// no dedicated status; it reports 500 and the kind carries the detail.
func statusForKind(kind query.Kind) int {
	switch kind {
	case query.KindInvalidInput:
		return http.StatusBadRequest
	case query.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case query.KindUpstreamError:
		return http.StatusBadGateway
	case query.KindTimeout:
		return http.StatusGatewayTimeout
	case query.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
