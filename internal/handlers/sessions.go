package handlers

import (
	"net/http"

	"github.com/cloudterm/console/internal/bridge"
	"github.com/go-chi/chi/v5"
)

type sessionSummary struct {
	ID         string `json:"id"`
	TargetKind string `json:"target_kind"`
	Target     string `json:"target"`
	State      string `json:"state"`
	CreatedAt  string `json:"created_at"`
	LastActive string `json:"last_active"`
}

// ListSessions returns all live bridge sessions.
func ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := SessionBridge.Sessions()

	resp := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		resp[i] = sessionSummary{
			ID:         s.ID,
			TargetKind: string(s.Target.Kind),
			Target:     s.Target.String(),
			State:      string(s.State()),
			CreatedAt:  s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			LastActive: s.LastActive().UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": resp,
	})
}

// CloseSession terminates a session from the REST side, for an operator
// cleaning up someone else's stuck session.
func CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}

	if _, err := SessionBridge.Lookup(sessionID); err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	SessionBridge.Terminate(sessionID, bridge.ReasonOperatorClose)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
