package handlers

import (
	"net/http"
	"strconv"

	"github.com/cloudterm/console/internal/database"
)

// ListSessionAudit returns the most recent session open/close events,
// newest first.
func ListSessionAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := database.ListSessionEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load audit trail")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
