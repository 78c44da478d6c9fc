package handlers

import (
	"net/http"

	"github.com/cloudterm/console/internal/database"
)

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if database.DB != nil {
		sqlDB, err := database.DB.DB()
		if err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbStatus = "connected"
			}
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	sessions := 0
	if SessionBridge != nil {
		sessions = SessionBridge.SessionCount()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"database": dbStatus,
		"sessions": sessions,
	})
}
