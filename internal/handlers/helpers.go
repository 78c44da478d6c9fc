package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cloudterm/console/internal/bridge"
	"github.com/cloudterm/console/internal/directory"
)

// SessionBridge and Dir are set from main.go during init.
var (
	SessionBridge *bridge.Bridge
	Dir           *directory.Directory
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
