package handlers

import (
	"net/http"

	"github.com/cloudterm/console/internal/crypto"
	"github.com/go-chi/chi/v5"
)

type hostSummary struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Secret      string `json:"secret,omitempty"`
	Encrypted   bool   `json:"encrypted"`
	Description string `json:"description,omitempty"`
}

// ListHosts returns the connectable host profiles from the directory.
// Secrets are masked, never serialized in full.
func ListHosts(w http.ResponseWriter, r *http.Request) {
	hosts := Dir.Hosts()
	resp := make([]hostSummary, len(hosts))
	for i, h := range hosts {
		resp[i] = hostSummary{
			Name:        h.Name,
			Host:        h.Host,
			Port:        h.Port,
			Username:    h.Username,
			Secret:      crypto.Mask(h.Secret),
			Encrypted:   h.Encrypted,
			Description: h.Description,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hosts": resp,
	})
}

// ListClusters returns the ids of configured clusters.
func ListClusters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clusters": Dir.ClusterIDs(),
	})
}

// ListClusterPods returns pod summaries for the target picker. The
// namespace query parameter narrows the listing; empty means all
// namespaces.
func ListClusterPods(w http.ResponseWriter, r *http.Request) {
	clusterID := chi.URLParam(r, "cluster")
	if clusterID == "" {
		writeError(w, http.StatusBadRequest, "Cluster ID required")
		return
	}

	pods, err := Dir.ListPods(r.Context(), clusterID, r.URL.Query().Get("namespace"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pods": pods,
	})
}
