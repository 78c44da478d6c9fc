package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cloudterm/console/internal/crypto"
)

// EncryptSecret encrypts a plaintext secret with the server key. The
// returned ciphertext is what an operator pastes into a directory host
// profile with encrypted: true.
func EncryptSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "Secret required")
		return
	}

	encrypted, err := crypto.Encrypt(req.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Encryption failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"encrypted": encrypted,
		"masked":    crypto.Mask(req.Secret),
	})
}
