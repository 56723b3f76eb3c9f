package httpapi

import (
	"encoding/json"
	"net/http"

	"jobtrack-engine/internal/secrets"
)

type SecretsHandler struct {
	// Account is the keyring entry for the configured mailbox identity,
	// resolved once at startup from the environment.
	Account string
}

type setMailPasswordReq struct {
	Password string `json:"password"`
}

func (h SecretsHandler) SetMailPassword(w http.ResponseWriter, r *http.Request) {
	var req setMailPasswordReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if h.Account == "" {
		http.Error(w, "mailbox identity not configured (set EMAIL_ADDRESS and IMAP_SERVER)", http.StatusConflict)
		return
	}
	if err := secrets.SetMailPassword(h.Account, req.Password); err != nil {
		http.Error(w, "failed to store password: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
