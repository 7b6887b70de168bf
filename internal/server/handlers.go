package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/telcobridge/telcobridge/internal/broker"
	"github.com/telcobridge/telcobridge/internal/keys"
)

// maxRoutingKeyDigits bounds len(mcc)+len(sn), matching the E.164 number
// length limit
const maxRoutingKeyDigits = 15

type handlers struct {
	issuer   Issuer
	material *keys.Material
	logger   *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

// token handles POST /api/demo/token: mcc and sn arrive as query parameters,
// the authorization code as a form field
func (h *handlers) token(w http.ResponseWriter, r *http.Request) {
	mcc := r.URL.Query().Get("mcc")
	sn := r.URL.Query().Get("sn")

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	authCode := r.PostFormValue("auth_code")

	if msg := validateRequest(mcc, sn, authCode); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.issuer.Issue(r.Context(), broker.Request{
		MCC:      mcc,
		SN:       sn,
		AuthCode: authCode,
	})
	if err != nil {
		h.writeIssueError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res.Token)
}

// jwks serves the broker's public verification keys
func (h *handlers) jwks(w http.ResponseWriter, r *http.Request) {
	if h.material == nil {
		writeJSON(w, http.StatusOK, map[string]any{"keys": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, h.material.JWKS())
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateRequest returns an empty string when the request is well formed
func validateRequest(mcc, sn, authCode string) string {
	if mcc == "" || len(mcc) > 3 || !allDigits(mcc) {
		return "mcc must be 1 to 3 digits"
	}
	if sn == "" || !allDigits(sn) {
		return "sn must be digits"
	}
	if len(mcc)+len(sn) > maxRoutingKeyDigits {
		return "mcc and sn exceed the maximum subscriber number length"
	}
	if authCode == "" {
		return "auth_code is required"
	}
	return ""
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// writeIssueError maps broker errors onto HTTP statuses. Anything outside
// the known taxonomy is an opaque 500; detail stays in the logs.
func (h *handlers) writeIssueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, broker.ErrNoRoute):
		writeError(w, http.StatusBadRequest, "no provider found for subscriber")

	case errors.Is(err, broker.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "authorization code rejected")

	case errors.Is(err, broker.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider temporarily unavailable")

	default:
		h.logger.ErrorContext(r.Context(), "token issuance failed",
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already written; nothing left to do
		return
	}
}
