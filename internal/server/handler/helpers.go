// Package handler contains the HTTP handlers for the prediction market
// API. Responses always carry a success flag; failures add a short error
// code and the underlying detail.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"xrpredict/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a structured error response.
func writeError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]any{
		"success": false,
		"error":   msg,
	}
	if details != "" && details != msg {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// writeDomainError maps a service error onto the HTTP taxonomy: validation
// and precondition failures are 4xx, transfer failures are 502, everything
// unexpected is a 500 with the underlying message attached.
func writeDomainError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.target.Error(), err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal server error", err.Error())
}

// errorMappings is checked in order; more specific sentinels come first.
var errorMappings = []struct {
	target error
	status int
}{
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrResolutionInProgress, http.StatusConflict},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrTransferFailed, http.StatusBadGateway},
	{domain.ErrInvalidOption, http.StatusBadRequest},
	{domain.ErrInvalidOutcome, http.StatusBadRequest},
	{domain.ErrInvalidAmount, http.StatusBadRequest},
	{domain.ErrMissingCredential, http.StatusBadRequest},
	{domain.ErrAlreadyResolved, http.StatusBadRequest},
	{domain.ErrNoWinners, http.StatusBadRequest},
	{domain.ErrEmptyPool, http.StatusBadRequest},
	{domain.ErrRewardTooSmall, http.StatusBadRequest},
	{domain.ErrInsufficientBalance, http.StatusBadRequest},
	{domain.ErrDuplicateTransfer, http.StatusBadRequest},
}

// decodeJSON parses the request body into v, rejecting unknown trailing
// content.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// parseAmount converts the wire amount (JSON number or string, in XRP)
// into drops.
func parseAmount(raw json.Number) (domain.Drops, error) {
	if raw == "" {
		return 0, domain.ErrInvalidAmount
	}
	v, err := domain.ParseXRP(raw.String())
	if err != nil || v <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	return v, nil
}
