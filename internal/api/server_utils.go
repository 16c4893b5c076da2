package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
)

const maxBodyBytes = 1 << 20

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDebridError maps the error taxonomy onto HTTP statuses.
func writeDebridError(w http.ResponseWriter, err error) {
	kind := debrid.Kind(err)
	status := http.StatusBadGateway
	switch kind {
	case "invalid_input":
		status = http.StatusBadRequest
	case "not_found":
		status = http.StatusNotFound
	case "cancelled":
		status = http.StatusConflict
	}
	if errors.Is(err, debrid.ErrNotAuthenticated) {
		status = http.StatusUnauthorized
		kind = "not_authenticated"
	}
	writeError(w, status, kind, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}
