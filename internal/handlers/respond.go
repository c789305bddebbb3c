package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prudhvinik1/ledgersync/internal/syncerr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":      code,
		"message":   message,
		"requestId": middleware.GetReqID(r.Context()),
	})
}

// writeSyncError maps a sync failure to a status code by its kind.
func writeSyncError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch syncerr.KindOf(err) {
	case syncerr.KindConfiguration:
		status = http.StatusConflict
	case syncerr.KindValidation:
		status = http.StatusUnprocessableEntity
	case syncerr.KindUpstream:
		status = http.StatusBadGateway
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeError(w, r, status, syncerr.KindOf(err).String(), err.Error())
}

func readRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds 1 MiB")
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", "failed to read request body")
		return nil, false
	}
	return body, true
}
