package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"whisper/internal/core/domain"
	"whisper/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a rejection onto a 4xx carrying its code. Anything else is
// logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	rej, ok := domain.AsRejection(err)
	if !ok {
		logging.FromContext(r.Context(), log).ErrorContext(r.Context(), "handler - request failed", logging.Err(err))
		writeJSON(w, http.StatusInternalServerError, domain.NewError(domain.CodeInternal, "the request could not be completed"))
		return
	}
	status := http.StatusBadRequest
	switch rej.Code {
	case domain.CodeForbidden:
		status = http.StatusForbidden
	case domain.CodeNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, domain.NewError(rej.Code, rej.Reason))
}
