package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/modernreader/sensoria/internal/fault"
)

// errorBody is the JSON error envelope. Every error carries a kind from the
// taxonomy, a message, an optional hint, and a trace id for correlation.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	TraceID string `json:"trace_id"`
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	}
}

// writeError maps err onto the HTTP taxonomy. Internal errors are surfaced
// opaquely; everything else keeps its message.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	kind := fault.KindOf(err)
	body := errorBody{
		Error:   string(kind),
		TraceID: uuid.NewString(),
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		body.Message = fe.Message
		body.Hint = fe.Hint
		if fe.TraceID != "" {
			body.TraceID = fe.TraceID
		}
	} else {
		body.Message = err.Error()
	}
	if kind == fault.Internal {
		body.Message = "internal error"
		body.Hint = ""
	}

	level := slog.LevelWarn
	if kind == fault.Internal {
		level = slog.LevelError
	}
	log.Log(context.Background(), level, "request failed",
		"kind", string(kind), "trace_id", body.TraceID, "err", err)

	writeJSON(w, kind.HTTPStatus(), body)
}

// decodeJSON parses the request body into v, rejecting trailing garbage.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.InvalidArgument, err, "gateway: malformed json body")
	}
	return nil
}
