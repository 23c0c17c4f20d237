// Package api provides the standardized HTTP response helpers. Errors are
// rendered as {"error": {"kind", "message", "details?"}} with the status
// derived from the error kind.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "codegraph-backend/internal/errors"
)

// Success writes a JSON response with the given status. A nil body writes
// the status only.
func Success(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error maps err onto the wire error shape. Internal errors never leak
// their message verbatim.
func Error(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	detail := errorDetail{Kind: string(kind)}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) && kind != apperrors.KindInternal {
		detail.Message = appErr.Message
		detail.Details = appErr.Details
	} else if kind == apperrors.KindCancelled || kind == apperrors.KindDeadlineExceeded {
		detail.Message = string(kind)
	} else {
		detail.Message = "internal error"
	}

	ErrorStatus(w, apperrors.HTTPStatus(kind), detail.Kind, detail.Message, detail.Details)
}

// ErrorStatus writes the wire error shape with an explicit status, for
// call sites outside the kind mapping (e.g. 503 while a breaker is open).
func ErrorStatus(w http.ResponseWriter, statusCode int, kind, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Kind:    kind,
		Message: message,
		Details: details,
	}})
}
