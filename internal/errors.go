package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel domain errors. All are recoverable at the handler boundary.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotReturnable     = errors.New("item is not returnable")
)

// ValidationError signals bad input shape or range.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientStockError carries the actual remaining quantity so the
// caller can report it.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: only %d available, but %d requested", e.Available, e.Requested)
}

// apiError is the JSON error envelope returned to clients.
type apiError struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps a domain error onto an HTTP status and JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	var ve *ValidationError
	var ise *InsufficientStockError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, apiError{Error: ve.Msg})
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, apiError{Error: ise.Error(), Available: &ise.Available})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "not found"})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, apiError{Error: err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, ErrNotReturnable):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
	}
}
