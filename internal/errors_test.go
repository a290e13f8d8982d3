package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation error", validationErrorf("name is required"), http.StatusBadRequest},
		{"insufficient stock", &InsufficientStockError{Available: 2, Requested: 5}, http.StatusConflict},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load item: %w", ErrNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"invalid transition", ErrInvalidTransition, http.StatusConflict},
		{"not returnable", ErrNotReturnable, http.StatusConflict},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Expected JSON content type, got %q", ct)
			}

			var body apiError
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode error body: %v", err)
			}
			if body.Error == "" {
				t.Error("Expected error message in body")
			}
		})
	}
}

func TestWriteErrorInsufficientStockBody(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, &InsufficientStockError{Available: 3, Requested: 10})

	var body apiError
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body.Available == nil || *body.Available != 3 {
		t.Errorf("Expected available=3 in body, got %v", body.Available)
	}
}
