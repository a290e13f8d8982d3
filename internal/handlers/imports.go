package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
	"nexus-inventory-api/pkg/importer"
)

// ImportsHandler handles Excel catalog import operations
type ImportsHandler struct {
	DB       *pgxpool.Pool
	MaxBytes int64
}

// NewImportsHandler creates a new imports handler
func NewImportsHandler(db *pgxpool.Pool) *ImportsHandler {
	return &ImportsHandler{
		DB:       db,
		MaxBytes: 20 << 20, // 20 MB
	}
}

// UploadExcel handles Excel file uploads for item catalog import
func (h *ImportsHandler) UploadExcel(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes)

	if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
		http.Error(w, "content-type must be multipart/form-data", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		http.Error(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}

	dryRun := r.FormValue("dry_run") == "true"
	maxErrors := 50
	if v := r.FormValue("max_errors"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxErrors = n
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !isXLSX(header) {
		http.Error(w, "only .xlsx files are accepted", http.StatusBadRequest)
		return
	}

	sum, impErr := importer.ImportExcel(r.Context(), h.DB, file, importer.ImportOptions{
		DryRun:    dryRun,
		MaxErrors: maxErrors,
	})
	if impErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "IMPORT_FAILED",
			"details": impErr.Error(),
			"data":    sum, // might include partial counts
		})
		return
	}

	if !dryRun {
		h.recordImportAudit(r.Context(), sum)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": sum,
		"meta": map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
		},
	})
}

// recordImportAudit writes one audit trail entry for a committed import.
// Best effort; a failure never undoes the import.
func (h *ImportsHandler) recordImportAudit(ctx context.Context, sum importer.ImportSummary) {
	actorID := auth.UserIDFromContext(ctx)
	var userID *int64
	username := ""
	if actorID > 0 {
		userID = &actorID
		if err := h.DB.QueryRow(ctx,
			`SELECT username FROM users WHERE id = $1`, actorID).Scan(&username); err != nil {
			username = ""
		}
	}

	details := fmt.Sprintf("%d inserted, %d updated, %d skipped, %d error(s)",
		sum.Inserted, sum.Updated, sum.Skipped, sum.Errors)
	if _, err := h.DB.Exec(ctx, `
		INSERT INTO audit_logs (action, user_id, username, details)
		VALUES ($1, $2, $3, $4)`,
		models.AuditImport, userID, username, details); err != nil {
		log.Printf("import audit entry failed (actor=%d): %v", actorID, err)
	}
}

// isXLSX checks if the uploaded file is an Excel .xlsx file
func isXLSX(h *multipart.FileHeader) bool {
	return strings.HasSuffix(strings.ToLower(h.Filename), ".xlsx")
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
