package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"nexus-inventory-api/pkg/importer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportsHandler_UploadExcel(t *testing.T) {
	// Validation paths never touch the pool, so nil is fine here
	handler := &ImportsHandler{
		DB:       nil,
		MaxBytes: 20 << 20,
	}

	t.Run("Rejects non-multipart content type", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/imports/excel", nil)
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		handler.UploadExcel(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "content-type must be multipart/form-data")
	})

	t.Run("Rejects missing file", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.Close()

		req := httptest.NewRequest("POST", "/imports/excel", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		w := httptest.NewRecorder()
		handler.UploadExcel(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "file is required")
	})

	t.Run("Rejects non-xlsx file", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)

		fileWriter, _ := writer.CreateFormFile("file", "catalog.xls")
		fileWriter.Write([]byte("fake excel content"))
		writer.Close()

		req := httptest.NewRequest("POST", "/imports/excel", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		w := httptest.NewRecorder()
		handler.UploadExcel(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "only .xlsx files are accepted")
	})

	t.Run("Unreadable workbook passes validation but fails import", func(t *testing.T) {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		writer.WriteField("dry_run", "true")

		fileWriter, _ := writer.CreateFormFile("file", "catalog.xlsx")
		fileWriter.Write([]byte("fake excel content"))
		writer.Close()

		req := httptest.NewRequest("POST", "/imports/excel", body)
		req.Header.Set("Content-Type", writer.FormDataContentType())

		w := httptest.NewRecorder()
		handler.UploadExcel(w, req)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "IMPORT_FAILED")
	})
}

func TestIsXLSX(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		expected bool
	}{
		{"Valid xlsx", "catalog.xlsx", true},
		{"Valid xlsx uppercase", "CATALOG.XLSX", true},
		{"Valid xlsx mixed case", "Catalog.XlSx", true},
		{"Invalid xls", "catalog.xls", false},
		{"Invalid xlsm", "catalog.xlsm", false},
		{"Invalid txt", "catalog.txt", false},
		{"No extension", "catalog", false},
		{"Empty filename", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := &multipart.FileHeader{
				Filename: tt.filename,
			}
			result := isXLSX(header)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	t.Run("Writes JSON response", func(t *testing.T) {
		w := httptest.NewRecorder()
		data := map[string]interface{}{
			"message": "test",
			"count":   42,
		}

		writeJSON(w, http.StatusOK, data)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response map[string]interface{}
		err := json.Unmarshal(w.Body.Bytes(), &response)
		require.NoError(t, err)
		assert.Equal(t, "test", response["message"])
		assert.Equal(t, float64(42), response["count"])
	})
}

// Mock test for the importer library
func TestImporterLibrary(t *testing.T) {
	t.Run("ImportOptions validation", func(t *testing.T) {
		opts := importer.ImportOptions{
			DryRun:    true,
			MaxErrors: 50,
		}

		assert.True(t, opts.DryRun)
		assert.Equal(t, 50, opts.MaxErrors)
	})

	t.Run("RowError structure", func(t *testing.T) {
		rowErr := importer.RowError{
			Sheet:   "Items",
			Row:     5,
			Message: "quantity must be a whole number",
		}

		assert.Equal(t, "Items", rowErr.Sheet)
		assert.Equal(t, 5, rowErr.Row)
		assert.Equal(t, "quantity must be a whole number", rowErr.Message)
	})

	t.Run("SheetSummary structure", func(t *testing.T) {
		summary := importer.SheetSummary{
			Name:     "Items",
			Inserted: 10,
			Updated:  5,
			Skipped:  2,
			Errors:   1,
			Samples: []importer.RowError{
				{Sheet: "Items", Row: 5, Message: "Test error"},
			},
		}

		assert.Equal(t, "Items", summary.Name)
		assert.Equal(t, 10, summary.Inserted)
		assert.Equal(t, 5, summary.Updated)
		assert.Equal(t, 2, summary.Skipped)
		assert.Equal(t, 1, summary.Errors)
		assert.Len(t, summary.Samples, 1)
	})

	t.Run("ImportSummary structure", func(t *testing.T) {
		summary := importer.ImportSummary{
			Inserted: 15,
			Updated:  8,
			Skipped:  3,
			Errors:   2,
			Sheets: []importer.SheetSummary{
				{Name: "Items", Inserted: 15, Updated: 8, Skipped: 3, Errors: 2},
			},
			DryRun: false,
		}

		assert.Equal(t, 15, summary.Inserted)
		assert.Equal(t, 8, summary.Updated)
		assert.Equal(t, 3, summary.Skipped)
		assert.Equal(t, 2, summary.Errors)
		assert.Len(t, summary.Sheets, 1)
		assert.False(t, summary.DryRun)
	})
}
