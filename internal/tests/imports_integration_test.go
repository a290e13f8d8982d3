//go:build integration

package tests

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tealeg/xlsx/v3"

	"nexus-inventory-api/internal/models"
	"nexus-inventory-api/internal/testutil"
)

// buildCatalogWorkbook produces a minimal .xlsx catalog sheet.
func buildCatalogWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Items")
	if err != nil {
		t.Fatalf("Failed to add sheet: %v", err)
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatalf("Failed to write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadWorkbook(t *testing.T, token string, workbook []byte, dryRun bool) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if dryRun {
		writer.WriteField("dry_run", "true")
	}
	fileWriter, err := writer.CreateFormFile("file", "catalog.xlsx")
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	fileWriter.Write(workbook)
	writer.Close()

	req := httptest.NewRequest("POST", "/imports/excel", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	testServer.Router.ServeHTTP(w, req)
	return w
}

func TestImportExcelCatalog(t *testing.T) {
	testutil.RequireIntegration(t)

	staffID := createUser(t, "import-staff@test.edu", models.RoleStaff)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	workbook := buildCatalogWorkbook(t, [][]string{
		{"Name", "Category", "Quantity", "Location"},
		{"Imported Soldering Iron", "EQUIPMENT", "4", "Lab B"},
		{"Imported HDMI Cable", "ELECTRONICS", "12", "Front desk"},
	})

	w := uploadWorkbook(t, staffToken, workbook, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var name string
	var quantity int
	err := testDB.QueryRow(`
		SELECT name, quantity FROM inventory_items WHERE name = 'Imported Soldering Iron'`).Scan(&name, &quantity)
	if err != nil {
		t.Fatalf("Expected the imported item to exist: %v", err)
	}
	if quantity != 4 {
		t.Errorf("Expected quantity 4, got %d", quantity)
	}

	// A committed import leaves an audit trail entry
	var audits int
	err = testDB.QueryRow(`
		SELECT COUNT(*) FROM audit_logs WHERE action = $1 AND user_id = $2`,
		models.AuditImport, staffID).Scan(&audits)
	if err != nil {
		t.Fatalf("Failed to count audit entries: %v", err)
	}
	if audits != 1 {
		t.Errorf("Expected 1 import audit entry, got %d", audits)
	}

	// Re-importing the same sheet updates by name instead of duplicating
	w = uploadWorkbook(t, staffToken, workbook, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 on re-import, got %d: %s", w.Code, w.Body.String())
	}
	var count int
	if err := testDB.QueryRow(`
		SELECT COUNT(*) FROM inventory_items WHERE name = 'Imported Soldering Iron'`).Scan(&count); err != nil {
		t.Fatalf("Failed to count items: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row after re-import, got %d", count)
	}
}

func TestImportExcelDryRun(t *testing.T) {
	testutil.RequireIntegration(t)

	staffID := createUser(t, "import-dry-staff@test.edu", models.RoleStaff)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	workbook := buildCatalogWorkbook(t, [][]string{
		{"Name", "Quantity"},
		{"Dry Run Label Maker", "2"},
	})

	w := uploadWorkbook(t, staffToken, workbook, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var exists bool
	if err := testDB.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM inventory_items WHERE name = 'Dry Run Label Maker')`).Scan(&exists); err != nil {
		t.Fatalf("Failed to check item: %v", err)
	}
	if exists {
		t.Error("A dry run must not write catalog rows")
	}

	var audits int
	if err := testDB.QueryRow(`
		SELECT COUNT(*) FROM audit_logs WHERE action = $1 AND user_id = $2`,
		models.AuditImport, staffID).Scan(&audits); err != nil {
		t.Fatalf("Failed to count audit entries: %v", err)
	}
	if audits != 0 {
		t.Errorf("A dry run must not record an audit entry, got %d", audits)
	}
}

func TestImportExcelRequiresStaff(t *testing.T) {
	testutil.RequireIntegration(t)

	studentID := createUser(t, "import-student@test.edu", models.RoleStudent)
	workbook := buildCatalogWorkbook(t, [][]string{{"Name"}, {"Student Import Attempt"}})

	w := uploadWorkbook(t, makeToken(t, studentID, models.RoleStudent), workbook, false)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}
