package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"

	"nexus-inventory-api/internal/models"
)

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// headerAliases maps each canonical column to the spellings accepted in
// spreadsheet headers. Matching is case-insensitive.
var headerAliases = map[string][]string{
	"name":                 {"NAME", "ITEM", "ITEM NAME"},
	"category":             {"CATEGORY", "TYPE"},
	"quantity":             {"QUANTITY", "QTY", "COUNT", "STOCK"},
	"location":             {"LOCATION", "ROOM", "STORAGE"},
	"description":          {"DESCRIPTION", "NOTES", "REMARKS"},
	"access_level":         {"ACCESS LEVEL", "ACCESS", "MIN ROLE"},
	"is_returnable":        {"RETURNABLE", "IS RETURNABLE", "RETURN"},
	"borrow_duration":      {"BORROW DURATION", "DURATION", "LOAN PERIOD"},
	"borrow_duration_unit": {"DURATION UNIT", "UNIT", "PERIOD UNIT"},
}

type itemRow struct {
	Name           string
	Category       string
	Quantity       int
	Location       string
	Description    string
	AccessLevel    string
	IsReturnable   bool
	BorrowDuration *int
	BorrowUnit     string
}

// ImportExcel reads an item catalog spreadsheet and upserts rows by
// item name. A dry run walks every row and reports what would happen
// without writing anything.
func ImportExcel(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	// xlsx needs an io.ReaderAt, so buffer the upload first
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer conn.Release()

	for _, sheet := range xlFile.Sheets {
		sheetSummary := processSheet(ctx, conn, sheet, opts)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		summary.Inserted += sheetSummary.Inserted
		summary.Updated += sheetSummary.Updated
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}

	return summary, nil
}

func processSheet(ctx context.Context, conn *pgxpool.Conn, sheet *xlsx.Sheet, opts ImportOptions) SheetSummary {
	summary := SheetSummary{Name: sheet.Name}

	headerRow, err := sheet.Row(0)
	if err != nil {
		summary.Errors++
		summary.Samples = append(summary.Samples, RowError{
			Sheet:   sheet.Name,
			Row:     1,
			Message: "Failed to read header row: " + err.Error(),
		})
		return summary
	}

	// Map canonical field -> column index via the alias table
	fieldCols := make(map[string]int)
	for colIdx := 0; colIdx < sheet.MaxCol; colIdx++ {
		cell := headerRow.GetCell(colIdx)
		if cell == nil {
			continue
		}
		headerName := strings.ToUpper(strings.TrimSpace(cell.String()))
		if headerName == "" {
			continue
		}
		for field, aliases := range headerAliases {
			for _, alias := range aliases {
				if alias == headerName {
					if _, taken := fieldCols[field]; !taken {
						fieldCols[field] = colIdx
					}
				}
			}
		}
	}

	// A sheet without a recognizable name column is not a catalog sheet
	if _, ok := fieldCols["name"]; !ok {
		return summary
	}

	for rowIdx := 1; rowIdx < sheet.MaxRow; rowIdx++ {
		row, err := sheet.Row(rowIdx)
		if err != nil {
			break
		}

		cellAt := func(field string) string {
			idx, ok := fieldCols[field]
			if !ok {
				return ""
			}
			cell := row.GetCell(idx)
			if cell == nil {
				return ""
			}
			return strings.TrimSpace(cell.String())
		}

		if cellAt("name") == "" {
			summary.Skipped++
			continue
		}

		item, err := buildItemRow(cellAt)
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			continue
		}

		existingID, err := findExistingItem(ctx, conn, item.Name)
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			continue
		}

		if existingID > 0 {
			if !opts.DryRun {
				if err := updateItem(ctx, conn, existingID, item); err != nil {
					summary.Errors++
					summary.Samples = append(summary.Samples, RowError{
						Sheet:   sheet.Name,
						Row:     rowIdx + 1,
						Message: err.Error(),
					})
					continue
				}
			}
			summary.Updated++
		} else {
			if !opts.DryRun {
				if err := insertItem(ctx, conn, item); err != nil {
					summary.Errors++
					summary.Samples = append(summary.Samples, RowError{
						Sheet:   sheet.Name,
						Row:     rowIdx + 1,
						Message: err.Error(),
					})
					continue
				}
			}
			summary.Inserted++
		}
	}

	return summary
}

func buildItemRow(cellAt func(string) string) (itemRow, error) {
	item := itemRow{
		Name:         cellAt("name"),
		Category:     models.CategoryOther,
		Quantity:     1,
		Location:     cellAt("location"),
		Description:  cellAt("description"),
		AccessLevel:  string(models.RoleStudent),
		IsReturnable: true,
		BorrowUnit:   models.UnitDays,
	}

	if v := cellAt("category"); v != "" {
		category := strings.ToUpper(v)
		if !models.IsValidCategory(category) {
			return item, fmt.Errorf("invalid category %q", v)
		}
		item.Category = category
	}
	if v := cellAt("quantity"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return item, fmt.Errorf("invalid quantity %q", v)
		}
		item.Quantity = n
	}
	if v := cellAt("access_level"); v != "" {
		level := strings.ToUpper(v)
		if !models.IsValidRole(level) {
			return item, fmt.Errorf("invalid access level %q", v)
		}
		item.AccessLevel = level
	}
	if v := cellAt("is_returnable"); v != "" {
		item.IsReturnable = parseBool(v)
	}
	if v := cellAt("borrow_duration"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return item, fmt.Errorf("invalid borrow duration %q", v)
		}
		item.BorrowDuration = &n
	}
	if v := cellAt("borrow_duration_unit"); v != "" {
		unit := strings.ToUpper(v)
		if !models.IsValidDurationUnit(unit) {
			return item, fmt.Errorf("invalid duration unit %q", v)
		}
		item.BorrowUnit = unit
	}

	return item, nil
}

func parseBool(v string) bool {
	v = strings.ToLower(v)
	return v == "yes" || v == "y" || v == "true" || v == "1"
}

// findExistingItem resolves the natural key: item names are unique
// within the catalog.
func findExistingItem(ctx context.Context, conn *pgxpool.Conn, name string) (int64, error) {
	var id int64
	err := conn.QueryRow(ctx,
		`SELECT id FROM inventory_items WHERE lower(name) = lower($1)`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

func insertItem(ctx context.Context, conn *pgxpool.Conn, item itemRow) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO inventory_items
			(name, category, quantity, status, location, description,
			 access_level, is_returnable, borrow_duration, borrow_duration_unit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.Name, item.Category, item.Quantity, models.ItemAvailable,
		item.Location, item.Description, item.AccessLevel, item.IsReturnable,
		item.BorrowDuration, item.BorrowUnit)
	return err
}

// updateItem refreshes descriptive fields from the sheet. Quantity is
// overwritten too: the spreadsheet is the source of truth during a
// catalog refresh, so imports should not run while requests are open
// against the items being refreshed.
func updateItem(ctx context.Context, conn *pgxpool.Conn, id int64, item itemRow) error {
	_, err := conn.Exec(ctx, `
		UPDATE inventory_items
		SET category = $2, quantity = $3, location = $4, description = $5,
		    access_level = $6, is_returnable = $7, borrow_duration = $8,
		    borrow_duration_unit = $9, updated_at = now()
		WHERE id = $1`,
		id, item.Category, item.Quantity, item.Location, item.Description,
		item.AccessLevel, item.IsReturnable, item.BorrowDuration, item.BorrowUnit)
	return err
}
