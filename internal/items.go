package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

const itemColumns = `id, name, category, quantity, status, location, description,
	access_level, is_returnable, status_note, status_changed_at,
	status_changed_by, maintenance_eta, borrow_duration,
	borrow_duration_unit, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }, it *models.Item) error {
	return row.Scan(
		&it.ID, &it.Name, &it.Category, &it.Quantity, &it.Status, &it.Location,
		&it.Description, &it.AccessLevel, &it.IsReturnable, &it.StatusNote,
		&it.StatusChangedAt, &it.StatusChangedBy, &it.MaintenanceETA,
		&it.BorrowDuration, &it.BorrowUnit, &it.CreatedAt, &it.UpdatedAt,
	)
}

// accessScope returns the access levels visible to the caller's role.
func accessScope(r *http.Request) pq.StringArray {
	return pq.StringArray(auth.RoleFromContext(r.Context()).AccessibleLevels())
}

// listItems returns catalog items visible at the caller's access level,
// with search/category/status filters and pagination.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{"access_level = ANY($1)"}
	args := []interface{}{accessScope(r)}
	arg := 2

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d OR location ILIKE $%d)", arg, arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}
	if category := strings.TrimSpace(r.URL.Query().Get("category")); category != "" {
		clauses = append(clauses, fmt.Sprintf("category = $%d", arg))
		args = append(args, category)
		arg++
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", arg))
		args = append(args, status)
		arg++
	}

	sqlStr := `SELECT ` + itemColumns + `, COUNT(*) OVER() AS total_count
		FROM inventory_items WHERE ` + strings.Join(clauses, " AND ")

	allowedSort := map[string]string{
		"id":         "id",
		"name":       "name",
		"quantity":   "quantity",
		"created_at": "created_at",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	items := []interface{}{}
	var totalCount int
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(
			&it.ID, &it.Name, &it.Category, &it.Quantity, &it.Status, &it.Location,
			&it.Description, &it.AccessLevel, &it.IsReturnable, &it.StatusNote,
			&it.StatusChangedAt, &it.StatusChangedBy, &it.MaintenanceETA,
			&it.BorrowDuration, &it.BorrowUnit, &it.CreatedAt, &it.UpdatedAt,
			&totalCount,
		); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, it)
	}

	sendListResponse(w, items, totalCount, params)
}

func (s *Server) getItemByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid item id"))
		return
	}

	it, err := getItem(r.Context(), s.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}
	// Items above the caller's access level are invisible, not forbidden.
	if !auth.RoleFromContext(r.Context()).AtLeast(it.AccessLevel) {
		writeError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func validateItemInput(in *models.CreateItemRequest) error {
	if in.Name == "" {
		return validationErrorf("name is required")
	}
	if in.Category != "" && !models.IsValidCategory(in.Category) {
		return validationErrorf("invalid category %q", in.Category)
	}
	if in.Status != "" && !models.IsValidItemStatus(in.Status) {
		return validationErrorf("invalid status %q", in.Status)
	}
	if in.AccessLevel != "" && !models.IsValidRole(in.AccessLevel) {
		return validationErrorf("invalid access level %q", in.AccessLevel)
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return validationErrorf("quantity cannot be negative")
	}
	if in.BorrowDuration != nil && *in.BorrowDuration < 1 {
		return validationErrorf("borrow duration must be positive")
	}
	if in.BorrowUnit != "" && !models.IsValidDurationUnit(in.BorrowUnit) {
		return validationErrorf("invalid borrow duration unit %q", in.BorrowUnit)
	}
	return nil
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var in models.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if err := validateItemInput(&in); err != nil {
		writeError(w, err)
		return
	}

	// Defaults mirror the catalog's common case: a returnable
	// electronics item available to students.
	if in.Category == "" {
		in.Category = models.CategoryElectronics
	}
	if in.Status == "" {
		in.Status = models.ItemAvailable
	}
	if in.AccessLevel == "" {
		in.AccessLevel = string(models.RoleStudent)
	}
	if in.BorrowUnit == "" {
		in.BorrowUnit = models.UnitDays
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	returnable := true
	if in.IsReturnable != nil {
		returnable = *in.IsReturnable
	}

	var it models.Item
	err := scanItem(s.DB.QueryRowContext(r.Context(), `
		INSERT INTO inventory_items
			(name, category, quantity, status, location, description,
			 access_level, is_returnable, borrow_duration, borrow_duration_unit, maintenance_eta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+itemColumns,
		in.Name, in.Category, quantity, in.Status, in.Location, in.Description,
		in.AccessLevel, returnable, in.BorrowDuration, in.BorrowUnit, in.MaintenanceETA), &it)
	if err != nil {
		writeError(w, err)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	s.recordAudit(r.Context(), models.AuditItemCreated, actorID,
		fmt.Sprintf("item #%d %q x%d", it.ID, it.Name, it.Quantity), clientIP(r))

	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid item id"))
		return
	}
	var in models.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if in.Category != "" && !models.IsValidCategory(in.Category) {
		writeError(w, validationErrorf("invalid category %q", in.Category))
		return
	}
	if in.Status != "" && !models.IsValidItemStatus(in.Status) {
		writeError(w, validationErrorf("invalid status %q", in.Status))
		return
	}
	if in.AccessLevel != "" && !models.IsValidRole(in.AccessLevel) {
		writeError(w, validationErrorf("invalid access level %q", in.AccessLevel))
		return
	}
	if in.BorrowUnit != "" && !models.IsValidDurationUnit(in.BorrowUnit) {
		writeError(w, validationErrorf("invalid borrow duration unit %q", in.BorrowUnit))
		return
	}

	type set struct {
		sql string
		val interface{}
	}
	sets := make([]set, 0, 10)
	if in.Name != "" {
		sets = append(sets, set{"name = $%d", in.Name})
	}
	if in.Category != "" {
		sets = append(sets, set{"category = $%d", in.Category})
	}
	if in.Quantity != nil {
		if *in.Quantity < 0 {
			writeError(w, validationErrorf("quantity cannot be negative"))
			return
		}
		sets = append(sets, set{"quantity = $%d", *in.Quantity})
	}
	if in.Status != "" {
		sets = append(sets, set{"status = $%d", in.Status})
	}
	if in.Location != "" {
		sets = append(sets, set{"location = $%d", in.Location})
	}
	if in.Description != "" {
		sets = append(sets, set{"description = $%d", in.Description})
	}
	if in.AccessLevel != "" {
		sets = append(sets, set{"access_level = $%d", in.AccessLevel})
	}
	if in.IsReturnable != nil {
		sets = append(sets, set{"is_returnable = $%d", *in.IsReturnable})
	}
	if in.BorrowDuration != nil {
		sets = append(sets, set{"borrow_duration = $%d", *in.BorrowDuration})
	}
	if in.BorrowUnit != "" {
		sets = append(sets, set{"borrow_duration_unit = $%d", in.BorrowUnit})
	}
	if in.MaintenanceETA != nil {
		sets = append(sets, set{"maintenance_eta = $%d", in.MaintenanceETA})
	}
	if len(sets) == 0 {
		writeError(w, validationErrorf("no fields to update"))
		return
	}

	args := make([]interface{}, 0, len(sets)+1)
	sqlStr := "UPDATE inventory_items SET updated_at = now()"
	for i, sset := range sets {
		sqlStr += ", " + fmt.Sprintf(sset.sql, i+1)
		args = append(args, sset.val)
	}
	sqlStr += fmt.Sprintf(" WHERE id = $%d RETURNING ", len(args)+1) + itemColumns
	args = append(args, id)

	var out models.Item
	if err := scanItem(s.DB.QueryRowContext(r.Context(), sqlStr, args...), &out); err != nil {
		if err == sql.ErrNoRows {
			writeError(w, ErrNotFound)
			return
		}
		writeError(w, err)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	s.recordAudit(r.Context(), models.AuditItemUpdated, actorID,
		fmt.Sprintf("item #%d %q", out.ID, out.Name), clientIP(r))

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid item id"))
		return
	}

	res, err := s.DB.ExecContext(r.Context(), `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		writeError(w, err)
		return
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		writeError(w, ErrNotFound)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	s.recordAudit(r.Context(), models.AuditItemDeleted, actorID,
		fmt.Sprintf("item #%d", id), clientIP(r))

	w.WriteHeader(http.StatusNoContent)
}

// changeItemStatusHandler is the administrative status override.
func (s *Server) changeItemStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid item id"))
		return
	}
	var in models.ChangeItemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	if err := changeItemStatus(r.Context(), s.DB, id, in.Status, in.Note, actorID, in.MaintenanceETA); err != nil {
		writeError(w, err)
		return
	}

	it, err := getItem(r.Context(), s.DB, id)
	if err != nil {
		writeError(w, err)
		return
	}

	s.recordAudit(r.Context(), models.AuditItemUpdated, actorID,
		fmt.Sprintf("item #%d %q status -> %s", it.ID, it.Name, it.Status), clientIP(r))

	writeJSON(w, http.StatusOK, it)
}

// lowStockItems lists items at or below the low-stock threshold,
// excluding retired stock.
func (s *Server) lowStockItems(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT `+itemColumns+`
		FROM inventory_items
		WHERE access_level = ANY($1)
		  AND quantity > 0 AND quantity <= $2
		  AND status <> 'RETIRED'
		ORDER BY quantity ASC`, accessScope(r), models.LowStockThreshold)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := scanItem(rows, &it); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, items)
}

// outOfStockItems lists items with zero quantity.
func (s *Server) outOfStockItems(w http.ResponseWriter, r *http.Request) {
	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT `+itemColumns+`
		FROM inventory_items
		WHERE access_level = ANY($1) AND quantity = 0
		ORDER BY name ASC`, accessScope(r))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var it models.Item
		if err := scanItem(rows, &it); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, it)
	}
	writeJSON(w, http.StatusOK, items)
}

// itemStats summarizes the catalog visible to the caller.
func (s *Server) itemStats(w http.ResponseWriter, r *http.Request) {
	var stats struct {
		Total       int `json:"total"`
		Available   int `json:"available"`
		InUse       int `json:"in_use"`
		Maintenance int `json:"maintenance"`
		Retired     int `json:"retired"`
		LowStock    int `json:"low_stock"`
		OutOfStock  int `json:"out_of_stock"`
	}
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'AVAILABLE'),
		       COUNT(*) FILTER (WHERE status = 'IN_USE'),
		       COUNT(*) FILTER (WHERE status = 'MAINTENANCE'),
		       COUNT(*) FILTER (WHERE status = 'RETIRED'),
		       COUNT(*) FILTER (WHERE quantity > 0 AND quantity <= $2),
		       COUNT(*) FILTER (WHERE quantity = 0)
		FROM inventory_items
		WHERE access_level = ANY($1)`, accessScope(r), models.LowStockThreshold).Scan(
		&stats.Total, &stats.Available, &stats.InUse, &stats.Maintenance,
		&stats.Retired, &stats.LowStock, &stats.OutOfStock,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
