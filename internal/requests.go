package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

const requestColumns = `id, item_id, item_name, requested_by, quantity, purpose,
	status, priority, expected_return, approved_by, approved_at,
	rejection_reason, returned_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }, req *models.Request) error {
	return row.Scan(
		&req.ID, &req.ItemID, &req.ItemName, &req.RequestedBy, &req.Quantity,
		&req.Purpose, &req.Status, &req.Priority, &req.ExpectedReturn,
		&req.ApprovedBy, &req.ApprovedAt, &req.RejectionReason, &req.ReturnedAt,
		&req.CreatedAt, &req.UpdatedAt,
	)
}

// getRequest loads a request row, optionally locking it for update so
// two staff members cannot race the same transition.
func getRequest(ctx context.Context, q querier, id int64, forUpdate bool) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var req models.Request
	err := scanRequest(q.QueryRowContext(ctx, query, id), &req)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// requestVisible enforces the read scope: callers below STAFF see only
// their own requests.
func requestVisible(actorID int64, role models.Role, req *models.Request) bool {
	return role.AtLeast(models.RoleStaff) || req.RequestedBy == actorID
}

// listRequests returns requests in the caller's visible scope with
// optional status/priority filters and text search over the item-name
// snapshot and purpose.
func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())

	clauses := []string{}
	args := []interface{}{}
	arg := 1

	if !role.AtLeast(models.RoleStaff) {
		clauses = append(clauses, fmt.Sprintf("requested_by = $%d", arg))
		args = append(args, actorID)
		arg++
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", arg))
		args = append(args, status)
		arg++
	}
	if priority := strings.TrimSpace(r.URL.Query().Get("priority")); priority != "" {
		clauses = append(clauses, fmt.Sprintf("priority = $%d", arg))
		args = append(args, priority)
		arg++
	}
	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(item_name ILIKE $%d OR purpose ILIKE $%d)", arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}

	whereClause := ""
	if len(clauses) > 0 {
		whereClause = " WHERE " + strings.Join(clauses, " AND ")
	}

	sqlStr := `SELECT ` + requestColumns + `, COUNT(*) OVER() AS total_count FROM requests` + whereClause

	allowedSort := map[string]string{
		"id":         "id",
		"status":     "status",
		"priority":   "priority",
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

	requests := []interface{}{}
	var totalCount int
	for rows.Next() {
		var req models.Request
		if err := rows.Scan(
			&req.ID, &req.ItemID, &req.ItemName, &req.RequestedBy, &req.Quantity,
			&req.Purpose, &req.Status, &req.Priority, &req.ExpectedReturn,
			&req.ApprovedBy, &req.ApprovedAt, &req.RejectionReason, &req.ReturnedAt,
			&req.CreatedAt, &req.UpdatedAt, &totalCount,
		); err != nil {
			writeError(w, err)
			return
		}
		requests = append(requests, req)
	}

	sendListResponse(w, requests, totalCount, params)
}

func (s *Server) getRequestByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}

	req, err := getRequest(r.Context(), s.DB, id, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if !requestVisible(auth.UserIDFromContext(r.Context()), auth.RoleFromContext(r.Context()), req) {
		writeError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// createRequest submits a new PENDING borrow request. The item name is
// snapshotted at this instant. Staff and admins are notified once.
func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var in models.CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if in.Quantity < 1 {
		writeError(w, validationErrorf("quantity must be at least 1"))
		return
	}
	priority := in.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !models.IsValidPriority(priority) {
		writeError(w, validationErrorf("invalid priority %q", priority))
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())

	item, err := getItem(r.Context(), s.DB, in.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	// The item's access level is the minimum role required to see or
	// request it.
	if !role.AtLeast(item.AccessLevel) {
		writeError(w, ErrNotFound)
		return
	}

	var req models.Request
	err = scanRequest(s.DB.QueryRowContext(r.Context(), `
		INSERT INTO requests (item_id, item_name, requested_by, quantity, purpose, priority, expected_return)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+requestColumns,
		item.ID, item.Name, actorID, in.Quantity, in.Purpose, priority, in.ExpectedReturn), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	// Side effects are best effort and never fail the creation.
	requesterName := s.displayName(r.Context(), actorID)
	if _, err := notifyStaff(r.Context(), s.DB, &actorID, &req.ID, models.NotifyStatusChange,
		fmt.Sprintf("%s submitted a new request for %q", requesterName, req.ItemName)); err != nil {
		logSideEffect("staff notification", req.ID, err)
	}
	s.recordAudit(r.Context(), models.AuditRequestCreated, actorID,
		fmt.Sprintf("request #%d for %q x%d", req.ID, req.ItemName, req.Quantity), clientIP(r))

	writeJSON(w, http.StatusCreated, req)
}

// approveRequest moves a PENDING request to APPROVED (or directly to
// COMPLETED for non-returnable items), reserving stock atomically.
// Strictly all-or-nothing: when the reservation fails nothing else is
// mutated and no notification is sent.
func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	ctx := r.Context()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Status != models.RequestPending {
		writeError(w, fmt.Errorf("%w: only pending requests can be approved", ErrInvalidTransition))
		return
	}
	if err := authorizeTransition(actionApprove, actorID, role, req); err != nil {
		writeError(w, err)
		return
	}
	if req.ItemID == nil {
		writeError(w, fmt.Errorf("%w: requested item no longer exists", ErrNotFound))
		return
	}

	item, err := getItem(ctx, tx, *req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}

	// The single serialization point: decrement-if-enough at the store.
	remaining, err := reserveStock(ctx, tx, item.ID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now()
	newStatus := models.RequestApproved
	if !item.IsReturnable {
		// Nothing to give back, so the request resolves immediately.
		newStatus = models.RequestCompleted
	}
	if err := checkTransition(req.Status, newStatus); err != nil {
		writeError(w, err)
		return
	}
	dueAt := expectedReturnAt(item, now)

	err = scanRequest(tx.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, approved_by = $3, approved_at = $4, expected_return = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		req.ID, newStatus, actorID, now, dueAt), req)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := tx.Commit(); err != nil {
		writeError(w, err)
		return
	}

	// Follow-up status write; once reserved the item cannot go
	// stock-negative regardless of this write's ordering.
	if remaining == 0 {
		if err := markInUseIfExhausted(ctx, s.DB, item.ID); err != nil {
			logSideEffect("item status update", req.ID, err)
		}
	}

	approverName := s.displayName(ctx, actorID)
	s.notifyBestEffort(ctx, req.RequestedBy, &actorID, &req.ID, models.NotifyStatusChange,
		fmt.Sprintf("%s approved your request for %q", approverName, req.ItemName))
	s.recordAudit(ctx, models.AuditRequestApproved, actorID,
		fmt.Sprintf("request #%d for %q x%d", req.ID, req.ItemName, req.Quantity), clientIP(r))

	writeJSON(w, http.StatusOK, req)
}

// rejectRequest moves a PENDING request to REJECTED. No stock changes;
// nothing was reserved yet.
func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}
	var in models.RejectRequestRequest
	if r.Body != nil {
		// The reason is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&in)
	}

	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	ctx := r.Context()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Status != models.RequestPending {
		writeError(w, fmt.Errorf("%w: only pending requests can be rejected", ErrInvalidTransition))
		return
	}
	if err := authorizeTransition(actionReject, actorID, role, req); err != nil {
		writeError(w, err)
		return
	}

	err = scanRequest(tx.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, approved_by = $3, approved_at = now(), rejection_reason = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		req.ID, models.RequestRejected, actorID, in.Reason), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(w, err)
		return
	}

	message := fmt.Sprintf("%s rejected your request for %q.", s.displayName(ctx, actorID), req.ItemName)
	if in.Reason != "" {
		message += fmt.Sprintf(" Reason: %q", in.Reason)
	}
	s.notifyBestEffort(ctx, req.RequestedBy, &actorID, &req.ID, models.NotifyStatusChange, message)
	s.recordAudit(ctx, models.AuditRequestRejected, actorID,
		fmt.Sprintf("request #%d for %q", req.ID, req.ItemName), clientIP(r))

	writeJSON(w, http.StatusOK, req)
}

// completeRequest moves an APPROVED request to COMPLETED. No stock
// change. The requester is notified unless they performed the action.
func (s *Server) completeRequest(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, actionComplete, models.RequestApproved, models.RequestCompleted,
		`UPDATE requests SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+requestColumns,
		func(ctx context.Context, actorID int64, req *models.Request) {
			if actorID != req.RequestedBy {
				s.notifyBestEffort(ctx, req.RequestedBy, &actorID, &req.ID, models.NotifyStatusChange,
					fmt.Sprintf("%s marked your request for %q as completed.", s.displayName(ctx, actorID), req.ItemName))
			}
		})
}

// cancelRequest moves a PENDING request to CANCELLED. Silent; nothing
// was reserved yet.
func (s *Server) cancelRequest(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, actionCancel, models.RequestPending, models.RequestCancelled,
		`UPDATE requests SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+requestColumns,
		nil)
}

// simpleTransition factors the stock-free single-status transitions.
func (s *Server) simpleTransition(w http.ResponseWriter, r *http.Request, action lifecycleAction, from, to, updateSQL string, after func(context.Context, int64, *models.Request)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	ctx := r.Context()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Status != from {
		writeError(w, fmt.Errorf("%w: only %s requests can be %s", ErrInvalidTransition, strings.ToLower(from), statusPastTense(to)))
		return
	}
	if err := authorizeTransition(action, actorID, role, req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkTransition(req.Status, to); err != nil {
		writeError(w, err)
		return
	}

	if err := scanRequest(tx.QueryRowContext(ctx, updateSQL, req.ID, to), req); err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(w, err)
		return
	}

	if after != nil {
		after(ctx, actorID, req)
	}
	writeJSON(w, http.StatusOK, req)
}

// returnItem moves an APPROVED or COMPLETED request to RETURNED,
// restoring stock. Self-returns are silent.
func (s *Server) returnItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	ctx := r.Context()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, id, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Status != models.RequestApproved && req.Status != models.RequestCompleted {
		writeError(w, fmt.Errorf("%w: only approved or completed requests can be returned", ErrInvalidTransition))
		return
	}
	if err := authorizeTransition(actionReturn, actorID, role, req); err != nil {
		writeError(w, err)
		return
	}
	if req.ItemID == nil {
		writeError(w, fmt.Errorf("%w: requested item no longer exists", ErrNotFound))
		return
	}

	item, err := getItem(ctx, tx, *req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !item.IsReturnable {
		writeError(w, ErrNotReturnable)
		return
	}

	// The FOR UPDATE lock on the request row plus the status check
	// above make this release happen at most once per request.
	if err := releaseStock(ctx, tx, item.ID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}

	err = scanRequest(tx.QueryRowContext(ctx, `
		UPDATE requests
		SET status = $2, returned_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING `+requestColumns,
		req.ID, models.RequestReturned), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := tx.Commit(); err != nil {
		writeError(w, err)
		return
	}

	if actorID != req.RequestedBy {
		s.notifyBestEffort(ctx, req.RequestedBy, &actorID, &req.ID, models.NotifyStatusChange,
			fmt.Sprintf("%s returned your borrowed %q.", s.displayName(ctx, actorID), req.ItemName))
	}
	s.recordAudit(ctx, models.AuditRequestReturned, actorID,
		fmt.Sprintf("request #%d for %q x%d", req.ID, req.ItemName, req.Quantity), clientIP(r))

	writeJSON(w, http.StatusOK, req)
}

// clearCompletedRequests permanently deletes all terminal-status
// requests in the caller's visible scope. Irreversible.
func (s *Server) clearCompletedRequests(w http.ResponseWriter, r *http.Request) {
	res, err := s.DB.ExecContext(r.Context(),
		`DELETE FROM requests WHERE status = ANY($1)`, pq.StringArray(models.TerminalStatuses))
	if err != nil {
		writeError(w, err)
		return
	}
	n, _ := res.RowsAffected()
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

// requestStats summarizes the caller's visible requests.
func (s *Server) requestStats(w http.ResponseWriter, r *http.Request) {
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())

	scope := ""
	args := []interface{}{time.Now()}
	if !role.AtLeast(models.RoleStaff) {
		scope = " AND requested_by = $2"
		args = append(args, actorID)
	}

	var stats struct {
		Total        int `json:"total"`
		Pending      int `json:"pending"`
		Approved     int `json:"approved"`
		Completed    int `json:"completed"`
		Rejected     int `json:"rejected"`
		Returned     int `json:"returned"`
		Cancelled    int `json:"cancelled"`
		Overdue      int `json:"overdue"`
		HighPriority int `json:"high_priority"`
	}
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'PENDING'),
		       COUNT(*) FILTER (WHERE status = 'APPROVED'),
		       COUNT(*) FILTER (WHERE status = 'COMPLETED'),
		       COUNT(*) FILTER (WHERE status = 'REJECTED'),
		       COUNT(*) FILTER (WHERE status = 'RETURNED'),
		       COUNT(*) FILTER (WHERE status = 'CANCELLED'),
		       COUNT(*) FILTER (WHERE status IN ('APPROVED','COMPLETED') AND expected_return < $1),
		       COUNT(*) FILTER (WHERE priority = 'HIGH' AND status = 'PENDING')
		FROM requests WHERE TRUE`+scope, args...).Scan(
		&stats.Total, &stats.Pending, &stats.Approved, &stats.Completed,
		&stats.Rejected, &stats.Returned, &stats.Cancelled, &stats.Overdue,
		&stats.HighPriority,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// displayName resolves a user's display name for notification text.
func (s *Server) displayName(ctx context.Context, userID int64) string {
	var first, last *string
	var username string
	err := s.DB.QueryRowContext(ctx,
		`SELECT first_name, last_name, username FROM users WHERE id = $1`, userID).Scan(&first, &last, &username)
	if err != nil {
		return "Someone"
	}
	u := models.User{FirstName: first, LastName: last, Username: username}
	return u.GetDisplayName()
}

func logSideEffect(what string, id int64, err error) {
	log.Printf("%s failed (id=%d): %v", what, id, err)
}

func statusPastTense(status string) string {
	switch status {
	case models.RequestCompleted:
		return "completed"
	case models.RequestCancelled:
		return "cancelled"
	case models.RequestReturned:
		return "returned"
	default:
		return strings.ToLower(status)
	}
}
