package internal

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

// digestMaxItems caps how many item names the staff digest lists
// before truncating with an "...and N more" suffix.
const digestMaxItems = 5

// humanizeOverdue renders an overdue duration: minutes below an hour,
// hours below a day, whole days beyond that.
func humanizeOverdue(d time.Duration) string {
	totalMinutes := int(d.Minutes())
	switch {
	case totalMinutes < 60:
		return fmt.Sprintf("%d minute(s)", totalMinutes)
	case totalMinutes < 1440:
		return fmt.Sprintf("%d hour(s)", totalMinutes/60)
	default:
		return fmt.Sprintf("%d day(s)", totalMinutes/1440)
	}
}

// digestMessage builds the single staff-facing summary line for a
// sweep cycle, listing at most digestMaxItems item names.
func digestMessage(itemNames []string) string {
	shown := itemNames
	suffix := ""
	if len(itemNames) > digestMaxItems {
		shown = itemNames[:digestMaxItems]
		suffix = fmt.Sprintf(" ...and %d more", len(itemNames)-digestMaxItems)
	}
	return fmt.Sprintf("%d overdue item(s) need attention: %s%s",
		len(itemNames), strings.Join(shown, ", "), suffix)
}

// RunOverdueSweep scans approved/completed requests past their
// expected return, notifies each borrower at most once per calendar
// day, flags borrowers not already flagged, and emits one staff digest
// for the cycle. Safe to invoke repeatedly; a failure on one request
// is logged and the scan continues.
func (s *Server) RunOverdueSweep(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, item_name, requested_by, expected_return
		FROM requests
		WHERE status IN ('APPROVED', 'COMPLETED') AND expected_return < $1
		ORDER BY expected_return ASC`, now)
	if err != nil {
		return 0, fmt.Errorf("overdue scan: %w", err)
	}
	defer rows.Close()

	type overdueRow struct {
		id             int64
		itemName       string
		borrower       int64
		expectedReturn time.Time
	}
	var overdue []overdueRow
	for rows.Next() {
		var o overdueRow
		if err := rows.Scan(&o.id, &o.itemName, &o.borrower, &o.expectedReturn); err != nil {
			return 0, err
		}
		overdue = append(overdue, o)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	notified := 0
	var digestItems []string
	for _, o := range overdue {
		// One borrower notification per request per calendar day.
		var alreadyNotified bool
		err := s.DB.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM notifications
				WHERE request_id = $1 AND type = $2 AND created_at::date = $3::date
			)`, o.id, models.NotifyOverdue, now).Scan(&alreadyNotified)
		if err != nil {
			log.Printf("overdue sweep: dedup check failed (request=%d): %v", o.id, err)
			continue
		}
		if alreadyNotified {
			continue
		}

		// Flag-and-increment only for borrowers not already flagged,
		// so repeated sweeps never inflate the count.
		if _, err := s.DB.ExecContext(ctx, `
			UPDATE users
			SET overdue_count = overdue_count + 1, is_flagged = TRUE, updated_at = now()
			WHERE id = $1 AND NOT is_flagged`, o.borrower); err != nil {
			log.Printf("overdue sweep: flagging borrower %d failed: %v", o.borrower, err)
			continue
		}

		overdueText := humanizeOverdue(now.Sub(o.expectedReturn))
		if _, err := s.DB.ExecContext(ctx, `
			INSERT INTO notifications (recipient_id, request_id, type, message)
			VALUES ($1, $2, $3, $4)`,
			o.borrower, o.id, models.NotifyOverdue,
			fmt.Sprintf("Your request for %q is %s overdue. Please return it.", o.itemName, overdueText)); err != nil {
			log.Printf("overdue sweep: borrower notification failed (request=%d): %v", o.id, err)
			continue
		}

		digestItems = append(digestItems, o.itemName)
		notified++
	}

	// One digest for the whole cycle, not one row per overdue item per
	// staff member. Request reference is NULL on digest rows.
	if len(digestItems) > 0 {
		if _, err := notifyStaff(ctx, s.DB, nil, nil, models.NotifyOverdue, digestMessage(digestItems)); err != nil {
			log.Printf("overdue sweep: staff digest failed: %v", err)
		}
	}

	return notified, nil
}

// checkOverdue triggers an on-demand sweep.
func (s *Server) checkOverdue(w http.ResponseWriter, r *http.Request) {
	count, err := s.RunOverdueSweep(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   fmt.Sprintf("%d overdue notification(s) created", count),
		"notified": count,
	})
}

// overdueRequests lists currently overdue requests in the caller's
// visible scope.
func (s *Server) overdueRequests(w http.ResponseWriter, r *http.Request) {
	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())

	scope := ""
	args := []interface{}{time.Now()}
	if !role.AtLeast(models.RoleStaff) {
		scope = " AND requested_by = $2"
		args = append(args, actorID)
	}

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status IN ('APPROVED', 'COMPLETED') AND expected_return < $1`+scope+`
		ORDER BY expected_return ASC`, args...)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	requests := []models.Request{}
	for rows.Next() {
		var req models.Request
		if err := scanRequest(rows, &req); err != nil {
			writeError(w, err)
			return
		}
		requests = append(requests, req)
	}

	writeJSON(w, http.StatusOK, requests)
}
