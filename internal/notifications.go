package internal

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

// dedupWindow is the span within which an identical-shaped notification
// (same recipient, same request reference, same type) is suppressed.
// Guards against double-clicks and client retries flooding recipients.
const dedupWindow = "5 minutes"

// staffRoles is the recipient set for staff-facing broadcasts.
var staffRoles = pq.StringArray{string(models.RoleStaff), string(models.RoleAdmin)}

// notifyOnce creates a notification unless an identical-shaped one was
// created within the dedup window. Insert and duplicate check are one
// statement; a sub-second race admitting two rows is acceptable
// (best-effort dedup, not exactly-once). Returns whether a row was
// created.
func notifyOnce(ctx context.Context, q querier, recipient int64, sender, requestID *int64, notifType, message string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO notifications (recipient_id, sender_id, request_id, type, message)
		SELECT $1, $2, $3, $4, $5
		WHERE NOT EXISTS (
			SELECT 1 FROM notifications
			WHERE recipient_id = $1
			  AND request_id IS NOT DISTINCT FROM $3
			  AND type = $4
			  AND created_at > now() - interval '`+dedupWindow+`'
		)`, recipient, sender, requestID, notifType, message)
	if err != nil {
		return false, fmt.Errorf("notify once: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// notifyStaff broadcasts one message to every active staff and admin
// user except the sender, as a single set-based insert. The dedup
// window applies per recipient.
func notifyStaff(ctx context.Context, q querier, sender, requestID *int64, notifType, message string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO notifications (recipient_id, sender_id, request_id, type, message)
		SELECT u.id, $1, $2, $3, $4
		FROM users u
		WHERE u.role = ANY($5)
		  AND u.is_active
		  AND u.id <> COALESCE($1, 0)
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.recipient_id = u.id
			  AND n.request_id IS NOT DISTINCT FROM $2
			  AND n.type = $3
			  AND n.created_at > now() - interval '`+dedupWindow+`'
		  )`, sender, requestID, notifType, message, staffRoles)
	if err != nil {
		return 0, fmt.Errorf("notify staff: %w", err)
	}
	return res.RowsAffected()
}

// notifyBestEffort wraps notifyOnce for lifecycle side effects:
// failures are logged, never propagated to the business transition.
func (s *Server) notifyBestEffort(ctx context.Context, recipient int64, sender, requestID *int64, notifType, message string) {
	if _, err := notifyOnce(ctx, s.DB, recipient, sender, requestID, notifType, message); err != nil {
		log.Printf("notification failed (recipient=%d type=%s): %v", recipient, notifType, err)
	}
}

// listNotifications returns the caller's notifications, newest first.
func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	params := parseListParams(r)

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT id, recipient_id, sender_id, request_id, type, message, is_read, created_at,
		       COUNT(*) OVER() AS total_count
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, params.limit, params.offset)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	items := []interface{}{}
	var totalCount int
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(
			&n.ID, &n.Recipient, &n.Sender, &n.RequestID, &n.Type,
			&n.Message, &n.IsRead, &n.CreatedAt, &totalCount,
		); err != nil {
			writeError(w, err)
			return
		}
		items = append(items, n)
	}

	sendListResponse(w, items, totalCount, params)
}

// markNotificationRead flips is_read on one of the caller's notifications.
func (s *Server) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid notification id"))
		return
	}
	userID := auth.UserIDFromContext(r.Context())

	res, err := s.DB.ExecContext(r.Context(), `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2`, id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// markAllNotificationsRead flips is_read on everything the caller has.
func (s *Server) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	_, err := s.DB.ExecContext(r.Context(),
		`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "all marked as read"})
}

// unreadNotificationCount returns the caller's unread count.
func (s *Server) unreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var count int
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, userID).Scan(&count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// clearNotifications deletes all of the caller's notifications.
func (s *Server) clearNotifications(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	res, err := s.DB.ExecContext(r.Context(),
		`DELETE FROM notifications WHERE recipient_id = $1`, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	n, _ := res.RowsAffected()
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}
