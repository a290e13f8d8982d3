package internal

import (
	"context"
	"log"
	"net/http"
	"strings"

	"nexus-inventory-api/internal/models"
)

// recordAudit appends an immutable trail entry for a security-relevant
// action. Audit failures are logged and never block the triggering
// business operation.
func (s *Server) recordAudit(ctx context.Context, action string, actorID int64, details, sourceIP string) {
	var userID *int64
	username := ""
	if actorID > 0 {
		userID = &actorID
		// Snapshot the username so the entry survives user deletion.
		if err := s.DB.QueryRowContext(ctx,
			`SELECT username FROM users WHERE id = $1`, actorID).Scan(&username); err != nil {
			username = ""
		}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO audit_logs (action, user_id, username, details, ip_address)
		VALUES ($1, $2, $3, $4, $5)`,
		action, userID, username, details, sourceIP)
	if err != nil {
		log.Printf("audit entry failed (action=%s actor=%d): %v", action, actorID, err)
	}
}

// clientIP extracts the originating address, preferring X-Forwarded-For.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

// listAuditLogs returns the audit trail, newest first. Admin only.
func (s *Server) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT id, action, user_id, username, details, ip_address, created_at,
		       COUNT(*) OVER() AS total_count
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, params.limit, params.offset)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	entries := []interface{}{}
	var totalCount int
	for rows.Next() {
		var e models.AuditEntry
		var ip *string
		if err := rows.Scan(&e.ID, &e.Action, &e.UserID, &e.Username, &e.Details, &ip, &e.CreatedAt, &totalCount); err != nil {
			writeError(w, err)
			return
		}
		if ip != nil {
			e.IPAddress = *ip
		}
		entries = append(entries, e)
	}

	sendListResponse(w, entries, totalCount, params)
}
