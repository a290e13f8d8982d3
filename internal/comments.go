package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

// previewMaxRunes caps the comment excerpt quoted in notifications.
const previewMaxRunes = 80

// commentPreview shortens comment text for notification messages,
// cutting on a rune boundary so multibyte text stays valid.
func commentPreview(s string) string {
	if utf8.RuneCountInString(s) <= previewMaxRunes {
		return s
	}
	return string([]rune(s)[:previewMaxRunes])
}

// listComments returns a request's comments in creation order.
func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
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

	rows, err := s.DB.QueryContext(r.Context(), `
		SELECT c.id, c.request_id, c.author_id, c.text, c.created_at,
		       u.first_name, u.last_name, u.username
		FROM request_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.request_id = $1
		ORDER BY c.created_at ASC`, req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		var first, last *string
		var username string
		if err := rows.Scan(&c.ID, &c.RequestID, &c.AuthorID, &c.Text, &c.CreatedAt, &first, &last, &username); err != nil {
			writeError(w, err)
			return
		}
		author := models.User{FirstName: first, LastName: last, Username: username}
		c.AuthorName = author.GetDisplayName()
		comments = append(comments, c)
	}

	writeJSON(w, http.StatusOK, comments)
}

// createComment appends a comment and notifies the request owner,
// previous commenters, and staff, excluding the author. Each recipient
// gets at most one COMMENT notification per dedup window.
func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid request id"))
		return
	}
	var in models.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" {
		writeError(w, validationErrorf("comment text is required"))
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	role := auth.RoleFromContext(r.Context())
	ctx := r.Context()

	req, err := getRequest(ctx, s.DB, id, false)
	if err != nil {
		writeError(w, err)
		return
	}
	if !requestVisible(actorID, role, req) {
		writeError(w, ErrNotFound)
		return
	}

	var c models.Comment
	err = s.DB.QueryRowContext(ctx, `
		INSERT INTO request_comments (request_id, author_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, request_id, author_id, text, created_at`,
		req.ID, actorID, in.Text).Scan(&c.ID, &c.RequestID, &c.AuthorID, &c.Text, &c.CreatedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	c.AuthorName = s.displayName(ctx, actorID)

	// Recipients: the request owner, everyone who commented before,
	// and all staff/admins. The author never notifies themself.
	message := fmt.Sprintf("%s commented on %q: %q", c.AuthorName, req.ItemName, commentPreview(c.Text))

	rows, err := s.DB.QueryContext(ctx, `
		SELECT requested_by FROM requests WHERE id = $1 AND requested_by <> $2
		UNION
		SELECT author_id FROM request_comments WHERE request_id = $1 AND author_id <> $2
		UNION
		SELECT id FROM users WHERE role = ANY($3) AND is_active AND id <> $2`,
		req.ID, actorID, staffRoles)
	if err != nil {
		logSideEffect("comment notification query", req.ID, err)
	} else {
		defer rows.Close()
		for rows.Next() {
			var recipient int64
			if err := rows.Scan(&recipient); err != nil {
				logSideEffect("comment notification scan", req.ID, err)
				break
			}
			s.notifyBestEffort(ctx, recipient, &actorID, &req.ID, models.NotifyComment, message)
		}
	}

	writeJSON(w, http.StatusCreated, c)
}
