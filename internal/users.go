package internal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/models"
)

const userColumns = `id, email, username, password_hash, first_name, last_name,
	role, department, student_id, phone, is_active, is_flagged,
	overdue_count, created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }, u *models.User) error {
	return row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.Department, &u.StudentID, &u.Phone, &u.IsActive, &u.IsFlagged,
		&u.OverdueCount, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
}

// loginUser authenticates by email and password and issues a JWT.
// Failed attempts are audited with the address they came from.
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var in models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if in.Email == "" || in.Password == "" {
		writeError(w, validationErrorf("email and password are required"))
		return
	}

	var user models.User
	err := scanUser(s.DB.QueryRowContext(r.Context(), `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1 AND is_active`, in.Email), &user)
	if err == sql.ErrNoRows {
		s.recordAudit(r.Context(), models.AuditLoginFailed, 0,
			fmt.Sprintf("unknown or inactive account %q", in.Email), clientIP(r))
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid credentials"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		s.recordAudit(r.Context(), models.AuditLoginFailed, user.ID, "wrong password", clientIP(r))
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid credentials"})
		return
	}

	// Best effort; a failed timestamp update never blocks login.
	if _, err := s.DB.ExecContext(r.Context(),
		`UPDATE users SET last_login_at = now() WHERE id = $1`, user.ID); err != nil {
		logSideEffect("last login update", user.ID, err)
	}

	token, err := s.JWTManager.GenerateToken(user.ID, user.Role)
	if err != nil {
		writeError(w, fmt.Errorf("generate token: %w", err))
		return
	}

	s.recordAudit(r.Context(), models.AuditLogin, user.ID, "", clientIP(r))

	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token: token,
		User:  user.Redacted(),
	})
}

// getUserProfile returns the authenticated caller's own account.
func (s *Server) getUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var user models.User
	err := scanUser(s.DB.QueryRowContext(r.Context(),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID), &user)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Redacted())
}

// changePassword verifies the current password before setting a new one.
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var in models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if in.CurrentPassword == "" || in.NewPassword == "" {
		writeError(w, validationErrorf("current and new password are required"))
		return
	}
	if len(in.NewPassword) < 8 {
		writeError(w, validationErrorf("new password must be at least 8 characters"))
		return
	}

	var currentHash string
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&currentHash)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(in.CurrentPassword)); err != nil {
		writeError(w, validationErrorf("current password is incorrect"))
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, fmt.Errorf("hash password: %w", err))
		return
	}

	if _, err := s.DB.ExecContext(r.Context(),
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		string(newHash), userID); err != nil {
		writeError(w, err)
		return
	}

	s.recordAudit(r.Context(), models.AuditPasswordChange, userID, "", clientIP(r))

	w.WriteHeader(http.StatusNoContent)
}

// listUsers lists accounts with search/role/active filters. Staff and up.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	clauses := []string{"TRUE"}
	args := []interface{}{}
	arg := 1

	if params.q != "" {
		clauses = append(clauses, fmt.Sprintf("(email ILIKE $%d OR username ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d OR student_id ILIKE $%d)", arg, arg, arg, arg, arg))
		args = append(args, "%"+params.q+"%")
		arg++
	}
	if role := strings.TrimSpace(r.URL.Query().Get("role")); role != "" {
		if !models.IsValidRole(role) {
			writeError(w, validationErrorf("invalid role %q", role))
			return
		}
		clauses = append(clauses, fmt.Sprintf("role = $%d", arg))
		args = append(args, role)
		arg++
	}
	if active := strings.TrimSpace(r.URL.Query().Get("is_active")); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			writeError(w, validationErrorf("invalid is_active parameter"))
			return
		}
		clauses = append(clauses, fmt.Sprintf("is_active = $%d", arg))
		args = append(args, v)
		arg++
	}
	if flagged := strings.TrimSpace(r.URL.Query().Get("is_flagged")); flagged != "" {
		v, err := strconv.ParseBool(flagged)
		if err != nil {
			writeError(w, validationErrorf("invalid is_flagged parameter"))
			return
		}
		clauses = append(clauses, fmt.Sprintf("is_flagged = $%d", arg))
		args = append(args, v)
		arg++
	}

	sqlStr := `SELECT ` + userColumns + `, COUNT(*) OVER() AS total_count
		FROM users WHERE ` + strings.Join(clauses, " AND ")

	allowedSort := map[string]string{
		"id":            "id",
		"email":         "email",
		"username":      "username",
		"role":          "role",
		"created_at":    "created_at",
		"overdue_count": "overdue_count",
	}
	sqlStr += buildOrderBy(params.sort, allowedSort)
	sqlStr += fmt.Sprintf(" LIMIT %d OFFSET %d", params.limit, params.offset)

	rows, err := s.DB.QueryContext(r.Context(), sqlStr, args...)
	if err != nil {
		writeError(w, err)
		return
	}
	defer rows.Close()

	users := []interface{}{}
	var totalCount int
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
			&u.Role, &u.Department, &u.StudentID, &u.Phone, &u.IsActive, &u.IsFlagged,
			&u.OverdueCount, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
			&totalCount,
		); err != nil {
			writeError(w, err)
			return
		}
		users = append(users, u.Redacted())
	}

	sendListResponse(w, users, totalCount, params)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid user id"))
		return
	}

	var user models.User
	err = scanUser(s.DB.QueryRowContext(r.Context(),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id), &user)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Redacted())
}

// changeUserRole sets an account's role. Admin only; admins cannot
// demote themselves, so the system always keeps at least one admin.
func (s *Server) changeUserRole(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid user id"))
		return
	}
	var in models.ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, validationErrorf("invalid JSON"))
		return
	}
	if !models.IsValidRole(in.Role) {
		writeError(w, validationErrorf("invalid role %q", in.Role))
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	if id == actorID && models.Role(in.Role) != models.RoleAdmin {
		writeError(w, validationErrorf("cannot demote your own account"))
		return
	}

	var user models.User
	err = scanUser(s.DB.QueryRowContext(r.Context(), `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, in.Role), &user)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.recordAudit(r.Context(), models.AuditUserUpdated, actorID,
		fmt.Sprintf("user #%d role -> %s", id, in.Role), clientIP(r))

	writeJSON(w, http.StatusOK, user.Redacted())
}

// toggleUserStatus flips an account between active and deactivated.
// Deactivated users cannot log in; their existing tokens expire naturally.
func (s *Server) toggleUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid user id"))
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	if id == actorID {
		writeError(w, validationErrorf("cannot deactivate your own account"))
		return
	}

	var user models.User
	err = scanUser(s.DB.QueryRowContext(r.Context(), `
		UPDATE users SET is_active = NOT is_active, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id), &user)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	state := "deactivated"
	if user.IsActive {
		state = "activated"
	}
	s.recordAudit(r.Context(), models.AuditUserUpdated, actorID,
		fmt.Sprintf("user #%d %s", id, state), clientIP(r))

	writeJSON(w, http.StatusOK, user.Redacted())
}

// unflagUser clears the overdue flag and counter after a manual review.
func (s *Server) unflagUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, validationErrorf("invalid user id"))
		return
	}

	var user models.User
	err = scanUser(s.DB.QueryRowContext(r.Context(), `
		UPDATE users SET is_flagged = FALSE, overdue_count = 0, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id), &user)
	if err == sql.ErrNoRows {
		writeError(w, ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	s.recordAudit(r.Context(), models.AuditUserUpdated, actorID,
		fmt.Sprintf("user #%d unflagged", id), clientIP(r))

	writeJSON(w, http.StatusOK, user.Redacted())
}

// userStats summarizes accounts by role and flag state.
func (s *Server) userStats(w http.ResponseWriter, r *http.Request) {
	var stats struct {
		Total    int `json:"total"`
		Active   int `json:"active"`
		Flagged  int `json:"flagged"`
		Students int `json:"students"`
		Faculty  int `json:"faculty"`
		Staff    int `json:"staff"`
		Admins   int `json:"admins"`
	}
	err := s.DB.QueryRowContext(r.Context(), `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_active),
		       COUNT(*) FILTER (WHERE is_flagged),
		       COUNT(*) FILTER (WHERE role = 'STUDENT'),
		       COUNT(*) FILTER (WHERE role = 'FACULTY'),
		       COUNT(*) FILTER (WHERE role = 'STAFF'),
		       COUNT(*) FILTER (WHERE role = 'ADMIN')
		FROM users`).Scan(
		&stats.Total, &stats.Active, &stats.Flagged,
		&stats.Students, &stats.Faculty, &stats.Staff, &stats.Admins,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
