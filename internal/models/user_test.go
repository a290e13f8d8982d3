package models

import "testing"

func TestRoleRank(t *testing.T) {
	tests := []struct {
		role Role
		want int
	}{
		{RoleStudent, 0},
		{RoleFaculty, 1},
		{RoleStaff, 2},
		{RoleAdmin, 3},
		{Role("GUEST"), -1},
		{Role(""), -1},
	}

	for _, tt := range tests {
		if got := tt.role.Rank(); got != tt.want {
			t.Errorf("Rank(%s) = %d, want %d", tt.role, got, tt.want)
		}
	}
}

func TestRoleAtLeast(t *testing.T) {
	if !RoleAdmin.AtLeast(RoleStudent) {
		t.Error("ADMIN should be at least STUDENT")
	}
	if !RoleStaff.AtLeast(RoleStaff) {
		t.Error("STAFF should be at least STAFF")
	}
	if RoleFaculty.AtLeast(RoleStaff) {
		t.Error("FACULTY should not be at least STAFF")
	}
	if Role("GUEST").AtLeast(RoleStudent) {
		t.Error("Unknown role should rank below STUDENT")
	}
}

func TestAccessibleLevels(t *testing.T) {
	tests := []struct {
		role Role
		want []string
	}{
		{RoleStudent, []string{"STUDENT"}},
		{RoleFaculty, []string{"STUDENT", "FACULTY"}},
		{RoleStaff, []string{"STUDENT", "FACULTY", "STAFF"}},
		{RoleAdmin, []string{"STUDENT", "FACULTY", "STAFF", "ADMIN"}},
		{Role("GUEST"), []string{}},
	}

	for _, tt := range tests {
		got := tt.role.AccessibleLevels()
		if len(got) != len(tt.want) {
			t.Errorf("AccessibleLevels(%s) = %v, want %v", tt.role, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("AccessibleLevels(%s)[%d] = %s, want %s", tt.role, i, got[i], tt.want[i])
			}
		}
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{"STUDENT", "FACULTY", "STAFF", "ADMIN"} {
		if !IsValidRole(role) {
			t.Errorf("Expected %s to be valid", role)
		}
	}
	for _, role := range []string{"student", "GUEST", ""} {
		if IsValidRole(role) {
			t.Errorf("Expected %s to be invalid", role)
		}
	}
}

func strPtr(s string) *string { return &s }

func TestGetDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"full name", User{FirstName: strPtr("Ada"), LastName: strPtr("Lovelace"), Username: "ada"}, "Ada Lovelace"},
		{"first only", User{FirstName: strPtr("Ada"), Username: "ada"}, "Ada"},
		{"last only", User{LastName: strPtr("Lovelace"), Username: "ada"}, "Lovelace"},
		{"falls back to username", User{Username: "ada"}, "ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.GetDisplayName(); got != tt.want {
				t.Errorf("GetDisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	u := &User{ID: 1, Email: "ada@example.edu", PasswordHash: "$2a$10$something"}
	r := u.Redacted()
	if r.PasswordHash != "" {
		t.Error("Redacted copy should drop the password hash")
	}
	if u.PasswordHash == "" {
		t.Error("Redacted must not mutate the original")
	}
	if r.Email != u.Email {
		t.Error("Redacted should keep the other fields")
	}
}
