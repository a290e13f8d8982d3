package models

import "time"

// Audit action kinds. Security-relevant actions only.
const (
	AuditLogin           = "Login"
	AuditLoginFailed     = "Login Failed"
	AuditPasswordChange  = "Password Changed"
	AuditItemCreated     = "Item Created"
	AuditItemUpdated     = "Item Updated"
	AuditItemDeleted     = "Item Deleted"
	AuditRequestCreated  = "Request Created"
	AuditRequestApproved = "Request Approved"
	AuditRequestRejected = "Request Rejected"
	AuditRequestReturned = "Item Returned"
	AuditUserUpdated     = "User Updated"
	AuditImport          = "Catalog Import"
)

// AuditEntry is one immutable row in the audit trail. Username is a
// snapshot so the entry stays readable if the user row is deleted.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Action    string    `json:"action"`
	UserID    *int64    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Details   string    `json:"details,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
