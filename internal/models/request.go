package models

import "time"

// Request statuses
const (
	RequestPending   = "PENDING"
	RequestApproved  = "APPROVED"
	RequestRejected  = "REJECTED"
	RequestCompleted = "COMPLETED"
	RequestReturned  = "RETURNED"
	RequestCancelled = "CANCELLED"
)

// Request priorities
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
)

var requestStatuses = map[string]bool{
	RequestPending:   true,
	RequestApproved:  true,
	RequestRejected:  true,
	RequestCompleted: true,
	RequestReturned:  true,
	RequestCancelled: true,
}

var requestPriorities = map[string]bool{
	PriorityLow:    true,
	PriorityNormal: true,
	PriorityHigh:   true,
}

// IsValidRequestStatus checks a request status value.
func IsValidRequestStatus(s string) bool { return requestStatuses[s] }

// IsValidPriority checks a request priority value.
func IsValidPriority(p string) bool { return requestPriorities[p] }

// TerminalStatuses are the statuses a request can never leave.
// They are also the statuses eligible for bulk clearing.
var TerminalStatuses = []string{RequestCompleted, RequestReturned, RequestRejected, RequestCancelled}

// Request represents a borrow request moving through the approval workflow.
//
// ItemName is a snapshot taken at creation time and is kept even if the
// item is later renamed or deleted: request history must reflect what
// was asked for, not the item's current name.
type Request struct {
	ID              int64      `json:"id"`
	ItemID          *int64     `json:"item_id"`
	ItemName        string     `json:"item_name"`
	RequestedBy     int64      `json:"requested_by"`
	Quantity        int        `json:"quantity"`
	Purpose         string     `json:"purpose"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	ExpectedReturn  *time.Time `json:"expected_return,omitempty"`
	ApprovedBy      *int64     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReturnedAt      *time.Time `json:"returned_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsOverdue reports whether the request holds stock past its expected return.
func (r *Request) IsOverdue(now time.Time) bool {
	if r.Status != RequestApproved && r.Status != RequestCompleted {
		return false
	}
	if r.ExpectedReturn == nil {
		return false
	}
	return r.ExpectedReturn.Before(now)
}

// CreateRequestRequest represents the request body for submitting a borrow request
type CreateRequestRequest struct {
	ItemID         int64      `json:"item_id" validate:"required"`
	Quantity       int        `json:"quantity" validate:"required,min=1"`
	Purpose        string     `json:"purpose"`
	Priority       string     `json:"priority"`
	ExpectedReturn *time.Time `json:"expected_return"`
}

// RejectRequestRequest carries the optional rejection reason
type RejectRequestRequest struct {
	Reason string `json:"reason"`
}

// Comment is an append-only remark on a request.
type Comment struct {
	ID         int64     `json:"id"`
	RequestID  int64     `json:"request_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCommentRequest represents the request body for adding a comment
type CreateCommentRequest struct {
	Text string `json:"text" validate:"required"`
}
