package internal

import (
	"fmt"
	"time"

	"nexus-inventory-api/internal/models"
)

// legalTransitions is the request state machine:
// PENDING -> {APPROVED, REJECTED, CANCELLED}
// APPROVED -> {COMPLETED, RETURNED}
// COMPLETED -> {RETURNED}
// REJECTED, CANCELLED and RETURNED are terminal.
var legalTransitions = map[string][]string{
	models.RequestPending:   {models.RequestApproved, models.RequestRejected, models.RequestCancelled},
	models.RequestApproved:  {models.RequestCompleted, models.RequestReturned},
	models.RequestCompleted: {models.RequestReturned},
}

// canTransition reports whether a request may move from one status to another.
func canTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition when the move is not legal.
func checkTransition(from, to string) error {
	if !canTransition(from, to) {
		return fmt.Errorf("%w: cannot move request from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// daysPerMonth approximates a calendar month as 30.44 days (average
// Gregorian month length). No calendar-month arithmetic is done.
const daysPerMonth = 30.44

// borrowWindow converts an item's configured borrow duration into a
// concrete time window. Returns false when the item has no duration.
func borrowWindow(it *models.Item) (time.Duration, bool) {
	if it.BorrowDuration == nil || *it.BorrowDuration <= 0 {
		return 0, false
	}
	n := *it.BorrowDuration
	switch it.BorrowUnit {
	case models.UnitMinutes:
		return time.Duration(n) * time.Minute, true
	case models.UnitHours:
		return time.Duration(n) * time.Hour, true
	case models.UnitDays:
		return time.Duration(n) * 24 * time.Hour, true
	case models.UnitMonths:
		return time.Duration(int(float64(n)*daysPerMonth)) * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// expectedReturnAt computes the expected return timestamp at approval
// time. Only returnable items with a configured duration get one.
func expectedReturnAt(it *models.Item, approvedAt time.Time) *time.Time {
	if !it.IsReturnable {
		return nil
	}
	window, ok := borrowWindow(it)
	if !ok {
		return nil
	}
	due := approvedAt.Add(window)
	return &due
}
