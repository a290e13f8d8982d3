package internal

import (
	"fmt"

	"nexus-inventory-api/internal/models"
)

// lifecycleAction enumerates the request transitions subject to
// authorization. Role and ownership rules live in one place here
// instead of being re-implemented per handler.
type lifecycleAction string

const (
	actionApprove  lifecycleAction = "approve"
	actionReject   lifecycleAction = "reject"
	actionComplete lifecycleAction = "complete"
	actionCancel   lifecycleAction = "cancel"
	actionReturn   lifecycleAction = "return"
)

// authorizeTransition decides whether the actor may perform action on
// the request. The rules:
//
//   - approve: staff or above, and never the requester themself. A
//     requester holding a staff or admin role still cannot approve
//     their own request.
//   - reject: staff or above.
//   - complete, cancel, return: the original requester, or staff+.
func authorizeTransition(action lifecycleAction, actorID int64, actorRole models.Role, req *models.Request) error {
	isStaff := actorRole.AtLeast(models.RoleStaff)
	isOwner := actorID == req.RequestedBy

	switch action {
	case actionApprove:
		if !isStaff {
			return fmt.Errorf("%w: staff role required to approve requests", ErrForbidden)
		}
		if isOwner {
			return fmt.Errorf("%w: you cannot approve your own request", ErrForbidden)
		}
		return nil
	case actionReject:
		if !isStaff {
			return fmt.Errorf("%w: staff role required to reject requests", ErrForbidden)
		}
		return nil
	case actionComplete, actionCancel, actionReturn:
		if !isOwner && !isStaff {
			return fmt.Errorf("%w: only the requester or staff may %s this request", ErrForbidden, action)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
}
