//go:build integration

package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"nexus-inventory-api/internal/models"
	"nexus-inventory-api/internal/testutil"
)

// submitRequest creates a PENDING request over HTTP and returns it.
func submitRequest(t *testing.T, token string, itemID int64, quantity int) models.Request {
	t.Helper()
	w := doJSON(t, "POST", "/requests", token, map[string]interface{}{
		"item_id":  itemID,
		"quantity": quantity,
		"purpose":  "lab session",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201 creating request, got %d: %s", w.Code, w.Body.String())
	}
	var req models.Request
	if err := json.NewDecoder(w.Body).Decode(&req); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	return req
}

func itemQuantity(t *testing.T, itemID int64) int {
	t.Helper()
	var q int
	if err := testDB.QueryRow(`SELECT quantity FROM inventory_items WHERE id = $1`, itemID).Scan(&q); err != nil {
		t.Fatalf("Failed to read item quantity: %v", err)
	}
	return q
}

func TestApproveFlow(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "approve-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "approve-staff@test.edu", models.RoleStaff)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	days := 7
	itemID := createItem(t, "Approve Flow Oscilloscope", 5, true, &days)

	req := submitRequest(t, borrowerToken, itemID, 2)
	if req.Status != models.RequestPending {
		t.Fatalf("Expected PENDING, got %s", req.Status)
	}

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 approving, got %d: %s", w.Code, w.Body.String())
	}
	var approved models.Request
	if err := json.NewDecoder(w.Body).Decode(&approved); err != nil {
		t.Fatalf("Failed to decode approved request: %v", err)
	}
	if approved.Status != models.RequestApproved {
		t.Errorf("Expected APPROVED, got %s", approved.Status)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != staffID {
		t.Errorf("Expected approved_by = %d, got %v", staffID, approved.ApprovedBy)
	}
	if approved.ExpectedReturn == nil {
		t.Error("Expected a due date on approval of a returnable item with a duration")
	}
	if got := itemQuantity(t, itemID); got != 3 {
		t.Errorf("Expected stock 3 after approval, got %d", got)
	}

	// The borrower is notified about the approval
	var notifCount int
	err := testDB.QueryRow(`
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND request_id = $2 AND type = 'STATUS_CHANGE'`,
		borrowerID, req.ID).Scan(&notifCount)
	if err != nil {
		t.Fatalf("Failed to count notifications: %v", err)
	}
	if notifCount == 0 {
		t.Error("Expected an approval notification for the borrower")
	}
}

func TestSelfApprovalForbidden(t *testing.T) {
	testutil.RequireIntegration(t)

	staffID := createUser(t, "self-approve@test.edu", models.RoleStaff)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Self Approval Projector", 5, true, nil)
	req := submitRequest(t, staffToken, itemID, 1)

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for self-approval, got %d", w.Code)
	}
	if got := itemQuantity(t, itemID); got != 5 {
		t.Errorf("Stock must be untouched on a refused approval, got %d", got)
	}
}

func TestApproveInsufficientStock(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "stock-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "stock-staff@test.edu", models.RoleStaff)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Scarce Microscope", 2, true, nil)
	req := submitRequest(t, borrowerToken, itemID, 3)

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Error     string `json:"error"`
		Available *int   `json:"available"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body.Available == nil || *body.Available != 2 {
		t.Errorf("Expected available=2 in the error body, got %v", body.Available)
	}

	// Nothing changed: request still pending, stock untouched
	var status string
	if err := testDB.QueryRow(`SELECT status FROM requests WHERE id = $1`, req.ID).Scan(&status); err != nil {
		t.Fatalf("Failed to read request status: %v", err)
	}
	if status != models.RequestPending {
		t.Errorf("Expected request to stay PENDING, got %s", status)
	}
	if got := itemQuantity(t, itemID); got != 2 {
		t.Errorf("Expected stock untouched at 2, got %d", got)
	}
}

func TestNonReturnableCompletesImmediately(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "consumable-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "consumable-staff@test.edu", models.RoleStaff)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Solder Wire Spool", 10, false, nil)
	req := submitRequest(t, borrowerToken, itemID, 1)

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var approved models.Request
	if err := json.NewDecoder(w.Body).Decode(&approved); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if approved.Status != models.RequestCompleted {
		t.Errorf("Non-returnable approval should land on COMPLETED, got %s", approved.Status)
	}
	if approved.ExpectedReturn != nil {
		t.Error("Non-returnable items never get a due date")
	}

	// And it cannot be returned
	w = doJSON(t, "POST", fmt.Sprintf("/requests/%d/return", req.ID), borrowerToken, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 returning a consumable, got %d", w.Code)
	}
}

func TestReturnRestoresStock(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "return-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "return-staff@test.edu", models.RoleStaff)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Return Flow Camera", 1, true, nil)
	req := submitRequest(t, borrowerToken, itemID, 1)

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemQuantity(t, itemID); got != 0 {
		t.Fatalf("Expected stock 0 after approval, got %d", got)
	}

	// Exhausted stock flips the item to IN_USE
	var status string
	if err := testDB.QueryRow(`SELECT status FROM inventory_items WHERE id = $1`, itemID).Scan(&status); err != nil {
		t.Fatalf("Failed to read item status: %v", err)
	}
	if status != models.ItemInUse {
		t.Errorf("Expected item IN_USE at zero stock, got %s", status)
	}

	w = doJSON(t, "POST", fmt.Sprintf("/requests/%d/return", req.ID), borrowerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200 returning, got %d: %s", w.Code, w.Body.String())
	}
	if got := itemQuantity(t, itemID); got != 1 {
		t.Errorf("Expected stock restored to 1, got %d", got)
	}
	if err := testDB.QueryRow(`SELECT status FROM inventory_items WHERE id = $1`, itemID).Scan(&status); err != nil {
		t.Fatalf("Failed to read item status: %v", err)
	}
	if status != models.ItemAvailable {
		t.Errorf("Expected item AVAILABLE after return, got %s", status)
	}

	// A second return of the same request is rejected
	w = doJSON(t, "POST", fmt.Sprintf("/requests/%d/return", req.ID), borrowerToken, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 on double return, got %d", w.Code)
	}
	if got := itemQuantity(t, itemID); got != 1 {
		t.Errorf("Double return must not inflate stock, got %d", got)
	}
}

func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	testutil.RequireIntegration(t)

	staffID := createUser(t, "race-staff@test.edu", models.RoleStaff)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Contested VR Headset", 3, true, nil)

	// Five pending requests for one unit each against three in stock
	const requests = 5
	ids := make([]int64, requests)
	for i := 0; i < requests; i++ {
		borrowerID := createUser(t, fmt.Sprintf("race-borrower-%d@test.edu", i), models.RoleStudent)
		req := submitRequest(t, makeToken(t, borrowerID, models.RoleStudent), itemID, 1)
		ids[i] = req.ID
	}

	var approvedCount, conflictCount int64
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(requestID int64) {
			defer wg.Done()
			w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", requestID), staffToken, nil)
			switch w.Code {
			case http.StatusOK:
				atomic.AddInt64(&approvedCount, 1)
			case http.StatusConflict:
				atomic.AddInt64(&conflictCount, 1)
			default:
				t.Errorf("Unexpected status %d approving request %d: %s", w.Code, requestID, w.Body.String())
			}
		}(id)
	}
	wg.Wait()

	if approvedCount != 3 {
		t.Errorf("Expected exactly 3 approvals, got %d", approvedCount)
	}
	if conflictCount != 2 {
		t.Errorf("Expected exactly 2 stock conflicts, got %d", conflictCount)
	}
	if got := itemQuantity(t, itemID); got != 0 {
		t.Errorf("Expected stock exactly 0 after the race, got %d", got)
	}
}

func TestRejectWithReason(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "reject-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "reject-staff@test.edu", models.RoleStaff)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)
	staffToken := makeToken(t, staffID, models.RoleStaff)

	itemID := createItem(t, "Reject Flow Tripod", 5, true, nil)
	req := submitRequest(t, borrowerToken, itemID, 1)

	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/reject", req.ID), staffToken,
		map[string]string{"reason": "needed for a scheduled class"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var rejected models.Request
	if err := json.NewDecoder(w.Body).Decode(&rejected); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if rejected.Status != models.RequestRejected {
		t.Errorf("Expected REJECTED, got %s", rejected.Status)
	}
	if rejected.RejectionReason != "needed for a scheduled class" {
		t.Errorf("Expected the reason to be stored, got %q", rejected.RejectionReason)
	}
	if got := itemQuantity(t, itemID); got != 5 {
		t.Errorf("Rejection must not touch stock, got %d", got)
	}

	// Rejected is terminal
	w = doJSON(t, "POST", fmt.Sprintf("/requests/%d/approve", req.ID), staffToken, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409 approving a rejected request, got %d", w.Code)
	}
}

func TestCancelPendingRequest(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "cancel-borrower@test.edu", models.RoleStudent)
	otherID := createUser(t, "cancel-other@test.edu", models.RoleStudent)
	borrowerToken := makeToken(t, borrowerID, models.RoleStudent)

	itemID := createItem(t, "Cancel Flow Whiteboard", 5, true, nil)
	req := submitRequest(t, borrowerToken, itemID, 1)

	// Another student cannot cancel someone else's request
	w := doJSON(t, "POST", fmt.Sprintf("/requests/%d/cancel", req.ID), makeToken(t, otherID, models.RoleStudent), nil)
	if w.Code != http.StatusForbidden && w.Code != http.StatusNotFound {
		t.Errorf("Expected 403 or 404 for a stranger's cancel, got %d", w.Code)
	}

	w = doJSON(t, "POST", fmt.Sprintf("/requests/%d/cancel", req.ID), borrowerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var cancelled models.Request
	if err := json.NewDecoder(w.Body).Decode(&cancelled); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if cancelled.Status != models.RequestCancelled {
		t.Errorf("Expected CANCELLED, got %s", cancelled.Status)
	}
}

func TestClearCompletedRequests(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "clear-borrower@test.edu", models.RoleStudent)
	staffID := createUser(t, "clear-staff@test.edu", models.RoleStaff)
	itemID := createItem(t, "Clear Flow Keyboard", 5, true, nil)

	seedRequest := func(status string) int64 {
		var id int64
		err := testDB.QueryRow(`
			INSERT INTO requests (item_id, item_name, requested_by, quantity, status)
			VALUES ($1, 'Clear Flow Keyboard', $2, 1, $3) RETURNING id`,
			itemID, borrowerID, status).Scan(&id)
		if err != nil {
			t.Fatalf("Failed to seed %s request: %v", status, err)
		}
		return id
	}

	pendingID := seedRequest(models.RequestPending)
	approvedID := seedRequest(models.RequestApproved)
	terminalIDs := []int64{
		seedRequest(models.RequestCompleted),
		seedRequest(models.RequestReturned),
		seedRequest(models.RequestRejected),
		seedRequest(models.RequestCancelled),
	}

	w := doJSON(t, "DELETE", "/requests/completed", makeToken(t, staffID, models.RoleStaff), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Cleared int64 `json:"cleared"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	// Other tests may have left terminal rows behind, so at least ours
	if resp.Cleared < int64(len(terminalIDs)) {
		t.Errorf("Expected at least %d cleared, got %d", len(terminalIDs), resp.Cleared)
	}

	for _, id := range terminalIDs {
		var exists bool
		if err := testDB.QueryRow(`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			t.Fatalf("Failed to check request %d: %v", id, err)
		}
		if exists {
			t.Errorf("Expected terminal request %d deleted", id)
		}
	}
	for _, id := range []int64{pendingID, approvedID} {
		var exists bool
		if err := testDB.QueryRow(`SELECT EXISTS (SELECT 1 FROM requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			t.Fatalf("Failed to check request %d: %v", id, err)
		}
		if !exists {
			t.Errorf("Expected open request %d to survive the clear", id)
		}
	}
}

func TestRequestVisibilityScope(t *testing.T) {
	testutil.RequireIntegration(t)

	borrowerID := createUser(t, "vis-borrower@test.edu", models.RoleStudent)
	strangerID := createUser(t, "vis-stranger@test.edu", models.RoleStudent)
	staffID := createUser(t, "vis-staff@test.edu", models.RoleStaff)

	itemID := createItem(t, "Visibility Flow Drone", 5, true, nil)
	req := submitRequest(t, makeToken(t, borrowerID, models.RoleStudent), itemID, 1)

	// A stranger gets 404, not 403
	w := doJSON(t, "GET", fmt.Sprintf("/requests/%d", req.ID), makeToken(t, strangerID, models.RoleStudent), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for a stranger, got %d", w.Code)
	}

	w = doJSON(t, "GET", fmt.Sprintf("/requests/%d", req.ID), makeToken(t, borrowerID, models.RoleStudent), nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected the owner to see the request, got %d", w.Code)
	}

	w = doJSON(t, "GET", fmt.Sprintf("/requests/%d", req.ID), makeToken(t, staffID, models.RoleStaff), nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected staff to see the request, got %d", w.Code)
	}
}
