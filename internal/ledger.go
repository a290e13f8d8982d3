package internal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nexus-inventory-api/internal/models"
)

// reserveStock atomically decrements an item's quantity by amount, but
// only if enough stock remains. The decrement-if-enough is a single
// conditional UPDATE at the store; application code never reads the
// quantity and writes it back, so concurrent approvals against the
// same item cannot oversell it.
//
// Returns the remaining quantity after the decrement. When stock is
// short it returns an InsufficientStockError carrying the quantity
// actually available.
func reserveStock(ctx context.Context, q querier, itemID int64, amount int) (int, error) {
	if amount < 1 {
		return 0, validationErrorf("reserve amount must be at least 1")
	}

	var remaining int
	err := q.QueryRowContext(ctx, `
		UPDATE inventory_items
		SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity`, itemID, amount).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("reserve stock: %w", err)
	}

	// The conditional update missed: either the item is gone or stock
	// is short. Re-read to tell the two apart and report the actual
	// remaining quantity.
	var available int
	err = q.QueryRowContext(ctx,
		`SELECT quantity FROM inventory_items WHERE id = $1`, itemID).Scan(&available)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("reserve stock: %w", err)
	}
	return available, &InsufficientStockError{Available: available, Requested: amount}
}

// markInUseIfExhausted flips an item to IN_USE once its stock reaches
// zero. This is a follow-up write after a successful reservation; it
// does not need to be atomic with the decrement because a reserved
// item cannot go stock-negative regardless of status-write ordering.
func markInUseIfExhausted(ctx context.Context, q querier, itemID int64) error {
	_, err := q.ExecContext(ctx, `
		UPDATE inventory_items
		SET status = $2, updated_at = now()
		WHERE id = $1 AND quantity = 0 AND status = $3`,
		itemID, models.ItemInUse, models.ItemAvailable)
	return err
}

// releaseStock atomically increments an item's quantity by amount and
// flips IN_USE back to AVAILABLE. Releasing never fails validation;
// the caller guards against double-release by only allowing the
// return transition once per request.
func releaseStock(ctx context.Context, q querier, itemID int64, amount int) error {
	res, err := q.ExecContext(ctx, `
		UPDATE inventory_items
		SET quantity = quantity + $2,
		    status = CASE WHEN status = $3 THEN $4 ELSE status END,
		    updated_at = now()
		WHERE id = $1`,
		itemID, amount, models.ItemInUse, models.ItemAvailable)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// changeItemStatus is the administrative status override, independent
// of stock. It records the note, the actor and a timestamp, and clears
// the maintenance ETA unless the new status is MAINTENANCE and an ETA
// was supplied.
func changeItemStatus(ctx context.Context, q querier, itemID int64, newStatus, note string, actorID int64, maintenanceETA *time.Time) error {
	if !models.IsValidItemStatus(newStatus) {
		return validationErrorf("invalid item status %q", newStatus)
	}

	var eta *time.Time
	if newStatus == models.ItemMaintenance {
		eta = maintenanceETA
	}

	res, err := q.ExecContext(ctx, `
		UPDATE inventory_items
		SET status = $2,
		    status_note = $3,
		    status_changed_by = $4,
		    status_changed_at = now(),
		    maintenance_eta = $5,
		    updated_at = now()
		WHERE id = $1`,
		itemID, newStatus, note, actorID, eta)
	if err != nil {
		return fmt.Errorf("change item status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// getItem loads a single item row.
func getItem(ctx context.Context, q querier, itemID int64) (*models.Item, error) {
	var it models.Item
	err := q.QueryRowContext(ctx, `
		SELECT id, name, category, quantity, status, location, description,
		       access_level, is_returnable, status_note, status_changed_at,
		       status_changed_by, maintenance_eta, borrow_duration,
		       borrow_duration_unit, created_at, updated_at
		FROM inventory_items WHERE id = $1`, itemID).Scan(
		&it.ID, &it.Name, &it.Category, &it.Quantity, &it.Status, &it.Location,
		&it.Description, &it.AccessLevel, &it.IsReturnable, &it.StatusNote,
		&it.StatusChangedAt, &it.StatusChangedBy, &it.MaintenanceETA,
		&it.BorrowDuration, &it.BorrowUnit, &it.CreatedAt, &it.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}
