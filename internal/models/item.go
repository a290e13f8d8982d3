package models

import "time"

// Item statuses
const (
	ItemAvailable   = "AVAILABLE"
	ItemInUse       = "IN_USE"
	ItemMaintenance = "MAINTENANCE"
	ItemRetired     = "RETIRED"
)

// Item categories
const (
	CategoryElectronics = "ELECTRONICS"
	CategoryFurniture   = "FURNITURE"
	CategoryEquipment   = "EQUIPMENT"
	CategorySupplies    = "SUPPLIES"
	CategoryOther       = "OTHER"
)

// Borrow duration units
const (
	UnitMinutes = "MINUTES"
	UnitHours   = "HOURS"
	UnitDays    = "DAYS"
	UnitMonths  = "MONTHS"
)

// LowStockThreshold is the quantity at or below which an item counts as low stock.
const LowStockThreshold = 5

var itemStatuses = map[string]bool{
	ItemAvailable:   true,
	ItemInUse:       true,
	ItemMaintenance: true,
	ItemRetired:     true,
}

var itemCategories = map[string]bool{
	CategoryElectronics: true,
	CategoryFurniture:   true,
	CategoryEquipment:   true,
	CategorySupplies:    true,
	CategoryOther:       true,
}

var durationUnits = map[string]bool{
	UnitMinutes: true,
	UnitHours:   true,
	UnitDays:    true,
	UnitMonths:  true,
}

// IsValidItemStatus checks an item status value.
func IsValidItemStatus(s string) bool { return itemStatuses[s] }

// IsValidCategory checks an item category value.
func IsValidCategory(c string) bool { return itemCategories[c] }

// IsValidDurationUnit checks a borrow duration unit value.
func IsValidDurationUnit(u string) bool { return durationUnits[u] }

// Item represents a catalog entry with authoritative stock counts.
type Item struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Quantity        int        `json:"quantity"`
	Status          string     `json:"status"`
	Location        string     `json:"location,omitempty"`
	Description     string     `json:"description,omitempty"`
	AccessLevel     Role       `json:"access_level"`
	IsReturnable    bool       `json:"is_returnable"`
	StatusNote      string     `json:"status_note,omitempty"`
	StatusChangedAt *time.Time `json:"status_changed_at,omitempty"`
	StatusChangedBy *int64     `json:"status_changed_by,omitempty"`
	MaintenanceETA  *time.Time `json:"maintenance_eta,omitempty"`
	BorrowDuration  *int       `json:"borrow_duration,omitempty"`
	BorrowUnit      string     `json:"borrow_duration_unit,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsLowStock reports whether the item is in low (but not zero) stock.
func (it *Item) IsLowStock() bool {
	return it.Quantity > 0 && it.Quantity <= LowStockThreshold
}

// IsOutOfStock reports whether the item has no stock left.
func (it *Item) IsOutOfStock() bool {
	return it.Quantity == 0
}

// CreateItemRequest represents the request body for creating an item
type CreateItemRequest struct {
	Name           string     `json:"name" validate:"required"`
	Category       string     `json:"category"`
	Quantity       *int       `json:"quantity"`
	Status         string     `json:"status"`
	Location       string     `json:"location"`
	Description    string     `json:"description"`
	AccessLevel    string     `json:"access_level"`
	IsReturnable   *bool      `json:"is_returnable"`
	BorrowDuration *int       `json:"borrow_duration"`
	BorrowUnit     string     `json:"borrow_duration_unit"`
	MaintenanceETA *time.Time `json:"maintenance_eta"`
}

// ChangeItemStatusRequest represents the request body for a direct status override
type ChangeItemStatusRequest struct {
	Status         string     `json:"status" validate:"required"`
	Note           string     `json:"note"`
	MaintenanceETA *time.Time `json:"maintenance_eta"`
}
