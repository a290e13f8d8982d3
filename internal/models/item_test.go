package models

import "testing"

func TestItemStockHelpers(t *testing.T) {
	tests := []struct {
		name       string
		quantity   int
		lowStock   bool
		outOfStock bool
	}{
		{"zero is out of stock, not low", 0, false, true},
		{"one is low stock", 1, true, false},
		{"at threshold is low stock", LowStockThreshold, true, false},
		{"above threshold is healthy", LowStockThreshold + 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &Item{Quantity: tt.quantity}
			if got := it.IsLowStock(); got != tt.lowStock {
				t.Errorf("IsLowStock() = %v, want %v", got, tt.lowStock)
			}
			if got := it.IsOutOfStock(); got != tt.outOfStock {
				t.Errorf("IsOutOfStock() = %v, want %v", got, tt.outOfStock)
			}
		})
	}
}

func TestItemValidators(t *testing.T) {
	if !IsValidItemStatus(ItemAvailable) || !IsValidItemStatus(ItemRetired) {
		t.Error("Known statuses should validate")
	}
	if IsValidItemStatus("BROKEN") || IsValidItemStatus("") {
		t.Error("Unknown statuses should not validate")
	}

	if !IsValidCategory(CategoryElectronics) || !IsValidCategory(CategoryOther) {
		t.Error("Known categories should validate")
	}
	if IsValidCategory("VEHICLES") {
		t.Error("Unknown categories should not validate")
	}

	if !IsValidDurationUnit(UnitMinutes) || !IsValidDurationUnit(UnitMonths) {
		t.Error("Known units should validate")
	}
	if IsValidDurationUnit("WEEKS") {
		t.Error("Unknown units should not validate")
	}
}
