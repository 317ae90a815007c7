package risk

import (
	"time"

	"github.com/google/uuid"
)

// OrderLink joins one assessment to one of the per-store orders its cart
// produced. Unique per (AssessmentID, OrderID).
type OrderLink struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	OrderID      uuid.UUID `json:"order_id"`
	StoreID      uuid.UUID `json:"store_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoreLink carries a store's aggregate share of a linked assessment.
// Unique per (AssessmentID, StoreID); aggregates cover that store's linked
// orders only and are never double-counted across repeated link calls.
type StoreLink struct {
	AssessmentID       uuid.UUID `json:"assessment_id"`
	StoreID            uuid.UUID `json:"store_id"`
	OrderID            uuid.UUID `json:"order_id"`
	ItemCount          int       `json:"item_count"`
	SubtotalMinorUnits int64     `json:"subtotal_minor_units"`
	CreatedAt          time.Time `json:"created_at"`
}
