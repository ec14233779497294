package model

import (
	"fmt"
	"time"
)

// AuditType is the document type of audit records.
const AuditType = "audit"

// StatusDispatched marks an audit record of a completed dispatch.
const StatusDispatched = "dispatched"

// auditTimeLayout avoids colons so the id splits cleanly on ':'.
const auditTimeLayout = "20060102T150405.000000Z"

// AuditRecord is the single durable artifact of a dispatch.
type AuditRecord struct {
	ID                string    `json:"_id"`
	Type              string    `json:"type"`
	CreatedAt         time.Time `json:"created_at"`
	RestaurantID      string    `json:"restaurant_id"`
	RestaurantMessage string    `json:"restaurant_message"`
	Extracted         *Donation `json:"extracted"`
	SelectedCharity   *Charity  `json:"selected_charity"`
	SelectedDriver    *Driver   `json:"selected_driver"`
	DriverMessage     string    `json:"driver_message"`
	Receipt           *Receipt  `json:"receipt"`
	ReceiptRaw        string    `json:"receipt_raw,omitempty"`
	Status            string    `json:"status"`
}

// AuditID derives the deterministic audit key "audit:<timestamp>:<restaurant_id>".
func AuditID(at time.Time, restaurantID string) string {
	return fmt.Sprintf("audit:%s:%s", at.UTC().Format(auditTimeLayout), restaurantID)
}
