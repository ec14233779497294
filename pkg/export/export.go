// Package export writes audit records for offline reporting.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/resqmeals/gateway/core/model"
)

// Format names an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// CSVHeader lists the columns written by WriteCSV.
var CSVHeader = []string{
	"audit_id",
	"created_at",
	"restaurant_id",
	"charity_id",
	"charity_name",
	"driver_id",
	"driver_name",
	"pickup_address",
	"pickup_deadline",
	"items",
	"receipt_id",
	"status",
}

// Write encodes records in the given format. An unknown format writes JSON.
func Write(w io.Writer, f Format, recs []model.AuditRecord) error {
	if f == FormatCSV {
		return WriteCSV(w, recs)
	}
	return WriteJSON(w, recs)
}

// WriteJSON writes the records as one JSON array.
func WriteJSON(w io.Writer, recs []model.AuditRecord) error {
	if recs == nil {
		recs = []model.AuditRecord{}
	}
	return json.NewEncoder(w).Encode(recs)
}

// WriteCSV writes one row per record. Pickup fields come from the receipt
// when present, otherwise from the extraction.
func WriteCSV(w io.Writer, recs []model.AuditRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write(row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func row(r model.AuditRecord) []string {
	var charityID, charityName, driverID, driverName string
	if r.SelectedCharity != nil {
		charityID, charityName = r.SelectedCharity.ID, r.SelectedCharity.Name
	}
	if r.SelectedDriver != nil {
		driverID, driverName = r.SelectedDriver.ID, r.SelectedDriver.Name
	}
	var address, deadline, items string
	if r.Extracted != nil {
		address, deadline, items = r.Extracted.PickupAddress, r.Extracted.PickupDeadline, r.Extracted.ItemsSummary()
	}
	var receiptID string
	if r.Receipt != nil {
		receiptID = r.Receipt.ReceiptID
		if r.Receipt.PickupAddress != "" {
			address = r.Receipt.PickupAddress
		}
		if r.Receipt.PickupDeadline != "" {
			deadline = r.Receipt.PickupDeadline
		}
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.ID,
		created,
		r.RestaurantID,
		charityID,
		charityName,
		driverID,
		driverName,
		address,
		deadline,
		items,
		receiptID,
		r.Status,
	}
}
