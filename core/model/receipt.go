package model

// Receipt is the donation acknowledgement generated for the donor.
type Receipt struct {
	ReceiptID      string `json:"receipt_id"`
	DonorLabel     string `json:"donor_label"`
	ReceivingOrg   string `json:"receiving_org"`
	Timestamp      string `json:"timestamp"`
	ItemSummary    string `json:"item_summary"`
	PickupAddress  string `json:"pickup_address"`
	PickupDeadline string `json:"pickup_deadline"`
	Disclaimer     string `json:"disclaimer"`
	ReceiptText    string `json:"receipt_text"`
}
