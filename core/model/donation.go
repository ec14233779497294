package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FoodItem is one line of surplus food extracted from a restaurant message.
type FoodItem struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"` // nil when the message gave no amount
	Unit     string   `json:"unit"`
}

// UnmarshalJSON accepts quantities encoded as numbers or numeric strings.
// Anything else leaves Quantity nil.
func (f *FoodItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string          `json:"name"`
		Quantity json.RawMessage `json:"quantity"`
		Unit     string          `json:"unit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Name = raw.Name
	f.Unit = raw.Unit
	f.Quantity = parseQuantity(raw.Quantity)
	return nil
}

func parseQuantity(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return &v
	}
	return nil
}

// Summary renders the item as "<qty> <unit> <name>", omitting empty parts.
func (f FoodItem) Summary() string {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = "item"
	}
	if f.Quantity == nil {
		return name
	}
	parts := []string{strconv.FormatFloat(*f.Quantity, 'f', -1, 64)}
	if u := strings.TrimSpace(f.Unit); u != "" {
		parts = append(parts, u)
	}
	parts = append(parts, name)
	return strings.Join(parts, " ")
}

// Donation is the structured form of a restaurant surplus message.
// Fields the model could not find stay empty and may be listed in
// MissingFields.
type Donation struct {
	FoodItems      []FoodItem `json:"food_items"`
	PickupDeadline string     `json:"pickup_deadline"`
	PickupAddress  string     `json:"pickup_address"`
	Notes          string     `json:"notes"`
	MissingFields  []string   `json:"missing_fields"`
}

// ItemsSummary joins the item summaries, or "Food donation" when there are none.
func (d Donation) ItemsSummary() string {
	if len(d.FoodItems) == 0 {
		return "Food donation"
	}
	parts := make([]string, 0, len(d.FoodItems))
	for _, it := range d.FoodItems {
		parts = append(parts, it.Summary())
	}
	return strings.Join(parts, ", ")
}
