package model

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Geo is a WGS84 coordinate.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Charity is reference data fetched from the charities collection.
// The orchestrator never mutates it.
type Charity struct {
	ID             string   `json:"_id"`
	Rev            string   `json:"_rev,omitempty"`
	Type           string   `json:"type,omitempty"`
	Name           string   `json:"name"`
	Accepts        []string `json:"accepts"`
	MaxRadiusMiles float64  `json:"max_radius_miles"`
	Address        string   `json:"address"`
	Hours          any      `json:"hours,omitempty"` // free text or a per-day object
	CapacityNotes  string   `json:"capacity_notes"`
	Geo            *Geo     `json:"geo,omitempty"`

	// Extra keeps document fields the gateway does not model so they
	// survive into the audit record.
	Extra map[string]any `json:"-"`
}

type charityDoc Charity

var charityKeys = jsonKeys(reflect.TypeOf(Charity{}))

// UnmarshalJSON reads numbers given as strings, a single category given as
// a string, and collects unknown fields into Extra.
func (c *Charity) UnmarshalJSON(data []byte) error {
	var aux struct {
		charityDoc
		Accepts        json.RawMessage `json:"accepts"`
		MaxRadiusMiles json.RawMessage `json:"max_radius_miles"`
		Geo            json.RawMessage `json:"geo"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Charity(aux.charityDoc)
	c.Accepts = lenientStrings(aux.Accepts)
	c.MaxRadiusMiles = lenientNumber(aux.MaxRadiusMiles)
	c.Geo = lenientGeo(aux.Geo)
	extra, err := unknownFields(data, charityKeys)
	c.Extra = extra
	return err
}

// MarshalJSON writes the modelled fields followed by Extra.
func (c Charity) MarshalJSON() ([]byte, error) {
	return withExtra(charityDoc(c), c.Extra)
}

// Driver statuses recognised by the drivers collection.
const (
	DriverAvailable = "available"
	DriverBusy      = "busy"
)

// Driver is a volunteer who can collect a donation.
type Driver struct {
	ID             string   `json:"_id"`
	Rev            string   `json:"_rev,omitempty"`
	Type           string   `json:"type,omitempty"`
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	MaxRadiusMiles float64  `json:"max_radius_miles"`
	Vehicle        string   `json:"vehicle"`
	Channels       []string `json:"channels"`
	Rating         float64  `json:"rating"`
	Geo            *Geo     `json:"geo,omitempty"`
	TelegramChatID int64    `json:"telegram_chat_id,omitempty"`

	Extra map[string]any `json:"-"`
}

type driverDoc Driver

var driverKeys = jsonKeys(reflect.TypeOf(Driver{}))

// UnmarshalJSON accepts ratings, radii and chat ids encoded as numbers or
// numeric strings. Anything else reads as 0 so one irregular driver never
// blocks a dispatch.
func (d *Driver) UnmarshalJSON(data []byte) error {
	var aux struct {
		driverDoc
		Channels       json.RawMessage `json:"channels"`
		MaxRadiusMiles json.RawMessage `json:"max_radius_miles"`
		Rating         json.RawMessage `json:"rating"`
		Geo            json.RawMessage `json:"geo"`
		TelegramChatID json.RawMessage `json:"telegram_chat_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = Driver(aux.driverDoc)
	d.Channels = lenientStrings(aux.Channels)
	d.MaxRadiusMiles = lenientNumber(aux.MaxRadiusMiles)
	d.Rating = lenientNumber(aux.Rating)
	d.Geo = lenientGeo(aux.Geo)
	d.TelegramChatID = int64(lenientNumber(aux.TelegramChatID))
	extra, err := unknownFields(data, driverKeys)
	d.Extra = extra
	return err
}

// MarshalJSON writes the modelled fields followed by Extra.
func (d Driver) MarshalJSON() ([]byte, error) {
	return withExtra(driverDoc(d), d.Extra)
}

// HasChannel reports whether the driver accepts messages on channel.
func (d Driver) HasChannel(channel string) bool {
	for _, c := range d.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

func lenientNumber(raw json.RawMessage) float64 {
	if n := parseQuantity(raw); n != nil {
		return *n
	}
	return 0
}

func lenientStrings(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && strings.TrimSpace(one) != "" {
		return []string{strings.TrimSpace(one)}
	}
	var mixed []any
	if err := json.Unmarshal(raw, &mixed); err != nil {
		return nil
	}
	out := make([]string, 0, len(mixed))
	for _, v := range mixed {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// lenientGeo returns nil unless both coordinates are present and numeric.
func lenientGeo(raw json.RawMessage) *Geo {
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil
	}
	lat, lon := parseQuantity(parts["lat"]), parseQuantity(parts["lon"])
	if lat == nil || lon == nil {
		return nil
	}
	return &Geo{Lat: *lat, Lon: *lon}
}

func jsonKeys(t reflect.Type) map[string]bool {
	keys := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}

func unknownFields(data []byte, known map[string]bool) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k := range all {
		if known[k] {
			delete(all, k)
		}
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func withExtra(v any, extra map[string]any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return raw, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, x := range extra {
		if _, ok := m[k]; !ok {
			m[k] = x
		}
	}
	return json.Marshal(m)
}
