package model

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoodItemQuantityForms(t *testing.T) {
	var d Donation
	raw := `{"food_items":[
		{"name":"pasta","quantity":20,"unit":"trays"},
		{"name":"bread","quantity":"12","unit":"loaves"},
		{"name":"soup","quantity":"a few","unit":""},
		{"name":"salad"}
	]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &d))
	require.Len(t, d.FoodItems, 4)
	assert.Equal(t, 20.0, *d.FoodItems[0].Quantity)
	assert.Equal(t, 12.0, *d.FoodItems[1].Quantity)
	assert.Nil(t, d.FoodItems[2].Quantity)
	assert.Nil(t, d.FoodItems[3].Quantity)
}

func TestItemsSummary(t *testing.T) {
	q := 20.0
	d := Donation{FoodItems: []FoodItem{
		{Name: "pasta", Quantity: &q, Unit: "trays"},
		{Name: "garlic bread"},
		{Quantity: &q},
	}}
	assert.Equal(t, "20 trays pasta, garlic bread, 20 item", d.ItemsSummary())
	assert.Equal(t, "Food donation", Donation{}.ItemsSummary())
}

func TestAuditID(t *testing.T) {
	at := time.Date(2026, 2, 1, 21, 30, 5, 123456000, time.FixedZone("X", 3600))
	id := AuditID(at, "restaurant:pasta-palace")
	assert.Equal(t, "audit:20260201T203005.123456Z:restaurant:pasta-palace", id)
	assert.Regexp(t, regexp.MustCompile(`^audit:\d{8}T\d{6}\.\d{6}Z:restaurant:pasta-palace$`), id)
}

func TestDriverHasChannel(t *testing.T) {
	d := Driver{Channels: []string{"sms", "telegram"}}
	assert.True(t, d.HasChannel("telegram"))
	assert.False(t, d.HasChannel("mqtt"))
}

func TestDriverLenientNumbers(t *testing.T) {
	var drivers []Driver
	raw := `[
		{"_id":"d1","rating":"4.9","max_radius_miles":"15","telegram_chat_id":"12345","channels":"telegram"},
		{"_id":"d2","rating":"excellent","max_radius_miles":null},
		{"_id":"d3","rating":3.5,"channels":["sms",7,"telegram"]}
	]`
	require.NoError(t, json.Unmarshal([]byte(raw), &drivers))
	require.Len(t, drivers, 3)

	assert.Equal(t, 4.9, drivers[0].Rating)
	assert.Equal(t, 15.0, drivers[0].MaxRadiusMiles)
	assert.Equal(t, int64(12345), drivers[0].TelegramChatID)
	assert.Equal(t, []string{"telegram"}, drivers[0].Channels)

	assert.Zero(t, drivers[1].Rating)
	assert.Zero(t, drivers[1].MaxRadiusMiles)

	assert.Equal(t, 3.5, drivers[2].Rating)
	assert.Equal(t, []string{"sms", "telegram"}, drivers[2].Channels)
}

func TestCharityKeepsUnknownFields(t *testing.T) {
	raw := `{"_id":"c1","name":"Kitchen","accepts":"bakery","hours":{"mon":"9-17"},"phone":"555-0100","geo":{"lat":40.1}}`
	var c Charity
	require.NoError(t, json.Unmarshal([]byte(raw), &c))

	assert.Equal(t, []string{"bakery"}, c.Accepts)
	assert.Equal(t, map[string]any{"mon": "9-17"}, c.Hours)
	assert.Equal(t, map[string]any{"phone": "555-0100"}, c.Extra)
	assert.Nil(t, c.Geo, "geo without lon is dropped")

	out, err := json.Marshal(c)
	require.NoError(t, err)
	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "555-0100", back["phone"])
	assert.Equal(t, map[string]any{"mon": "9-17"}, back["hours"])
	assert.Equal(t, "c1", back["_id"])
}

func TestCharityWithoutExtrasMarshalsPlainly(t *testing.T) {
	out, err := json.Marshal(Charity{ID: "c1", Name: "Kitchen"})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Extra")
	assert.NotContains(t, string(out), "hours")
}
