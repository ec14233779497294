package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/model"
	"github.com/resqmeals/gateway/core/store"
)

func TestSelectDriverFirstHighestRatingWins(t *testing.T) {
	drivers := []model.Driver{
		{ID: "driver:a", Rating: 3.2},
		{ID: "driver:b", Rating: 4.8},
		{ID: "driver:c", Rating: 4.8},
	}
	d, err := SelectDriver(drivers)
	require.NoError(t, err)
	assert.Equal(t, "driver:b", d.ID)
}

func TestSelectDriverEmpty(t *testing.T) {
	_, err := SelectDriver(nil)
	assert.ErrorIs(t, err, fault.ErrSelection)
}

func TestResolveCharity(t *testing.T) {
	candidates := []model.Charity{{ID: "charity:a", Name: "A"}, {ID: "charity:b", Name: "B"}}

	tests := []struct {
		name    string
		ranked  []model.RankedCandidate
		want    string
		wantErr bool
	}{
		{name: "top wins", ranked: []model.RankedCandidate{{ID: "charity:b", Score: 10}, {ID: "charity:a", Score: 90}}, want: "charity:b"},
		{name: "empty ranking", ranked: nil, wantErr: true},
		{name: "unknown id", ranked: []model.RankedCandidate{{ID: "charity:zzz"}}, wantErr: true},
		{name: "blank id", ranked: []model.RankedCandidate{{ID: " "}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ResolveCharity(tt.ranked, candidates)
			if tt.wantErr {
				require.ErrorIs(t, err, fault.ErrSelection)
				debug, ok := fault.Debug(err).(map[string]any)
				require.True(t, ok)
				assert.Equal(t, []string{"charity:a", "charity:b"}, debug["candidate_ids"])
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.ID)
		})
	}
}

func TestMapPointsMarksSelection(t *testing.T) {
	charities := []model.Charity{
		{ID: "charity:a", Name: "A", Geo: &model.Geo{Lat: 1, Lon: 2}},
		{ID: "charity:b"},
		{ID: "charity:c", Geo: &model.Geo{Lat: 3, Lon: 4}},
	}
	drivers := []model.Driver{{ID: "driver:a", Name: "Sam", Geo: &model.Geo{Lat: 5, Lon: 6}}}

	pts := MapPoints(charities, drivers, "charity:c", "driver:a")
	require.Len(t, pts, 3)
	assert.Equal(t, MapPoint{Lat: 1, Lon: 2, Label: "A", Type: PointCharity}, pts[0])
	assert.Equal(t, MapPoint{Lat: 3, Lon: 4, Label: "Charity", Type: PointCharitySelected}, pts[1])
	assert.Equal(t, PointDriverSelected, pts[2].Type)
}

func TestMapPointsSkipsPartialCoordinates(t *testing.T) {
	docs := []store.Doc{
		{"_id": "charity:a", "name": "A", "geo": map[string]any{"lat": 40.1}},
		{"_id": "charity:b", "name": "B", "geo": map[string]any{"lon": -74.1}},
		{"_id": "charity:c", "name": "C", "geo": map[string]any{"lat": "40.3", "lon": -74.3}},
		{"_id": "charity:d", "name": "D", "geo": "somewhere"},
	}
	charities, skipped := store.DecodeValid[model.Charity](docs)
	require.Empty(t, skipped)
	require.Len(t, charities, 4)

	pts := MapPoints(charities, nil, "charity:a", "")
	require.Len(t, pts, 1)
	assert.Equal(t, MapPoint{Lat: 40.3, Lon: -74.3, Label: "C", Type: PointCharity}, pts[0])
}
