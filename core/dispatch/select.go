package dispatch

import (
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/resqmeals/gateway/core/fault"
	"github.com/resqmeals/gateway/core/model"
)

// ResolveCharity returns the candidate whose _id equals the top-ranked id.
// The ranking order is authoritative; there is no local tie-break.
func ResolveCharity(ranked []model.RankedCandidate, candidates []model.Charity) (model.Charity, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	if len(ranked) == 0 {
		return model.Charity{}, fault.Newf(fault.ErrSelection, "resolve charity", "ranking is empty").
			WithDebug(map[string]any{"ranked_top": nil, "candidate_ids": ids})
	}
	top := ranked[0]
	if strings.TrimSpace(top.ID) != "" {
		for _, c := range candidates {
			if c.ID == top.ID {
				return c, nil
			}
		}
	}
	return model.Charity{}, fault.Newf(fault.ErrSelection, "resolve charity", "ranked id %q is not a candidate", top.ID).
		WithDebug(map[string]any{"ranked_top": top, "candidate_ids": ids})
}

// SelectDriver picks the driver with the highest rating. The first driver
// wins a tie.
func SelectDriver(drivers []model.Driver) (model.Driver, error) {
	if len(drivers) == 0 {
		return model.Driver{}, fault.Newf(fault.ErrSelection, "select driver", "no available drivers")
	}
	ratings := make([]float64, len(drivers))
	for i, d := range drivers {
		ratings[i] = d.Rating
	}
	return drivers[floats.MaxIdx(ratings)], nil
}

// MapPoint is one marker of the dispatch map.
type MapPoint struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
}

// Map point types.
const (
	PointCharity         = "charity"
	PointCharitySelected = "charity_selected"
	PointDriver          = "driver"
	PointDriverSelected  = "driver_selected"
)

// MapPoints lists charities then drivers that carry both coordinates, marking
// the selected ones.
func MapPoints(charities []model.Charity, drivers []model.Driver, selectedCharity, selectedDriver string) []MapPoint {
	pts := []MapPoint{}
	for _, c := range charities {
		if c.Geo == nil {
			continue
		}
		typ := PointCharity
		if selectedCharity != "" && c.ID == selectedCharity {
			typ = PointCharitySelected
		}
		pts = append(pts, MapPoint{Lat: c.Geo.Lat, Lon: c.Geo.Lon, Label: labelOr(c.Name, "Charity"), Type: typ})
	}
	for _, d := range drivers {
		if d.Geo == nil {
			continue
		}
		typ := PointDriver
		if selectedDriver != "" && d.ID == selectedDriver {
			typ = PointDriverSelected
		}
		pts = append(pts, MapPoint{Lat: d.Geo.Lat, Lon: d.Geo.Lon, Label: labelOr(d.Name, "Driver"), Type: typ})
	}
	return pts
}

func labelOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
