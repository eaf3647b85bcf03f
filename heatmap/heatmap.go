// Package heatmap aggregates geolocated reports into S2 cells. Snapping to a
// cell center keeps exact report positions out of the public heatmap.
package heatmap

import (
	"sort"

	"anonymous-report-service/models"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

const (
	minLevel = 2
	maxLevel = 18
)

type cellKey struct {
	cell      s2.CellID
	crimeType string
	status    string
}

// Aggregator counts reports per S2 cell, crime type and status.
type Aggregator struct {
	level  int
	counts map[cellKey]int64
}

// NewAggregator snaps points to cells of the given level, clamped to [2, 18].
func NewAggregator(level int) *Aggregator {
	if level < minLevel {
		level = minLevel
	}
	if level > maxLevel {
		level = maxLevel
	}
	return &Aggregator{
		level:  level,
		counts: make(map[cellKey]int64),
	}
}

func (a *Aggregator) Add(p models.HeatmapPoint) {
	cell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Latitude, p.Longitude)).Parent(a.level)
	a.counts[cellKey{cell: cell, crimeType: p.CrimeType, status: p.Status}]++
}

// Cells returns the aggregated cells in a stable order.
func (a *Aggregator) Cells() []models.HeatmapCell {
	keys := make([]cellKey, 0, len(a.counts))
	for k := range a.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cell != keys[j].cell {
			return keys[i].cell < keys[j].cell
		}
		if keys[i].crimeType != keys[j].crimeType {
			return keys[i].crimeType < keys[j].crimeType
		}
		return keys[i].status < keys[j].status
	})

	cells := make([]models.HeatmapCell, 0, len(keys))
	for _, k := range keys {
		ll := k.cell.LatLng()
		cells = append(cells, models.HeatmapCell{
			Lat:       ll.Lat.Degrees(),
			Lng:       ll.Lng.Degrees(),
			CrimeType: k.crimeType,
			Status:    k.status,
			Count:     a.counts[k],
		})
	}
	return cells
}

// Aggregate is a shorthand for adding every point and reading the cells.
func Aggregate(points []models.HeatmapPoint, level int) []models.HeatmapCell {
	a := NewAggregator(level)
	for _, p := range points {
		a.Add(p)
	}
	return a.Cells()
}

// FeatureCollection renders cells as GeoJSON points.
func FeatureCollection(cells []models.HeatmapCell) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, c := range cells {
		f := geojson.NewPointFeature([]float64{c.Lng, c.Lat})
		f.SetProperty("crimeType", c.CrimeType)
		f.SetProperty("status", c.Status)
		f.SetProperty("count", c.Count)
		fc.AddFeature(f)
	}
	return fc
}
