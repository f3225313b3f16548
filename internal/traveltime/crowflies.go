package traveltime

import (
	"context"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/access-cli/internal/points"
)

const earthRadiusMeters = 6371008.8

// Straight-line speeds in km/h per mode.
var crowFliesKPH = map[Mode]float64{
	ModeWalk:  5,
	ModeBike:  15,
	ModeDrive: 40,
}

// CrowFlies estimates travel time from great-circle distance at a fixed speed
// per mode. Points outside the optional bounding box are unreachable.
type CrowFlies struct {
	metersPerSec float64
	bounds       *geom.Bounds
	sources      map[string]s2.LatLng
	dests        map[string]s2.LatLng
}

// NewCrowFlies builds a straight-line provider over the given point sets.
// bbox, when non-empty, is min_lon,min_lat,max_lon,max_lat.
func NewCrowFlies(mode Mode, sources *points.SourceSet, dests *points.DestSet, bbox []float64) (*CrowFlies, error) {
	kph, ok := crowFliesKPH[mode]
	if !ok {
		return nil, eris.Errorf("crowflies: invalid mode %q", mode)
	}

	c := &CrowFlies{
		metersPerSec: kph * 1000 / 3600,
		sources:      make(map[string]s2.LatLng, sources.Len()),
		dests:        make(map[string]s2.LatLng, dests.Len()),
	}
	switch len(bbox) {
	case 0:
	case 4:
		if bbox[0] > bbox[2] || bbox[1] > bbox[3] {
			return nil, eris.Errorf("crowflies: bbox min exceeds max: %v", bbox)
		}
		c.bounds = geom.NewBounds(geom.XY).Set(bbox...)
	default:
		return nil, eris.Errorf("crowflies: bbox needs 4 values, got %d", len(bbox))
	}

	for _, p := range sources.Points() {
		c.sources[p.ID] = s2.LatLngFromDegrees(p.Lat, p.Lon)
	}
	for _, p := range dests.Points() {
		c.dests[p.ID] = s2.LatLngFromDegrees(p.Lat, p.Lon)
	}
	return c, nil
}

func (c *CrowFlies) inBounds(ll s2.LatLng) bool {
	if c.bounds == nil {
		return true
	}
	return c.bounds.OverlapsPoint(geom.XY, geom.Coord{ll.Lng.Degrees(), ll.Lat.Degrees()})
}

// Time implements Provider.
func (c *CrowFlies) Time(_ context.Context, sourceID, destID string) (float64, error) {
	src, ok := c.sources[sourceID]
	if !ok {
		return 0, eris.Wrapf(ErrPairNotFound, "crowflies: unknown source %s", sourceID)
	}
	dst, ok := c.dests[destID]
	if !ok {
		return 0, eris.Wrapf(ErrPairNotFound, "crowflies: unknown dest %s", destID)
	}
	if !c.inBounds(src) || !c.inBounds(dst) {
		return Sentinel, nil
	}
	meters := src.Distance(dst).Radians() * earthRadiusMeters
	return meters / c.metersPerSec, nil
}
