package aggregator

import (
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// convexHull builds a single geometry collection from all transformed
// coordinates and takes its hull (spec.md §4.2 convex hull merge).
// Degenerate input (collinear points) is reported as an error so the
// caller can fall back to bbox union.
func convexHull(points [][2]float64) ([][2]float64, error) {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p[0], p[1]}
	}

	hull := planar.ConvexHull(mp)

	ring, ok := hull.(orb.Ring)
	if !ok || len(ring) < 4 {
		return nil, errors.New("convex hull merge produced a degenerate (non-polygonal) result")
	}

	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[i] = [2]float64{p[0], p[1]}
	}

	return out, nil
}
