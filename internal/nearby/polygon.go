package nearby

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// ErrNoPolygon marks a drive-time row whose payload cannot yield a usable
// boundary. Callers treat it as "tier absent", never as a fatal error.
var ErrNoPolygon = eris.New("nearby: no usable polygon")

// esriPolygon is the provider wire shape. Each ring is a list of
// [x, y, ...] positions; only the first (outer) ring is used.
type esriPolygon struct {
	Rings [][][]float64 `json:"rings"`
}

// ringBoundary holds the closed outer ring in go-geom flat form.
type ringBoundary struct {
	polygon *geom.Polygon
	flat    []float64
}

// DecodeBoundary parses the raw provider payload on p and validates the
// outer ring. Returns ErrNoPolygon for any payload that cannot produce a
// simple, positive-area boundary.
func (p *CatchmentPolygon) DecodeBoundary() error {
	if len(p.Raw) == 0 {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: empty payload", p.LocationID, p.DriveTime)
	}

	var wire esriPolygon
	if err := json.Unmarshal(p.Raw, &wire); err != nil {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: %v", p.LocationID, p.DriveTime, err)
	}
	if len(wire.Rings) == 0 || len(wire.Rings[0]) == 0 {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: no rings", p.LocationID, p.DriveTime)
	}

	outer := wire.Rings[0]
	flat := make([]float64, 0, (len(outer)+1)*2)
	for _, pt := range outer {
		if len(pt) < 2 {
			return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: malformed ring point", p.LocationID, p.DriveTime)
		}
		flat = append(flat, pt[0], pt[1])
	}

	// Close the ring if the provider left it open.
	n := len(flat)
	if flat[0] != flat[n-2] || flat[1] != flat[n-1] {
		flat = append(flat, flat[0], flat[1])
	}

	// A closed ring needs at least 4 points (triangle + closure).
	if len(flat)/2 < 4 {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: ring has %d points", p.LocationID, p.DriveTime, len(flat)/2)
	}

	poly := geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
	if math.Abs(poly.Area()) == 0 {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: zero-area ring", p.LocationID, p.DriveTime)
	}
	if ringSelfIntersects(flat) {
		return eris.Wrapf(ErrNoPolygon, "location %d drive_time %d: self-intersecting ring", p.LocationID, p.DriveTime)
	}

	p.boundary = &ringBoundary{polygon: poly, flat: flat}
	return nil
}

// Contains reports whether the point is inside the outer ring or exactly
// on its boundary. Boundary contact counts as membership.
func (p *CatchmentPolygon) Contains(lng, lat float64) bool {
	if p.boundary == nil {
		return false
	}
	coord := geom.Coord{lng, lat}
	return xy.IsPointInRing(geom.XY, coord, p.boundary.flat) ||
		xy.IsOnLine(geom.XY, coord, p.boundary.flat)
}

// VertexCount returns the number of points in the closed outer ring.
func (p *CatchmentPolygon) VertexCount() int {
	if p.boundary == nil {
		return 0
	}
	return len(p.boundary.flat) / 2
}

// ringSelfIntersects checks each pair of non-adjacent edges for a proper
// crossing. O(n^2) is fine at drive-time polygon sizes.
func ringSelfIntersects(flat []float64) bool {
	n := len(flat)/2 - 1 // edges in the closed ring
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges, including the first/last wrap pair.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(
				flat[2*i], flat[2*i+1], flat[2*i+2], flat[2*i+3],
				flat[2*j], flat[2*j+1], flat[2*j+2], flat[2*j+3],
			) {
				return true
			}
		}
	}
	return false
}

// segmentsCross reports a proper intersection between segments AB and CD.
// Shared endpoints and collinear touches do not count.
func segmentsCross(ax, ay, bx, by, cx, cy, dx, dy float64) bool {
	d1 := cross(cx, cy, dx, dy, ax, ay)
	d2 := cross(cx, cy, dx, dy, bx, by)
	d3 := cross(ax, ay, bx, by, cx, cy)
	d4 := cross(ax, ay, bx, by, dx, dy)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(ox, oy, ax, ay, bx, by float64) float64 {
	return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
}
