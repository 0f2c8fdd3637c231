package nearby

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNoPolygons means a location has no usable drive-time polygons at
// all, so membership cannot be computed for it.
var ErrNoPolygons = eris.New("nearby: no drive-time polygons for location")

// FindNearby tests every candidate against each of the location's
// decoded polygons and returns the members per drive-time tier. Tiers
// whose polygon failed to decode are absent from the result. The
// target location's own school is never a member.
func FindNearby(locationID int64, polygons map[int]*CatchmentPolygon, index *CandidateIndex) (map[int][]Candidate, error) {
	if len(polygons) == 0 {
		return nil, eris.Wrapf(ErrNoPolygons, "location %d", locationID)
	}

	candidates := index.Without(locationID)
	members := make(map[int][]Candidate, len(polygons))
	for driveTime, poly := range polygons {
		var inside []Candidate
		for _, c := range candidates {
			if poly.Contains(c.Longitude, c.Latitude) {
				inside = append(inside, c)
			}
		}
		members[driveTime] = inside
		zap.L().Debug("membership computed",
			zap.Int64("location_id", locationID),
			zap.Int("drive_time", driveTime),
			zap.Int("schools", len(inside)),
		)
	}
	return members, nil
}

// DecodePolygons decodes each raw drive-time row, dropping rows whose
// payload is unusable. Decode failures are logged and skipped; they are
// never fatal for the location as long as one tier survives.
func DecodePolygons(raw []*CatchmentPolygon) map[int]*CatchmentPolygon {
	out := make(map[int]*CatchmentPolygon, len(raw))
	for _, p := range raw {
		if err := p.DecodeBoundary(); err != nil {
			zap.L().Warn("skipping unusable polygon",
				zap.Int64("location_id", p.LocationID),
				zap.Int("drive_time", p.DriveTime),
				zap.Error(err),
			)
			continue
		}
		out[p.DriveTime] = p
	}
	return out
}
