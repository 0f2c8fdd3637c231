// Package nearby computes which schools fall inside a location's
// drive-time catchment polygons and persists the resulting
// relationships per processing epoch.
package nearby

import "time"

// DriveTimeTiers are the drive-time bands, in minutes, a fully
// processed location is expected to have polygons for.
var DriveTimeTiers = []int{5, 10, 15}

// RelationshipNearby is the relationship type written for schools found
// inside a catchment polygon. Other types may appear in future epochs.
const RelationshipNearby = "nearby"

// Location is a geocoded point a school occupies during an epoch.
type Location struct {
	ID        int64
	Latitude  float64
	Longitude float64
}

// Candidate is a school position eligible for membership testing:
// the school's current location in the epoch, with usable coordinates.
type Candidate struct {
	SchoolID   int64
	SchoolUUID string
	LocationID int64
	Latitude   float64
	Longitude  float64
	DataYear   int
}

// CatchmentPolygon is one decoded drive-time polygon for a location.
type CatchmentPolygon struct {
	LocationID int64
	DriveTime  int
	Latitude   float64
	Longitude  float64
	// Raw is the provider payload the boundary was decoded from,
	// retained for re-export and debugging.
	Raw []byte

	boundary *ringBoundary
}

// PolygonRelationship is one persisted (location, drive_time, epoch) row.
type PolygonRelationship struct {
	ID          int64
	LocationID  int64
	DriveTime   int
	DataYear    int
	ProcessedAt time.Time
}

// NearbySchoolEntry links a school to a polygon relationship.
type NearbySchoolEntry struct {
	ID                    int64
	PolygonRelationshipID int64
	SchoolUUID            string
	RelationshipType      string
	CreatedAt             time.Time
}

// Status classifies the outcome of processing a single location or a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// Outcome records what happened to one location during a run.
type Outcome struct {
	LocationID    int64
	Status        Status
	Tiers         []int
	SchoolsByTier map[int]int
	Err           error
}

// BatchSummary aggregates outcomes across a run.
type BatchSummary struct {
	DataYear    int
	Total       int
	Attempted   int
	Skipped     int
	Succeeded   int
	Failed      int
	SuccessRate float64
	Status      Status
	Outcomes    []Outcome
}

// ValidationResult reports the persisted state of one (location, epoch).
type ValidationResult struct {
	LocationID        int64  `json:"location_id"`
	DataYear          int    `json:"data_year"`
	Valid             bool   `json:"valid"`
	PolygonCount      int    `json:"polygon_count"`
	SchoolCount       int    `json:"school_count"`
	UniqueSchools     int    `json:"unique_schools"`
	DriveTimes        []int  `json:"drive_times"`
	MissingDriveTimes []int  `json:"missing_drive_times,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Completeness reports epoch-level processing coverage.
type Completeness struct {
	DataYear             int     `json:"data_year"`
	TotalLocations       int     `json:"total_locations"`
	ProcessedLocations   int     `json:"processed_locations"`
	LocationsWithEsri    int     `json:"locations_with_esri"`
	UniqueNearbySchools  int     `json:"unique_nearby_schools"`
	TotalNearbyRecords   int     `json:"total_nearby_records"`
	ProcessingRate       float64 `json:"processing_rate"`
	EsriAvailabilityRate float64 `json:"esri_availability_rate"`
}

// CleanupResult reports orphaned-entry garbage collection.
type CleanupResult struct {
	OrphanCount  int64
	DeletedCount int64
}

// TierBreakdown is the per-drive-time slice of a Summary.
type TierBreakdown struct {
	DriveTime         int `json:"drive_time"`
	PolygonCount      int `json:"polygon_count"`
	NearbySchoolCount int `json:"nearby_school_count"`
}

// Summary aggregates persisted relationships for an epoch.
type Summary struct {
	DataYear           int             `json:"data_year"`
	TotalRelationships int             `json:"total_relationships"`
	UniqueLocations    int             `json:"unique_locations"`
	DriveTimesSeen     int             `json:"drive_times_seen"`
	EarliestProcessed  *time.Time      `json:"earliest_processed,omitempty"`
	LatestProcessed    *time.Time      `json:"latest_processed,omitempty"`
	TotalNearby        int             `json:"total_nearby"`
	UniqueSchools      int             `json:"unique_schools"`
	Breakdown          []TierBreakdown `json:"breakdown"`
}
