package nearby

import "context"

// WorklistFilter narrows the locations a run will attempt.
type WorklistFilter struct {
	// LocationIDs restricts the run to the given locations when non-empty.
	LocationIDs []int64
	// ForceRefresh includes locations that already have relationships
	// for the epoch; they will be recomputed and replaced.
	ForceRefresh bool
	// Limit caps the worklist size when positive.
	Limit int
}

// ExportRow is one flattened relationship row for CSV export.
type ExportRow struct {
	LocationID  int64
	DriveTime   int
	DataYear    int
	SchoolUUID  string
	Type        string
	ProcessedAt string
}

// Store persists catchment relationships and answers the queries the
// orchestrator and CLI need.
type Store interface {
	// Polygons returns the raw drive-time rows for a location. Rows
	// without a payload are not returned.
	Polygons(ctx context.Context, locationID int64) ([]*CatchmentPolygon, error)

	// Candidates returns every current, coordinate-bearing school
	// position for the epoch.
	Candidates(ctx context.Context, dataYear int) ([]Candidate, error)

	// Worklist returns the locations a run should attempt, honoring the
	// filter. Only locations with polygon data are eligible.
	Worklist(ctx context.Context, dataYear int, filter WorklistFilter) ([]Location, error)

	// HasRelationships reports whether the (location, epoch) key already
	// has persisted relationships.
	HasRelationships(ctx context.Context, locationID int64, dataYear int) (bool, error)

	// Replace atomically swaps all relationships for the (location,
	// epoch) key with the given per-tier members. Returns the counts of
	// relationships and entries written.
	Replace(ctx context.Context, locationID int64, dataYear int, members map[int][]Candidate) (int, int, error)

	// Validate inspects the persisted state of one (location, epoch).
	Validate(ctx context.Context, locationID int64, dataYear int) (*ValidationResult, error)

	// ValidateCompleteness reports epoch-level processing coverage.
	ValidateCompleteness(ctx context.Context, dataYear int) (*Completeness, error)

	// CleanupOrphans deletes entries whose parent relationship is gone.
	CleanupOrphans(ctx context.Context) (*CleanupResult, error)

	// Summary aggregates persisted relationships for the epoch.
	Summary(ctx context.Context, dataYear int) (*Summary, error)

	// UpdateProcessingStatus upserts the per-school processing flag.
	UpdateProcessingStatus(ctx context.Context, locationID int64, dataYear int, processed bool) error

	// ExportRows returns the epoch's relationships flattened for CSV.
	ExportRows(ctx context.Context, dataYear int) ([]ExportRow, error)
}
