package metrics

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
)

// Store fetches metric inputs and persists computed rows.
type Store struct {
	pool db.Pool
}

// NewStore creates a Store.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// FetchInputs joins enrollments with catchment demographics for every
// school in the epoch, one row per drive-time tier.
func (s *Store) FetchInputs(ctx context.Context, dataYear int) ([]Inputs, error) {
	sql := `
		SELECT s.id, se.data_year, esri.drive_time,
		       COALESCE(se.enrollment_current, 0),
		       COALESCE(se.enrollment_past, 0),
		       COALESCE(esri.child_population, 0),
		       COALESCE(esri.child_population_past, 0)
		FROM edc.schools s
		JOIN edc.school_enrollments se ON s.id = se.school_id AND se.data_year = $1
		JOIN edc.school_locations sl ON s.id = sl.school_id
			AND sl.data_year = $1 AND sl.is_current = true
		JOIN edc.esri_demographic_data esri ON sl.location_id = esri.location_id
		ORDER BY s.id, esri.drive_time
	`
	rows, err := s.pool.Query(ctx, sql, dataYear)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: query inputs for year %d", dataYear)
	}
	defer rows.Close()

	var inputs []Inputs
	for rows.Next() {
		var in Inputs
		if err := rows.Scan(
			&in.SchoolID, &in.DataYear, &in.DriveTime,
			&in.EnrollmentCurrent, &in.EnrollmentPast,
			&in.PopulationCurrent, &in.PopulationPast,
		); err != nil {
			return nil, eris.Wrap(err, "metrics: scan input row")
		}
		inputs = append(inputs, in)
	}
	return inputs, rows.Err()
}

// SaveAll bulk-upserts computed metrics keyed by (school, epoch, tier).
func (s *Store) SaveAll(ctx context.Context, metrics []SchoolMetrics) (int64, error) {
	rows := make([][]any, len(metrics))
	for i, m := range metrics {
		rows[i] = []any{
			m.SchoolID, m.DataYear, m.DriveTime,
			m.EnrollmentCurrent, m.EnrollmentPast,
			m.PopulationCurrent, m.PopulationPast,
			m.MarketShareCurrent, m.MarketSharePast, m.MarketShareTrend, m.MarketShareStatus,
			m.EnrollmentTrend, m.EnrollmentStatus,
			m.PopulationTrend, m.PopulationStatus,
		}
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "edc.school_metrics",
		Columns: []string{
			"school_id", "data_year", "drive_time",
			"enrollment_current", "enrollment_past",
			"population_current", "population_past",
			"market_share_current", "market_share_past", "market_share_trend", "market_share_status",
			"enrollment_trend", "enrollment_status",
			"population_trend", "population_status",
		},
		ConflictKeys: []string{"school_id", "data_year", "drive_time"},
	}, rows)
}
