package nearby

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
)

// PostgresStore implements Store on a Postgres connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Polygons implements Store.
func (s *PostgresStore) Polygons(ctx context.Context, locationID int64) ([]*CatchmentPolygon, error) {
	sql := `
		SELECT drive_time, drive_time_polygon, latitude, longitude
		FROM edc.esri_demographic_data
		WHERE location_id = $1
		  AND drive_time_polygon IS NOT NULL
		ORDER BY drive_time
	`
	rows, err := s.pool.Query(ctx, sql, locationID)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: query polygons for location %d", locationID)
	}
	defer rows.Close()

	var polygons []*CatchmentPolygon
	for rows.Next() {
		p := &CatchmentPolygon{LocationID: locationID}
		if err := rows.Scan(&p.DriveTime, &p.Raw, &p.Latitude, &p.Longitude); err != nil {
			return nil, eris.Wrap(err, "nearby: scan polygon row")
		}
		polygons = append(polygons, p)
	}
	return polygons, rows.Err()
}

// Candidates implements Store.
func (s *PostgresStore) Candidates(ctx context.Context, dataYear int) ([]Candidate, error) {
	sql := `
		SELECT s.id, s.uuid, sl.location_id, lp.latitude, lp.longitude, sl.data_year
		FROM edc.schools s
		JOIN edc.school_locations sl ON s.id = sl.school_id
		JOIN edc.location_points lp ON sl.location_id = lp.id
		WHERE sl.data_year = $1
		  AND sl.is_current = true
		  AND lp.latitude IS NOT NULL
		  AND lp.longitude IS NOT NULL
		ORDER BY s.id
	`
	rows, err := s.pool.Query(ctx, sql, dataYear)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: query candidates for year %d", dataYear)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.SchoolID, &c.SchoolUUID, &c.LocationID, &c.Latitude, &c.Longitude, &c.DataYear); err != nil {
			return nil, eris.Wrap(err, "nearby: scan candidate row")
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Worklist implements Store.
func (s *PostgresStore) Worklist(ctx context.Context, dataYear int, filter WorklistFilter) ([]Location, error) {
	sql := `
		SELECT DISTINCT lp.id, lp.latitude, lp.longitude
		FROM edc.location_points lp
		JOIN edc.school_locations sl ON lp.id = sl.location_id
		LEFT JOIN edc.school_polygon_relationships spr
			ON lp.id = spr.location_id AND spr.data_year = $1
		WHERE sl.data_year = $1
		  AND sl.is_current = true
		  AND lp.latitude IS NOT NULL
		  AND lp.longitude IS NOT NULL
		  AND EXISTS (
			SELECT 1 FROM edc.esri_demographic_data esri
			WHERE esri.location_id = lp.id
			  AND esri.drive_time_polygon IS NOT NULL
		  )
	`
	args := []any{dataYear}
	if !filter.ForceRefresh {
		sql += " AND spr.id IS NULL"
	}
	if len(filter.LocationIDs) > 0 {
		sql += " AND lp.id = ANY($2)"
		args = append(args, filter.LocationIDs)
	}
	sql += " ORDER BY lp.id"
	if filter.Limit > 0 {
		sql += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: query worklist for year %d", dataYear)
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.ID, &l.Latitude, &l.Longitude); err != nil {
			return nil, eris.Wrap(err, "nearby: scan worklist row")
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// HasRelationships implements Store.
func (s *PostgresStore) HasRelationships(ctx context.Context, locationID int64, dataYear int) (bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM edc.school_polygon_relationships
		WHERE location_id = $1 AND data_year = $2
	`, locationID, dataYear).Scan(&count)
	if err != nil {
		return false, eris.Wrapf(err, "nearby: check relationships for location %d", locationID)
	}
	return count > 0, nil
}

// Replace implements Store. The delete-then-insert swap runs in a single
// transaction; any failure rolls back and leaves prior data intact.
func (s *PostgresStore) Replace(ctx context.Context, locationID int64, dataYear int, members map[int][]Candidate) (int, int, error) {
	if len(members) == 0 {
		return 0, 0, eris.Errorf("nearby: replace with no tiers for location %d", locationID)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "nearby: replace: begin tx")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM edc.nearby_school_polygons
		WHERE polygon_relationship_id IN (
			SELECT id FROM edc.school_polygon_relationships
			WHERE location_id = $1 AND data_year = $2
		)
	`, locationID, dataYear); err != nil {
		return 0, 0, eris.Wrapf(err, "nearby: replace: delete entries for location %d", locationID)
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM edc.school_polygon_relationships
		WHERE location_id = $1 AND data_year = $2
	`, locationID, dataYear); err != nil {
		return 0, 0, eris.Wrapf(err, "nearby: replace: delete relationships for location %d", locationID)
	}

	tiers := make([]int, 0, len(members))
	for driveTime := range members {
		tiers = append(tiers, driveTime)
	}
	sort.Ints(tiers)

	now := time.Now().UTC()
	relationships := 0
	var entryRows [][]any
	for _, driveTime := range tiers {
		var relationshipID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO edc.school_polygon_relationships
				(location_id, drive_time, data_year, processed_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4, $4)
			RETURNING id
		`, locationID, driveTime, dataYear, now).Scan(&relationshipID)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "nearby: replace: insert relationship for location %d drive_time %d", locationID, driveTime)
		}
		relationships++

		for _, school := range members[driveTime] {
			entryRows = append(entryRows, []any{relationshipID, school.SchoolUUID, RelationshipNearby, now})
		}
	}

	entries, err := db.CopyInto(ctx, tx, "edc.nearby_school_polygons",
		[]string{"polygon_relationship_id", "school_uuid", "relationship_type", "created_at"},
		entryRows)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "nearby: replace: insert entries for location %d", locationID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "nearby: replace: commit tx")
	}
	return relationships, int(entries), nil
}

// Validate implements Store.
func (s *PostgresStore) Validate(ctx context.Context, locationID int64, dataYear int) (*ValidationResult, error) {
	result := &ValidationResult{LocationID: locationID, DataYear: dataYear}

	var driveTimes []int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(array_agg(DISTINCT drive_time ORDER BY drive_time) FILTER (WHERE drive_time IS NOT NULL), '{}'::int[])
		FROM edc.school_polygon_relationships
		WHERE location_id = $1 AND data_year = $2
	`, locationID, dataYear).Scan(&result.PolygonCount, &driveTimes)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: validate relationships for location %d", locationID)
	}
	result.DriveTimes = driveTimes

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT nsp.school_uuid)
		FROM edc.school_polygon_relationships spr
		JOIN edc.nearby_school_polygons nsp ON spr.id = nsp.polygon_relationship_id
		WHERE spr.location_id = $1 AND spr.data_year = $2
	`, locationID, dataYear).Scan(&result.SchoolCount, &result.UniqueSchools)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: validate entries for location %d", locationID)
	}

	seen := make(map[int]bool, len(driveTimes))
	for _, dt := range driveTimes {
		seen[dt] = true
	}
	for _, dt := range DriveTimeTiers {
		if !seen[dt] {
			result.MissingDriveTimes = append(result.MissingDriveTimes, dt)
		}
	}

	result.Valid = result.PolygonCount > 0
	switch {
	case result.PolygonCount == 0:
		result.Error = "no polygon relationships found"
	case len(result.MissingDriveTimes) > 0:
		result.Error = "missing drive times"
	}
	return result, nil
}

// ValidateCompleteness implements Store.
func (s *PostgresStore) ValidateCompleteness(ctx context.Context, dataYear int) (*Completeness, error) {
	c := &Completeness{DataYear: dataYear}
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(DISTINCT lp.id),
			COUNT(DISTINCT CASE WHEN spr.id IS NOT NULL THEN lp.id END),
			COUNT(DISTINCT CASE WHEN esri.location_id IS NOT NULL THEN lp.id END),
			COUNT(DISTINCT nsp.school_uuid),
			COUNT(nsp.id)
		FROM edc.location_points lp
		JOIN edc.school_locations sl ON lp.id = sl.location_id
		LEFT JOIN edc.school_polygon_relationships spr
			ON lp.id = spr.location_id AND spr.data_year = $1
		LEFT JOIN edc.nearby_school_polygons nsp ON spr.id = nsp.polygon_relationship_id
		LEFT JOIN (
			SELECT DISTINCT location_id FROM edc.esri_demographic_data
			WHERE drive_time_polygon IS NOT NULL
		) esri ON lp.id = esri.location_id
		WHERE sl.data_year = $1
		  AND sl.is_current = true
		  AND lp.latitude IS NOT NULL
		  AND lp.longitude IS NOT NULL
	`, dataYear).Scan(
		&c.TotalLocations, &c.ProcessedLocations, &c.LocationsWithEsri,
		&c.UniqueNearbySchools, &c.TotalNearbyRecords,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: validate completeness for year %d", dataYear)
	}
	if c.TotalLocations > 0 {
		c.ProcessingRate = float64(c.ProcessedLocations) / float64(c.TotalLocations) * 100
		c.EsriAvailabilityRate = float64(c.LocationsWithEsri) / float64(c.TotalLocations) * 100
	}
	return c, nil
}

// CleanupOrphans implements Store.
func (s *PostgresStore) CleanupOrphans(ctx context.Context) (*CleanupResult, error) {
	result := &CleanupResult{}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM edc.nearby_school_polygons nsp
		LEFT JOIN edc.school_polygon_relationships spr ON nsp.polygon_relationship_id = spr.id
		WHERE spr.id IS NULL
	`).Scan(&result.OrphanCount)
	if err != nil {
		return nil, eris.Wrap(err, "nearby: count orphaned entries")
	}
	if result.OrphanCount == 0 {
		return result, nil
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM edc.nearby_school_polygons nsp
		WHERE NOT EXISTS (
			SELECT 1 FROM edc.school_polygon_relationships spr
			WHERE spr.id = nsp.polygon_relationship_id
		)
	`)
	if err != nil {
		return nil, eris.Wrap(err, "nearby: delete orphaned entries")
	}
	result.DeletedCount = tag.RowsAffected()
	return result, nil
}

// Summary implements Store.
func (s *PostgresStore) Summary(ctx context.Context, dataYear int) (*Summary, error) {
	summary := &Summary{DataYear: dataYear}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT location_id), COUNT(DISTINCT drive_time),
		       MIN(processed_at), MAX(processed_at)
		FROM edc.school_polygon_relationships
		WHERE data_year = $1
	`, dataYear).Scan(
		&summary.TotalRelationships, &summary.UniqueLocations, &summary.DriveTimesSeen,
		&summary.EarliestProcessed, &summary.LatestProcessed,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: summary relationships for year %d", dataYear)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT nsp.school_uuid)
		FROM edc.nearby_school_polygons nsp
		JOIN edc.school_polygon_relationships spr ON nsp.polygon_relationship_id = spr.id
		WHERE spr.data_year = $1
	`, dataYear).Scan(&summary.TotalNearby, &summary.UniqueSchools)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: summary entries for year %d", dataYear)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT spr.drive_time, COUNT(DISTINCT spr.id), COUNT(nsp.id)
		FROM edc.school_polygon_relationships spr
		LEFT JOIN edc.nearby_school_polygons nsp ON spr.id = nsp.polygon_relationship_id
		WHERE spr.data_year = $1
		GROUP BY spr.drive_time
		ORDER BY spr.drive_time
	`, dataYear)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: summary breakdown for year %d", dataYear)
	}
	defer rows.Close()

	for rows.Next() {
		var b TierBreakdown
		if err := rows.Scan(&b.DriveTime, &b.PolygonCount, &b.NearbySchoolCount); err != nil {
			return nil, eris.Wrap(err, "nearby: scan breakdown row")
		}
		summary.Breakdown = append(summary.Breakdown, b)
	}
	return summary, rows.Err()
}

// UpdateProcessingStatus implements Store.
func (s *PostgresStore) UpdateProcessingStatus(ctx context.Context, locationID int64, dataYear int, processed bool) error {
	var schoolID int64
	err := s.pool.QueryRow(ctx, `
		SELECT s.id
		FROM edc.school_locations sl
		JOIN edc.schools s ON sl.school_id = s.id
		WHERE sl.location_id = $1 AND sl.data_year = $2 AND sl.is_current = true
		LIMIT 1
	`, locationID, dataYear).Scan(&schoolID)
	if err != nil {
		return eris.Wrapf(err, "nearby: resolve school for location %d", locationID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO edc.processing_status (school_id, data_year, nearby_processed, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (school_id, data_year)
		DO UPDATE SET nearby_processed = EXCLUDED.nearby_processed, updated_at = now()
	`, schoolID, dataYear, processed)
	return eris.Wrapf(err, "nearby: update processing status for school %d", schoolID)
}

// ExportRows implements Store.
func (s *PostgresStore) ExportRows(ctx context.Context, dataYear int) ([]ExportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT spr.location_id, spr.drive_time, spr.data_year,
		       nsp.school_uuid, nsp.relationship_type,
		       to_char(spr.processed_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM edc.school_polygon_relationships spr
		JOIN edc.nearby_school_polygons nsp ON spr.id = nsp.polygon_relationship_id
		WHERE spr.data_year = $1
		ORDER BY spr.location_id, spr.drive_time, nsp.school_uuid
	`, dataYear)
	if err != nil {
		return nil, eris.Wrapf(err, "nearby: query export rows for year %d", dataYear)
	}
	defer rows.Close()

	var out []ExportRow
	for rows.Next() {
		var r ExportRow
		if err := rows.Scan(&r.LocationID, &r.DriveTime, &r.DataYear, &r.SchoolUUID, &r.Type, &r.ProcessedAt); err != nil {
			return nil, eris.Wrap(err, "nearby: scan export row")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
