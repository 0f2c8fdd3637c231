package nearby

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolygons_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	raw := []byte(`{"rings": [[[0,0],[0,1],[1,1],[1,0],[0,0]]]}`)

	mock.ExpectQuery(`SELECT drive_time, drive_time_polygon, latitude, longitude`).
		WithArgs(int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"drive_time", "drive_time_polygon", "latitude", "longitude"}).
			AddRow(5, raw, 25.77, -80.19).
			AddRow(10, raw, 25.77, -80.19))

	polygons, err := store.Polygons(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, polygons, 2)
	assert.Equal(t, int64(42), polygons[0].LocationID)
	assert.Equal(t, 5, polygons[0].DriveTime)
	assert.Equal(t, raw, polygons[0].Raw)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolygons_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT drive_time, drive_time_polygon`).
		WillReturnError(errors.New("connection refused"))

	_, err = store.Polygons(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query polygons")
}

func TestCandidates_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT s.id, s.uuid, sl.location_id`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"id", "uuid", "location_id", "latitude", "longitude", "data_year"}).
			AddRow(int64(1), "uuid-a", int64(10), 25.77, -80.19, 2024).
			AddRow(int64(2), "uuid-b", int64(11), 25.78, -80.20, 2024))

	candidates, err := store.Candidates(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "uuid-a", candidates[0].SchoolUUID)
	assert.Equal(t, int64(11), candidates[1].LocationID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorklist_SkipsProcessedByDefault(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`AND spr.id IS NULL`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"id", "latitude", "longitude"}).
			AddRow(int64(10), 25.77, -80.19))

	locations, err := store.Worklist(context.Background(), 2024, WorklistFilter{})
	require.NoError(t, err)
	require.Len(t, locations, 1)
	assert.Equal(t, int64(10), locations[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorklist_ForceRefreshIncludesProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT DISTINCT lp.id`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"id", "latitude", "longitude"}).
			AddRow(int64(10), 25.77, -80.19).
			AddRow(int64(11), 25.78, -80.20))

	locations, err := store.Worklist(context.Background(), 2024, WorklistFilter{ForceRefresh: true})
	require.NoError(t, err)
	assert.Len(t, locations, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWorklist_LocationFilter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	ids := []int64{10, 11}
	mock.ExpectQuery(`AND lp.id = ANY`).
		WithArgs(2024, ids).
		WillReturnRows(pgxmock.NewRows([]string{"id", "latitude", "longitude"}).
			AddRow(int64(10), 25.77, -80.19))

	locations, err := store.Worklist(context.Background(), 2024, WorklistFilter{LocationIDs: ids})
	require.NoError(t, err)
	assert.Len(t, locations, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasRelationships(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM edc\.school_polygon_relationships`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	exists, err := store.HasRelationships(context.Background(), 10, 2024)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM edc\.school_polygon_relationships`).
		WithArgs(int64(11), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	exists, err = store.HasRelationships(context.Background(), 11, 2024)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	members := map[int][]Candidate{
		5:  {{SchoolUUID: "uuid-a"}, {SchoolUUID: "uuid-b"}},
		10: {{SchoolUUID: "uuid-a"}},
		15: {},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM edc\.nearby_school_polygons`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`DELETE FROM edc\.school_polygon_relationships`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	// Tiers are written in ascending order, then all entries in one COPY.
	mock.ExpectQuery(`INSERT INTO edc\.school_polygon_relationships`).
		WithArgs(int64(10), 5, 2024, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectQuery(`INSERT INTO edc\.school_polygon_relationships`).
		WithArgs(int64(10), 10, 2024, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(102)))
	mock.ExpectQuery(`INSERT INTO edc\.school_polygon_relationships`).
		WithArgs(int64(10), 15, 2024, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(103)))

	mock.ExpectCopyFrom(pgx.Identifier{"edc", "nearby_school_polygons"},
		[]string{"polygon_relationship_id", "school_uuid", "relationship_type", "created_at"}).
		WillReturnResult(3)

	mock.ExpectCommit()

	relationships, entries, err := store.Replace(context.Background(), 10, 2024, members)
	require.NoError(t, err)
	assert.Equal(t, 3, relationships)
	assert.Equal(t, 3, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_RollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	members := map[int][]Candidate{5: {{SchoolUUID: "uuid-a"}}}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM edc\.nearby_school_polygons`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM edc\.school_polygon_relationships`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`INSERT INTO edc\.school_polygon_relationships`).
		WithArgs(int64(10), 5, 2024, pgxmock.AnyArg()).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, _, err = store.Replace(context.Background(), 10, 2024, members)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert relationship")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_RollsBackOnCopyFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	members := map[int][]Candidate{5: {{SchoolUUID: "uuid-a"}}}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM edc\.nearby_school_polygons`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM edc\.school_polygon_relationships`).
		WithArgs(int64(10), 2024).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery(`INSERT INTO edc\.school_polygon_relationships`).
		WithArgs(int64(10), 5, 2024, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(101)))
	mock.ExpectCopyFrom(pgx.Identifier{"edc", "nearby_school_polygons"},
		[]string{"polygon_relationship_id", "school_uuid", "relationship_type", "created_at"}).
		WillReturnError(errors.New("copy failed"))
	mock.ExpectRollback()

	_, _, err = store.Replace(context.Background(), 10, 2024, members)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_NoTiers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	_, _, err = store.Replace(context.Background(), 10, 2024, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tiers")
}

func TestValidate_MissingTiers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count", "drive_times"}).
			AddRow(2, []int{5, 10}))
	mock.ExpectQuery(`COUNT\(DISTINCT nsp.school_uuid\)`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count", "unique"}).AddRow(7, 5))

	result, err := store.Validate(context.Background(), 10, 2024)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.PolygonCount)
	assert.Equal(t, 7, result.SchoolCount)
	assert.Equal(t, 5, result.UniqueSchools)
	assert.Equal(t, []int{15}, result.MissingDriveTimes)
	assert.Equal(t, "missing drive times", result.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidate_NoRelationships(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\),`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count", "drive_times"}).
			AddRow(0, []int{}))
	mock.ExpectQuery(`COUNT\(DISTINCT nsp.school_uuid\)`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"count", "unique"}).AddRow(0, 0))

	result, err := store.Validate(context.Background(), 10, 2024)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "no polygon relationships found", result.Error)
	assert.Equal(t, DriveTimeTiers, result.MissingDriveTimes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateCompleteness(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`COUNT\(DISTINCT lp.id\)`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"total", "processed", "esri", "unique", "records"}).
			AddRow(100, 80, 90, 250, 1200))

	c, err := store.ValidateCompleteness(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 100, c.TotalLocations)
	assert.Equal(t, 80, c.ProcessedLocations)
	assert.InDelta(t, 80.0, c.ProcessingRate, 0.001)
	assert.InDelta(t, 90.0, c.EsriAvailabilityRate, 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOrphans_NoneFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))

	result, err := store.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.OrphanCount)
	assert.Zero(t, result.DeletedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupOrphans_Deletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(4)))
	mock.ExpectExec(`DELETE FROM edc\.nearby_school_polygons`).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	result, err := store.CleanupOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.OrphanCount)
	assert.Equal(t, int64(4), result.DeletedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	earliest := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`MIN\(processed_at\), MAX\(processed_at\)`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"total", "locations", "drive_times", "min", "max"}).
			AddRow(30, 10, 3, &earliest, &latest))
	mock.ExpectQuery(`COUNT\(DISTINCT nsp.school_uuid\)`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"total", "unique"}).AddRow(120, 45))
	mock.ExpectQuery(`GROUP BY spr.drive_time`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"drive_time", "polygons", "schools"}).
			AddRow(5, 10, 20).
			AddRow(10, 10, 40).
			AddRow(15, 10, 60))

	summary, err := store.Summary(context.Background(), 2024)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.TotalRelationships)
	assert.Equal(t, 10, summary.UniqueLocations)
	assert.Equal(t, 120, summary.TotalNearby)
	assert.Equal(t, 45, summary.UniqueSchools)
	require.Len(t, summary.Breakdown, 3)
	assert.Equal(t, 5, summary.Breakdown[0].DriveTime)
	assert.Equal(t, 60, summary.Breakdown[2].NearbySchoolCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProcessingStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT s.id`).
		WithArgs(int64(10), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO edc\.processing_status`).
		WithArgs(int64(7), 2024, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.UpdateProcessingStatus(context.Background(), 10, 2024, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProcessingStatus_UnknownLocation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`SELECT s.id`).
		WithArgs(int64(99), 2024).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	err = store.UpdateProcessingStatus(context.Background(), 99, 2024, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve school")
}

func TestExportRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	mock.ExpectQuery(`nsp.school_uuid, nsp.relationship_type`).
		WithArgs(2024).
		WillReturnRows(pgxmock.NewRows([]string{"location_id", "drive_time", "data_year", "school_uuid", "relationship_type", "processed_at"}).
			AddRow(int64(10), 5, 2024, "uuid-a", "nearby", "2024-06-01T00:00:00Z").
			AddRow(int64(10), 10, 2024, "uuid-b", "nearby", "2024-06-01T00:00:00Z"))

	rows, err := store.ExportRows(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "uuid-a", rows[0].SchoolUUID)
	assert.Equal(t, 5, rows[0].DriveTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}
