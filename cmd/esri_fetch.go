package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
	"github.com/education-data-collective/EDC-Processor-sub001/internal/resilience"
	"github.com/education-data-collective/EDC-Processor-sub001/pkg/esri"
)

var esriFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch drive-time polygons for locations missing them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dataYear, _ := cmd.Flags().GetInt("data-year")
		limit, _ := cmd.Flags().GetInt("limit")

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()
		pool := pg.Pool()

		log := zap.L().With(zap.String("command", "esri.fetch"), zap.Int("data_year", dataYear))

		client := esri.NewClient(cfg.Esri.BaseURL, cfg.Esri.Username, cfg.Esri.Password,
			esri.WithRateLimit(cfg.Esri.RatePerSecond),
		)

		locations, err := fetchLocationsMissingPolygons(ctx, pool, dataYear, limit)
		if err != nil {
			return err
		}
		if len(locations) == 0 {
			fmt.Println("No locations missing polygon data")
			return nil
		}

		log.Info("starting polygon fetch", zap.Int("locations", len(locations)))

		retryCfg := resilience.DefaultRetryConfig()
		retryCfg.OnRetry = resilience.RetryLogger("esri", "fetch_drive_times")
		breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		})

		var succeeded, failed int
		for _, loc := range locations {
			data, fetchErr := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) (map[int]*esri.DriveTimeData, error) {
				return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (map[int]*esri.DriveTimeData, error) {
					return client.FetchDriveTimes(ctx, loc.Latitude, loc.Longitude)
				})
			})
			if eris.Is(fetchErr, resilience.ErrCircuitOpen) {
				return eris.Wrap(fetchErr, "esri fetch: provider unavailable, aborting run")
			}
			if fetchErr != nil {
				log.Warn("fetch failed", zap.Int64("location_id", loc.ID), zap.Error(fetchErr))
				failed++
				continue
			}
			if err := saveDriveTimes(ctx, pool, loc, dataYear, data); err != nil {
				log.Warn("save failed", zap.Int64("location_id", loc.ID), zap.Error(err))
				failed++
				continue
			}
			succeeded++
		}

		fmt.Printf("Fetched polygons for %d/%d locations (%d failed)\n", succeeded, len(locations), failed)
		if failed > 0 && succeeded == 0 {
			return eris.New("esri fetch: all locations failed")
		}
		return nil
	},
}

func fetchLocationsMissingPolygons(ctx context.Context, pool db.Pool, dataYear, limit int) ([]nearby.Location, error) {
	sql := `
		SELECT DISTINCT lp.id, lp.latitude, lp.longitude
		FROM edc.location_points lp
		JOIN edc.school_locations sl ON lp.id = sl.location_id
		WHERE sl.data_year = $1
		  AND sl.is_current = true
		  AND lp.latitude IS NOT NULL
		  AND lp.longitude IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM edc.esri_demographic_data esri
			WHERE esri.location_id = lp.id
			  AND esri.drive_time_polygon IS NOT NULL
		  )
		ORDER BY lp.id
	`
	args := []any{dataYear}
	if limit > 0 {
		sql += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "esri fetch: query locations")
	}
	defer rows.Close()

	var out []nearby.Location
	for rows.Next() {
		var loc nearby.Location
		if err := rows.Scan(&loc.ID, &loc.Latitude, &loc.Longitude); err != nil {
			return nil, eris.Wrap(err, "esri fetch: scan location row")
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// saveDriveTimes upserts one row per tier, keyed by (location_id, drive_time).
func saveDriveTimes(ctx context.Context, pool db.Pool, loc nearby.Location, dataYear int, data map[int]*esri.DriveTimeData) error {
	rows := make([][]any, 0, len(data))
	for _, d := range data {
		attrs, err := json.Marshal(d.Attributes)
		if err != nil {
			return eris.Wrapf(err, "esri fetch: marshal attributes for location %d", loc.ID)
		}
		var polygon any
		if len(d.Polygon) > 0 {
			polygon = []byte(d.Polygon)
		}
		rows = append(rows, []any{
			loc.ID, d.DriveTime, loc.Latitude, loc.Longitude,
			polygon, childPopulation(d.Attributes), attrs, dataYear,
		})
	}

	_, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table: "edc.esri_demographic_data",
		Columns: []string{
			"location_id", "drive_time", "latitude", "longitude",
			"drive_time_polygon", "child_population", "attributes", "data_year",
		},
		ConflictKeys: []string{"location_id", "drive_time"},
	}, rows)
	return err
}

// childPopulation sums the current-year age 4-17 variables.
func childPopulation(attrs map[string]json.RawMessage) float64 {
	var total float64
	for age := 4; age <= 17; age++ {
		raw, ok := attrs["AGE"+strconv.Itoa(age)+"_CY"]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			continue
		}
		total += v
	}
	return total
}

func init() {
	esriFetchCmd.Flags().Int("data-year", 0, "data year to fetch for (required)")
	esriFetchCmd.Flags().Int("limit", 0, "cap the number of locations fetched")
	_ = esriFetchCmd.MarkFlagRequired("data-year")
	esriCmd.AddCommand(esriFetchCmd)
}
