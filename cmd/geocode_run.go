package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/db"
	"github.com/education-data-collective/EDC-Processor-sub001/pkg/geocode"
)

const defaultGeocodeBatchSize = 100

// clampBatchSize guards the batching loop against a zero or negative step.
func clampBatchSize(size, fallback int) int {
	if size <= 0 {
		return fallback
	}
	return size
}

// ungeocodedLocation is a location row missing coordinates.
type ungeocodedLocation struct {
	ID      int64
	Address string
	City    string
	State   string
	Zip     string
}

var geocodeRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Geocode locations missing coordinates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		batchSize = clampBatchSize(batchSize, defaultGeocodeBatchSize)

		pg, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pg.Close()
		pool := pg.Pool()

		log := zap.L().With(zap.String("command", "geocode.run"))

		gc := geocode.NewClient(
			geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey),
			geocode.WithRateLimit(cfg.Geocode.RatePerSecond),
			geocode.WithCache(pool),
		)

		locations, err := fetchUngeocoded(ctx, pool, limit)
		if err != nil {
			return err
		}
		if len(locations) == 0 {
			fmt.Println("No ungeocoded locations found")
			return nil
		}

		concurrency := cfg.Geocode.BatchConcurrency
		if concurrency <= 0 {
			concurrency = 1
		}

		log.Info("starting geocode run",
			zap.Int("locations", len(locations)),
			zap.Int("batch_size", batchSize),
			zap.Int("concurrency", concurrency),
		)

		var matched, unmatched atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for start := 0; start < len(locations); start += batchSize {
			end := start + batchSize
			if end > len(locations) {
				end = len(locations)
			}
			batch := locations[start:end]

			g.Go(func() error {
				inputs := make([]geocode.AddressInput, len(batch))
				for j, loc := range batch {
					inputs[j] = geocode.AddressInput{
						ID:      fmt.Sprintf("%d", loc.ID),
						Street:  loc.Address,
						City:    loc.City,
						State:   loc.State,
						ZipCode: loc.Zip,
					}
				}

				results, batchErr := gc.BatchGeocode(gctx, inputs)
				if batchErr != nil {
					log.Warn("geocode batch failed", zap.Error(batchErr))
					unmatched.Add(int64(len(inputs)))
					return nil
				}

				for j, result := range results {
					if !result.Matched {
						unmatched.Add(1)
						continue
					}
					if err := saveCoordinates(gctx, pool, batch[j].ID, result); err != nil {
						log.Warn("failed to save coordinates",
							zap.Int64("location_id", batch[j].ID),
							zap.Error(err),
						)
						unmatched.Add(1)
						continue
					}
					matched.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("Geocoded %d/%d locations (%d unmatched)\n", matched.Load(), len(locations), unmatched.Load())
		return nil
	},
}

func fetchUngeocoded(ctx context.Context, pool db.Pool, limit int) ([]ungeocodedLocation, error) {
	sql := `
		SELECT id, COALESCE(address, ''), COALESCE(city, ''), COALESCE(state, ''), COALESCE(zip, '')
		FROM edc.location_points
		WHERE latitude IS NULL OR longitude IS NULL
		ORDER BY id
	`
	args := []any{}
	if limit > 0 {
		sql += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "geocode run: query ungeocoded locations")
	}
	defer rows.Close()

	var out []ungeocodedLocation
	for rows.Next() {
		var loc ungeocodedLocation
		if err := rows.Scan(&loc.ID, &loc.Address, &loc.City, &loc.State, &loc.Zip); err != nil {
			return nil, eris.Wrap(err, "geocode run: scan location row")
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func saveCoordinates(ctx context.Context, pool db.Pool, locationID int64, result geocode.Result) error {
	_, err := pool.Exec(ctx, `
		UPDATE edc.location_points
		SET latitude = $1, longitude = $2, county = NULLIF($3, ''),
		    geocode_source = $4, updated_at = now()
		WHERE id = $5
	`, result.Latitude, result.Longitude, result.County, result.Source, locationID)
	return eris.Wrapf(err, "geocode run: update location %d", locationID)
}

func init() {
	geocodeRunCmd.Flags().Int("limit", 0, "cap the number of locations geocoded")
	geocodeRunCmd.Flags().Int("batch-size", defaultGeocodeBatchSize, "addresses per geocode batch")
	geocodeCmd.AddCommand(geocodeRunCmd)
}
