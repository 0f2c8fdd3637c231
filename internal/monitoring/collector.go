// Package monitoring evaluates epoch processing coverage against
// thresholds and delivers webhook alerts when coverage degrades.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/nearby"
)

// Snapshot holds a point-in-time view of epoch processing health.
type Snapshot struct {
	DataYear             int       `json:"data_year"`
	TotalLocations       int       `json:"total_locations"`
	ProcessedLocations   int       `json:"processed_locations"`
	LocationsWithEsri    int       `json:"locations_with_esri"`
	ProcessingRate       float64   `json:"processing_rate"`
	EsriAvailabilityRate float64   `json:"esri_availability_rate"`
	TotalRelationships   int       `json:"total_relationships"`
	UniqueNearbySchools  int       `json:"unique_nearby_schools"`
	CollectedAt          time.Time `json:"collected_at"`
}

// Collector builds snapshots from the relationship store.
type Collector struct {
	store nearby.Store
}

// NewCollector creates a Collector over the given store.
func NewCollector(store nearby.Store) *Collector {
	return &Collector{store: store}
}

// Collect assembles a snapshot for the epoch.
func (c *Collector) Collect(ctx context.Context, dataYear int) (*Snapshot, error) {
	completeness, err := c.store.ValidateCompleteness(ctx, dataYear)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect completeness")
	}

	summary, err := c.store.Summary(ctx, dataYear)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect summary")
	}

	return &Snapshot{
		DataYear:             dataYear,
		TotalLocations:       completeness.TotalLocations,
		ProcessedLocations:   completeness.ProcessedLocations,
		LocationsWithEsri:    completeness.LocationsWithEsri,
		ProcessingRate:       completeness.ProcessingRate,
		EsriAvailabilityRate: completeness.EsriAvailabilityRate,
		TotalRelationships:   summary.TotalRelationships,
		UniqueNearbySchools:  summary.UniqueSchools,
		CollectedAt:          time.Now().UTC(),
	}, nil
}
