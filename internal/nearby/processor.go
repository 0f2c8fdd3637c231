package nearby

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/config"
)

// ErrNoCandidates means the epoch has no testable school positions at
// all. Nothing can be computed, so the run aborts before attempting any
// location.
var ErrNoCandidates = eris.New("nearby: no candidate schools for epoch")

// Processor runs nearby-schools computation over a worklist of
// locations in fixed-size groups.
type Processor struct {
	store Store
	cfg   config.NearbyConfig
}

// NewProcessor creates a Processor.
func NewProcessor(store Store, cfg config.NearbyConfig) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Processor{store: store, cfg: cfg}
}

// ProcessBatch computes and persists relationships for every location
// the filter selects. The candidate index is loaded once and shared.
// Individual location failures are captured as outcomes; only systemic
// failures (store unreachable, empty candidate index) return an error.
func (p *Processor) ProcessBatch(ctx context.Context, dataYear int, filter WorklistFilter) (*BatchSummary, error) {
	log := zap.L().With(zap.Int("data_year", dataYear))

	worklist, err := p.store.Worklist(ctx, dataYear, filter)
	if err != nil {
		return nil, eris.Wrap(err, "nearby: load worklist")
	}

	summary := &BatchSummary{DataYear: dataYear, Total: len(worklist)}
	if len(worklist) == 0 {
		log.Info("no locations need processing")
		summary.Status = StatusComplete
		summary.SuccessRate = 100
		return summary, nil
	}

	candidates, err := p.store.Candidates(ctx, dataYear)
	if err != nil {
		return nil, eris.Wrap(err, "nearby: load candidates")
	}
	if len(candidates) == 0 {
		return nil, eris.Wrapf(ErrNoCandidates, "year %d", dataYear)
	}
	index := NewCandidateIndex(dataYear, candidates)

	log.Info("starting batch run",
		zap.Int("locations", len(worklist)),
		zap.Int("candidates", index.Len()),
		zap.Int("batch_size", p.cfg.BatchSize),
	)

	pause := time.Duration(p.cfg.PauseSeconds) * time.Second
	for start := 0; start < len(worklist); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(worklist) {
			end = len(worklist)
		}

		for _, loc := range worklist[start:end] {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "nearby: batch run canceled")
			}
			outcome := p.ProcessLocation(ctx, loc.ID, dataYear, index, filter.ForceRefresh)
			summary.Outcomes = append(summary.Outcomes, outcome)
			switch outcome.Status {
			case StatusSkipped:
				summary.Skipped++
			case StatusComplete, StatusPartial:
				summary.Attempted++
				summary.Succeeded++
			default:
				summary.Attempted++
				summary.Failed++
			}
		}

		if end < len(worklist) && pause > 0 {
			select {
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "nearby: batch run canceled")
			case <-time.After(pause):
			}
		}
	}

	if summary.Attempted > 0 {
		summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Attempted) * 100
	} else {
		summary.SuccessRate = 100
	}
	summary.Status = p.classify(summary.SuccessRate)

	log.Info("batch run finished",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.String("status", string(summary.Status)),
	)
	return summary, nil
}

// ProcessLocation computes and persists relationships for one location.
// Failures are captured in the outcome, not returned.
func (p *Processor) ProcessLocation(ctx context.Context, locationID int64, dataYear int, index *CandidateIndex, forceRefresh bool) Outcome {
	log := zap.L().With(zap.Int64("location_id", locationID), zap.Int("data_year", dataYear))
	outcome := Outcome{LocationID: locationID}

	if !forceRefresh {
		exists, err := p.store.HasRelationships(ctx, locationID, dataYear)
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Err = err
			return outcome
		}
		if exists {
			log.Debug("relationships already present, skipping")
			outcome.Status = StatusSkipped
			return outcome
		}
	}

	raw, err := p.store.Polygons(ctx, locationID)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		p.markStatus(ctx, locationID, dataYear, false)
		return outcome
	}

	polygons := DecodePolygons(raw)
	if len(polygons) == 0 {
		outcome.Status = StatusFailed
		outcome.Err = eris.Wrapf(ErrNoPolygons, "location %d", locationID)
		log.Warn("no usable polygons for location")
		p.markStatus(ctx, locationID, dataYear, false)
		return outcome
	}

	members, err := FindNearby(locationID, polygons, index)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		p.markStatus(ctx, locationID, dataYear, false)
		return outcome
	}

	relationships, entries, err := p.store.Replace(ctx, locationID, dataYear, members)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		p.markStatus(ctx, locationID, dataYear, false)
		return outcome
	}

	outcome.SchoolsByTier = make(map[int]int, len(members))
	for driveTime, schools := range members {
		outcome.Tiers = append(outcome.Tiers, driveTime)
		outcome.SchoolsByTier[driveTime] = len(schools)
	}

	if len(members) == len(DriveTimeTiers) {
		outcome.Status = StatusComplete
	} else {
		outcome.Status = StatusPartial
	}
	p.markStatus(ctx, locationID, dataYear, true)

	log.Info("location processed",
		zap.Int("relationships", relationships),
		zap.Int("entries", entries),
		zap.String("status", string(outcome.Status)),
	)
	return outcome
}

// markStatus updates the per-school processing flag. Best effort: a
// status write failure does not change the location outcome.
func (p *Processor) markStatus(ctx context.Context, locationID int64, dataYear int, processed bool) {
	if err := p.store.UpdateProcessingStatus(ctx, locationID, dataYear, processed); err != nil {
		zap.L().Warn("failed to update processing status",
			zap.Int64("location_id", locationID),
			zap.Error(err),
		)
	}
}

func (p *Processor) classify(rate float64) Status {
	complete := p.cfg.Thresholds.Complete
	partial := p.cfg.Thresholds.Partial
	if complete <= 0 {
		complete = 95
	}
	if partial <= 0 {
		partial = 50
	}
	switch {
	case rate >= complete:
		return StatusComplete
	case rate >= partial:
		return StatusPartial
	default:
		return StatusFailed
	}
}
