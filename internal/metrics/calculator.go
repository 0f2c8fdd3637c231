// Package metrics derives per-school enrollment and market-share
// metrics from catchment demographics.
package metrics

import "math"

// Classification thresholds, in percentage points of change.
const (
	PopulationThreshold  = 2.0
	EnrollmentThreshold  = 5.0
	MarketShareThreshold = 1.4
)

// clampBound keeps stored percentages inside NUMERIC(5,2).
const clampBound = 999.99

// SchoolMetrics is one computed row, keyed by (school, epoch, tier).
type SchoolMetrics struct {
	SchoolID           int64
	DataYear           int
	DriveTime          int
	EnrollmentCurrent  float64
	EnrollmentPast     float64
	PopulationCurrent  float64
	PopulationPast     float64
	MarketShareCurrent float64
	MarketSharePast    float64
	MarketShareTrend   float64
	MarketShareStatus  string
	EnrollmentTrend    float64
	EnrollmentStatus   string
	PopulationTrend    float64
	PopulationStatus   string
}

// MarketShare returns enrollment as a percentage of catchment
// population. Zero or negative population yields 0, never a division
// blow-up.
func MarketShare(enrollment, population float64) float64 {
	if population <= 0 {
		return 0
	}
	return enrollment / population * 100
}

// PercentChange returns the percentage change from past to current.
// A non-positive past value yields 0.
func PercentChange(current, past float64) float64 {
	if past <= 0 {
		return 0
	}
	return (current - past) / past * 100
}

// Clamp bounds v to the storable percentage range, rounded to two
// decimal places.
func Clamp(v float64) float64 {
	r := math.Round(v*100) / 100
	if r > clampBound {
		return clampBound
	}
	if r < -clampBound {
		return -clampBound
	}
	return r
}

// TrendStatus classifies a change against a threshold.
func TrendStatus(change, threshold float64) string {
	switch {
	case change >= threshold:
		return "growing"
	case change <= -threshold:
		return "declining"
	default:
		return "stable"
	}
}

// ShareStatus classifies a market-share change against a threshold.
func ShareStatus(change, threshold float64) string {
	switch {
	case change >= threshold:
		return "gaining"
	case change <= -threshold:
		return "losing"
	default:
		return "stable"
	}
}

// Inputs holds the raw values a school's metrics are computed from.
type Inputs struct {
	SchoolID          int64
	DataYear          int
	DriveTime         int
	EnrollmentCurrent float64
	EnrollmentPast    float64
	PopulationCurrent float64
	PopulationPast    float64
}

// Compute derives the full metrics row from raw inputs. Every stored
// percentage is clamped.
func Compute(in Inputs) SchoolMetrics {
	shareCurrent := MarketShare(in.EnrollmentCurrent, in.PopulationCurrent)
	sharePast := MarketShare(in.EnrollmentPast, in.PopulationPast)
	shareTrend := shareCurrent - sharePast
	enrollTrend := PercentChange(in.EnrollmentCurrent, in.EnrollmentPast)
	popTrend := PercentChange(in.PopulationCurrent, in.PopulationPast)

	return SchoolMetrics{
		SchoolID:           in.SchoolID,
		DataYear:           in.DataYear,
		DriveTime:          in.DriveTime,
		EnrollmentCurrent:  in.EnrollmentCurrent,
		EnrollmentPast:     in.EnrollmentPast,
		PopulationCurrent:  in.PopulationCurrent,
		PopulationPast:     in.PopulationPast,
		MarketShareCurrent: Clamp(shareCurrent),
		MarketSharePast:    Clamp(sharePast),
		MarketShareTrend:   Clamp(shareTrend),
		MarketShareStatus:  ShareStatus(shareTrend, MarketShareThreshold),
		EnrollmentTrend:    Clamp(enrollTrend),
		EnrollmentStatus:   TrendStatus(enrollTrend, EnrollmentThreshold),
		PopulationTrend:    Clamp(popTrend),
		PopulationStatus:   TrendStatus(popTrend, PopulationThreshold),
	}
}
