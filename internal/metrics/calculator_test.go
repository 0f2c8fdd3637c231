package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketShare(t *testing.T) {
	tests := []struct {
		name       string
		enrollment float64
		population float64
		want       float64
	}{
		{"typical", 250, 5000, 5},
		{"full capture", 100, 100, 100},
		{"zero population", 250, 0, 0},
		{"negative population", 250, -10, 0},
		{"zero enrollment", 0, 5000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MarketShare(tt.enrollment, tt.population), 0.0001)
		})
	}
}

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		past    float64
		want    float64
	}{
		{"growth", 110, 100, 10},
		{"decline", 90, 100, -10},
		{"flat", 100, 100, 0},
		{"zero past", 100, 0, 0},
		{"negative past", 100, -5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PercentChange(tt.current, tt.past), 0.0001)
		})
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"within range", 12.345, 12.35},
		{"rounds down", 12.344, 12.34},
		{"upper bound", 1500.0, 999.99},
		{"lower bound", -1500.0, -999.99},
		{"exactly at bound", 999.99, 999.99},
		{"rounds past bound", 999.994, 999.99},
		{"negative in range", -42.126, -42.13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Clamp(tt.in), 0.0001)
		})
	}
}

func TestTrendStatus(t *testing.T) {
	assert.Equal(t, "growing", TrendStatus(5.0, EnrollmentThreshold))
	assert.Equal(t, "declining", TrendStatus(-5.0, EnrollmentThreshold))
	assert.Equal(t, "stable", TrendStatus(4.9, EnrollmentThreshold))
	assert.Equal(t, "stable", TrendStatus(-4.9, EnrollmentThreshold))
	assert.Equal(t, "growing", TrendStatus(2.0, PopulationThreshold))
	assert.Equal(t, "stable", TrendStatus(1.9, PopulationThreshold))
}

func TestShareStatus(t *testing.T) {
	assert.Equal(t, "gaining", ShareStatus(1.4, MarketShareThreshold))
	assert.Equal(t, "losing", ShareStatus(-1.4, MarketShareThreshold))
	assert.Equal(t, "stable", ShareStatus(1.3, MarketShareThreshold))
	assert.Equal(t, "stable", ShareStatus(0, MarketShareThreshold))
}

func TestCompute(t *testing.T) {
	m := Compute(Inputs{
		SchoolID:          7,
		DataYear:          2024,
		DriveTime:         10,
		EnrollmentCurrent: 300,
		EnrollmentPast:    250,
		PopulationCurrent: 5000,
		PopulationPast:    5200,
	})

	assert.Equal(t, int64(7), m.SchoolID)
	assert.InDelta(t, 6.0, m.MarketShareCurrent, 0.0001)
	assert.InDelta(t, 4.81, m.MarketSharePast, 0.0001)
	assert.InDelta(t, 1.19, m.MarketShareTrend, 0.0001)
	assert.Equal(t, "stable", m.MarketShareStatus)
	assert.InDelta(t, 20.0, m.EnrollmentTrend, 0.0001)
	assert.Equal(t, "growing", m.EnrollmentStatus)
	assert.InDelta(t, -3.85, m.PopulationTrend, 0.0001)
	assert.Equal(t, "declining", m.PopulationStatus)
}

func TestCompute_ZeroPopulation(t *testing.T) {
	m := Compute(Inputs{
		SchoolID:          7,
		DataYear:          2024,
		DriveTime:         5,
		EnrollmentCurrent: 300,
		EnrollmentPast:    250,
	})

	assert.Zero(t, m.MarketShareCurrent)
	assert.Zero(t, m.MarketSharePast)
	assert.Zero(t, m.MarketShareTrend)
	assert.Equal(t, "stable", m.MarketShareStatus)
}

func TestCompute_ClampsExtremeShares(t *testing.T) {
	// A tiny catchment population produces an absurd share percentage;
	// the stored value stays inside NUMERIC(5,2).
	m := Compute(Inputs{
		EnrollmentCurrent: 500,
		PopulationCurrent: 1,
	})
	assert.InDelta(t, 999.99, m.MarketShareCurrent, 0.0001)
	assert.InDelta(t, 999.99, m.MarketShareTrend, 0.0001)
	assert.Equal(t, "gaining", m.MarketShareStatus)
}
