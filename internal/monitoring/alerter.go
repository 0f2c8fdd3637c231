package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/education-data-collective/EDC-Processor-sub001/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertLowProcessingRate   AlertType = "low_processing_rate"
	AlertLowEsriAvailability AlertType = "low_esri_availability"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// Epochs with no eligible locations never alert.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.TotalLocations == 0 {
		return nil
	}

	if a.cfg.ProcessingRateThreshold > 0 && snap.ProcessingRate < a.cfg.ProcessingRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLowProcessingRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Processing rate %.1f%% below threshold %.1f%% (%d/%d locations processed for year %d)",
				snap.ProcessingRate, a.cfg.ProcessingRateThreshold,
				snap.ProcessedLocations, snap.TotalLocations, snap.DataYear,
			),
			Details: map[string]any{
				"processing_rate": snap.ProcessingRate,
				"threshold":       a.cfg.ProcessingRateThreshold,
				"processed":       snap.ProcessedLocations,
				"total":           snap.TotalLocations,
				"data_year":       snap.DataYear,
			},
			Timestamp: now,
		})
	}

	if a.cfg.EsriRateThreshold > 0 && snap.EsriAvailabilityRate < a.cfg.EsriRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertLowEsriAvailability,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Polygon availability %.1f%% below threshold %.1f%% (%d/%d locations have drive-time data for year %d)",
				snap.EsriAvailabilityRate, a.cfg.EsriRateThreshold,
				snap.LocationsWithEsri, snap.TotalLocations, snap.DataYear,
			),
			Details: map[string]any{
				"esri_availability_rate": snap.EsriAvailabilityRate,
				"threshold":              a.cfg.EsriRateThreshold,
				"with_esri":              snap.LocationsWithEsri,
				"total":                  snap.TotalLocations,
				"data_year":              snap.DataYear,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
