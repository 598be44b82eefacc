package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertReviewBacklog  AlertType = "review_backlog"
	AlertStuckJobs      AlertType = "stuck_jobs"
)

// minimum populations before rate alerts fire; a couple of bad jobs in an
// otherwise idle window should not page anyone.
const (
	minFinishedJobs   = 5
	minFlaggedRecords = 20
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a HealthSnapshot against configured thresholds and
// sends alerts via webhook when they are breached.
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
func (a *Alerter) Evaluate(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	sys := snap.System

	finished := sys.JobsCompleted + sys.JobsFailed
	if finished >= minFinishedJobs && sys.JobFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				sys.JobFailRate*100, a.cfg.FailureRateThreshold*100,
				sys.JobsFailed, finished, sys.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": sys.JobFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       sys.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	flagged := sys.TitleUpdates + sys.ReviewQueue + sys.TitlesKept
	if flagged >= minFlaggedRecords && a.cfg.ReviewShareThreshold > 0 {
		share := float64(sys.ReviewQueue) / float64(flagged)
		if share > a.cfg.ReviewShareThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertReviewBacklog,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Review share %.1f%% exceeds threshold %.1f%% (%d of %d flagged records in last %dh)",
					share*100, a.cfg.ReviewShareThreshold*100,
					sys.ReviewQueue, flagged, sys.LookbackHours,
				),
				Details: map[string]any{
					"review_share": share,
					"threshold":    a.cfg.ReviewShareThreshold,
					"review_queue": sys.ReviewQueue,
					"flagged":      flagged,
				},
				Timestamp: now,
			})
		}
	}

	if len(snap.StuckJobIDs) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStuckJobs,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d job(s) running past the stuck threshold: %s",
				len(snap.StuckJobIDs), strings.Join(snap.StuckJobIDs, ", "),
			),
			Details: map[string]any{
				"job_ids": snap.StuckJobIDs,
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
