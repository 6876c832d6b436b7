package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discord embed colors per severity.
const (
	colorInfo     = 3066993  // green
	colorWarning  = 16776960 // yellow
	colorCritical = 15158332 // red
)

// DiscordSink sends alerts to a Discord webhook.
type DiscordSink struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *DiscordSink) Send(ctx context.Context, a Alert) error {
	if !d.enabled {
		return nil
	}

	title := a.Title
	if a.PairID != "" {
		title = fmt.Sprintf("%s [%s]", a.Title, a.PairID)
	}
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": a.Message,
				"color":       severityColor(a.Severity),
				"footer": map[string]string{
					"text": "pairbot",
				},
				"timestamp": ts.Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}

	return nil
}

func severityColor(s Severity) int {
	switch s {
	case SeverityCritical:
		return colorCritical
	case SeverityWarning:
		return colorWarning
	default:
		return colorInfo
	}
}
