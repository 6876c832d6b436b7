package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	s := NewLogSink(log)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, Alert{Severity: SeverityInfo, Title: "startup", Message: "running"}))
	require.NoError(t, s.Send(ctx, Alert{Severity: SeverityCritical, Title: "half_open_hedge", Message: "leg B failed", PairID: "AAPL-MSFT"}))

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"alert":"half_open_hedge"`)
	assert.Contains(t, out, `"pair":"AAPL-MSFT"`)
}

func TestMultiSinkFansOut(t *testing.T) {
	first := &recorder{}
	second := &recorder{err: errors.New("sink down")}
	third := &recorder{}

	m := NewMultiSink(first, second, third)
	err := m.Send(context.Background(), Alert{Severity: SeverityWarning, Title: "retry"})

	assert.Error(t, err)
	assert.Len(t, first.alerts, 1)
	assert.Len(t, second.alerts, 1)
	assert.Len(t, third.alerts, 1)
}

func TestDiscordSink(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSink(srv.URL)
	err := s.Send(context.Background(), Alert{
		Severity: SeverityCritical,
		Title:    "half_open_hedge",
		Message:  "leg B submit failed after retries",
		PairID:   "AAPL-MSFT",
		Time:     time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	embeds, ok := got["embeds"].([]interface{})
	require.True(t, ok)
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]interface{})
	assert.Equal(t, "half_open_hedge [AAPL-MSFT]", embed["title"])
	assert.Equal(t, "leg B submit failed after retries", embed["description"])
	assert.Equal(t, float64(colorCritical), embed["color"])
	assert.Equal(t, "2025-03-05T15:00:00Z", embed["timestamp"])
}

func TestDiscordSinkDisabled(t *testing.T) {
	s := NewDiscordSink("")
	assert.NoError(t, s.Send(context.Background(), Alert{Title: "ignored"}))
}

func TestDiscordSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewDiscordSink(srv.URL)
	err := s.Send(context.Background(), Alert{Title: "bad"})
	assert.Error(t, err)
}

func TestSeverityColor(t *testing.T) {
	assert.Equal(t, colorInfo, severityColor(SeverityInfo))
	assert.Equal(t, colorWarning, severityColor(SeverityWarning))
	assert.Equal(t, colorCritical, severityColor(SeverityCritical))
	assert.Equal(t, colorInfo, severityColor(Severity("unknown")))
}
