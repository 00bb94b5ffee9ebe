package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/store"
)

func TestShipper_SummaryModeLogsOneLine(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	s := New("logger", l, slog.LevelInfo, false)

	events := []store.EventWithAnomalies{
		{Anomalies: []store.Anomaly{{Score: 0.9}}},
		{Anomalies: []store.Anomaly{{Score: 0.8}, {Score: 0.7}}},
	}
	require.NoError(t, s.Ship(context.Background(), store.Investigation{PublicID: "inv-1"}, events))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "malicious activity detected"))
	assert.Contains(t, out, "event_count=2")
}

func TestShipper_DetailedModeLogsOneLinePerAnomaly(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	s := New("logger", l, slog.LevelInfo, true)

	events := []store.EventWithAnomalies{
		{Anomalies: []store.Anomaly{{Score: 0.9}, {Score: 0.8}}},
	}
	require.NoError(t, s.Ship(context.Background(), store.Investigation{PublicID: "inv-1"}, events))

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "anomaly"))
}
