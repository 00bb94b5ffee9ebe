package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/store"
)

func TestShipper_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.csv")
	s := New("csv", path)

	events := []store.EventWithAnomalies{
		{
			Event: store.Event{ID: 1, ActorID: 2, MessageID: uuid.New(), CreatedAt: time.Now()},
			Anomalies: []store.Anomaly{
				{FieldID: 3, FeatureID: 4, Score: 0.9},
			},
		},
	}
	require.NoError(t, s.Ship(context.Background(), store.Investigation{PublicID: "inv-1"}, events))
	require.NoError(t, s.Ship(context.Background(), store.Investigation{PublicID: "inv-2"}, events))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.Len(t, lines, 3) // header + 2 rows
	assert.Equal(t, "event_id,message_id,actor_id,created_at,field_id,feature_id,score", lines[0])
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
