// Package heartbeat implements a test transport that emits a canned JSON
// message at a fixed interval, useful for exercising a profile end to end
// without real ingest.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrywarden/scrywarden/pkg/entry"
	tx "github.com/scrywarden/scrywarden/pkg/transport"
)

// Transport emits Count copies of Data every interval, forever.
type Transport struct {
	Count  int
	Data   map[string]any
	Logger *slog.Logger
}

// New returns a heartbeat transport scheduled as Interval.
func New(name string, count int, data map[string]any, interval time.Duration, logger *slog.Logger) tx.Transport {
	if count <= 0 {
		count = 1
	}
	if data == nil {
		data = map[string]any{"person": "George", "greeting": "hello"}
	}
	t := &Transport{Count: count, Data: data, Logger: logger}
	return tx.NewInterval(name, t, interval, logger)
}

// Process implements transport.Processor.
func (t *Transport) Process(ctx context.Context) ([]entry.Message, bool, error) {
	messages := make([]entry.Message, t.Count)
	for i := 0; i < t.Count; i++ {
		messages[i] = tx.NewMessage(t.Data)
		if t.Logger != nil {
			t.Logger.InfoContext(ctx, "sending heartbeat message", "data", t.Data)
		}
	}
	return messages, true, nil
}
