// Package logger implements a shipper that logs malicious-activity
// findings through slog rather than persisting them anywhere.
package logger

import (
	"context"
	"log/slog"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// Shipper logs one line per anomaly (Detailed) or one summary line per
// finding (the default) at Level.
type Shipper struct {
	name     string
	Logger   *slog.Logger
	Level    slog.Level
	Detailed bool
}

// New returns a logger shipper. Level defaults to Info.
func New(name string, logger *slog.Logger, level slog.Level, detailed bool) *Shipper {
	return &Shipper{name: name, Logger: logger, Level: level, Detailed: detailed}
}

func (s *Shipper) Name() string { return s.name }

// Ship implements shipper.Shipper.
func (s *Shipper) Ship(ctx context.Context, investigation store.Investigation, events []store.EventWithAnomalies) error {
	if !s.Detailed {
		s.Logger.Log(ctx, s.Level, "malicious activity detected",
			"investigation_id", investigation.PublicID, "event_count", len(events))
		return nil
	}
	for _, e := range events {
		for _, a := range e.Anomalies {
			s.Logger.Log(ctx, s.Level, "anomaly",
				"investigation_id", investigation.PublicID,
				"event_id", e.Event.ID,
				"actor_id", e.Event.ActorID,
				"actor_name", e.ActorName,
				"field_id", a.FieldID,
				"score", a.Score,
			)
		}
	}
	return nil
}
