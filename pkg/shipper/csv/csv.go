// Package csv implements a shipper that appends malicious-activity
// findings to a CSV file, one row per anomaly, creating the header only
// the first time the file is written.
package csv

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/scrywarden/scrywarden/pkg/errs"
	"github.com/scrywarden/scrywarden/pkg/store"
)

// Shipper appends one CSV row per anomaly in every shipped finding to
// Filename, creating it (with a header) on first use.
type Shipper struct {
	name     string
	Filename string

	mu sync.Mutex
}

// New returns a CSV shipper writing to filename.
func New(name, filename string) *Shipper {
	return &Shipper{name: name, Filename: filename}
}

func (s *Shipper) Name() string { return s.name }

var header = []string{"event_id", "message_id", "actor_id", "created_at", "field_id", "feature_id", "score"}

// Ship implements shipper.Shipper.
func (s *Shipper) Ship(ctx context.Context, investigation store.Investigation, events []store.EventWithAnomalies) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeHeader := true
	if info, err := os.Stat(s.Filename); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	f, err := os.OpenFile(s.Filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.NewShipperError(s.name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(header); err != nil {
			return errs.NewShipperError(s.name, err)
		}
	}
	for _, e := range events {
		for _, a := range e.Anomalies {
			row := []string{
				strconv.FormatInt(e.Event.ID, 10),
				e.Event.MessageID.String(),
				strconv.FormatInt(e.Event.ActorID, 10),
				e.Event.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
				strconv.FormatInt(a.FieldID, 10),
				strconv.FormatInt(a.FeatureID, 10),
				strconv.FormatFloat(a.Score, 'f', -1, 64),
			}
			if err := w.Write(row); err != nil {
				return errs.NewShipperError(s.name, err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errs.NewShipperError(s.name, err)
	}
	return nil
}
