// Package shipper delivers a completed, flagged investigation to wherever
// it needs to be reported: a CSV audit trail, structured logs, or a
// Prometheus counter.
package shipper

import (
	"context"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// Shipper reports a malicious-activity finding somewhere outside the
// database. Ship is called once per flagged investigation; implementations
// should be safe to call repeatedly from a single goroutine (the curator
// serializes calls per shipper).
type Shipper interface {
	Name() string
	Ship(ctx context.Context, investigation store.Investigation, events []store.EventWithAnomalies) error
}
