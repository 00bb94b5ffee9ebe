// Package prometheus implements an additive shipper that increments a
// findings-total counter per shipped investigation, so malicious activity
// is visible on the same /metrics surface as pipeline/investigation
// health. It supplements, rather than replaces, the CSV and logger
// shippers.
package prometheus

import (
	"context"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/scrywarden/scrywarden/pkg/store"
)

// Shipper increments Counter, labeled by profile name, once per shipped
// finding.
type Shipper struct {
	name    string
	Profile string
	Counter *promclient.CounterVec
}

// New returns a shipper that increments counter{profile=profile} per finding.
func New(name, profile string, counter *promclient.CounterVec) *Shipper {
	return &Shipper{name: name, Profile: profile, Counter: counter}
}

func (s *Shipper) Name() string { return s.name }

// Ship implements shipper.Shipper.
func (s *Shipper) Ship(ctx context.Context, investigation store.Investigation, events []store.EventWithAnomalies) error {
	s.Counter.WithLabelValues(s.Profile).Inc()
	return nil
}
