// Package curator coordinates the investigation phase: it runs every
// configured investigator, collects their malicious-activity findings on a
// shared bounded queue, and fans each finding out to every shipper.
package curator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrywarden/scrywarden/pkg/backoff"
	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/errs"
	"github.com/scrywarden/scrywarden/pkg/shipper"
	"github.com/scrywarden/scrywarden/pkg/store"
)

// Investigator is the subset of *investigator.Investigator the curator
// drives - declared here so tests can supply a fake without a database.
type Investigator interface {
	Run(ctx context.Context, out chan<- entry.CuratorEntry)
}

// defaultQueueSize matches the upstream curator-to-investigator queue depth.
const defaultQueueSize = 10

// Curator runs investigators and shippers as concurrent workers and routes
// findings between them.
type Curator struct {
	Investigators []Investigator
	Shippers      []shipper.Shipper
	// ShipperQueueSizes is parallel to Shippers; a non-positive entry (or a
	// short/nil slice) falls back to QueueSize for that shipper.
	ShipperQueueSizes []int
	QueueSize         int
	Logger            *slog.Logger
}

// New returns a curator ready to Run. queueSize<=0 uses the default of 10.
// shipperQueueSizes is parallel to shippers and overrides queueSize per
// shipper where positive; pass nil to size every shipper's queue from
// queueSize alone.
func New(investigators []Investigator, shippers []shipper.Shipper, shipperQueueSizes []int, queueSize int, logger *slog.Logger) *Curator {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Curator{
		Investigators:     investigators,
		Shippers:          shippers,
		ShipperQueueSizes: shipperQueueSizes,
		QueueSize:         queueSize,
		Logger:            logger,
	}
}

// shipperQueueSize returns the configured queue depth for shipper i,
// falling back to the curator-wide default.
func (c *Curator) shipperQueueSize(i int) int {
	if i < len(c.ShipperQueueSizes) && c.ShipperQueueSizes[i] > 0 {
		return c.ShipperQueueSizes[i]
	}
	return c.QueueSize
}

// Run starts every investigator and shipper, routes findings until ctx is
// cancelled and every investigator has shut down, then stops the shippers.
// It returns errs.ErrNoInvestigators or errs.ErrNoShippers if either list
// is empty, without starting anything.
func (c *Curator) Run(ctx context.Context) error {
	if len(c.Investigators) == 0 {
		return errs.ErrNoInvestigators
	}
	if len(c.Shippers) == 0 {
		return errs.ErrNoShippers
	}

	queue := make(chan entry.CuratorEntry, c.QueueSize)

	shipperCtx, stopShippers := context.WithCancel(context.Background())
	defer stopShippers()

	shipQueues := make([]chan entry.ShipperEntry, len(c.Shippers))
	shipperGroup, shipperGCtx := errgroup.WithContext(shipperCtx)
	for i, s := range c.Shippers {
		shipQueues[i] = make(chan entry.ShipperEntry, c.shipperQueueSize(i))
		s, q := s, shipQueues[i]
		shipperGroup.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("shipper %s panicked: %v", s.Name(), r)
				}
			}()
			c.runShipper(shipperGCtx, s, q)
			return nil
		})
	}

	investigatorGroup, investigatorGCtx := errgroup.WithContext(ctx)
	for _, inv := range c.Investigators {
		inv := inv
		investigatorGroup.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("investigator panicked: %v", r)
				}
			}()
			inv.Run(investigatorGCtx, queue)
			return nil
		})
	}

	active := len(c.Investigators)
	for active > 0 {
		e := <-queue
		switch e.Kind {
		case entry.KindMaliciousActivity:
			c.ship(shipperCtx, shipQueues, e.Investigation, e.Events)
		case entry.KindShutdown:
			active--
			if c.Logger != nil {
				c.Logger.Debug("investigator shut down", "investigator", e.Investigator, "remaining", active)
			}
		}
	}

	investigatorErr := investigatorGroup.Wait()
	if investigatorErr != nil && c.Logger != nil {
		c.Logger.Error("investigator group exited with error", "error", investigatorErr)
	}
	stopShippers()
	for _, q := range shipQueues {
		select {
		case q <- entry.NewShipperBlipEntry():
		default:
		}
	}
	shipperErr := shipperGroup.Wait()
	if shipperErr != nil && c.Logger != nil {
		c.Logger.Error("shipper group exited with error", "error", shipperErr)
	}
	if investigatorErr != nil {
		return investigatorErr
	}
	return shipperErr
}

// ship fans a finding out to every shipper's queue, retrying with backoff
// while a queue is full.
func (c *Curator) ship(ctx context.Context, queues []chan entry.ShipperEntry, investigation store.Investigation, events []store.EventWithAnomalies) {
	e := entry.NewShipperMaliciousActivityEntry(investigation, events)
	for _, q := range queues {
		bo := backoff.NewExponentialBackoff(2, 1, true)
		for {
			select {
			case q <- e:
			case <-ctx.Done():
			default:
				select {
				case q <- e:
				case <-ctx.Done():
				case <-time.After(bo.Next()):
					if c.Logger != nil {
						c.Logger.Debug("shipper queue full, backing off", "attempts", bo.Attempts())
					}
					continue
				}
			}
			break
		}
	}
}

func (c *Curator) runShipper(ctx context.Context, s shipper.Shipper, in chan entry.ShipperEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-in:
			switch e.Kind {
			case entry.KindBlip:
				continue
			case entry.KindMaliciousActivity:
				if err := s.Ship(ctx, e.Investigation, e.Events); err != nil && c.Logger != nil {
					c.Logger.Error("shipping finding failed", "shipper", s.Name(), "error", err)
				}
			}
		}
	}
}
