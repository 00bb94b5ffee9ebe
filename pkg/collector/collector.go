// Package collector gathers the anomalies an investigation should examine:
// a contiguous slice of event history bounded by time, picked up where the
// previous investigation in the same group left off.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrywarden/scrywarden/pkg/backoff"
	"github.com/scrywarden/scrywarden/pkg/store"
)

// Collector retrieves the anomalies a new investigation should analyze.
type Collector interface {
	Collect(ctx context.Context, profileID int64, previous *store.Investigation) ([]store.EventWithAnomalies, error)
}

// eventStore is the slice of *store.Repo a collector needs, declared here
// so tests can supply a fake without touching a database.
type eventStore interface {
	FirstEvent(ctx context.Context, profileID int64) (*store.Event, error)
	FirstEventAfter(ctx context.Context, profileID int64, after time.Time) (*store.Event, error)
	FetchAnomaliesInWindow(ctx context.Context, profileID int64, start, end time.Time) ([]store.EventWithAnomalies, error)
	LastInvestigationEvent(ctx context.Context, investigationID int64) (*store.Event, error)
}

// TimeRangeCollector collects anomalies in fixed-size time windows,
// starting from the earliest recorded event on the very first
// investigation and from wherever the previous investigation's last event
// left off on every one after. When a window comes up empty it fast
// forwards to the next event past the window rather than waiting out
// every empty interval, and retries every Interval until one appears.
//
// A window is never searched before its end time (plus Delay, to allow
// for delayed ingest) has actually elapsed - searching ahead of the clock
// would silently skip events that hadn't arrived yet.
type TimeRangeCollector struct {
	Repo     eventStore
	Logger   *slog.Logger
	Seconds  time.Duration
	Interval time.Duration
	Delay    time.Duration

	// Now returns the current time; overridable in tests. Defaults to
	// time.Now.
	Now func() time.Time
}

// NewTimeRangeCollector returns a collector with the given window size,
// retry interval, and ingest delay. Seconds defaults to 60s, Interval to
// 10s when <= 0.
func NewTimeRangeCollector(repo eventStore, logger *slog.Logger, seconds, interval, delay time.Duration) *TimeRangeCollector {
	if seconds <= 0 {
		seconds = 60 * time.Second
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &TimeRangeCollector{
		Repo:     repo,
		Logger:   logger,
		Seconds:  seconds,
		Interval: interval,
		Delay:    delay,
		Now:      time.Now,
	}
}

func (c *TimeRangeCollector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Collect implements Collector.
func (c *TimeRangeCollector) Collect(ctx context.Context, profileID int64, previous *store.Investigation) ([]store.EventWithAnomalies, error) {
	if previous == nil {
		return c.createInitialWindow(ctx, profileID)
	}
	last, err := c.Repo.LastInvestigationEvent(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return c.createInitialWindow(ctx, profileID)
	}
	return c.loopUntilAnomalies(ctx, profileID, last.CreatedAt)
}

func (c *TimeRangeCollector) createInitialWindow(ctx context.Context, profileID int64) ([]store.EventWithAnomalies, error) {
	first, err := c.getFirstEvent(ctx, profileID)
	if err != nil || first == nil {
		return nil, err
	}
	return c.loopUntilAnomalies(ctx, profileID, first.CreatedAt.Add(-time.Second))
}

// getFirstEvent polls for the profile's earliest event, backing off
// between attempts, until one exists or the context is cancelled.
func (c *TimeRangeCollector) getFirstEvent(ctx context.Context, profileID int64) (*store.Event, error) {
	bo := backoff.NewExponentialBackoff(2, 1, true)
	for {
		event, err := c.Repo.FirstEvent(ctx, profileID)
		if err != nil {
			return nil, err
		}
		if event != nil {
			return event, nil
		}
		wait := bo.Next()
		if c.Logger != nil {
			c.Logger.InfoContext(ctx, "first event not found, retrying", "profile_id", profileID, "wait", wait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// loopUntilAnomalies retrieves the window starting just after `start`,
// retrying every Interval, fast-forwarding to the next real event when a
// window comes up empty, until anomalies are found or the context ends.
func (c *TimeRangeCollector) loopUntilAnomalies(ctx context.Context, profileID int64, start time.Time) ([]store.EventWithAnomalies, error) {
	timeout := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeout):
		}

		anomalies, err := c.fetchWindow(ctx, profileID, start)
		if err != nil {
			return nil, err
		}
		if len(anomalies) > 0 {
			return anomalies, nil
		}

		next, err := c.Repo.FirstEventAfter(ctx, profileID, start)
		if err != nil {
			return nil, err
		}
		if next != nil {
			start = next.CreatedAt
			timeout = 0
			continue
		}

		timeout = c.Interval
		if c.Logger != nil {
			c.Logger.DebugContext(ctx, "no events found, retrying", "profile_id", profileID, "interval", timeout)
		}
	}
}

// fetchWindow waits for [start, start+Seconds] to have fully elapsed
// (plus Delay, for ingest lag), then fetches anomalies in that window.
func (c *TimeRangeCollector) fetchWindow(ctx context.Context, profileID int64, start time.Time) ([]store.EventWithAnomalies, error) {
	end := start.Add(c.Seconds)
	if done, err := c.waitUntil(ctx, end); done || err != nil {
		return nil, err
	}
	return c.Repo.FetchAnomaliesInWindow(ctx, profileID, start, end)
}

// waitUntil blocks until target+Delay has passed, returning true if the
// context was cancelled first.
func (c *TimeRangeCollector) waitUntil(ctx context.Context, target time.Time) (bool, error) {
	for {
		now := c.now()
		deadline := target.Add(c.Delay)
		if !deadline.After(now) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return true, nil
		case <-time.After(deadline.Sub(now)):
			return false, nil
		}
	}
}
