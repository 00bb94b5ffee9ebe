// Package investigator implements the per-profile investigation loop:
// claim the next monotonic investigation index in a profile's group,
// collect the anomalies in its window, run the analyzer, and forward
// flagged findings to the curator.
package investigator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/scrywarden/scrywarden/pkg/analyzer"
	"github.com/scrywarden/scrywarden/pkg/backoff"
	"github.com/scrywarden/scrywarden/pkg/collector"
	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/metrics"
	"github.com/scrywarden/scrywarden/pkg/store"
)

// investigationStore is the slice of *store.Repo an Investigator needs.
type investigationStore interface {
	SyncInvestigationGroup(ctx context.Context, profileID int64, name string) (store.InvestigationGroup, error)
	CreateInvestigator(ctx context.Context, id uuid.UUID, profileID int64) (store.Investigator, error)
	DeleteInvestigator(ctx context.Context, id uuid.UUID) error
	LatestInvestigation(ctx context.Context, groupID int64) (*store.Investigation, error)
	CreateInvestigation(ctx context.Context, groupID int64, createdBy uuid.UUID, index int64, publicID string) (*store.Investigation, error)
	MarkAssigned(ctx context.Context, id int64) error
	CompleteInvestigation(ctx context.Context, id int64, completedAt time.Time) error
	DeleteInvestigation(ctx context.Context, id int64) error
	InsertInvestigationEvents(ctx context.Context, investigationID int64, eventIDs []int64) error
}

// Investigator runs one profile's claim/collect/analyze loop.
type Investigator struct {
	ID          uuid.UUID
	ProfileID   int64
	ProfileName string
	Group       string

	Repo      investigationStore
	Collector collector.Collector
	Analyzer  analyzer.Analyzer
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	groupID int64
}

// New returns an investigator for one profile, identified by a freshly
// generated UUID. Group defaults to the empty string (the single default
// group per profile).
func New(profileID int64, profileName, group string, repo investigationStore, coll collector.Collector, an analyzer.Analyzer, logger *slog.Logger) *Investigator {
	return &Investigator{
		ID:          uuid.New(),
		ProfileID:   profileID,
		ProfileName: profileName,
		Group:       group,
		Repo:        repo,
		Collector:   coll,
		Analyzer:    an,
		Logger:      logger,
	}
}

// Run syncs the investigator's group and row, then loops claiming and
// investigating until ctx is cancelled, sending every finding (even one
// with zero malicious anomalies, matching the upstream claim/collect
// loop) to out. Always finishes by deleting its own investigator row and
// sending a shutdown entry, so siblings can reap any investigation it
// claimed but never finished.
func (inv *Investigator) Run(ctx context.Context, out chan<- entry.CuratorEntry) {
	defer func() {
		if err := inv.Repo.DeleteInvestigator(context.Background(), inv.ID); err != nil && inv.Logger != nil {
			inv.Logger.ErrorContext(context.Background(), "deleting investigator row failed", "investigator", inv.ID, "error", err)
		}
		send(context.Background(), inv.Logger, out, entry.NewInvestigatorShutdownEntry(inv.ID))
	}()

	group, err := inv.Repo.SyncInvestigationGroup(ctx, inv.ProfileID, inv.Group)
	if err != nil {
		if inv.Logger != nil {
			inv.Logger.ErrorContext(ctx, "syncing investigation group failed", "profile", inv.ProfileName, "error", err)
		}
		return
	}
	inv.groupID = group.ID

	if _, err := inv.Repo.CreateInvestigator(ctx, inv.ID, inv.ProfileID); err != nil {
		if inv.Logger != nil {
			inv.Logger.ErrorContext(ctx, "creating investigator row failed", "profile", inv.ProfileName, "error", err)
		}
		return
	}

	for ctx.Err() == nil {
		investigation, events := inv.investigate(ctx)
		if investigation == nil {
			continue
		}
		if !send(ctx, inv.Logger, out, entry.NewMaliciousActivityEntry(inv.ID, *investigation, events)) {
			return
		}
	}
}

// investigate runs one claim/collect/analyze cycle, returning nil, nil if
// the collected window had no anomalies to report at all.
func (inv *Investigator) investigate(ctx context.Context) (*store.Investigation, []store.EventWithAnomalies) {
	claimStart := time.Now()
	investigation, previous := inv.createInvestigation(ctx)
	if investigation == nil {
		return nil, nil
	}
	if inv.Metrics != nil {
		inv.Metrics.InvestigationClaimSeconds.Observe(time.Since(claimStart).Seconds())
	}

	events, err := inv.Collector.Collect(ctx, inv.ProfileID, previous)
	if err != nil {
		if inv.Logger != nil {
			inv.Logger.ErrorContext(ctx, "collecting anomalies failed", "investigation", investigation.ID, "error", err)
		}
		_ = inv.Repo.DeleteInvestigation(context.Background(), investigation.ID)
		return nil, nil
	}
	if len(events) == 0 {
		_ = inv.Repo.DeleteInvestigation(context.Background(), investigation.ID)
		return nil, nil
	}
	if inv.Metrics != nil {
		inv.Metrics.InvestigationWindowEvents.Observe(float64(len(events)))
	}

	eventIDs := make([]int64, len(events))
	for i, e := range events {
		eventIDs[i] = e.Event.ID
	}
	if err := inv.Repo.InsertInvestigationEvents(ctx, investigation.ID, eventIDs); err != nil && inv.Logger != nil {
		inv.Logger.ErrorContext(ctx, "assigning events to investigation failed", "investigation", investigation.ID, "error", err)
	}
	if err := inv.Repo.MarkAssigned(ctx, investigation.ID); err != nil && inv.Logger != nil {
		inv.Logger.ErrorContext(ctx, "marking investigation assigned failed", "investigation", investigation.ID, "error", err)
	}

	malicious := inv.Analyzer.Analyze(events)

	if err := inv.Repo.CompleteInvestigation(ctx, investigation.ID, time.Now()); err != nil && inv.Logger != nil {
		inv.Logger.ErrorContext(ctx, "completing investigation failed", "investigation", investigation.ID, "error", err)
	}
	return investigation, malicious
}

// createInvestigation waits for the previous investigation to finish
// claiming its events, then claims the next index, retrying when another
// investigator won the race for the same index.
func (inv *Investigator) createInvestigation(ctx context.Context) (*store.Investigation, *store.Investigation) {
	for ctx.Err() == nil {
		previous, err := inv.getPreviousInvestigation(ctx)
		if err != nil {
			return nil, nil
		}
		index := int64(1)
		if previous != nil && previous.Index != nil {
			index = *previous.Index + 1
		}
		publicID := ulid.Make().String()
		created, err := inv.Repo.CreateInvestigation(ctx, inv.groupID, inv.ID, index, publicID)
		if err == store.ErrIndexTaken {
			continue
		}
		if err != nil {
			if inv.Logger != nil {
				inv.Logger.ErrorContext(ctx, "creating investigation failed", "error", err)
			}
			return nil, nil
		}
		return created, previous
	}
	return nil, nil
}

// getPreviousInvestigation returns the group's most recent investigation,
// waiting (with backoff) until it's either assigned or reapable - an
// unassigned investigation with a NULL created_by belonged to an
// investigator that died mid-claim, so it's deleted and the search
// restarts.
func (inv *Investigator) getPreviousInvestigation(ctx context.Context) (*store.Investigation, error) {
	previous, err := inv.Repo.LatestInvestigation(ctx, inv.groupID)
	if err != nil {
		return nil, err
	}
	if previous == nil || previous.IsAssigned {
		return previous, nil
	}

	bo := backoff.NewExponentialBackoff(1, 1, true)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.Next()):
		}
		previous, err = inv.Repo.LatestInvestigation(ctx, inv.groupID)
		if err != nil {
			return nil, err
		}
		if previous == nil || previous.IsAssigned {
			return previous, nil
		}
		if previous.CreatedBy == nil {
			if inv.Logger != nil {
				inv.Logger.WarnContext(ctx, "reaping abandoned investigation", "investigation", previous.ID)
			}
			_ = inv.Repo.DeleteInvestigation(ctx, previous.ID)
			bo.Reset()
			continue
		}
	}
}

// send delivers a CuratorEntry, retrying with exponential backoff while
// the channel is full, until it succeeds or ctx is cancelled.
func send(ctx context.Context, logger *slog.Logger, out chan<- entry.CuratorEntry, e entry.CuratorEntry) bool {
	bo := backoff.NewExponentialBackoff(2, 1, false)
	for {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(bo.Next()):
			if logger != nil {
				logger.DebugContext(ctx, "curator queue full, backing off", "attempts", bo.Attempts())
			}
		}
	}
}
