package investigator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/store"
)

type fakeRepo struct {
	mu             sync.Mutex
	group          store.InvestigationGroup
	investigations []*store.Investigation
	nextID         int64
	deleted        map[int64]bool
	assigned       map[int64]bool
	completed      map[int64]bool
	investigators  map[uuid.UUID]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		deleted:       map[int64]bool{},
		assigned:      map[int64]bool{},
		completed:     map[int64]bool{},
		investigators: map[uuid.UUID]bool{},
	}
}

func (f *fakeRepo) SyncInvestigationGroup(ctx context.Context, profileID int64, name string) (store.InvestigationGroup, error) {
	f.group = store.InvestigationGroup{ID: 1, ProfileID: profileID, Name: name}
	return f.group, nil
}

func (f *fakeRepo) CreateInvestigator(ctx context.Context, id uuid.UUID, profileID int64) (store.Investigator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.investigators[id] = true
	return store.Investigator{ID: id, ProfileID: profileID}, nil
}

func (f *fakeRepo) DeleteInvestigator(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.investigators, id)
	return nil
}

func (f *fakeRepo) LatestInvestigation(ctx context.Context, groupID int64) (*store.Investigation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *store.Investigation
	for _, inv := range f.investigations {
		if f.deleted[inv.ID] {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	return latest, nil
}

func (f *fakeRepo) CreateInvestigation(ctx context.Context, groupID int64, createdBy uuid.UUID, index int64, publicID string) (*store.Investigation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.investigations {
		if !f.deleted[inv.ID] && inv.Index != nil && *inv.Index == index {
			return nil, store.ErrIndexTaken
		}
	}
	f.nextID++
	idx := index
	by := createdBy
	inv := &store.Investigation{
		ID:        f.nextID,
		GroupID:   groupID,
		PublicID:  publicID,
		Index:     &idx,
		CreatedAt: time.Now(),
		CreatedBy: &by,
	}
	f.investigations = append(f.investigations, inv)
	return inv, nil
}

func (f *fakeRepo) MarkAssigned(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[id] = true
	for _, inv := range f.investigations {
		if inv.ID == id {
			inv.IsAssigned = true
		}
	}
	return nil
}

func (f *fakeRepo) CompleteInvestigation(ctx context.Context, id int64, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[id] = true
	return nil
}

func (f *fakeRepo) DeleteInvestigation(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

func (f *fakeRepo) InsertInvestigationEvents(ctx context.Context, investigationID int64, eventIDs []int64) error {
	return nil
}

type fakeCollector struct {
	events []store.EventWithAnomalies
	err    error
}

// Collect returns the canned events. With no events and no error it first
// blocks until ctx ends, the way the real collector only comes back empty
// once its context is done.
func (f *fakeCollector) Collect(ctx context.Context, profileID int64, previous *store.Investigation) ([]store.EventWithAnomalies, error) {
	if len(f.events) == 0 && f.err == nil {
		<-ctx.Done()
	}
	return f.events, f.err
}

type fakeAnalyzer struct {
	result []store.EventWithAnomalies
}

func (f *fakeAnalyzer) Analyze(events []store.EventWithAnomalies) []store.EventWithAnomalies {
	return f.result
}

func TestInvestigator_DeletesInvestigationWhenCollectorFindsNothing(t *testing.T) {
	repo := newFakeRepo()
	coll := &fakeCollector{events: nil}
	an := &fakeAnalyzer{}
	inv := New(1, "ssh", "", repo, coll, an, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan entry.CuratorEntry, 10)
	inv.Run(ctx, out)

	require.Len(t, repo.investigations, 1)
	assert.True(t, repo.deleted[repo.investigations[0].ID])
	assert.False(t, repo.assigned[repo.investigations[0].ID])
}

func TestInvestigator_EmitsMaliciousActivityWhenAnomaliesCollected(t *testing.T) {
	repo := newFakeRepo()
	events := []store.EventWithAnomalies{{Event: store.Event{ID: 1, ActorID: 2}}}
	coll := &fakeCollector{events: events}
	an := &fakeAnalyzer{result: events}
	inv := New(1, "ssh", "", repo, coll, an, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan entry.CuratorEntry, 10)

	go inv.Run(ctx, out)

	var found entry.CuratorEntry
	select {
	case found = <-out:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for malicious activity entry")
	}
	cancel()

	require.Equal(t, entry.KindMaliciousActivity, found.Kind)
	assert.Equal(t, events, found.Events)

	// drain until the shutdown entry, confirming clean exit.
	for e := range drainUntilShutdown(out, time.Second) {
		_ = e
	}
}

func TestInvestigator_SendsShutdownEntryAndDeletesItselfOnExit(t *testing.T) {
	repo := newFakeRepo()
	coll := &fakeCollector{events: nil}
	an := &fakeAnalyzer{}
	id := uuid.New()
	inv := &Investigator{ID: id, ProfileID: 1, ProfileName: "ssh", Repo: repo, Collector: coll, Analyzer: an, Logger: slog.Default()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out := make(chan entry.CuratorEntry, 10)
	inv.Run(ctx, out)

	assert.False(t, repo.investigators[id])

	found := false
	for {
		select {
		case e := <-out:
			if e.Kind == entry.KindShutdown && e.Investigator == id {
				found = true
			}
		default:
			goto done
		}
	}
done:
	assert.True(t, found)
}

func drainUntilShutdown(ch chan entry.CuratorEntry, timeout time.Duration) chan entry.CuratorEntry {
	out := make(chan entry.CuratorEntry)
	go func() {
		defer close(out)
		deadline := time.After(timeout)
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					return
				}
				out <- e
				if e.Kind == entry.KindShutdown {
					return
				}
			case <-deadline:
				return
			}
		}
	}()
	return out
}
