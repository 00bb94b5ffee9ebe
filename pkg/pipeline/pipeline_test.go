package pipeline

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/profile"
	"github.com/scrywarden/scrywarden/pkg/reporter"
	"github.com/scrywarden/scrywarden/pkg/store"
	"github.com/scrywarden/scrywarden/pkg/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// fakeTransport emits a fixed set of messages once, then shuts down.
type fakeTransport struct {
	name     string
	messages []map[string]any
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Run(ctx context.Context, out chan<- entry.PipelineEntry) {
	for _, data := range f.messages {
		out <- entry.NewMessageEntry(f.name, entry.Message{ID: uuid.New(), Data: data, Timestamp: time.Now()})
	}
	out <- entry.NewTransportShutdownEntry(f.name)
}

type fakeRepo struct {
	mu       sync.Mutex
	actors   map[string]int64
	nextID   int64
	features []store.Feature
	events   []store.Event
	anomalies []store.Anomaly
	messages []store.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{actors: map[string]int64{}}
}

func (f *fakeRepo) UpsertActors(ctx context.Context, profileID int64, names []string) (map[string]store.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]store.Actor, len(names))
	for _, n := range names {
		key := n
		id, ok := f.actors[key]
		if !ok {
			f.nextID++
			id = f.nextID
			f.actors[key] = id
		}
		out[n] = store.Actor{ID: id, ProfileID: profileID, Name: n}
	}
	return out, nil
}

func (f *fakeRepo) GetFeatures(ctx context.Context, fieldIDs, actorIDs []int64) ([]store.Feature, error) {
	return f.features, nil
}

func (f *fakeRepo) UpsertFeatures(ctx context.Context, deltas []store.FeatureDelta) ([]store.Feature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Feature, 0, len(deltas))
	for _, d := range deltas {
		var found *store.Feature
		for i := range f.features {
			if f.features[i].FieldID == d.FieldID && f.features[i].ActorID == d.ActorID && f.features[i].Value == d.Value {
				found = &f.features[i]
				break
			}
		}
		if found == nil {
			f.nextID++
			nf := store.Feature{ID: f.nextID, FieldID: d.FieldID, ActorID: d.ActorID, Value: d.Value, Count: d.Delta}
			f.features = append(f.features, nf)
			out = append(out, nf)
		} else {
			found.Count += d.Delta
			out = append(out, *found)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertMessages(ctx context.Context, messages []store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages...)
	return nil
}

func (f *fakeRepo) InsertEvents(ctx context.Context, events []store.Event) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Event, len(events))
	for i, e := range events {
		f.nextID++
		e.ID = f.nextID
		out[i] = e
	}
	f.events = append(f.events, out...)
	return out, nil
}

func (f *fakeRepo) InsertAnomalies(ctx context.Context, anomalies []store.Anomaly) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anomalies = append(f.anomalies, anomalies...)
	return nil
}

func testProfile(t *testing.T, name string, profileID int64) *profile.Profile {
	t.Helper()
	def := profile.NewDefinition(name,
		func(m map[string]any) bool { return m["kind"] == name },
		func(m map[string]any) (string, error) { return m["user"].(string), nil },
	)
	require.NoError(t, def.AddField("host", &profile.Single{}, reporter.NewMandatory(1.0)))
	return profile.Bind(def, store.Profile{ID: profileID, Name: name}, map[string]store.Field{
		"host": {ID: profileID*10 + 1, ProfileID: profileID, Name: "host"},
	})
}

func TestCoordinator_Run_ReturnsErrorWithNoTransports(t *testing.T) {
	c := &Coordinator{Repo: newFakeRepo(), Logger: discardLogger()}
	err := c.Run(context.Background())
	require.Error(t, err)
}

func TestCoordinator_Run_ProcessesBatchAndRecordsAnomaly(t *testing.T) {
	repo := newFakeRepo()
	p := testProfile(t, "ssh", 1)

	tr := &fakeTransport{name: "fixture", messages: []map[string]any{
		{"kind": "ssh", "user": "alice", "host": "box-1"},
	}}

	c := &Coordinator{
		Transports: []transport.Transport{tr},
		Profiles:   []*profile.Profile{p},
		Repo:       repo,
		QueueSize:  10,
		Timeout:    10 * time.Millisecond,
		Logger:     discardLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.NoError(t, err)

	require.Len(t, repo.events, 1)
	require.Len(t, repo.anomalies, 1)
	assert.Equal(t, 1.0, repo.anomalies[0].Score)
	assert.Len(t, repo.messages, 1)
}

func TestCoordinator_Run_SkipsMessagesFromUnmatchedProfiles(t *testing.T) {
	repo := newFakeRepo()
	p := testProfile(t, "ssh", 1)

	tr := &fakeTransport{name: "fixture", messages: []map[string]any{
		{"kind": "http", "user": "alice", "host": "box-1"},
	}}

	c := &Coordinator{
		Transports: []transport.Transport{tr},
		Profiles:   []*profile.Profile{p},
		Repo:       repo,
		QueueSize:  10,
		Timeout:    10 * time.Millisecond,
		Logger:     discardLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := c.Run(ctx)
	require.NoError(t, err)

	assert.Empty(t, repo.events)
	assert.Empty(t, repo.anomalies)
}
