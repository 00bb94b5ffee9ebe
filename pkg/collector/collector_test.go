package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/store"
)

type fakeStore struct {
	firstEvent        *store.Event
	eventsAfter       map[time.Time]*store.Event
	windows           map[string][]store.EventWithAnomalies
	lastInvestigation map[int64]*store.Event
}

func (f *fakeStore) FirstEvent(ctx context.Context, profileID int64) (*store.Event, error) {
	return f.firstEvent, nil
}

func (f *fakeStore) FirstEventAfter(ctx context.Context, profileID int64, after time.Time) (*store.Event, error) {
	return f.eventsAfter[after], nil
}

func (f *fakeStore) FetchAnomaliesInWindow(ctx context.Context, profileID int64, start, end time.Time) ([]store.EventWithAnomalies, error) {
	return f.windows[start.String()+end.String()], nil
}

func (f *fakeStore) LastInvestigationEvent(ctx context.Context, investigationID int64) (*store.Event, error) {
	return f.lastInvestigation[investigationID], nil
}

func TestTimeRangeCollector_InitialWindowStartsOneSecondBeforeFirstEvent(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 10, 0, time.UTC)
	start := first.Add(-time.Second)
	end := start.Add(time.Minute)
	expected := []store.EventWithAnomalies{{Event: store.Event{ID: 1}}}

	fs := &fakeStore{
		firstEvent: &store.Event{CreatedAt: first},
		windows:    map[string][]store.EventWithAnomalies{start.String() + end.String(): expected},
	}
	c := NewTimeRangeCollector(fs, nil, time.Minute, time.Second, 0)
	c.Now = func() time.Time { return end.Add(time.Hour) }

	got, err := c.Collect(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestTimeRangeCollector_FastForwardsPastEmptyWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nextEventTime := start.Add(5 * time.Minute)
	nextEnd := nextEventTime.Add(time.Minute)
	expected := []store.EventWithAnomalies{{Event: store.Event{ID: 2}}}

	fs := &fakeStore{
		eventsAfter: map[time.Time]*store.Event{start: {CreatedAt: nextEventTime}},
		windows:     map[string][]store.EventWithAnomalies{nextEventTime.String() + nextEnd.String(): expected},
	}
	c := NewTimeRangeCollector(fs, nil, time.Minute, time.Millisecond, 0)
	c.Now = func() time.Time { return nextEnd.Add(time.Hour) }

	got, err := c.loopUntilAnomalies(context.Background(), 1, start)
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestTimeRangeCollector_ResumesFromPreviousInvestigationLastEvent(t *testing.T) {
	last := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	end := last.Add(time.Minute)
	expected := []store.EventWithAnomalies{{Event: store.Event{ID: 3}}}

	fs := &fakeStore{
		lastInvestigation: map[int64]*store.Event{7: {CreatedAt: last}},
		windows:           map[string][]store.EventWithAnomalies{last.String() + end.String(): expected},
	}
	c := NewTimeRangeCollector(fs, nil, time.Minute, time.Second, 0)
	c.Now = func() time.Time { return end.Add(time.Hour) }

	got, err := c.Collect(context.Background(), 1, &store.Investigation{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, expected, got)
}

func TestTimeRangeCollector_ContextCancellationStopsWait(t *testing.T) {
	fs := &fakeStore{}
	c := NewTimeRangeCollector(fs, nil, time.Minute, time.Second, 0)
	c.Now = func() time.Time { return time.Unix(0, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Collect(ctx, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
