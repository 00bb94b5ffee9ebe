package curator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/shipper"
	"github.com/scrywarden/scrywarden/pkg/store"
)

type fakeInvestigator struct {
	id     uuid.UUID
	events []store.EventWithAnomalies
}

func (f *fakeInvestigator) Run(ctx context.Context, out chan<- entry.CuratorEntry) {
	out <- entry.NewMaliciousActivityEntry(f.id, store.Investigation{PublicID: "inv-1"}, f.events)
	<-ctx.Done()
	out <- entry.NewInvestigatorShutdownEntry(f.id)
}

type fakeShipper struct {
	name  string
	count int32
}

func (f *fakeShipper) Name() string { return f.name }

func (f *fakeShipper) Ship(ctx context.Context, investigation store.Investigation, events []store.EventWithAnomalies) error {
	atomic.AddInt32(&f.count, 1)
	return nil
}

func TestCurator_FansOutFindingsToEveryShipper(t *testing.T) {
	inv := &fakeInvestigator{id: uuid.New(), events: []store.EventWithAnomalies{{Event: store.Event{ID: 1}}}}
	s1 := &fakeShipper{name: "one"}
	s2 := &fakeShipper{name: "two"}

	c := New([]Investigator{inv}, []shipper.Shipper{s1, s2}, nil, 4, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&s1.count))
	assert.Equal(t, int32(1), atomic.LoadInt32(&s2.count))
}

func TestCurator_ShipperQueueSize_PerShipperOverridesFallBackToDefault(t *testing.T) {
	c := New(nil, []shipper.Shipper{&fakeShipper{name: "one"}, &fakeShipper{name: "two"}, &fakeShipper{name: "three"}},
		[]int{50, 0}, 4, nil)

	assert.Equal(t, 50, c.shipperQueueSize(0))
	assert.Equal(t, 4, c.shipperQueueSize(1))
	assert.Equal(t, 4, c.shipperQueueSize(2))
}

func TestCurator_ReturnsErrorWhenNoInvestigators(t *testing.T) {
	c := New(nil, []shipper.Shipper{&fakeShipper{name: "one"}}, nil, 4, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
}

func TestCurator_ReturnsErrorWhenNoShippers(t *testing.T) {
	c := New([]Investigator{&fakeInvestigator{id: uuid.New()}}, nil, nil, 4, nil)
	err := c.Run(context.Background())
	require.Error(t, err)
}

func TestCurator_StopsOnceEveryInvestigatorShutsDown(t *testing.T) {
	var wg sync.WaitGroup
	inv := &fakeInvestigator{id: uuid.New()}
	s := &fakeShipper{name: "one"}
	c := New([]Investigator{inv}, []shipper.Shipper{s}, nil, 4, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = c.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	require.NoError(t, runErr)
}
