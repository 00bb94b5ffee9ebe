// Package pipeline implements the identification phase of anomaly
// detection: actors are identified from messages, field values are
// extracted, processed for anomalies against behavioral profiles, and
// persisted as events. It also owns the transport goroutines messages are
// received from.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scrywarden/scrywarden/pkg/backoff"
	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/errs"
	"github.com/scrywarden/scrywarden/pkg/metrics"
	"github.com/scrywarden/scrywarden/pkg/profile"
	"github.com/scrywarden/scrywarden/pkg/reporter"
	"github.com/scrywarden/scrywarden/pkg/store"
	"github.com/scrywarden/scrywarden/pkg/transport"
)

// pipelineStore is the slice of *store.Repo the coordinator needs,
// declared here so tests can supply a fake without a database.
type pipelineStore interface {
	UpsertActors(ctx context.Context, profileID int64, names []string) (map[string]store.Actor, error)
	GetFeatures(ctx context.Context, fieldIDs, actorIDs []int64) ([]store.Feature, error)
	UpsertFeatures(ctx context.Context, deltas []store.FeatureDelta) ([]store.Feature, error)
	UpsertMessages(ctx context.Context, messages []store.Message) error
	InsertEvents(ctx context.Context, events []store.Event) ([]store.Event, error)
	InsertAnomalies(ctx context.Context, anomalies []store.Anomaly) error
}

const (
	defaultQueueSize = 500
	defaultTimeout   = 10 * time.Second
)

// Coordinator runs the transport goroutines, batches their messages, and
// periodically runs them through every profile.
type Coordinator struct {
	Transports []transport.Transport
	Profiles   []*profile.Profile
	Repo       pipelineStore
	QueueSize  int
	Timeout    time.Duration
	Logger     *slog.Logger
	Metrics    *metrics.Metrics

	profilesByID map[int64]*profile.Profile
	messages     []entry.Message

	mu        sync.Mutex
	processID uuid.UUID
	timer     *time.Timer
}

// taggedAnomaly is a reporter.ScoredRow annotated with the profile that
// produced it, needed to build Events since a batch may mix profiles.
type taggedAnomaly struct {
	ProfileID int64
	reporter.ScoredRow
}

// Run starts every transport and processes batched messages until every
// transport has shut down and the queue has fully drained. Returns
// errs.ErrNoTransports if no transports are configured.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.Transports) == 0 {
		return errs.ErrNoTransports
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	c.profilesByID = make(map[int64]*profile.Profile, len(c.Profiles))
	for _, p := range c.Profiles {
		c.profilesByID[p.Model.ID] = p
	}

	queue := make(chan entry.PipelineEntry, c.QueueSize)
	g, gctx := errgroup.WithContext(ctx)
	for _, tr := range c.Transports {
		tr := tr
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("transport %s panicked: %v", tr.Name(), r)
				}
			}()
			tr.Run(gctx, queue)
			return nil
		})
	}

	active := make(map[string]bool, len(c.Transports))
	for _, tr := range c.Transports {
		active[tr.Name()] = true
	}

	timeoutCh := make(chan struct{}, 1)
	for len(active) > 0 {
		select {
		case e := <-queue:
			switch e.Kind {
			case entry.KindMessage:
				c.messages = append(c.messages, e.Message)
				c.startTimeout(timeoutCh)
			case entry.KindShutdown:
				delete(active, e.Transport)
				if c.Logger != nil {
					c.Logger.Info("transport shut down", "transport", e.Transport, "remaining", len(active))
				}
			case entry.KindBlip:
				if c.Logger != nil {
					c.Logger.Debug("received pipeline blip")
				}
			}
			if len(c.messages) >= c.QueueSize {
				c.runCycle(ctx)
			}
		case <-timeoutCh:
			c.runCycle(ctx)
		}
	}

	c.cancelTimeout()
	groupErr := g.Wait()
	if c.Logger != nil {
		c.Logger.Info("clearing remaining messages", "count", len(c.messages))
	}
	c.runCycle(ctx)
	return groupErr
}

// runCycle times one identification cycle at debug level, the same
// benchmark-wrapping the teacher applies around its own expensive per-cycle
// work.
func (c *Coordinator) runCycle(ctx context.Context) {
	_ = backoff.Benchmark(ctx, c.Logger, "pipeline.process", func() error {
		c.process(ctx)
		return nil
	})
}

func (c *Coordinator) startTimeout(timeoutCh chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		return
	}
	pid := c.processID
	c.timer = time.AfterFunc(c.Timeout, func() {
		c.mu.Lock()
		match := c.processID == pid
		c.timer = nil
		c.mu.Unlock()
		if !match {
			return
		}
		select {
		case timeoutCh <- struct{}{}:
		default:
		}
	})
}

func (c *Coordinator) cancelTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// process runs one identification cycle over every buffered message.
func (c *Coordinator) process(ctx context.Context) {
	c.mu.Lock()
	c.processID = uuid.New()
	c.mu.Unlock()
	c.cancelTimeout()

	messages := c.messages
	c.messages = nil
	if len(messages) == 0 {
		return
	}
	start := time.Now()

	indexed := make(map[uuid.UUID]entry.Message, len(messages))
	for _, m := range messages {
		indexed[m.ID] = m
	}

	type identified struct {
		ProfileID int64
		Rows      []profile.IdentifiedRow
	}
	var perProfile []identified
	namesByProfile := make(map[int64]map[string]struct{})
	for _, p := range c.Profiles {
		rows := p.Identify(ctx, c.Logger, messages)
		perProfile = append(perProfile, identified{ProfileID: p.Model.ID, Rows: rows})
		if len(rows) == 0 {
			continue
		}
		set := namesByProfile[p.Model.ID]
		if set == nil {
			set = make(map[string]struct{})
			namesByProfile[p.Model.ID] = set
		}
		for _, r := range rows {
			set[r.ActorName] = struct{}{}
		}
	}

	actorIDs := make(map[int64]map[string]int64, len(namesByProfile))
	for profileID, set := range namesByProfile {
		names := make([]string, 0, len(set))
		for n := range set {
			names = append(names, n)
		}
		actors, err := c.Repo.UpsertActors(ctx, profileID, names)
		if err != nil {
			if c.Logger != nil {
				c.Logger.ErrorContext(ctx, "upserting actors failed", "profile", profileID, "error", err)
			}
			continue
		}
		byName := make(map[string]int64, len(actors))
		for name, a := range actors {
			byName[name] = a.ID
		}
		actorIDs[profileID] = byName
	}

	type profileValues struct {
		ProfileID int64
		Values    []reporter.ValueRow
	}
	var allValues []reporter.ValueRow
	var perProfileValues []profileValues
	fieldSet := make(map[int64]struct{})
	actorSet := make(map[int64]struct{})
	for _, p := range perProfile {
		byName := actorIDs[p.ProfileID]
		values := make([]reporter.ValueRow, 0, len(p.Rows))
		for _, row := range p.Rows {
			actorID, ok := byName[row.ActorName]
			if !ok {
				continue
			}
			v := reporter.ValueRow{
				FieldID:   row.FieldID,
				ActorID:   actorID,
				MessageID: row.MessageID,
				Timestamp: row.Timestamp,
				Value:     row.Value,
			}
			values = append(values, v)
			fieldSet[v.FieldID] = struct{}{}
			actorSet[v.ActorID] = struct{}{}
		}
		sort.Slice(values, func(i, j int) bool { return values[i].Timestamp.Before(values[j].Timestamp) })
		perProfileValues = append(perProfileValues, profileValues{ProfileID: p.ProfileID, Values: values})
		allValues = append(allValues, values...)
	}

	fieldIDs := setToSlice(fieldSet)
	actorIDList := setToSlice(actorSet)
	features, err := c.Repo.GetFeatures(ctx, fieldIDs, actorIDList)
	if err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "fetching features failed", "error", err)
		}
		return
	}

	var anomalies []taggedAnomaly
	for _, pv := range perProfileValues {
		p := c.profilesByID[pv.ProfileID]
		if p == nil || len(pv.Values) == 0 {
			continue
		}
		// The updated snapshot isn't threaded into the next profile's
		// Process call: every field belongs to exactly one profile
		// (fields.profile_id), so no two profiles ever share a feature row
		// and there's nothing for a later profile to see anyway.
		scored, _ := p.Process(pv.Values, features)
		for _, s := range scored {
			if s.Score > 0 {
				anomalies = append(anomalies, taggedAnomaly{ProfileID: pv.ProfileID, ScoredRow: s})
			}
		}
	}

	deltas := buildFeatureDeltas(allValues)
	updated, err := c.Repo.UpsertFeatures(ctx, deltas)
	if err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "upserting features failed", "error", err)
		}
		return
	}
	featureIDs := make(map[favKey]int64, len(updated))
	for _, f := range updated {
		featureIDs[favKey{f.FieldID, f.ActorID, f.Value}] = f.ID
	}
	for i := range anomalies {
		k := favKey{anomalies[i].FieldID, anomalies[i].ActorID, anomalies[i].Value}
		if id, ok := featureIDs[k]; ok {
			anomalies[i].FeatureID = id
		}
	}

	if len(anomalies) == 0 {
		if c.Metrics != nil {
			c.Metrics.PipelineCycleSeconds.Observe(time.Since(start).Seconds())
			c.Metrics.PipelineBatchSize.Observe(float64(len(messages)))
		}
		return
	}

	c.generateEvents(ctx, indexed, anomalies)

	if c.Metrics != nil {
		c.Metrics.PipelineCycleSeconds.Observe(time.Since(start).Seconds())
		c.Metrics.PipelineBatchSize.Observe(float64(len(messages)))
		c.Metrics.PipelineAnomaliesTotal.Add(float64(len(anomalies)))
	}
}

type favKey struct {
	FieldID int64
	ActorID int64
	Value   string
}

// buildFeatureDeltas counts, for every distinct (field, actor, value),
// how many distinct messages produced it in this batch.
func buildFeatureDeltas(values []reporter.ValueRow) []store.FeatureDelta {
	seen := make(map[favKey]map[uuid.UUID]struct{})
	var order []favKey
	for _, v := range values {
		k := favKey{v.FieldID, v.ActorID, v.Value}
		msgs, ok := seen[k]
		if !ok {
			msgs = make(map[uuid.UUID]struct{})
			seen[k] = msgs
			order = append(order, k)
		}
		msgs[v.MessageID] = struct{}{}
	}
	deltas := make([]store.FeatureDelta, 0, len(order))
	for _, k := range order {
		deltas = append(deltas, store.FeatureDelta{
			FieldID: k.FieldID,
			ActorID: k.ActorID,
			Value:   k.Value,
			Delta:   int64(len(seen[k])),
		})
	}
	return deltas
}

type eventKey struct {
	ProfileID int64
	MessageID uuid.UUID
	ActorID   int64
	Timestamp time.Time
}

// generateEvents upserts the raw message payloads behind each anomaly,
// then creates one Event per (profile, message, actor, timestamp) group
// and an Anomaly row per field-level score within it.
func (c *Coordinator) generateEvents(ctx context.Context, indexed map[uuid.UUID]entry.Message, anomalies []taggedAnomaly) {
	seenMsg := make(map[uuid.UUID]struct{})
	var storeMessages []store.Message
	for _, a := range anomalies {
		if _, ok := seenMsg[a.MessageID]; ok {
			continue
		}
		seenMsg[a.MessageID] = struct{}{}
		if msg, ok := indexed[a.MessageID]; ok {
			storeMessages = append(storeMessages, store.Message{ID: msg.ID, Data: msg.Data})
		}
	}
	if err := c.Repo.UpsertMessages(ctx, storeMessages); err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "upserting messages failed", "error", err)
		}
		return
	}

	groups := make(map[eventKey][]taggedAnomaly)
	var order []eventKey
	for _, a := range anomalies {
		k := eventKey{ProfileID: a.ProfileID, MessageID: a.MessageID, ActorID: a.ActorID, Timestamp: a.Timestamp}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], a)
	}

	events := make([]store.Event, 0, len(order))
	for _, k := range order {
		events = append(events, store.Event{
			ProfileID: k.ProfileID,
			MessageID: k.MessageID,
			ActorID:   k.ActorID,
			CreatedAt: k.Timestamp,
		})
	}
	created, err := c.Repo.InsertEvents(ctx, events)
	if err != nil {
		if c.Logger != nil {
			c.Logger.ErrorContext(ctx, "inserting events failed", "error", err)
		}
		return
	}

	var storeAnomalies []store.Anomaly
	for i, k := range order {
		eventID := created[i].ID
		for _, a := range groups[k] {
			storeAnomalies = append(storeAnomalies, store.Anomaly{
				EventID:   eventID,
				FieldID:   a.FieldID,
				FeatureID: a.FeatureID,
				Score:     a.Score,
			})
		}
	}
	if err := c.Repo.InsertAnomalies(ctx, storeAnomalies); err != nil && c.Logger != nil {
		c.Logger.ErrorContext(ctx, "inserting anomalies failed", "error", err)
	}
}

func setToSlice(s map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
