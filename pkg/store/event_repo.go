package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertMessages stores the raw payload for each message that produced at
// least one anomaly. Messages already stored (e.g. a retried batch) are
// left untouched.
func (r *Repo) UpsertMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range messages {
		batch.Queue(`
			INSERT INTO messages (id, data) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING`, m.ID, m.Data)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range messages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert messages: %w", err)
		}
	}
	return nil
}

// InsertEvents bulk-inserts one Event row per (profile, message, actor)
// anomaly group and returns them with their assigned IDs, in input order.
func (r *Repo) InsertEvents(ctx context.Context, events []Event) ([]Event, error) {
	if len(events) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`
			INSERT INTO events (profile_id, message_id, actor_id, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id`, e.ProfileID, e.MessageID, e.ActorID, e.CreatedAt)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	out := make([]Event, len(events))
	for i, e := range events {
		if err := br.QueryRow().Scan(&e.ID); err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		out[i] = e
	}
	return out, nil
}

// InsertAnomalies bulk-inserts the field-level anomaly rows once their
// parent events carry real IDs.
func (r *Repo) InsertAnomalies(ctx context.Context, anomalies []Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range anomalies {
		batch.Queue(`
			INSERT INTO anomalies (event_id, field_id, feature_id, score)
			VALUES ($1, $2, $3, $4)`, a.EventID, a.FieldID, a.FeatureID, a.Score)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range anomalies {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert anomaly: %w", err)
		}
	}
	return nil
}

// FirstEvent returns the earliest recorded event for a profile, used by
// the collector to seed its very first investigation window.
func (r *Repo) FirstEvent(ctx context.Context, profileID int64) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, profile_id, message_id, actor_id, created_at FROM events
		WHERE profile_id = $1 ORDER BY created_at ASC LIMIT 1`, profileID,
	).Scan(&e.ID, &e.ProfileID, &e.MessageID, &e.ActorID, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first event: %w", err)
	}
	return &e, nil
}

// FirstEventAfter returns the earliest event strictly after `after`, used
// to fast-forward an empty collector window to the next real activity.
func (r *Repo) FirstEventAfter(ctx context.Context, profileID int64, after time.Time) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, profile_id, message_id, actor_id, created_at FROM events
		WHERE profile_id = $1 AND created_at > $2
		ORDER BY created_at ASC LIMIT 1`, profileID, after,
	).Scan(&e.ID, &e.ProfileID, &e.MessageID, &e.ActorID, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first event after: %w", err)
	}
	return &e, nil
}

// LastInvestigationEvent returns the most recent (by created_at) event
// linked to an investigation, the point the next collection window
// resumes from.
func (r *Repo) LastInvestigationEvent(ctx context.Context, investigationID int64) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT e.id, e.profile_id, e.message_id, e.actor_id, e.created_at
		FROM events e
		JOIN investigation_events ie ON ie.event_id = e.id
		WHERE ie.investigation_id = $1
		ORDER BY e.created_at DESC LIMIT 1`, investigationID,
	).Scan(&e.ID, &e.ProfileID, &e.MessageID, &e.ActorID, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last investigation event: %w", err)
	}
	return &e, nil
}

// EventWithAnomalies is one event joined with its anomaly rows and actor
// name, the shape the analyzer consumes.
type EventWithAnomalies struct {
	Event     Event
	ActorName string
	Anomalies []Anomaly
}

// FetchAnomaliesInWindow returns every event (with its anomalies) for the
// given profile whose created_at falls in (start, end].
func (r *Repo) FetchAnomaliesInWindow(ctx context.Context, profileID int64, start, end time.Time) ([]EventWithAnomalies, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.profile_id, e.message_id, e.actor_id, e.created_at, ac.name,
		       a.id, a.event_id, a.field_id, a.feature_id, a.score
		FROM events e
		JOIN actors ac ON ac.id = e.actor_id
		JOIN anomalies a ON a.event_id = e.id
		WHERE e.profile_id = $1 AND e.created_at > $2 AND e.created_at <= $3
		ORDER BY e.created_at ASC`, profileID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch anomalies in window: %w", err)
	}
	defer rows.Close()

	byEvent := make(map[int64]*EventWithAnomalies)
	var order []int64
	for rows.Next() {
		var e Event
		var actorName string
		var a Anomaly
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.MessageID, &e.ActorID, &e.CreatedAt, &actorName,
			&a.ID, &a.EventID, &a.FieldID, &a.FeatureID, &a.Score); err != nil {
			return nil, err
		}
		ewa, ok := byEvent[e.ID]
		if !ok {
			ewa = &EventWithAnomalies{Event: e, ActorName: actorName}
			byEvent[e.ID] = ewa
			order = append(order, e.ID)
		}
		ewa.Anomalies = append(ewa.Anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]EventWithAnomalies, 0, len(order))
	for _, id := range order {
		out = append(out, *byEvent[id])
	}
	return out, nil
}
