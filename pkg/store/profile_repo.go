package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SyncProfile gets or creates the named profile row.
func (r *Repo) SyncProfile(ctx context.Context, name string) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name`, name).Scan(&p.ID, &p.Name)
	return p, err
}

// SyncFields gets or creates one Field row per declared name and returns
// them keyed by name.
func (r *Repo) SyncFields(ctx context.Context, profileID int64, names []string) (map[string]Field, error) {
	out := make(map[string]Field, len(names))
	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(`
			INSERT INTO fields (profile_id, name) VALUES ($1, $2)
			ON CONFLICT (profile_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, profile_id, name`, profileID, name)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range names {
		var f Field
		if err := br.QueryRow().Scan(&f.ID, &f.ProfileID, &f.Name); err != nil {
			return nil, fmt.Errorf("sync field: %w", err)
		}
		out[f.Name] = f
	}
	return out, nil
}

// UpsertActors gets or creates an Actor row per distinct name within a
// profile and returns them keyed by name. Mirrors the teacher's
// insert-on-conflict-do-nothing-then-reselect shape for batch upserts.
func (r *Repo) UpsertActors(ctx context.Context, profileID int64, names []string) (map[string]Actor, error) {
	if len(names) == 0 {
		return map[string]Actor{}, nil
	}
	batch := &pgx.Batch{}
	for _, name := range names {
		batch.Queue(`
			INSERT INTO actors (profile_id, name) VALUES ($1, $2)
			ON CONFLICT (profile_id, name) DO NOTHING`, profileID, name)
	}
	br := r.pool.SendBatch(ctx, batch)
	for range names {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("upsert actors: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("upsert actors: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, profile_id, name FROM actors
		WHERE profile_id = $1 AND name = ANY($2)`, profileID, names)
	if err != nil {
		return nil, fmt.Errorf("select actors: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Actor, len(names))
	for rows.Next() {
		var a Actor
		if err := rows.Scan(&a.ID, &a.ProfileID, &a.Name); err != nil {
			return nil, err
		}
		out[a.Name] = a
	}
	return out, rows.Err()
}

// GetFeatures fetches the cartesian join of fieldIDs x actorIDs that
// already has a Feature row, i.e. every (field, actor) pair's current
// per-value histogram.
func (r *Repo) GetFeatures(ctx context.Context, fieldIDs, actorIDs []int64) ([]Feature, error) {
	if len(fieldIDs) == 0 || len(actorIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, field_id, actor_id, value, count FROM features
		WHERE field_id = ANY($1) AND actor_id = ANY($2)`, fieldIDs, actorIDs)
	if err != nil {
		return nil, fmt.Errorf("get features: %w", err)
	}
	defer rows.Close()

	var out []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.ID, &f.FieldID, &f.ActorID, &f.Value, &f.Count); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FeatureDelta is one (field, actor, value) count increment to apply.
type FeatureDelta struct {
	FieldID int64
	ActorID int64
	Value   string
	Delta   int64
}

// UpsertFeatures applies each delta (inserting a zero-based row first if
// none existed, per the unique (field_id, actor_id, value) constraint) and
// returns the updated rows with their feature IDs.
func (r *Repo) UpsertFeatures(ctx context.Context, deltas []FeatureDelta) ([]Feature, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, d := range deltas {
		batch.Queue(`
			INSERT INTO features (field_id, actor_id, value, count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (field_id, actor_id, value)
			DO UPDATE SET count = features.count + EXCLUDED.count
			RETURNING id, field_id, actor_id, value, count`,
			d.FieldID, d.ActorID, d.Value, d.Delta)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	out := make([]Feature, 0, len(deltas))
	for range deltas {
		var f Feature
		if err := br.QueryRow().Scan(&f.ID, &f.FieldID, &f.ActorID, &f.Value, &f.Count); err != nil {
			return nil, fmt.Errorf("upsert feature: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
