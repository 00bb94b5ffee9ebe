package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrIndexTaken is returned by CreateInvestigation when another
// investigator already claimed the requested (group, index) pair. Callers
// retry with a freshly re-read previous investigation.
var ErrIndexTaken = errors.New("investigation index already claimed")

// SyncInvestigationGroup gets or creates the named coordination group for a profile.
func (r *Repo) SyncInvestigationGroup(ctx context.Context, profileID int64, name string) (InvestigationGroup, error) {
	var g InvestigationGroup
	err := r.pool.QueryRow(ctx, `
		INSERT INTO investigation_groups (profile_id, name) VALUES ($1, $2)
		ON CONFLICT (profile_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, profile_id, name`, profileID, name).Scan(&g.ID, &g.ProfileID, &g.Name)
	return g, err
}

// CreateInvestigator inserts a new investigator row, identified by a
// caller-generated UUID so the ID is known before the row exists.
func (r *Repo) CreateInvestigator(ctx context.Context, id uuid.UUID, profileID int64) (Investigator, error) {
	var inv Investigator
	err := r.pool.QueryRow(ctx, `
		INSERT INTO investigators (id, profile_id) VALUES ($1, $2)
		RETURNING id, profile_id, created_at`, id, profileID,
	).Scan(&inv.ID, &inv.ProfileID, &inv.CreatedAt)
	return inv, err
}

// DeleteInvestigator removes an investigator's row on clean shutdown. Any
// investigation it created but never assigned keeps its row with
// created_by set NULL, which is the tombstone a sibling investigator uses
// to know it's safe to proceed without waiting further.
func (r *Repo) DeleteInvestigator(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM investigators WHERE id = $1`, id)
	return err
}

// LatestInvestigation returns the most recently created investigation in a
// group, or nil if the group has none yet.
func (r *Repo) LatestInvestigation(ctx context.Context, groupID int64) (*Investigation, error) {
	return r.scanInvestigation(r.pool.QueryRow(ctx, `
		SELECT id, group_id, public_id, index, created_at, created_by, completed_at, is_assigned, options
		FROM investigations WHERE group_id = $1
		ORDER BY created_at DESC LIMIT 1`, groupID))
}

// GetInvestigation fetches a single investigation by ID, re-read during
// the wait-until-assigned rendezvous.
func (r *Repo) GetInvestigation(ctx context.Context, id int64) (*Investigation, error) {
	return r.scanInvestigation(r.pool.QueryRow(ctx, `
		SELECT id, group_id, public_id, index, created_at, created_by, completed_at, is_assigned, options
		FROM investigations WHERE id = $1`, id))
}

func (r *Repo) scanInvestigation(row pgx.Row) (*Investigation, error) {
	var inv Investigation
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.PublicID, &inv.Index, &inv.CreatedAt,
		&inv.CreatedBy, &inv.CompletedAt, &inv.IsAssigned, &inv.Options)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get investigation: %w", err)
	}
	return &inv, nil
}

// CreateInvestigation claims the next index in a group for createdBy. It
// returns ErrIndexTaken (not a fatal error) when another investigator won
// the race for the same (group, index) pair, so the caller can re-read the
// new previous investigation and retry with its index+1.
func (r *Repo) CreateInvestigation(ctx context.Context, groupID int64, createdBy uuid.UUID, index int64, publicID string) (*Investigation, error) {
	var inv Investigation
	err := r.pool.QueryRow(ctx, `
		INSERT INTO investigations (group_id, public_id, index, created_by, is_assigned, options)
		VALUES ($1, $2, $3, $4, FALSE, '{}'::jsonb)
		RETURNING id, group_id, public_id, index, created_at, created_by, completed_at, is_assigned, options`,
		groupID, publicID, index, createdBy,
	).Scan(&inv.ID, &inv.GroupID, &inv.PublicID, &inv.Index, &inv.CreatedAt,
		&inv.CreatedBy, &inv.CompletedAt, &inv.IsAssigned, &inv.Options)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrIndexTaken
		}
		return nil, fmt.Errorf("create investigation: %w", err)
	}
	return &inv, nil
}

// MarkAssigned flips is_assigned once a prospective investigation has
// confirmed collected anomalies, so siblings waiting on it can proceed.
func (r *Repo) MarkAssigned(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE investigations SET is_assigned = TRUE WHERE id = $1`, id)
	return err
}

// CompleteInvestigation stamps completed_at once analysis has run.
func (r *Repo) CompleteInvestigation(ctx context.Context, id int64, completedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE investigations SET completed_at = $2 WHERE id = $1`, id, completedAt)
	return err
}

// DeleteInvestigation removes an investigation that collected zero
// anomalies, so it never occupies a permanent slot in the index sequence.
func (r *Repo) DeleteInvestigation(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM investigations WHERE id = $1`, id)
	return err
}

// InsertInvestigationEvents links an investigation to the events it examined.
func (r *Repo) InsertInvestigationEvents(ctx context.Context, investigationID int64, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, eid := range eventIDs {
		batch.Queue(`
			INSERT INTO investigation_events (investigation_id, event_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, investigationID, eid)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for range eventIDs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert investigation event: %w", err)
		}
	}
	return nil
}
