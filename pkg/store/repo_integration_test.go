package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrywarden/scrywarden/pkg/store"
	util "github.com/scrywarden/scrywarden/test/util"
)

// These tests run against a real Postgres schema spun up via
// testcontainers-go, mirroring the teacher's own integration-test style
// (test/util.SetupTestDatabase + require-based assertions) rather than
// mocking the driver.

func TestRepo_Ping(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	repo := store.New(pool)

	assert.NoError(t, repo.Ping(context.Background()))
}

func TestRepo_SyncProfileAndFields_IsIdempotent(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	repo := store.New(pool)
	ctx := context.Background()

	p1, err := repo.SyncProfile(ctx, "ssh-login")
	require.NoError(t, err)
	p2, err := repo.SyncProfile(ctx, "ssh-login")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, p2.ID)

	fields, err := repo.SyncFields(ctx, p1.ID, []string{"host", "user"})
	require.NoError(t, err)
	assert.Len(t, fields, 2)
	assert.Equal(t, "host", fields["host"].Name)

	again, err := repo.SyncFields(ctx, p1.ID, []string{"host", "user"})
	require.NoError(t, err)
	assert.Equal(t, fields["host"].ID, again["host"].ID)
}

func TestRepo_EventPipeline_RecordsAnomaliesAndWindow(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	repo := store.New(pool)
	ctx := context.Background()

	profile, err := repo.SyncProfile(ctx, "anomaly-flow")
	require.NoError(t, err)
	fields, err := repo.SyncFields(ctx, profile.ID, []string{"greeting"})
	require.NoError(t, err)

	actors, err := repo.UpsertActors(ctx, profile.ID, []string{"george"})
	require.NoError(t, err)
	actor := actors["george"]

	msgID := uuid.New()
	require.NoError(t, repo.UpsertMessages(ctx, []store.Message{
		{ID: msgID, Data: map[string]any{"greeting": "hello"}},
	}))

	now := time.Now().UTC().Truncate(time.Millisecond)
	events, err := repo.InsertEvents(ctx, []store.Event{
		{ProfileID: profile.ID, MessageID: msgID, ActorID: actor.ID, CreatedAt: now},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	features, err := repo.UpsertFeatures(ctx, []store.FeatureDelta{
		{FieldID: fields["greeting"].ID, ActorID: actor.ID, Value: "hello", Delta: 1},
	})
	require.NoError(t, err)
	require.Len(t, features, 1)

	require.NoError(t, repo.InsertAnomalies(ctx, []store.Anomaly{
		{EventID: events[0].ID, FieldID: fields["greeting"].ID, FeatureID: features[0].ID, Score: 0.9},
	}))

	window, err := repo.FetchAnomaliesInWindow(ctx, profile.ID, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "george", window[0].ActorName)
	require.Len(t, window[0].Anomalies, 1)
	assert.InDelta(t, 0.9, window[0].Anomalies[0].Score, 0.0001)
}

func TestRepo_InvestigationClaimSequence(t *testing.T) {
	pool := util.SetupTestDatabase(t)
	repo := store.New(pool)
	ctx := context.Background()

	profile, err := repo.SyncProfile(ctx, "investigation-flow")
	require.NoError(t, err)

	group, err := repo.SyncInvestigationGroup(ctx, profile.ID, "")
	require.NoError(t, err)

	investigatorID := uuid.New()
	_, err = repo.CreateInvestigator(ctx, investigatorID, profile.ID)
	require.NoError(t, err)

	latest, err := repo.LatestInvestigation(ctx, group.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	inv, err := repo.CreateInvestigation(ctx, group.ID, investigatorID, 0, uuid.New().String())
	require.NoError(t, err)
	require.NotNil(t, inv.Index)
	assert.Equal(t, int64(0), *inv.Index)

	_, err = repo.CreateInvestigation(ctx, group.ID, investigatorID, 0, uuid.New().String())
	assert.ErrorIs(t, err, store.ErrIndexTaken)

	require.NoError(t, repo.MarkAssigned(ctx, inv.ID))
	require.NoError(t, repo.CompleteInvestigation(ctx, inv.ID, time.Now()))

	fetched, err := repo.GetInvestigation(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.True(t, fetched.IsAssigned)
	assert.NotNil(t, fetched.CompletedAt)

	require.NoError(t, repo.DeleteInvestigator(ctx, investigatorID))
}
