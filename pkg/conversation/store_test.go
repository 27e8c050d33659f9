package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionlabs/aigateway/pkg/metrics"
	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/test/util"
)

func newSession(tenantID, userID, topicID string) *models.Session {
	return &models.Session{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		UserID:   userID,
		TopicID:  topicID,
		Status:   models.SessionStatusActive,
		Turn:     1,
		MaxTurns: 6,
		Messages: []models.Message{
			{Role: models.MessageRoleSystem, Content: "You are a coach.", Timestamp: time.Now()},
			{Role: models.MessageRoleAssistant, Content: "Shall we begin?", Timestamp: time.Now()},
		},
		Context:   map[string]any{"business_id": "b-1"},
		ExpiresAt: time.Now().Add(14 * 24 * time.Hour),
	}
}

func TestStoreStartAndGet(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	session := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, session))
	assert.False(t, session.CreatedAt.IsZero())
	assert.False(t, session.UpdatedAt.IsZero())

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.TenantID, loaded.TenantID)
	assert.Equal(t, 1, loaded.Turn)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "Shall we begin?", loaded.Messages[1].Content)
	assert.Equal(t, "b-1", loaded.Context["business_id"])
	assert.Nil(t, loaded.Result)
}

func TestStoreStartCancelsOwnOpenSession(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	first := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, first))

	second := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, second))

	old, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, old.Status)

	open, err := store.FindOpen(ctx, "tenant-1", "core_values")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, second.ID, open.ID)
}

func TestStoreStartBlockedByOtherUser(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	require.NoError(t, store.Start(ctx, newSession("tenant-1", "user-1", "core_values")))

	err := store.Start(ctx, newSession("tenant-1", "user-2", "core_values"))
	assert.ErrorIs(t, err, ErrOpenSessionExists)

	// Same topic in another tenant is unaffected.
	require.NoError(t, store.Start(ctx, newSession("tenant-2", "user-1", "core_values")))
}

func TestStoreStartAbandonsExpiredHolder(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	stale := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, stale))
	_, err := store.db.ExecContext(ctx,
		`UPDATE ai_sessions SET expires_at = now() - interval '1 hour' WHERE session_id = $1`, stale.ID)
	require.NoError(t, err)

	// A dead session, even another user's, no longer blocks the topic.
	fresh := newSession("tenant-1", "user-2", "core_values")
	require.NoError(t, store.Start(ctx, fresh))

	old, err := store.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusAbandoned, old.Status)
}

func TestStoreUpdateCAS(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	session := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, session))

	expected := session.UpdatedAt
	session.Turn = 2
	session.Status = models.SessionStatusPaused
	session.LastActivityAt = time.Now()
	require.NoError(t, store.Update(ctx, session, expected))
	assert.True(t, session.UpdatedAt.After(expected))

	// A writer holding the old timestamp loses.
	session.Turn = 3
	err := store.Update(ctx, session, expected)
	assert.ErrorIs(t, err, ErrStaleSession)

	loaded, err := store.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Turn)
	assert.Equal(t, models.SessionStatusPaused, loaded.Status)
}

func TestStoreList(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	active := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, active))
	time.Sleep(5 * time.Millisecond)

	completed := newSession("tenant-1", "user-1", "purpose_discovery")
	require.NoError(t, store.Start(ctx, completed))
	completed.Status = models.SessionStatusCompleted
	completed.Result = map[string]any{"purpose": "help trades thrive"}
	require.NoError(t, store.Update(ctx, completed, completed.UpdatedAt))

	open, err := store.List(ctx, "tenant-1", "user-1", false, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, active.ID, open[0].ID)

	all, err := store.List(ctx, "tenant-1", "user-1", true, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, completed.ID, all[0].ID, "newest first")
}

func TestStoreSweepExpired(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	expired := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, expired))
	_, err := store.db.ExecContext(ctx,
		`UPDATE ai_sessions SET expires_at = now() - interval '1 minute' WHERE session_id = $1`, expired.ID)
	require.NoError(t, err)

	healthy := newSession("tenant-1", "user-1", "purpose_discovery")
	require.NoError(t, store.Start(ctx, healthy))

	terminal := newSession("tenant-1", "user-1", "vision_casting")
	require.NoError(t, store.Start(ctx, terminal))
	terminal.Status = models.SessionStatusCompleted
	require.NoError(t, store.Update(ctx, terminal, terminal.UpdatedAt))
	_, err = store.db.ExecContext(ctx,
		`UPDATE ai_sessions SET expires_at = now() - interval '1 minute' WHERE session_id = $1`, terminal.ID)
	require.NoError(t, err)

	swept, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{expired.ID}, swept, "terminal and healthy sessions are untouched")

	abandoned, err := store.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusAbandoned, abandoned.Status)

	// The sweep is idempotent.
	again, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestSweeperLoop(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	expired := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, expired))
	_, err := store.db.ExecContext(ctx,
		`UPDATE ai_sessions SET expires_at = now() - interval '1 minute' WHERE session_id = $1`, expired.ID)
	require.NoError(t, err)

	sweeper := NewSweeper(store, time.Hour) // immediate sweep on start
	sweeper.Start(ctx)
	t.Cleanup(sweeper.Stop)

	require.Eventually(t, func() bool {
		s, err := store.Get(ctx, expired.ID)
		return err == nil && s.Status == models.SessionStatusAbandoned
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSweeperAdjustsActiveSessionsGauge(t *testing.T) {
	store := NewStore(util.SetupTestDatabase(t))
	ctx := context.Background()

	expired := newSession("tenant-1", "user-1", "core_values")
	require.NoError(t, store.Start(ctx, expired))
	metrics.ActiveSessions.Inc() // mirror what Engine.Start records
	_, err := store.db.ExecContext(ctx,
		`UPDATE ai_sessions SET expires_at = now() - interval '1 minute' WHERE session_id = $1`, expired.ID)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.ActiveSessions)
	sweeper := NewSweeper(store, time.Hour)
	sweeper.Start(ctx)
	t.Cleanup(sweeper.Stop)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.ActiveSessions) == before-1
	}, 5*time.Second, 20*time.Millisecond, "abandoning an expired session releases its gauge slot")
}
