package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lobby-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) PutJSON(_ context.Context, key string, v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.objects[key] = body
	return nil
}

func (m *memoryStore) snapshot(t *testing.T, key string) RoundSnapshot {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	require.True(t, ok, "missing object %s", key)
	var snap RoundSnapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

func TestArchiveSettledRounds(t *testing.T) {
	svc, clock := newTestLobby(t)
	ctx := context.Background()
	store := newMemoryStore()
	archiver := NewRoundArchiver(svc.DB, store, svc.Config.Slug(), clock)

	require.NoError(t, joinErr(svc, ctx, player(0), testTicket))
	require.NoError(t, joinErr(svc, ctx, player(1), testTicket))

	n, err := archiver.ArchiveSettled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "a started round is not archived")

	clock.Advance(PrepDuration + time.Second)
	require.NoError(t, svc.CancelRound(ctx))

	n, err = archiver.ArchiveSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap := store.snapshot(t, "tcq-lobby/rounds/000001.json")
	assert.Equal(t, "tcq-lobby", snap.Lobby)
	assert.Equal(t, models.RoundStatusCancelled, snap.Round.Status)
	assert.Len(t, snap.Round.Players, 2)
	assert.Len(t, snap.Events, 2)
	assert.Len(t, snap.Transfers, 2)

	n, err = archiver.ArchiveSettled(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "archived rounds are skipped")

	// A refund changes the round, so it is archived again
	require.NoError(t, svc.ClaimRefund(ctx, player(0), 1))
	n, err = archiver.ArchiveSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	snap = store.snapshot(t, "tcq-lobby/rounds/000001.json")
	assert.Equal(t, testTicket, snap.Round.TotalCollected)
	assert.Len(t, snap.Events, 3)
	assert.Len(t, snap.Transfers, 3)
}

func TestArchiveStoreFailureKeepsRoundPending(t *testing.T) {
	svc, clock := newTestLobby(t)
	ctx := context.Background()
	store := newMemoryStore()
	store.err = errors.New("bucket unavailable")
	archiver := NewRoundArchiver(svc.DB, store, svc.Config.Slug(), clock)

	clock.Advance(RoundDuration)
	require.NoError(t, svc.FinishRound(ctx))

	_, err := archiver.ArchiveSettled(ctx)
	require.Error(t, err)

	var round models.Round
	require.NoError(t, svc.DB.First(&round, 1).Error)
	assert.Nil(t, round.ArchivedAt)

	store.err = nil
	n, err := archiver.ArchiveSettled(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveSchedulerRunsOnInterval(t *testing.T) {
	svc, clock := newTestLobby(t)
	ctx := context.Background()
	store := newMemoryStore()
	archiver := NewRoundArchiver(svc.DB, store, svc.Config.Slug(), clock)

	clock.Advance(RoundDuration)
	require.NoError(t, svc.FinishRound(ctx))

	sched, err := archiver.StartArchiveScheduler(ctx, time.Minute)
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	assert.Eventually(t, func() bool {
		clock.Advance(time.Minute)
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.objects["tcq-lobby/rounds/000001.json"]
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}
