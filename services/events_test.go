package services

import (
	"bufio"
	"bytes"
	"context"
	"testing"

	"lobby-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvents(t *testing.T, svc *LobbyService) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, joinErr(svc, ctx, player(0), testTicket))
	require.NoError(t, joinErr(svc, ctx, player(1), testTicket))
	require.NoError(t, svc.Unjoin(ctx, player(0)))
}

func TestEventsAfterPagesInOrder(t *testing.T) {
	svc, _ := newTestLobby(t)
	seedEvents(t, svc)

	first, err := EventsAfter(svc.DB, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	rest, err := EventsAfter(svc.DB, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)

	assert.Equal(t, models.EventJoined, first[0].Type)
	assert.Equal(t, models.EventJoined, first[1].Type)
	assert.Equal(t, models.EventUnjoined, rest[0].Type)
	assert.Equal(t, models.EventRefunded, rest[1].Type)
	assert.NotEqual(t, rest[0].EventID, rest[1].EventID)
}

func TestDeliverEventsMarksDelivered(t *testing.T) {
	svc, clock := newTestLobby(t)
	svc.Publisher = &recordingPublisher{fail: true}
	seedEvents(t, svc)

	pending, err := PendingEvents(svc.DB, 10)
	require.NoError(t, err)
	require.Len(t, pending, 4)

	pub := &recordingPublisher{}
	require.NoError(t, DeliverEvents(context.Background(), svc.DB, pub, pending[:3], clock.Now()))
	assert.Len(t, pub.Events(), 3)

	pending, err = PendingEvents(svc.DB, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.EventRefunded, pending[0].Type)
}

func TestMultiPublisherJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{fail: true}
	events := []models.LobbyEvent{{ID: 1, Type: models.EventJoined}}

	err := MultiPublisher{ok, bad, NopPublisher{}}.Publish(context.Background(), events)
	require.Error(t, err)
	assert.Len(t, ok.Events(), 1, "a failing publisher must not starve the others")

	assert.NoError(t, MultiPublisher{ok}.Publish(context.Background(), events))
}

func TestWriteLobbyEventsFrames(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	last := writeLobbyEvents(w, []models.LobbyEvent{
		{ID: 4, EventID: "e-4", Type: models.EventJoined, RoundID: 1, Player: "0xa", Amount: 5},
		{ID: 9, EventID: "e-9", Type: models.EventRefunded, RoundID: 1, Player: "0xa", Amount: 5},
	})
	require.NoError(t, w.Flush())

	assert.Equal(t, uint64(9), last)
	out := buf.String()
	assert.Contains(t, out, "id: 4\nevent: Joined\ndata: {\"seq\":4,")
	assert.Contains(t, out, "id: 9\nevent: Refunded\n")
}
