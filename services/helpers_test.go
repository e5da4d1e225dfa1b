package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lobby-ledger/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testTicket  = int64(50_000_000_000_000_000)
	testEscrow  = "0xlobby"
	testPayout  = "0xvault"
	testPlayers = 5
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

func testLobbyConfig() LobbyConfig {
	return LobbyConfig{
		Name:              "TCQ Lobby",
		MaxPlayers:        testPlayers,
		TicketPrice:       testTicket,
		PayoutDestination: testPayout,
		EscrowAccount:     testEscrow,
	}
}

// newTestLobby returns a lobby whose round 1 started at testStart.
func newTestLobby(t *testing.T) (*LobbyService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)
	svc := NewLobbyService(newTestDB(t), testLobbyConfig(), clock)
	_, err := svc.EnsureFirstRound(context.Background())
	require.NoError(t, err)
	return svc, clock
}

// recordingPublisher keeps everything it is handed and can be told to fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.LobbyEvent
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, events []models.LobbyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Events() []models.LobbyEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LobbyEvent(nil), p.events...)
}

func (p *recordingPublisher) SetFail(fail bool) {
	p.mu.Lock()
	p.fail = fail
	p.mu.Unlock()
}

// failingVault rejects every outgoing transfer after a successful deposit.
type failingVault struct {
	*LedgerVault
}

func (v failingVault) Transfer(*gorm.DB, models.TransferKind, uint64, string, string, int64) error {
	return errors.New("transfer rejected by recipient")
}

func player(i int) string {
	return "0xplayer" + string(rune('a'+i))
}

func joinErr(svc *LobbyService, ctx context.Context, player string, amount int64) error {
	_, err := svc.Join(ctx, player, amount)
	return err
}
