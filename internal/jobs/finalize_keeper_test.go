package jobs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictive-league/internal/confidential"
	"predictive-league/internal/models"
	"predictive-league/internal/repository/boltdb"
	"predictive-league/internal/services"
)

var (
	contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")
	keeper   = common.HexToAddress("0x000000000000000000000000000000000000cee9")
	alice    = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca401")
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newKeeperLedger(t *testing.T, leagues ...string) (*services.LeagueService, *stepClock) {
	t.Helper()
	store, err := boltdb.Open(filepath.Join(t.TempDir(), "league.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &stepClock{now: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	svc := services.NewLeagueService(store, confidential.NewCommitmentBoundary(), clock, services.Policy{
		MinEntryFee:     models.NewWei(1),
		ChallengeBond:   models.NewWei(5),
		ChallengePeriod: time.Hour,
		MinDuration:     time.Hour,
		MaxDuration:     24 * time.Hour,
		Contract:        contract,
	})
	t.Cleanup(svc.Close)

	ctx := context.Background()
	for _, id := range leagues {
		_, err := svc.CreateLeague(ctx, carol, services.CreateLeagueParams{
			ID: id, Title: id, Options: []string{"Yes", "No"}, EntryFee: models.NewWei(10), Duration: time.Hour,
		})
		require.NoError(t, err)
		ct, err := confidential.SealRandom(contract, id, alice, 50)
		require.NoError(t, err)
		_, err = svc.EnterLeague(ctx, alice, id, 0, ct, models.NewWei(10))
		require.NoError(t, err)
	}
	return svc, clock
}

func TestFinalizeKeeperRunOnce(t *testing.T) {
	svc, clock := newKeeperLedger(t, "first", "second")
	ctx := context.Background()

	k := NewFinalizeKeeper(svc, time.Minute, 10, keeper)
	assert.Zero(t, k.RunOnce(ctx), "nothing proposed yet")

	clock.Advance(time.Hour)
	_, err := svc.ProposeResult(ctx, carol, "first", 0, models.NewWei(5))
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = svc.ProposeResult(ctx, carol, "second", 1, models.NewWei(5))
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, k.RunOnce(ctx))

	league, err := svc.GetLeague(ctx, "first")
	require.NoError(t, err)
	assert.True(t, league.Settled)
	assert.Equal(t, uint8(0), league.WinningOption)

	league, err = svc.GetLeague(ctx, "second")
	require.NoError(t, err)
	assert.False(t, league.Settled)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, 1, k.RunOnce(ctx))
	league, err = svc.GetLeague(ctx, "second")
	require.NoError(t, err)
	assert.True(t, league.IsPush(), "nobody picked the proposed option")

	assert.Zero(t, k.RunOnce(ctx))
}

func TestFinalizeKeeperStop(t *testing.T) {
	k := NewFinalizeKeeper(nil, time.Hour, 0, keeper)
	k.Start()
	k.Start()

	stopped := make(chan struct{})
	go func() {
		k.Stop()
		k.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop")
	}
	select {
	case <-k.done:
	default:
		t.Fatal("Stop returned before the loop exited")
	}
}

func TestFinalizeKeeperStopWithoutStart(t *testing.T) {
	k := NewFinalizeKeeper(nil, time.Hour, 0, keeper)
	k.Stop()
	assert.Error(t, k.ctx.Err())
}

func TestFinalizeKeeperRunOnceCancelled(t *testing.T) {
	svc, clock := newKeeperLedger(t, "first")
	clock.Advance(time.Hour)
	_, err := svc.ProposeResult(context.Background(), carol, "first", 0, models.NewWei(5))
	require.NoError(t, err)
	clock.Advance(time.Hour)

	k := NewFinalizeKeeper(svc, time.Hour, 0, keeper)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, k.RunOnce(ctx))

	league, err := svc.GetLeague(context.Background(), "first")
	require.NoError(t, err)
	assert.False(t, league.Settled)
}
