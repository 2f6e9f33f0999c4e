package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"predictive-league/internal/confidential"
	"predictive-league/internal/models"
	"predictive-league/internal/repository"
	"predictive-league/internal/repository/boltdb"
)

var (
	creator  = common.HexToAddress("0x00000000000000000000000000000000000c4ea7")
	alice    = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	dave     = common.HexToAddress("0x000000000000000000000000000000000000da7e")
	erin     = common.HexToAddress("0x000000000000000000000000000000000000e414")
	arbiter  = common.HexToAddress("0x00000000000000000000000000000000000a4b17")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
	contract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

	epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	day   = 24 * time.Hour
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func setupBoltStore(t *testing.T) repository.Store {
	t.Helper()
	store, err := boltdb.Open(filepath.Join(t.TempDir(), "league.db"))
	if err != nil {
		t.Fatalf("failed to open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// forEachStore runs fn once against the gorm store and once against the bolt store.
func forEachStore(t *testing.T, fn func(t *testing.T, store repository.Store)) {
	t.Run("gorm", func(t *testing.T) {
		fn(t, repository.NewRepository(setupTestDB(t)))
	})
	t.Run("bolt", func(t *testing.T) {
		fn(t, setupBoltStore(t))
	})
}

func testPolicy() Policy {
	return Policy{
		MinEntryFee:     models.NewWei(1),
		ChallengeBond:   models.NewWei(5),
		ChallengePeriod: time.Hour,
		MinDuration:     time.Hour,
		MaxDuration:     30 * day,
		StaleAfter:      7 * day,
		Treasury:        treasury,
		Contract:        contract,
	}
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	svc   *LeagueService
	clock *fakeClock
	store repository.Store
}

func newHarness(t *testing.T, store repository.Store, mutate ...func(p *Policy)) *harness {
	t.Helper()
	policy := testPolicy()
	for _, m := range mutate {
		m(&policy)
	}
	clock := &fakeClock{now: epoch}
	svc := NewLeagueService(store, confidential.NewCommitmentBoundary(), clock, policy)
	t.Cleanup(svc.Close)
	return &harness{t: t, ctx: context.Background(), svc: svc, clock: clock, store: store}
}

func (h *harness) seal(leagueID string, who common.Address, weight uint8) confidential.Ciphertext {
	h.t.Helper()
	ct, err := confidential.SealRandom(contract, leagueID, who, weight)
	require.NoError(h.t, err)
	return ct
}

func (h *harness) createLeague(id string, fee uint64, options ...string) *models.League {
	h.t.Helper()
	if len(options) == 0 {
		options = []string{"Yes", "No"}
	}
	league, err := h.svc.CreateLeague(h.ctx, creator, CreateLeagueParams{
		ID:       id,
		Title:    "Will " + id + " happen?",
		Options:  options,
		EntryFee: models.NewWei(fee),
		Duration: day,
	})
	require.NoError(h.t, err)
	return league
}

func (h *harness) enter(leagueID string, who common.Address, option uint8, weight uint8) {
	h.t.Helper()
	league, err := h.svc.GetLeague(h.ctx, leagueID)
	require.NoError(h.t, err)
	_, err = h.svc.EnterLeague(h.ctx, who, leagueID, option, h.seal(leagueID, who, weight), league.EntryFee)
	require.NoError(h.t, err)
}

func (h *harness) league(id string) *models.League {
	h.t.Helper()
	league, err := h.svc.GetLeague(h.ctx, id)
	require.NoError(h.t, err)
	return league
}

func (h *harness) picks(id string) []uint64 {
	h.t.Helper()
	counts, err := h.svc.GetPickCounts(h.ctx, id)
	require.NoError(h.t, err)
	return counts
}

func (h *harness) transfers(id string) []models.Transfer {
	h.t.Helper()
	transfers, err := h.svc.GetTransfers(h.ctx, id)
	require.NoError(h.t, err)
	return transfers
}

// paidTo sums the outgoing transfers of one kind to account.
func (h *harness) paidTo(id string, account common.Address, kind models.TransferKind) models.Wei {
	h.t.Helper()
	var sum models.Wei
	for _, tr := range h.transfers(id) {
		if tr.Direction == models.TransferOut && tr.Kind == kind && tr.Account == account.Hex() {
			var err error
			sum, err = sum.Add(tr.Amount)
			require.NoError(h.t, err)
		}
	}
	return sum
}

// assertPoolConserved checks prizePool = fees in - prizes and refunds out against the journal.
func (h *harness) assertPoolConserved(id string) {
	h.t.Helper()
	var in, out models.Wei
	for _, tr := range h.transfers(id) {
		if !tr.AffectsPool() {
			continue
		}
		var err error
		if tr.Direction == models.TransferIn {
			in, err = in.Add(tr.Amount)
		} else {
			out, err = out.Add(tr.Amount)
		}
		require.NoError(h.t, err)
	}
	expected, err := in.Sub(out)
	require.NoError(h.t, err)
	assert.Equal(h.t, expected.String(), h.league(id).PrizePool.String(), "prize pool must equal fees in minus payouts")
}

func TestCreateLeague(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		h := newHarness(t, store)

		league := h.createLeague("btc-100k", 10)
		assert.Equal(t, "btc-100k", league.ID)
		assert.True(t, league.LockTime.Equal(epoch.Add(day)))
		assert.True(t, league.PrizePool.IsZero())
		assert.False(t, league.Settled)
		assert.False(t, league.Cancelled)
		assert.Equal(t, creator.Hex(), league.Creator)

		stored := h.league("btc-100k")
		assert.Equal(t, "10", stored.EntryFee.String())
		assert.True(t, stored.LockTime.Equal(epoch.Add(day)))

		options, err := h.svc.GetOptions(h.ctx, "btc-100k")
		require.NoError(t, err)
		assert.Equal(t, []string{"Yes", "No"}, options)
		assert.Equal(t, []uint64{0, 0}, h.picks("btc-100k"))

		_, err = h.svc.CreateLeague(h.ctx, alice, CreateLeagueParams{
			ID: "btc-100k", Title: "again", Options: []string{"A", "B"}, EntryFee: models.NewWei(1), Duration: day,
		})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})
}

func TestCreateLeagueValidation(t *testing.T) {
	h := newHarness(t, setupBoltStore(t), func(p *Policy) {
		p.MinEntryFee = models.NewWei(100)
		p.MinDuration = day
	})

	valid := func() CreateLeagueParams {
		return CreateLeagueParams{
			ID: "valid", Title: "Valid", Options: []string{"Yes", "No"}, EntryFee: models.NewWei(100), Duration: day,
		}
	}

	tests := []struct {
		name   string
		modify func(p *CreateLeagueParams)
		want   error
	}{
		{"empty id", func(p *CreateLeagueParams) { p.ID = "" }, ErrInvalidID},
		{"id with spaces", func(p *CreateLeagueParams) { p.ID = "btc 100k" }, ErrInvalidID},
		{"blank title", func(p *CreateLeagueParams) { p.Title = "   " }, ErrInvalidTitle},
		{"one option", func(p *CreateLeagueParams) { p.Options = []string{"Yes"} }, ErrInvalidOptions},
		{"eleven options", func(p *CreateLeagueParams) {
			p.Options = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}
		}, ErrInvalidOptions},
		{"duplicate labels", func(p *CreateLeagueParams) { p.Options = []string{"Yes", "yes"} }, ErrInvalidOptions},
		{"empty label", func(p *CreateLeagueParams) { p.Options = []string{"Yes", " "} }, ErrInvalidOptions},
		{"duration too short", func(p *CreateLeagueParams) { p.Duration = day - time.Second }, ErrInvalidDuration},
		{"duration too long", func(p *CreateLeagueParams) { p.Duration = 31 * day }, ErrInvalidDuration},
		{"fee below minimum", func(p *CreateLeagueParams) { p.EntryFee = models.NewWei(99) }, ErrInvalidEntryFee},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.modify(&p)
			_, err := h.svc.CreateLeague(h.ctx, creator, p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	ids, total, err := h.svc.ListLeagues(h.ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Zero(t, total)

	ten := valid()
	ten.Options = []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	_, err = h.svc.CreateLeague(h.ctx, creator, ten)
	assert.NoError(t, err)
}

func TestListLeagues(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		h := newHarness(t, store)
		for _, id := range []string{"zeta", "alpha", "mid"} {
			h.createLeague(id, 1)
			h.clock.Advance(time.Second)
		}

		ids, total, err := h.svc.ListLeagues(h.ctx, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, ids)

		ids, _, err = h.svc.ListLeagues(h.ctx, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha"}, ids)
	})
}

func TestReadsNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		h := newHarness(t, store)

		_, err := h.svc.GetLeague(h.ctx, "missing")
		assert.ErrorIs(t, err, ErrLeagueNotFound)
		_, err = h.svc.GetOptions(h.ctx, "missing")
		assert.ErrorIs(t, err, ErrLeagueNotFound)
		_, err = h.svc.GetPickCounts(h.ctx, "missing")
		assert.ErrorIs(t, err, ErrLeagueNotFound)
		_, err = h.svc.GetChallenges(h.ctx, "missing")
		assert.ErrorIs(t, err, ErrLeagueNotFound)
		_, err = h.svc.GetProposal(h.ctx, "missing")
		assert.ErrorIs(t, err, ErrLeagueNotFound)

		h.createLeague("open", 1)
		_, err = h.svc.GetProposal(h.ctx, "open")
		assert.ErrorIs(t, err, ErrNoProposal)
		challenges, err := h.svc.GetChallenges(h.ctx, "open")
		require.NoError(t, err)
		assert.Empty(t, challenges)
	})
}

func TestEventsPublished(t *testing.T) {
	h := newHarness(t, setupBoltStore(t))

	ch := make(chan models.LeagueEvent, 16)
	sub := h.svc.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	h.createLeague("events", 3)
	h.enter("events", alice, 1, 40)

	expect := []models.EventType{models.EventLeagueCreated, models.EventEntrySubmitted}
	for _, typ := range expect {
		select {
		case ev := <-ch:
			assert.Equal(t, typ, ev.Type)
			assert.Equal(t, "events", ev.LeagueID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", typ)
		}
	}

	// rejected operations publish nothing
	_, err := h.svc.EnterLeague(h.ctx, alice, "events", 0, h.seal("events", alice, 10), models.NewWei(3))
	require.ErrorIs(t, err, ErrDuplicateEntry)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
