package boltdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictive-league/internal/models"
	"predictive-league/internal/repository"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "league.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleLeague(id string, seq uint64) *models.League {
	return &models.League{
		ID:       id,
		Seq:      seq,
		Title:    "League " + id,
		EntryFee: models.NewWei(10),
		LockTime: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		Options: []models.LeagueOption{
			{OptionID: 0, Label: "Yes"},
			{OptionID: 1, Label: "No"},
		},
	}
}

func TestStoreLeagues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx repository.Tx) error {
		for i, id := range []string{"zeta", "alpha", "mid"} {
			if err := tx.CreateLeague(ctx, sampleLeague(id, uint64(i+1))); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	err = store.View(ctx, func(tx repository.Tx) error {
		count, err := tx.CountLeagues(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		ids, err := tx.ListLeagueIDs(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid"}, ids)

		_, err = tx.GetLeague(ctx, "nope")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.AdjustPicks(ctx, "alpha", 0, 1))
		league, err := tx.GetLeague(ctx, "alpha")
		require.NoError(t, err)
		league.Options[0].Picks = 99
		league.WinningWeight = 42
		return tx.UpdateLeague(ctx, league)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(tx repository.Tx) error {
		league, err := tx.GetLeague(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), league.Options[0].Picks, "pick counts only move through AdjustPicks")
		assert.Equal(t, uint64(42), league.WinningWeight)
		assert.Equal(t, "alpha", league.Options[0].LeagueID)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreUpdateRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Update(ctx, func(tx repository.Tx) error {
		if err := tx.CreateLeague(ctx, sampleLeague("doomed", 1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.View(ctx, func(tx repository.Tx) error {
		_, err := tx.GetLeague(ctx, "doomed")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		count, err := tx.CountLeagues(ctx)
		assert.NoError(t, err)
		assert.Zero(t, count)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTransferJournalOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	kinds := []models.TransferKind{
		models.TransferKindBondReturn,
		models.TransferKindBondReward,
		models.TransferKindTreasury,
	}
	require.NoError(t, store.Update(ctx, func(tx repository.Tx) error {
		for _, kind := range kinds {
			err := tx.CreateTransfer(ctx, &models.Transfer{
				LeagueID:  "alpha",
				Account:   "0x000000000000000000000000000000000000a11c",
				Kind:      kind,
				Direction: models.TransferOut,
				Amount:    models.NewWei(1),
				CreatedAt: at,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, store.View(ctx, func(tx repository.Tx) error {
		transfers, err := tx.ListTransfers(ctx, "alpha")
		require.NoError(t, err)
		require.Len(t, transfers, 3)
		for i, tr := range transfers {
			assert.Equal(t, kinds[i], tr.Kind)
			if i > 0 {
				assert.Greater(t, tr.Seq, transfers[i-1].Seq)
			}
		}
		return nil
	}))
}

func TestStoreCancelledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.Update(ctx, func(tx repository.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestStoreEntriesKeepProof(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := &models.Entry{
		LeagueID:     "alpha",
		Participant:  "0x000000000000000000000000000000000000a11c",
		OptionID:     1,
		WeightHandle: "0x01",
		Proof:        []byte{30, 1, 2},
	}
	other := &models.Entry{
		LeagueID:    "alphabet",
		Participant: "0x0000000000000000000000000000000000000b0b",
		OptionID:    1,
	}
	err := store.Update(ctx, func(tx repository.Tx) error {
		require.NoError(t, tx.CreateEntry(ctx, entry))
		require.NoError(t, tx.CreateEntry(ctx, other))
		assert.Error(t, tx.CreateEntry(ctx, entry))
		return nil
	})
	require.NoError(t, err)

	err = store.View(ctx, func(tx repository.Tx) error {
		got, err := tx.GetEntry(ctx, "alpha", entry.Participant)
		require.NoError(t, err)
		assert.Equal(t, []byte{30, 1, 2}, got.Proof)

		// league ids sharing a prefix do not bleed into each other
		byOption, err := tx.ListEntriesByOption(ctx, "alpha", 1)
		require.NoError(t, err)
		assert.Len(t, byOption, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreUsers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user := &models.User{WalletAddress: "0x000000000000000000000000000000000000a11c", Nickname: "QuietFox7"}
	require.NoError(t, store.Update(ctx, func(tx repository.Tx) error {
		return tx.CreateUser(ctx, user)
	}))
	assert.Equal(t, uint(1), user.ID)

	require.NoError(t, store.View(ctx, func(tx repository.Tx) error {
		byWallet, err := tx.GetUserByWallet(ctx, user.WalletAddress)
		require.NoError(t, err)
		assert.Equal(t, "QuietFox7", byWallet.Nickname)

		byID, err := tx.GetUserByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, user.WalletAddress, byID.WalletAddress)
		return nil
	}))
}
