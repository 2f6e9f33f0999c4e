package services

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"predictive-league/internal/auth"
	"predictive-league/internal/repository"
)

func newWallet(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func personalSign(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func TestLoginWithSignature(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		svc := NewAuthService(store, &fakeClock{now: epoch})
		ctx := context.Background()
		key, wallet := newWallet(t)

		message, err := svc.IssueLoginChallenge(ctx, wallet)
		require.NoError(t, err)
		first, err := svc.LoginWithSignature(ctx, wallet, personalSign(t, key, message))
		require.NoError(t, err)
		assert.NotZero(t, first.ID)
		assert.Equal(t, wallet.Hex(), first.WalletAddress)
		assert.NotEmpty(t, first.Nickname)

		message, err = svc.IssueLoginChallenge(ctx, wallet)
		require.NoError(t, err)
		again, err := svc.LoginWithSignature(ctx, wallet, personalSign(t, key, message))
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)

		otherKey, other := newWallet(t)
		message, err = svc.IssueLoginChallenge(ctx, other)
		require.NoError(t, err)
		otherUser, err := svc.LoginWithSignature(ctx, other, personalSign(t, otherKey, message))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, otherUser.ID)

		byID, err := svc.GetUserByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Nickname, byID.Nickname)

		_, err = svc.GetUserByID(ctx, 9999)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestLoginSignatureIsSingleUse(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		svc := NewAuthService(store, &fakeClock{now: epoch})
		ctx := context.Background()
		key, wallet := newWallet(t)

		message, err := svc.IssueLoginChallenge(ctx, wallet)
		require.NoError(t, err)
		sig := personalSign(t, key, message)

		_, err = svc.LoginWithSignature(ctx, wallet, sig)
		require.NoError(t, err)
		_, err = svc.LoginWithSignature(ctx, wallet, sig)
		assert.ErrorIs(t, err, ErrNoLoginChallenge)

		// a new challenge does not revive the old signature
		_, err = svc.IssueLoginChallenge(ctx, wallet)
		require.NoError(t, err)
		_, err = svc.LoginWithSignature(ctx, wallet, sig)
		assert.ErrorIs(t, err, auth.ErrInvalidSignature)
	})
}

func TestLoginChallengeRejections(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repository.Store) {
		clock := &fakeClock{now: epoch}
		svc := NewAuthService(store, clock)
		ctx := context.Background()
		key, wallet := newWallet(t)
		_, stranger := newWallet(t)

		_, err := svc.LoginWithSignature(ctx, wallet, "0x")
		assert.ErrorIs(t, err, ErrNoLoginChallenge)

		message, err := svc.IssueLoginChallenge(ctx, wallet)
		require.NoError(t, err)
		assert.Contains(t, message, "Nonce: ")
		clock.Advance(LoginChallengeTTL + time.Second)
		_, err = svc.LoginWithSignature(ctx, wallet, personalSign(t, key, message))
		assert.ErrorIs(t, err, ErrLoginChallengeExpired)

		// signed by the wrong key; the challenge is still spent
		message, err = svc.IssueLoginChallenge(ctx, stranger)
		require.NoError(t, err)
		_, err = svc.LoginWithSignature(ctx, stranger, personalSign(t, key, message))
		assert.ErrorIs(t, err, auth.ErrInvalidSignature)
		_, err = svc.LoginWithSignature(ctx, stranger, personalSign(t, key, message))
		assert.ErrorIs(t, err, ErrNoLoginChallenge)
	})
}
