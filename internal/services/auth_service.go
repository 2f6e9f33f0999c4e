package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"predictive-league/internal/auth"
	"predictive-league/internal/logging"
	"predictive-league/internal/models"
	"predictive-league/internal/repository"
	"predictive-league/internal/utils"
)

// LoginChallengeTTL is how long a signed login message stays redeemable.
const LoginChallengeTTL = 5 * time.Minute

var (
	ErrNoLoginChallenge      = errors.New("no pending login challenge")
	ErrLoginChallengeExpired = errors.New("login challenge expired")
)

// AuthService handles authentication business logic
type AuthService struct {
	store repository.Store
	clock Clock
}

// NewAuthService creates a new AuthService
func NewAuthService(store repository.Store, clock Clock) *AuthService {
	return &AuthService{store: store, clock: clock}
}

// IssueLoginChallenge stores a fresh nonce for wallet and returns the message
// it must sign. A newer challenge replaces an older one.
func (s *AuthService) IssueLoginChallenge(ctx context.Context, wallet common.Address) (string, error) {
	nonce := &models.LoginNonce{
		WalletAddress: wallet.Hex(),
		Nonce:         uuid.NewString(),
		IssuedAt:      s.clock.Now().UTC().Truncate(time.Second),
	}
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		return tx.PutLoginNonce(ctx, nonce)
	})
	if err != nil {
		return "", fmt.Errorf("failed to store login challenge: %w", err)
	}
	return auth.LoginMessage(wallet, nonce.Nonce, nonce.IssuedAt), nil
}

// LoginWithSignature redeems the wallet's pending challenge and finds or
// creates its user. The challenge is consumed by every attempt, good or bad.
func (s *AuthService) LoginWithSignature(ctx context.Context, wallet common.Address, signature string) (*models.User, error) {
	var (
		user     *models.User
		created  bool
		rejected error
	)
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		nonce, err := tx.TakeLoginNonce(ctx, wallet.Hex())
		if errors.Is(err, repository.ErrNotFound) {
			rejected = ErrNoLoginChallenge
			return nil
		}
		if err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if s.clock.Now().Sub(nonce.IssuedAt) > LoginChallengeTTL {
			rejected = ErrLoginChallengeExpired
			return nil
		}
		message := auth.LoginMessage(wallet, nonce.Nonce, nonce.IssuedAt)
		if err := auth.VerifyWalletSignature(wallet, message, signature); err != nil {
			rejected = err
			return nil
		}

		user, created, err = findOrCreateUser(ctx, tx, wallet)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rejected != nil {
		return nil, rejected
	}

	if created {
		logging.Root.Info().Str("wallet", user.WalletAddress).Uint("user_id", user.ID).Msg("new user created")
	} else {
		logging.Root.Info().Str("wallet", user.WalletAddress).Uint("user_id", user.ID).Msg("user logged in")
	}
	return user, nil
}

func findOrCreateUser(ctx context.Context, tx repository.Tx, wallet common.Address) (*models.User, bool, error) {
	user, err := tx.GetUserByWallet(ctx, wallet.Hex())
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("database error: %w", err)
	}

	user = &models.User{
		WalletAddress: wallet.Hex(),
		Nickname:      utils.Nickname(wallet),
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	return user, true, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	var user *models.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUserByID(ctx, userID)
		return err
	})
	return user, err
}
