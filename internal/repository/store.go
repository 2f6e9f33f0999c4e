package repository

import (
	"context"
	"errors"

	"predictive-league/internal/models"
)

// ErrNotFound is returned by every backend when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// Tx is the keyed state one ledger operation reads and writes.
// All mutations are explicit O(1) deltas except settlement scans of a single league.
type Tx interface {
	CreateLeague(ctx context.Context, league *models.League) error
	GetLeague(ctx context.Context, id string) (*models.League, error)
	UpdateLeague(ctx context.Context, league *models.League) error
	CountLeagues(ctx context.Context) (int64, error)
	ListLeagueIDs(ctx context.Context, limit, offset int) ([]string, error)
	AdjustPicks(ctx context.Context, leagueID string, optionID uint8, delta int64) error

	GetEntry(ctx context.Context, leagueID, participant string) (*models.Entry, error)
	CreateEntry(ctx context.Context, entry *models.Entry) error
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	ListEntriesByOption(ctx context.Context, leagueID string, optionID uint8) ([]models.Entry, error)

	GetProposal(ctx context.Context, leagueID string) (*models.Proposal, error)
	CreateProposal(ctx context.Context, proposal *models.Proposal) error
	UpdateProposal(ctx context.Context, proposal *models.Proposal) error
	ListOpenProposals(ctx context.Context, limit int) ([]models.Proposal, error)

	CreateChallenge(ctx context.Context, challenge *models.Challenge) error
	ListChallenges(ctx context.Context, leagueID string) ([]models.Challenge, error)

	CreateTransfer(ctx context.Context, transfer *models.Transfer) error
	ListTransfers(ctx context.Context, leagueID string) ([]models.Transfer, error)

	GetUserByWallet(ctx context.Context, wallet string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error

	// PutLoginNonce replaces the wallet's pending login challenge.
	PutLoginNonce(ctx context.Context, nonce *models.LoginNonce) error
	// TakeLoginNonce returns and deletes the wallet's pending login challenge.
	TakeLoginNonce(ctx context.Context, wallet string) (*models.LoginNonce, error)
}

// Store runs read-only and read-write transactions over the ledger state.
// A function passed to Update either commits all of its writes or none.
type Store interface {
	View(ctx context.Context, fn func(tx Tx) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
