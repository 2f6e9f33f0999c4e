package repository

import (
	"context"
	"errors"
	"fmt"

	"predictive-league/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed Store. Inside Update it is bound to a single database transaction.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// View runs fn against the database without opening a transaction
func (r *Repository) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(r)
}

// Update runs fn inside a database transaction, rolling back on any error
func (r *Repository) Update(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// CreateLeague inserts a league together with its options
func (r *Repository) CreateLeague(ctx context.Context, league *models.League) error {
	db := r.db.WithContext(ctx)
	if err := db.Omit(clause.Associations).Create(league).Error; err != nil {
		return fmt.Errorf("failed to create league: %w", err)
	}
	for i := range league.Options {
		league.Options[i].LeagueID = league.ID
	}
	if len(league.Options) > 0 {
		if err := db.Create(&league.Options).Error; err != nil {
			return fmt.Errorf("failed to create league options: %w", err)
		}
	}
	return nil
}

// GetLeague retrieves a league with its options ordered by option id
func (r *Repository) GetLeague(ctx context.Context, id string) (*models.League, error) {
	var league models.League
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("option_id ASC")
		}).
		Where("id = ?", id).
		First(&league).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &league, nil
}

// UpdateLeague saves league columns; options are only changed through AdjustPicks
func (r *Repository) UpdateLeague(ctx context.Context, league *models.League) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(league).Error
}

func (r *Repository) CountLeagues(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.League{}).Count(&count).Error
	return count, err
}

// ListLeagueIDs returns league ids in creation order. A non-positive limit returns all.
func (r *Repository) ListLeagueIDs(ctx context.Context, limit, offset int) ([]string, error) {
	var ids []string
	query := r.db.WithContext(ctx).Model(&models.League{}).Order("seq ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// AdjustPicks atomically applies delta to an option's public pick count
func (r *Repository) AdjustPicks(ctx context.Context, leagueID string, optionID uint8, delta int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.LeagueOption{}).
		Where("league_id = ? AND option_id = ?", leagueID, optionID).
		UpdateColumn("picks", gorm.Expr("picks + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetEntry(ctx context.Context, leagueID, participant string) (*models.Entry, error) {
	var entry models.Entry
	err := r.db.WithContext(ctx).
		Where("league_id = ? AND participant = ?", leagueID, participant).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

func (r *Repository) CreateEntry(ctx context.Context, entry *models.Entry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) UpdateEntry(ctx context.Context, entry *models.Entry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// ListEntriesByOption returns every entry on one outcome, used at settlement
func (r *Repository) ListEntriesByOption(ctx context.Context, leagueID string, optionID uint8) ([]models.Entry, error) {
	var entries []models.Entry
	err := r.db.WithContext(ctx).
		Where("league_id = ? AND option_id = ?", leagueID, optionID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *Repository) GetProposal(ctx context.Context, leagueID string) (*models.Proposal, error) {
	var proposal models.Proposal
	err := r.db.WithContext(ctx).Where("league_id = ?", leagueID).First(&proposal).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &proposal, nil
}

func (r *Repository) CreateProposal(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Create(proposal).Error
}

func (r *Repository) UpdateProposal(ctx context.Context, proposal *models.Proposal) error {
	return r.db.WithContext(ctx).Save(proposal).Error
}

// ListOpenProposals returns unfinalized proposals, oldest first
func (r *Repository) ListOpenProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	var proposals []models.Proposal
	query := r.db.WithContext(ctx).
		Where("finalized = ?", false).
		Order("propose_time ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&proposals).Error
	return proposals, err
}

func (r *Repository) CreateChallenge(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

// ListChallenges returns a league's challenges in submission order
func (r *Repository) ListChallenges(ctx context.Context, leagueID string) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := r.db.WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("id ASC").
		Find(&challenges).Error
	return challenges, err
}

// CreateTransfer appends a transfer to its league's journal
func (r *Repository) CreateTransfer(ctx context.Context, transfer *models.Transfer) error {
	db := r.db.WithContext(ctx)
	var last uint64
	err := db.Model(&models.Transfer{}).
		Where("league_id = ?", transfer.LeagueID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	if err != nil {
		return fmt.Errorf("failed to read journal position: %w", err)
	}
	transfer.Seq = last + 1
	return db.Create(transfer).Error
}

// ListTransfers returns the fund movements of a league in journal order
func (r *Repository) ListTransfers(ctx context.Context, leagueID string) ([]models.Transfer, error) {
	var transfers []models.Transfer
	err := r.db.WithContext(ctx).
		Where("league_id = ?", leagueID).
		Order("seq ASC").
		Find(&transfers).Error
	return transfers, err
}

func (r *Repository) GetUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *Repository) PutLoginNonce(ctx context.Context, nonce *models.LoginNonce) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"nonce", "issued_at"}),
	}).Create(nonce).Error
}

func (r *Repository) TakeLoginNonce(ctx context.Context, wallet string) (*models.LoginNonce, error) {
	db := r.db.WithContext(ctx)
	var nonce models.LoginNonce
	if err := db.Where("wallet_address = ?", wallet).First(&nonce).Error; err != nil {
		return nil, notFound(err)
	}
	if err := db.Where("wallet_address = ?", wallet).Delete(&models.LoginNonce{}).Error; err != nil {
		return nil, fmt.Errorf("failed to consume login nonce: %w", err)
	}
	return &nonce, nil
}
