package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictive-league/internal/confidential"
	"predictive-league/internal/logging"
	"predictive-league/internal/models"
)

func (s *LeagueService) weightInput(leagueID string, participant common.Address, ct confidential.Ciphertext) confidential.Input {
	return confidential.Input{
		Ciphertext:  ct,
		Contract:    s.policy.Contract,
		LeagueID:    leagueID,
		Participant: participant,
	}
}

func (s *LeagueService) entryInput(entry *models.Entry) confidential.Input {
	return s.weightInput(entry.LeagueID, common.HexToAddress(entry.Participant), confidential.Ciphertext{
		Handle: common.HexToHash(entry.WeightHandle),
		Proof:  entry.Proof,
	})
}

func (s *LeagueService) verifyWeight(ctx context.Context, in confidential.Input) error {
	err := s.boundary.Verify(ctx, in)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, confidential.ErrInvalidProof), errors.Is(err, confidential.ErrWeightRange):
		return ErrInvalidWeight
	default:
		return fmt.Errorf("failed to verify weight: %w", err)
	}
}

// EnterLeague records the caller's confidential prediction and takes the entry fee into the pool
func (s *LeagueService) EnterLeague(
	ctx context.Context,
	caller common.Address,
	leagueID string,
	optionID uint8,
	ct confidential.Ciphertext,
	payment models.Wei,
) (*models.Entry, error) {
	var entry *models.Entry
	err := s.mutate(ctx, "enter_league", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if !league.Open() {
			return ErrLeagueClosed
		}
		if !lt.now.Before(league.LockTime) {
			return ErrLeagueLocked
		}
		if int(optionID) >= len(league.Options) {
			return ErrInvalidOption
		}
		if !payment.Eq(league.EntryFee) {
			return ErrInsufficientFee
		}
		if _, err := loadEntry(ctx, lt.tx, leagueID, caller.Hex()); err == nil {
			return ErrDuplicateEntry
		} else if !errors.Is(err, ErrNoExistingEntry) {
			return err
		}
		if err := s.verifyWeight(ctx, s.weightInput(leagueID, caller, ct)); err != nil {
			return err
		}

		pool, err := league.PrizePool.Add(payment)
		if err != nil {
			return err
		}

		entry = &models.Entry{
			LeagueID:     leagueID,
			Participant:  caller.Hex(),
			OptionID:     optionID,
			WeightHandle: ct.Handle.Hex(),
			Proof:        ct.Proof,
			CreatedAt:    lt.now,
		}
		if err := lt.tx.CreateEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}
		if err := lt.tx.AdjustPicks(ctx, leagueID, optionID, 1); err != nil {
			return fmt.Errorf("failed to update pick count: %w", err)
		}

		league.PrizePool = pool
		league.EntryCount++
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to update league: %w", err)
		}
		if err := lt.record(leagueID, caller.Hex(), models.TransferKindEntryFee, models.TransferIn, payment); err != nil {
			return err
		}

		ev := lt.emit(models.EventEntrySubmitted, leagueID, caller)
		opt := optionID
		ev.Option = &opt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("participant", entry.Participant).
		Uint8("option", optionID).
		Msg("entry submitted")
	return entry, nil
}

// EditEntry replaces the caller's option and encrypted weight before lock time. No fee moves.
func (s *LeagueService) EditEntry(
	ctx context.Context,
	caller common.Address,
	leagueID string,
	optionID uint8,
	ct confidential.Ciphertext,
) (*models.Entry, error) {
	var entry *models.Entry
	err := s.mutate(ctx, "edit_entry", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if !league.Open() {
			return ErrLeagueClosed
		}
		if !lt.now.Before(league.LockTime) {
			return ErrLeagueLocked
		}
		if entry, err = loadEntry(ctx, lt.tx, leagueID, caller.Hex()); err != nil {
			return err
		}
		if int(optionID) >= len(league.Options) {
			return ErrInvalidOption
		}
		if err := s.verifyWeight(ctx, s.weightInput(leagueID, caller, ct)); err != nil {
			return err
		}

		if entry.OptionID != optionID {
			if err := lt.tx.AdjustPicks(ctx, leagueID, entry.OptionID, -1); err != nil {
				return fmt.Errorf("failed to update pick count: %w", err)
			}
			if err := lt.tx.AdjustPicks(ctx, leagueID, optionID, 1); err != nil {
				return fmt.Errorf("failed to update pick count: %w", err)
			}
		}

		entry.OptionID = optionID
		entry.WeightHandle = ct.Handle.Hex()
		entry.Proof = ct.Proof
		if err := lt.tx.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to update entry: %w", err)
		}

		ev := lt.emit(models.EventEntryEdited, leagueID, caller)
		opt := optionID
		ev.Option = &opt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("participant", entry.Participant).
		Uint8("option", optionID).
		Msg("entry edited")
	return entry, nil
}
