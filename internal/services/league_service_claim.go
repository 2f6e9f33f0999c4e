package services

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictive-league/internal/logging"
	"predictive-league/internal/models"
)

// ClaimPrize pays a winning entry its share of the settled pool:
// settledPool * weight / winningWeight, rounded down. The claim that completes
// the winning weight receives whatever remains, so the pool drains exactly.
func (s *LeagueService) ClaimPrize(ctx context.Context, caller common.Address, leagueID string) (models.Wei, error) {
	var payout models.Wei
	err := s.mutate(ctx, "claim_prize", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if !league.Settled {
			return ErrNotSettled
		}
		if league.IsPush() {
			return ErrNotWinner
		}
		entry, err := loadEntry(ctx, lt.tx, leagueID, caller.Hex())
		if err != nil {
			return err
		}
		if entry.Claimed {
			return ErrAlreadyClaimed
		}
		if entry.OptionID != league.WinningOption {
			return ErrNotWinner
		}

		weight, err := s.boundary.Decrypt(ctx, s.entryInput(entry))
		if err != nil {
			return fmt.Errorf("failed to decrypt weight: %w", err)
		}

		if league.ClaimedWeight+weight >= league.WinningWeight {
			payout = league.PrizePool
		} else if payout, err = league.SettledPool.MulDiv(weight, league.WinningWeight); err != nil {
			return err
		}

		remaining, err := league.PrizePool.Sub(payout)
		if err != nil {
			return fmt.Errorf("prize pool of %s cannot cover %s: %w", leagueID, payout, err)
		}
		league.PrizePool = remaining
		league.ClaimedWeight += weight
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to update league: %w", err)
		}

		entry.Claimed = true
		entry.Payout = payout
		entry.ClaimedAt = &lt.now
		if err := lt.tx.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to mark entry claimed: %w", err)
		}
		if err := lt.record(leagueID, caller.Hex(), models.TransferKindPrize, models.TransferOut, payout); err != nil {
			return err
		}

		ev := lt.emit(models.EventPrizeClaimed, leagueID, caller)
		amt := payout
		ev.Amount = &amt
		return nil
	})
	if err != nil {
		return models.Wei{}, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("participant", caller.Hex()).
		Str("amount", payout.String()).
		Msg("prize claimed")
	return payout, nil
}

// ClaimRefund returns exactly the entry fee for a cancelled or pushed league
func (s *LeagueService) ClaimRefund(ctx context.Context, caller common.Address, leagueID string) (models.Wei, error) {
	var refund models.Wei
	err := s.mutate(ctx, "claim_refund", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if !league.Cancelled && !league.IsPush() {
			return ErrNotEligible
		}
		entry, err := loadEntry(ctx, lt.tx, leagueID, caller.Hex())
		if err != nil {
			return err
		}
		if entry.Claimed {
			return ErrAlreadyClaimed
		}

		refund = league.EntryFee
		remaining, err := league.PrizePool.Sub(refund)
		if err != nil {
			return fmt.Errorf("prize pool of %s cannot cover refund: %w", leagueID, err)
		}
		league.PrizePool = remaining
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to update league: %w", err)
		}

		entry.Claimed = true
		entry.Payout = refund
		entry.ClaimedAt = &lt.now
		if err := lt.tx.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("failed to mark entry refunded: %w", err)
		}
		if err := lt.record(leagueID, caller.Hex(), models.TransferKindRefund, models.TransferOut, refund); err != nil {
			return err
		}

		ev := lt.emit(models.EventRefundClaimed, leagueID, caller)
		amt := refund
		ev.Amount = &amt
		return nil
	})
	if err != nil {
		return models.Wei{}, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("participant", caller.Hex()).
		Str("amount", refund.String()).
		Msg("refund claimed")
	return refund, nil
}
