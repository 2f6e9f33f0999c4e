package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"predictive-league/internal/confidential"
	"predictive-league/internal/logging"
	"predictive-league/internal/metrics"
	"predictive-league/internal/models"
	"predictive-league/internal/repository"
)

// ProposeResult opens the optimistic resolution of a locked league, escrowing the proposer's bond
func (s *LeagueService) ProposeResult(
	ctx context.Context,
	caller common.Address,
	leagueID string,
	option uint8,
	bond models.Wei,
) (*models.Proposal, error) {
	var proposal *models.Proposal
	err := s.mutate(ctx, "propose_result", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if !league.Open() {
			return ErrLeagueClosed
		}
		if lt.now.Before(league.LockTime) {
			return ErrTooEarly
		}
		if !validOutcome(league, option) {
			return ErrInvalidOption
		}
		if _, err := loadProposal(ctx, lt.tx, leagueID); err == nil {
			return ErrAlreadyProposed
		} else if !errors.Is(err, ErrNoProposal) {
			return err
		}
		if !bond.Eq(s.policy.ChallengeBond) {
			return ErrWrongBond
		}

		held, err := league.BondsHeld.Add(bond)
		if err != nil {
			return err
		}

		proposal = &models.Proposal{
			LeagueID:       leagueID,
			Proposer:       caller.Hex(),
			ProposedOption: option,
			BondAmount:     bond,
			ProposeTime:    lt.now,
		}
		if err := lt.tx.CreateProposal(ctx, proposal); err != nil {
			return fmt.Errorf("failed to create proposal: %w", err)
		}
		league.BondsHeld = held
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to update league: %w", err)
		}
		if err := lt.record(leagueID, caller.Hex(), models.TransferKindProposalBond, models.TransferIn, bond); err != nil {
			return err
		}

		ev := lt.emit(models.EventResultProposed, leagueID, caller)
		opt := option
		ev.Option = &opt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("proposer", proposal.Proposer).
		Uint8("option", option).
		Time("window_end", proposal.ProposeTime.Add(s.policy.ChallengePeriod)).
		Msg("result proposed")
	return proposal, nil
}

// ChallengeResult disputes the pending proposal with a bond while the challenge window is open
func (s *LeagueService) ChallengeResult(
	ctx context.Context,
	caller common.Address,
	leagueID string,
	option uint8,
	bond models.Wei,
) (*models.Challenge, error) {
	var challenge *models.Challenge
	err := s.mutate(ctx, "challenge_result", func(lt *ledgerTx) error {
		league, err := loadLeague(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		proposal, err := loadProposal(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if proposal.Finalized || !league.Open() {
			return ErrChallengeWindowClosed
		}
		if !lt.now.Before(proposal.ProposeTime.Add(s.policy.ChallengePeriod)) {
			return ErrChallengeWindowClosed
		}
		if !validOutcome(league, option) {
			return ErrInvalidOption
		}
		if option == proposal.ProposedOption {
			return ErrRedundantChallenge
		}
		if caller.Hex() == proposal.Proposer {
			return ErrSelfChallenge
		}
		existing, err := lt.tx.ListChallenges(ctx, leagueID)
		if err != nil {
			return fmt.Errorf("failed to load challenges: %w", err)
		}
		for _, c := range existing {
			if c.Challenger == caller.Hex() {
				return ErrAlreadyChallenged
			}
		}
		if !bond.Eq(s.policy.ChallengeBond) {
			return ErrWrongBond
		}

		held, err := league.BondsHeld.Add(bond)
		if err != nil {
			return err
		}

		challenge = &models.Challenge{
			LeagueID:      leagueID,
			Challenger:    caller.Hex(),
			CorrectOption: option,
			BondAmount:    bond,
			Time:          lt.now,
		}
		if err := lt.tx.CreateChallenge(ctx, challenge); err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		proposal.Challenged = true
		if err := lt.tx.UpdateProposal(ctx, proposal); err != nil {
			return fmt.Errorf("failed to update proposal: %w", err)
		}
		league.BondsHeld = held
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to update league: %w", err)
		}
		if err := lt.record(leagueID, caller.Hex(), models.TransferKindChallengeBond, models.TransferIn, bond); err != nil {
			return err
		}

		ev := lt.emit(models.EventResultChallenged, leagueID, caller)
		opt := option
		ev.Option = &opt
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().
		Str("league", leagueID).
		Str("challenger", challenge.Challenger).
		Uint8("option", option).
		Msg("result challenged")
	return challenge, nil
}

// FinalizeResult settles the league once the challenge window has elapsed. An
// unchallenged proposal wins; a challenged one pushes unless the arbiter rules first.
func (s *LeagueService) FinalizeResult(ctx context.Context, caller common.Address, leagueID string) (*models.League, error) {
	var league *models.League
	err := s.mutate(ctx, "finalize_result", func(lt *ledgerTx) error {
		var err error
		if league, err = loadLeague(ctx, lt.tx, leagueID); err != nil {
			return err
		}
		proposal, err := loadProposal(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if proposal.Finalized {
			return ErrAlreadyFinalized
		}
		windowEnd := proposal.ProposeTime.Add(s.policy.ChallengePeriod)
		if lt.now.Before(windowEnd) {
			return ErrChallengeWindowOpen
		}

		outcome := proposal.ProposedOption
		if proposal.Challenged {
			if s.policy.HasArbiter() && lt.now.Before(windowEnd.Add(s.policy.ArbitrationPeriod)) {
				return ErrAwaitingArbitration
			}
			outcome = models.PushSentinel
		}
		return s.settle(lt, caller, league, proposal, outcome, false)
	})
	if err != nil {
		return nil, err
	}
	return league, nil
}

// ArbitrateResult settles a challenged proposal with the arbiter's ruling
func (s *LeagueService) ArbitrateResult(ctx context.Context, caller common.Address, leagueID string, ruling uint8) (*models.League, error) {
	var league *models.League
	err := s.mutate(ctx, "arbitrate_result", func(lt *ledgerTx) error {
		if !s.policy.HasArbiter() || caller != s.policy.Arbiter {
			return ErrNotArbiter
		}
		var err error
		if league, err = loadLeague(ctx, lt.tx, leagueID); err != nil {
			return err
		}
		proposal, err := loadProposal(ctx, lt.tx, leagueID)
		if err != nil {
			return err
		}
		if proposal.Finalized {
			return ErrAlreadyFinalized
		}
		if !proposal.Challenged {
			return ErrNotChallenged
		}
		windowEnd := proposal.ProposeTime.Add(s.policy.ChallengePeriod)
		if lt.now.Before(windowEnd) {
			return ErrChallengeWindowOpen
		}
		// past this point FinalizeResult pushes
		if !lt.now.Before(windowEnd.Add(s.policy.ArbitrationPeriod)) {
			return ErrArbitrationClosed
		}
		if !validOutcome(league, ruling) {
			return ErrInvalidOption
		}
		return s.settle(lt, caller, league, proposal, ruling, true)
	})
	if err != nil {
		return nil, err
	}
	return league, nil
}

// settle fixes the winning option, snapshots the pool for proportional payouts
// and pays out every bond. A winning option nobody picked becomes a push.
func (s *LeagueService) settle(
	lt *ledgerTx,
	caller common.Address,
	league *models.League,
	proposal *models.Proposal,
	ruling uint8,
	arbitrated bool,
) error {
	ctx := lt.ctx
	outcome := ruling

	var winningWeight uint64
	if outcome != models.PushSentinel {
		total, err := s.winningWeight(ctx, lt, league, outcome)
		if err != nil {
			return err
		}
		if total == 0 {
			outcome = models.PushSentinel
		}
		winningWeight = total
	}

	challenges, err := lt.tx.ListChallenges(ctx, league.ID)
	if err != nil {
		return fmt.Errorf("failed to load challenges: %w", err)
	}
	if err := s.settleBonds(lt, league, proposal, challenges, ruling, arbitrated); err != nil {
		return err
	}

	league.Settled = true
	league.WinningOption = outcome
	league.SettledPool = league.PrizePool
	league.WinningWeight = winningWeight
	league.ClaimedWeight = 0
	league.SettledAt = &lt.now
	if err := lt.tx.UpdateLeague(ctx, league); err != nil {
		return fmt.Errorf("failed to settle league: %w", err)
	}

	proposal.Finalized = true
	proposal.Arbitrated = arbitrated
	proposal.FinalizedAt = &lt.now
	if err := lt.tx.UpdateProposal(ctx, proposal); err != nil {
		return fmt.Errorf("failed to finalize proposal: %w", err)
	}

	ev := lt.emit(models.EventResultFinalized, league.ID, caller)
	opt := outcome
	ev.Option = &opt

	result := "winner"
	switch {
	case arbitrated:
		result = "arbitrated"
	case outcome == models.PushSentinel:
		result = "push"
	}
	metrics.Settlements.WithLabelValues(result).Inc()

	logging.Ledger.Info().
		Str("league", league.ID).
		Uint8("winning_option", outcome).
		Bool("challenged", proposal.Challenged).
		Bool("arbitrated", arbitrated).
		Str("pool", league.SettledPool.String()).
		Msg("result finalized")
	return nil
}

// winningWeight aggregates the encrypted weights on the winning option without decrypting any single one
func (s *LeagueService) winningWeight(ctx context.Context, lt *ledgerTx, league *models.League, option uint8) (uint64, error) {
	var picks uint64
	for _, opt := range league.Options {
		if opt.OptionID == option {
			picks = opt.Picks
		}
	}
	if picks == 0 {
		return 0, nil
	}

	entries, err := lt.tx.ListEntriesByOption(ctx, league.ID, option)
	if err != nil {
		return 0, fmt.Errorf("failed to load winning entries: %w", err)
	}
	inputs := make([]confidential.Input, 0, len(entries))
	for i := range entries {
		inputs = append(inputs, s.entryInput(&entries[i]))
	}
	total, err := s.boundary.Aggregate(ctx, inputs)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate winning weights: %w", err)
	}
	return total, nil
}

type bondPosition struct {
	account  string
	amount   models.Wei
	position uint8
}

// settleBonds releases every escrowed bond exactly once. Without a ruling each
// bond goes back to its poster. With one, parties who backed the ruling split
// the others' bonds equally, the remainder going to the earliest of them.
func (s *LeagueService) settleBonds(
	lt *ledgerTx,
	league *models.League,
	proposal *models.Proposal,
	challenges []models.Challenge,
	ruling uint8,
	arbitrated bool,
) error {
	positions := []bondPosition{{proposal.Proposer, proposal.BondAmount, proposal.ProposedOption}}
	for _, c := range challenges {
		positions = append(positions, bondPosition{c.Challenger, c.BondAmount, c.CorrectOption})
	}

	var paid models.Wei
	pay := func(account string, kind models.TransferKind, amount models.Wei) error {
		if amount.IsZero() {
			return nil
		}
		sum, err := paid.Add(amount)
		if err != nil {
			return err
		}
		paid = sum
		if err := lt.record(league.ID, account, kind, models.TransferOut, amount); err != nil {
			return err
		}
		ev := lt.emit(models.EventBondSettled, league.ID, common.HexToAddress(account))
		amt := amount
		ev.Amount = &amt
		return nil
	}

	if !arbitrated {
		for _, p := range positions {
			if err := pay(p.account, models.TransferKindBondReturn, p.amount); err != nil {
				return err
			}
		}
	} else {
		var (
			winners   []bondPosition
			forfeited models.Wei
		)
		for _, p := range positions {
			if p.position == ruling {
				winners = append(winners, p)
				continue
			}
			sum, err := forfeited.Add(p.amount)
			if err != nil {
				return err
			}
			forfeited = sum
		}

		if len(winners) == 0 {
			if err := pay(s.policy.Treasury.Hex(), models.TransferKindTreasury, forfeited); err != nil {
				return err
			}
		} else {
			share, rem := forfeited.DivMod(uint64(len(winners)))
			for i, w := range winners {
				if err := pay(w.account, models.TransferKindBondReturn, w.amount); err != nil {
					return err
				}
				reward := share
				if i == 0 {
					var err error
					if reward, err = share.Add(rem); err != nil {
						return err
					}
				}
				if err := pay(w.account, models.TransferKindBondReward, reward); err != nil {
					return err
				}
			}
		}
	}

	if !paid.Eq(league.BondsHeld) {
		return fmt.Errorf("bond accounting mismatch for league %s: held %s, released %s",
			league.ID, league.BondsHeld, paid)
	}
	league.BondsHeld = models.Wei{}
	return nil
}

// DueProposals lists unfinalized proposals FinalizeResult would accept now, oldest first
func (s *LeagueService) DueProposals(ctx context.Context, limit int) ([]models.Proposal, error) {
	var open []models.Proposal
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		open, err = tx.ListOpenProposals(ctx, 0)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list open proposals: %w", err)
	}

	now := s.clock.Now()
	due := open[:0]
	for _, p := range open {
		deadline := p.ProposeTime.Add(s.policy.ChallengePeriod)
		if p.Challenged && s.policy.HasArbiter() {
			deadline = deadline.Add(s.policy.ArbitrationPeriod)
		}
		if now.Before(deadline) {
			continue
		}
		due = append(due, p)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}
