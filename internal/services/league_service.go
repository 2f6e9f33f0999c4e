package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"predictive-league/internal/confidential"
	"predictive-league/internal/logging"
	"predictive-league/internal/metrics"
	"predictive-league/internal/models"
	"predictive-league/internal/repository"
)

const (
	MinOptions = 2
	MaxOptions = 10

	maxTitleLength = 200
	maxLabelLength = 100
)

var leagueIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Clock supplies the ledger's notion of now.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// monotonicClock never goes backwards and truncates to the precision every store keeps.
type monotonicClock struct {
	mu   sync.Mutex
	src  Clock
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.src.Now().Round(0).Truncate(time.Microsecond)
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// Policy holds the protocol constants and the cancellation/arbitration rules.
type Policy struct {
	MinEntryFee     models.Wei
	ChallengeBond   models.Wei
	ChallengePeriod time.Duration
	MinDuration     time.Duration
	MaxDuration     time.Duration

	// CancelFee is charged on cancellation and forwarded to Treasury.
	CancelFee models.Wei
	// StaleAfter is how long after lock time anyone may cancel a league nobody proposed a result for.
	StaleAfter time.Duration

	// Arbiter, when set, rules on challenged proposals within ArbitrationPeriod after the challenge window.
	Arbiter           common.Address
	ArbitrationPeriod time.Duration

	Treasury common.Address
	// Contract is the ledger identity ciphertexts are bound to.
	Contract common.Address
}

func DefaultPolicy() Policy {
	return Policy{
		MinEntryFee:     models.MustParseWei("1000000000000000"),  // 0.001 ETH
		ChallengeBond:   models.MustParseWei("10000000000000000"), // 0.01 ETH
		ChallengePeriod: 24 * time.Hour,
		MinDuration:     24 * time.Hour,
		MaxDuration:     30 * 24 * time.Hour,
		StaleAfter:      7 * 24 * time.Hour,
	}
}

func (p Policy) HasArbiter() bool {
	return p.Arbiter != (common.Address{})
}

// LeagueService is the league ledger: registry, confidential entries, result
// resolution and settlement. Mutating operations are serialized and each runs
// in a single store transaction.
type LeagueService struct {
	mu       sync.Mutex
	store    repository.Store
	boundary confidential.Boundary
	clock    Clock
	policy   Policy
	events   *notifier
}

func NewLeagueService(
	store repository.Store,
	boundary confidential.Boundary,
	clock Clock,
	policy Policy,
) *LeagueService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &LeagueService{
		store:    store,
		boundary: boundary,
		clock:    &monotonicClock{src: clock},
		policy:   policy,
		events:   newNotifier(),
	}
}

func (s *LeagueService) Policy() Policy {
	return s.policy
}

// SubscribeEvents delivers every committed ledger event to ch until the subscription is closed.
func (s *LeagueService) SubscribeEvents(ch chan<- models.LeagueEvent) event.Subscription {
	return s.events.subscribe(ch)
}

// Close flushes queued events and stops delivery
func (s *LeagueService) Close() {
	s.events.close()
}

// ledgerTx is the working state of one mutating operation.
type ledgerTx struct {
	ctx       context.Context
	tx        repository.Tx
	now       time.Time
	events    []models.LeagueEvent
	transfers []models.Transfer
}

func (lt *ledgerTx) emit(typ models.EventType, leagueID string, actor common.Address) *models.LeagueEvent {
	lt.events = append(lt.events, models.LeagueEvent{
		Type:     typ,
		LeagueID: leagueID,
		Actor:    actor.Hex(),
		At:       lt.now,
	})
	return &lt.events[len(lt.events)-1]
}

func (lt *ledgerTx) record(leagueID, account string, kind models.TransferKind, dir models.TransferDirection, amount models.Wei) error {
	t := models.Transfer{
		ID:        uuid.New(),
		LeagueID:  leagueID,
		Account:   account,
		Kind:      kind,
		Direction: dir,
		Amount:    amount,
		CreatedAt: lt.now,
	}
	if err := lt.tx.CreateTransfer(lt.ctx, &t); err != nil {
		return fmt.Errorf("failed to record %s transfer: %w", kind, err)
	}
	lt.transfers = append(lt.transfers, t)
	return nil
}

// mutate runs fn as one serialized write transaction; events are published only after commit.
func (s *LeagueService) mutate(ctx context.Context, op string, fn func(lt *ledgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt := &ledgerTx{ctx: ctx, now: s.clock.Now()}
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		lt.tx = tx
		lt.events = lt.events[:0]
		lt.transfers = lt.transfers[:0]
		return fn(lt)
	})
	observe(op, err)
	if err != nil {
		return err
	}

	for _, t := range lt.transfers {
		if t.Direction == models.TransferOut {
			metrics.PayoutsEther.WithLabelValues(string(t.Kind)).Add(t.Amount.Ether().InexactFloat64())
		}
	}
	s.events.publish(lt.events...)
	return nil
}

func observe(op string, err error) {
	var lerr *LedgerError
	switch {
	case err == nil:
		metrics.Operations.WithLabelValues(op, "ok").Inc()
	case errors.As(err, &lerr):
		metrics.Operations.WithLabelValues(op, lerr.Code).Inc()
		logging.Ledger.Debug().Str("op", op).Str("code", lerr.Code).Msg("operation rejected")
	default:
		metrics.Operations.WithLabelValues(op, "error").Inc()
		logging.Ledger.Error().Str("op", op).Err(err).Msg("operation failed")
	}
}

func loadLeague(ctx context.Context, tx repository.Tx, id string) (*models.League, error) {
	league, err := tx.GetLeague(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrLeagueNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load league %s: %w", id, err)
	}
	return league, nil
}

func loadProposal(ctx context.Context, tx repository.Tx, leagueID string) (*models.Proposal, error) {
	proposal, err := tx.GetProposal(ctx, leagueID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoProposal
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal %s: %w", leagueID, err)
	}
	return proposal, nil
}

func loadEntry(ctx context.Context, tx repository.Tx, leagueID, participant string) (*models.Entry, error) {
	entry, err := tx.GetEntry(ctx, leagueID, participant)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoExistingEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry %s/%s: %w", leagueID, participant, err)
	}
	return entry, nil
}

// validOutcome accepts an option index or the push sentinel.
func validOutcome(league *models.League, option uint8) bool {
	return option == models.PushSentinel || int(option) < len(league.Options)
}

// CreateLeagueParams describes a new league.
type CreateLeagueParams struct {
	ID       string
	Title    string
	Options  []string
	EntryFee models.Wei
	Duration time.Duration
}

func (s *LeagueService) validateCreate(p *CreateLeagueParams) error {
	if !leagueIDPattern.MatchString(p.ID) {
		return ErrInvalidID
	}
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" || len(p.Title) > maxTitleLength {
		return ErrInvalidTitle
	}
	if len(p.Options) < MinOptions || len(p.Options) > MaxOptions {
		return ErrInvalidOptions
	}
	seen := make(map[string]bool, len(p.Options))
	for i, label := range p.Options {
		label = strings.TrimSpace(label)
		if label == "" || len(label) > maxLabelLength || seen[strings.ToLower(label)] {
			return ErrInvalidOptions
		}
		seen[strings.ToLower(label)] = true
		p.Options[i] = label
	}
	if p.Duration < s.policy.MinDuration || p.Duration > s.policy.MaxDuration {
		return ErrInvalidDuration
	}
	if p.EntryFee.Lt(s.policy.MinEntryFee) {
		return ErrInvalidEntryFee
	}
	return nil
}

// CreateLeague registers a league that accepts entries until now + duration
func (s *LeagueService) CreateLeague(ctx context.Context, creator common.Address, p CreateLeagueParams) (*models.League, error) {
	p.Options = append([]string(nil), p.Options...)
	if err := s.validateCreate(&p); err != nil {
		observe("create_league", err)
		return nil, err
	}

	var league *models.League
	err := s.mutate(ctx, "create_league", func(lt *ledgerTx) error {
		if _, err := lt.tx.GetLeague(ctx, p.ID); err == nil {
			return ErrDuplicateID
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check league id: %w", err)
		}

		count, err := lt.tx.CountLeagues(ctx)
		if err != nil {
			return fmt.Errorf("failed to count leagues: %w", err)
		}

		league = &models.League{
			ID:        p.ID,
			Seq:       uint64(count) + 1,
			Title:     p.Title,
			Creator:   creator.Hex(),
			EntryFee:  p.EntryFee,
			LockTime:  lt.now.Add(p.Duration),
			CreatedAt: lt.now,
		}
		for i, label := range p.Options {
			league.Options = append(league.Options, models.LeagueOption{
				LeagueID: p.ID,
				OptionID: uint8(i),
				Label:    label,
			})
		}
		if err := lt.tx.CreateLeague(ctx, league); err != nil {
			return err
		}

		ev := lt.emit(models.EventLeagueCreated, league.ID, creator)
		fee := league.EntryFee
		lock := league.LockTime
		ev.Amount, ev.LockTime = &fee, &lock
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().
		Str("league", league.ID).
		Str("creator", league.Creator).
		Int("options", len(league.Options)).
		Str("entry_fee", league.EntryFee.String()).
		Time("lock_time", league.LockTime).
		Msg("league created")
	return league, nil
}

// ListLeagues returns league ids in creation order and the total count
func (s *LeagueService) ListLeagues(ctx context.Context, limit, offset int) ([]string, int64, error) {
	var (
		ids   []string
		total int64
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if total, err = tx.CountLeagues(ctx); err != nil {
			return err
		}
		ids, err = tx.ListLeagueIDs(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leagues: %w", err)
	}
	return ids, total, nil
}

func (s *LeagueService) GetLeague(ctx context.Context, id string) (*models.League, error) {
	var league *models.League
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		league, err = loadLeague(ctx, tx, id)
		return err
	})
	return league, err
}

func (s *LeagueService) GetOptions(ctx context.Context, id string) ([]string, error) {
	league, err := s.GetLeague(ctx, id)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(league.Options))
	for i, opt := range league.Options {
		labels[i] = opt.Label
	}
	return labels, nil
}

func (s *LeagueService) GetPickCounts(ctx context.Context, id string) ([]uint64, error) {
	league, err := s.GetLeague(ctx, id)
	if err != nil {
		return nil, err
	}
	counts := make([]uint64, len(league.Options))
	for i, opt := range league.Options {
		counts[i] = opt.Picks
	}
	return counts, nil
}

func (s *LeagueService) GetProposal(ctx context.Context, id string) (*models.Proposal, error) {
	var proposal *models.Proposal
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := loadLeague(ctx, tx, id); err != nil {
			return err
		}
		var err error
		proposal, err = loadProposal(ctx, tx, id)
		return err
	})
	return proposal, err
}

func (s *LeagueService) GetChallenges(ctx context.Context, id string) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := loadLeague(ctx, tx, id); err != nil {
			return err
		}
		var err error
		challenges, err = tx.ListChallenges(ctx, id)
		return err
	})
	return challenges, err
}

// GetEntry returns the caller's own entry
func (s *LeagueService) GetEntry(ctx context.Context, id string, participant common.Address) (*models.Entry, error) {
	var entry *models.Entry
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := loadLeague(ctx, tx, id); err != nil {
			return err
		}
		var err error
		entry, err = loadEntry(ctx, tx, id, participant.Hex())
		return err
	})
	return entry, err
}

// GetTransfers returns the fund movement journal of a league
func (s *LeagueService) GetTransfers(ctx context.Context, id string) ([]models.Transfer, error) {
	var transfers []models.Transfer
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := loadLeague(ctx, tx, id); err != nil {
			return err
		}
		var err error
		transfers, err = tx.ListTransfers(ctx, id)
		return err
	})
	return transfers, err
}

// CancelLeague voids a league so every entry can be refunded. Before lock time
// only the creator may cancel; afterwards anyone may once the league has gone
// StaleAfter without a proposal.
func (s *LeagueService) CancelLeague(ctx context.Context, caller common.Address, id string, payment models.Wei) (*models.League, error) {
	var league *models.League
	err := s.mutate(ctx, "cancel_league", func(lt *ledgerTx) error {
		var err error
		if league, err = loadLeague(ctx, lt.tx, id); err != nil {
			return err
		}
		if !league.Open() {
			return ErrAlreadyResolved
		}
		if _, err := loadProposal(ctx, lt.tx, id); err == nil {
			return ErrResolutionPending
		} else if !errors.Is(err, ErrNoProposal) {
			return err
		}

		if lt.now.Before(league.LockTime) {
			if caller.Hex() != league.Creator {
				return ErrNotAuthorized
			}
		} else if lt.now.Before(league.LockTime.Add(s.policy.StaleAfter)) {
			return ErrNotAuthorized
		}

		if !payment.Eq(s.policy.CancelFee) {
			return ErrWrongCancelFee
		}

		league.Cancelled = true
		league.CancelledAt = &lt.now
		if err := lt.tx.UpdateLeague(ctx, league); err != nil {
			return fmt.Errorf("failed to cancel league: %w", err)
		}

		if !payment.IsZero() {
			if err := lt.record(id, caller.Hex(), models.TransferKindCancelFee, models.TransferIn, payment); err != nil {
				return err
			}
			if err := lt.record(id, s.policy.Treasury.Hex(), models.TransferKindTreasury, models.TransferOut, payment); err != nil {
				return err
			}
		}

		lt.emit(models.EventLeagueCancelled, id, caller)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ledger.Info().Str("league", id).Str("by", caller.Hex()).Msg("league cancelled")
	return league, nil
}
