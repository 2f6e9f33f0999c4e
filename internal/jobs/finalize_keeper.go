package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"predictive-league/internal/logging"
	"predictive-league/internal/metrics"
	"predictive-league/internal/services"
)

// FinalizeKeeper finalizes proposals whose challenge window has elapsed so
// leagues settle without waiting for a participant to call finalize.
type FinalizeKeeper struct {
	ledger    *services.LeagueService
	interval  time.Duration
	batchSize int
	address   common.Address

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewFinalizeKeeper creates a keeper that finalizes as address
func NewFinalizeKeeper(ledger *services.LeagueService, interval time.Duration, batchSize int, address common.Address) *FinalizeKeeper {
	if batchSize <= 0 {
		batchSize = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FinalizeKeeper{
		ledger:    ledger,
		interval:  interval,
		batchSize: batchSize,
		address:   address,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start launches the finalize loop in the background. Calling it again is a no-op.
func (k *FinalizeKeeper) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return
	}
	k.started = true
	go k.run()
}

func (k *FinalizeKeeper) run() {
	defer close(k.done)
	logging.Jobs.Info().Dur("interval", k.interval).Msg("finalize keeper started")

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.RunOnce(k.ctx)
		case <-k.ctx.Done():
			logging.Jobs.Info().Msg("finalize keeper stopped")
			return
		}
	}
}

// Stop cancels the loop and waits for an in-flight batch to return
func (k *FinalizeKeeper) Stop() {
	k.stopOnce.Do(k.cancel)

	k.mu.Lock()
	started := k.started
	k.mu.Unlock()
	if started {
		<-k.done
	}
}

// RunOnce finalizes every due proposal in one batch and returns how many settled
func (k *FinalizeKeeper) RunOnce(ctx context.Context) int {
	due, err := k.ledger.DueProposals(ctx, k.batchSize)
	if err != nil {
		metrics.KeeperRuns.WithLabelValues("error").Inc()
		logging.Jobs.Error().Err(err).Msg("failed to list due proposals")
		return 0
	}
	if len(due) == 0 {
		return 0
	}

	finalized := 0
	for _, p := range due {
		if ctx.Err() != nil {
			break
		}
		_, err := k.ledger.FinalizeResult(ctx, k.address, p.LeagueID)
		var lerr *services.LedgerError
		switch {
		case err == nil:
			finalized++
			metrics.KeeperRuns.WithLabelValues("ok").Inc()
		case errors.As(err, &lerr):
			// usually someone finalized first
			metrics.KeeperRuns.WithLabelValues(lerr.Code).Inc()
			logging.Jobs.Debug().Str("league", p.LeagueID).Str("code", lerr.Code).Msg("finalize skipped")
		default:
			metrics.KeeperRuns.WithLabelValues("error").Inc()
			logging.Jobs.Error().Err(err).Str("league", p.LeagueID).Msg("finalize failed")
		}
	}

	if finalized > 0 {
		logging.Jobs.Info().Int("finalized", finalized).Int("due", len(due)).Msg("keeper finalized leagues")
	}
	return finalized
}
