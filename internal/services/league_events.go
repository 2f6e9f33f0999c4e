package services

import (
	"sync"

	"github.com/ethereum/go-ethereum/event"

	"predictive-league/internal/logging"
	"predictive-league/internal/metrics"
	"predictive-league/internal/models"
)

const eventQueueSize = 1024

// notifier delivers committed ledger events to subscribers in commit order.
// Publishing never blocks the ledger; events are dropped when the queue is full.
type notifier struct {
	feed  event.Feed
	queue chan models.LeagueEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newNotifier() *notifier {
	n := &notifier{
		queue: make(chan models.LeagueEvent, eventQueueSize),
		done:  make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		n.feed.Send(ev)
	}
}

func (n *notifier) publish(events ...models.LeagueEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}
	for _, ev := range events {
		select {
		case n.queue <- ev:
		default:
			metrics.DroppedEvents.Inc()
			logging.Ledger.Warn().
				Str("league", ev.LeagueID).
				Str("event", string(ev.Type)).
				Msg("event queue full, dropping event")
		}
	}
}

func (n *notifier) subscribe(ch chan<- models.LeagueEvent) event.Subscription {
	return n.feed.Subscribe(ch)
}

// close stops delivery after the queued events are sent
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}
