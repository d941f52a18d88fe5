// Package projection keeps a current-value view of one item in sync with the
// store's live stream and fans it out to observers.
package projection

import (
	"context"
	"sync"
	"time"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
)

// DefaultGracePeriod is how long the upstream store subscription is kept
// alive after the last observer leaves, so a transient detach/reattach of the
// presentation layer does not re-query the store.
const DefaultGracePeriod = 5 * time.Second

// StateProjector subscribes to the store's live stream for a single item,
// maps each present emission to a ViewState, and exposes the result as a hot,
// current-value-holding observable.
//
// The upstream subscription starts lazily on the first observer and is torn
// down after the grace period following the last observer's departure. Late
// observers immediately receive the most recently computed ViewState, and no
// observer is ever sent a value it has already received.
type StateProjector struct {
	store  domain.ItemStore
	itemID int64
	grace  time.Duration
	logger *logging.Logger

	mu          sync.Mutex
	current     domain.ViewState
	hydrated    bool // set once any store state has been applied
	subscribers map[*subscriber]struct{}
	cancelWatch context.CancelFunc // nil while no upstream subscription runs
	graceTimer  *time.Timer
	closed      bool
}

type subscriber struct {
	ch      chan domain.ViewState
	last    domain.ViewState
	hasLast bool
}

// Option configures a StateProjector.
type Option func(*StateProjector)

// WithGracePeriod overrides the idle teardown delay.
func WithGracePeriod(d time.Duration) Option {
	return func(p *StateProjector) { p.grace = d }
}

// New creates a StateProjector for one item. The identifier is resolved once
// here; a missing or invalid identifier aborts construction.
func New(store domain.ItemStore, itemID int64, logger *logging.Logger, opts ...Option) (*StateProjector, error) {
	if itemID <= 0 {
		return nil, domain.ErrInvalidItemID
	}

	p := &StateProjector{
		store:       store,
		itemID:      itemID,
		grace:       DefaultGracePeriod,
		logger:      logger.WithComponent("projection").WithItemID(itemID),
		current:     domain.DefaultViewState(),
		subscribers: make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Current returns the most recently computed ViewState, or the default value
// if no store emission has arrived yet.
func (p *StateProjector) Current() domain.ViewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Hydrate makes the current value reflect the store when no emission has
// been applied yet. The upstream watch starts only on the first observer, so
// one-shot readers that never subscribe call this before reading Current.
// A no-op once any store state has arrived.
func (p *StateProjector) Hydrate(ctx context.Context) error {
	p.mu.Lock()
	settled := p.hydrated || p.closed
	p.mu.Unlock()
	if settled {
		return nil
	}

	item, err := p.store.Get(ctx, p.itemID)
	if err != nil {
		return err
	}
	if item == nil {
		// Absent item: the default state already stands.
		return nil
	}

	p.seed(domain.NewViewState(*item))
	return nil
}

// seed applies a fetched state unless a live emission won the race.
func (p *StateProjector) seed(state domain.ViewState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.hydrated {
		return
	}
	p.hydrated = true
	p.current = state
	for sub := range p.subscribers {
		deliver(sub, state)
	}
}

// Subscribe registers an observer. The returned channel immediately carries
// the current ViewState and then every subsequent change; the cancel function
// detaches the observer and is safe to call more than once. The channel is
// closed on detach and on projector close.
func (p *StateProjector) Subscribe() (<-chan domain.ViewState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		ch := make(chan domain.ViewState)
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{ch: make(chan domain.ViewState, 1)}
	p.subscribers[sub] = struct{}{}
	deliver(sub, p.current)

	// Re-subscription during the grace period reuses the live upstream.
	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if p.cancelWatch == nil {
		p.startWatchLocked()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() { p.unsubscribe(sub) })
	}
	return sub.ch, cancel
}

// Close tears down the upstream subscription and all observers.
func (p *StateProjector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.graceTimer != nil {
		p.graceTimer.Stop()
		p.graceTimer = nil
	}
	if p.cancelWatch != nil {
		p.cancelWatch()
		p.cancelWatch = nil
	}
	for sub := range p.subscribers {
		close(sub.ch)
		delete(p.subscribers, sub)
	}
}

func (p *StateProjector) unsubscribe(sub *subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscribers[sub]; !ok {
		return
	}
	delete(p.subscribers, sub)
	close(sub.ch)

	if len(p.subscribers) == 0 && !p.closed {
		p.graceTimer = time.AfterFunc(p.grace, p.teardownIfIdle)
	}
}

func (p *StateProjector) teardownIfIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.graceTimer = nil
	if len(p.subscribers) == 0 && p.cancelWatch != nil {
		p.cancelWatch()
		p.cancelWatch = nil
	}
}

func (p *StateProjector) startWatchLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelWatch = cancel

	stream, err := p.store.Watch(ctx, p.itemID)
	if err != nil {
		p.logger.WithError(err).Error("Failed to open item watch")
		cancel()
		p.cancelWatch = nil
		return
	}

	go p.consume(stream)
}

func (p *StateProjector) consume(stream <-chan *domain.Item) {
	for item := range stream {
		// Absent emissions are discarded; the last computed state stands.
		if item == nil {
			continue
		}
		p.publish(domain.NewViewState(*item))
	}
}

func (p *StateProjector) publish(state domain.ViewState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.hydrated = true
	p.current = state
	for sub := range p.subscribers {
		deliver(sub, state)
	}
}

// deliver sends latest-wins: a slow observer sees the newest state rather
// than a backlog, and never the same state twice.
func deliver(sub *subscriber, state domain.ViewState) {
	if sub.hasLast && sub.last == state {
		return
	}
	select {
	case sub.ch <- state:
	default:
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- state
	}
	sub.last = state
	sub.hasLast = true
}
