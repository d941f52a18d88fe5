// Package application implements the item-detail session: state projection,
// guarded mutation commands, secure export, and share composition for a
// single item.
package application

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/internal/events"
	"github.com/inventory-platform/item-detail-service/internal/export"
	"github.com/inventory-platform/item-detail-service/internal/projection"
	"github.com/inventory-platform/item-detail-service/internal/security"
	"github.com/inventory-platform/item-detail-service/internal/share"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
	"github.com/inventory-platform/item-detail-service/pkg/metrics"
)

const commandQueueSize = 16

// Config assembles the collaborators of a DetailService.
type Config struct {
	ItemID      int64
	Store       domain.ItemStore
	Cipher      security.Cipher
	ScratchDir  string
	Publisher   events.Publisher
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	GracePeriod time.Duration
}

// DetailService is the single logical owner of one item-detail session. Its
// projector, queued commands, and exports all live on one cancellable scope,
// released as a whole by Close.
//
// Mutation commands for the item are funneled through a single worker
// goroutine, so two rapid decrements cannot race on the same stale snapshot.
type DetailService struct {
	itemID    int64
	store     domain.ItemStore
	projector *projection.StateProjector
	exporter  *export.Exporter
	publisher events.Publisher
	factory   *events.EventFactory
	metrics   *metrics.Metrics
	logger    *logging.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	commands  chan func(context.Context)
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewDetailService builds a session for one item. A missing or invalid item
// identifier aborts construction.
func NewDetailService(cfg Config) (*DetailService, error) {
	logger := cfg.Logger.WithComponent("application").WithItemID(cfg.ItemID)

	var opts []projection.Option
	if cfg.GracePeriod > 0 {
		opts = append(opts, projection.WithGracePeriod(cfg.GracePeriod))
	}
	projector, err := projection.New(cfg.Store, cfg.ItemID, cfg.Logger, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &DetailService{
		itemID:    cfg.ItemID,
		store:     cfg.Store,
		projector: projector,
		publisher: cfg.Publisher,
		factory:   events.NewEventFactory("/item-detail-service"),
		metrics:   cfg.Metrics,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		commands:  make(chan func(context.Context), commandQueueSize),
	}
	s.exporter = export.New(projector.Current, cfg.Cipher, cfg.ScratchDir, cfg.Logger)

	s.wg.Add(1)
	go s.commandWorker()

	return s, nil
}

// State returns the current ViewState snapshot. Callers that never subscribe
// still see the stored item: the snapshot is hydrated from the store until
// the live stream delivers its first emission.
func (s *DetailService) State(ctx context.Context) domain.ViewState {
	return s.currentState(ctx)
}

// WatchState attaches an observer to the live ViewState stream.
func (s *DetailService) WatchState() (<-chan domain.ViewState, func()) {
	return s.projector.Subscribe()
}

// DecrementQuantity requests a quantity decrement of the current snapshot.
// Fire-and-forget: the write happens on the session's command worker, and
// decrementing an already-zero quantity is a silent no-op, not a failure.
func (s *DetailService) DecrementQuantity() {
	s.enqueue(func(ctx context.Context) {
		state := s.currentState(ctx)
		item, err := state.ItemDetails.ToItem()
		if err != nil {
			s.logger.WithError(err).Error("Failed to convert details for decrement")
			s.recordDecrement("error")
			return
		}

		if item.Quantity <= 0 {
			s.recordDecrement("noop")
			return
		}
		item.Quantity--

		start := time.Now()
		err = s.store.Update(ctx, item)
		s.recordStoreOperation("update", err, time.Since(start))
		if err != nil {
			s.logger.WithError(err).Error("Failed to persist decrement")
			s.recordDecrement("error")
			return
		}

		s.recordDecrement("success")
		s.publishEvent(ctx, s.factory.ItemUpdated(item))
	})
}

// DeleteItem removes the item matching the current snapshot from the store.
// Unlike decrement it is awaitable: it returns only after the store
// acknowledges the deletion (or the caller/session is cancelled).
func (s *DetailService) DeleteItem(ctx context.Context) error {
	result := make(chan error, 1)

	s.enqueue(func(cmdCtx context.Context) {
		if err := s.projector.Hydrate(cmdCtx); err != nil {
			result <- err
			return
		}
		state := s.projector.Current()
		item, err := state.ItemDetails.ToItem()
		if err != nil {
			result <- err
			return
		}

		start := time.Now()
		err = s.store.Delete(cmdCtx, item)
		s.recordStoreOperation("delete", err, time.Since(start))
		if err != nil {
			result <- err
			return
		}

		if s.metrics != nil {
			s.metrics.ItemsDeleted.Inc()
		}
		s.publishEvent(cmdCtx, s.factory.ItemDeleted(item))
		result <- nil
	})

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Export writes the current item, encrypted, to the destination. It blocks
// for the duration of the export and is cancelled along with the session.
func (s *DetailService) Export(ctx context.Context, dst io.Writer) error {
	scoped, release := s.sessionScoped(ctx)
	defer release()

	err := s.projector.Hydrate(scoped)
	if err == nil {
		err = s.exporter.Export(scoped, dst)
	}
	if s.metrics != nil {
		s.metrics.RecordExport(err)
	}
	return err
}

// ComposeShareText builds the plain-text summary of the current snapshot.
func (s *DetailService) ComposeShareText(ctx context.Context) ShareTextDTO {
	if s.metrics != nil {
		s.metrics.ShareTextsComposed.Inc()
	}
	return ShareTextDTO{
		Text:        share.Compose(s.currentState(ctx)),
		ContentType: share.ContentType,
	}
}

// Close cancels the session scope, releasing the upstream subscription and
// aborting in-flight commands, and waits for the worker to stop.
func (s *DetailService) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.projector.Close()
		s.wg.Wait()
	})
}

// currentState hydrates the projector before reading the snapshot; a
// hydration failure is logged and the last known state stands.
func (s *DetailService) currentState(ctx context.Context) domain.ViewState {
	if err := s.projector.Hydrate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to hydrate state from store")
	}
	return s.projector.Current()
}

func (s *DetailService) enqueue(fn func(context.Context)) {
	select {
	case s.commands <- fn:
	case <-s.ctx.Done():
	}
}

func (s *DetailService) commandWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case fn := <-s.commands:
			fn(s.ctx)
		}
	}
}

func (s *DetailService) publishEvent(ctx context.Context, event *events.ItemEvent) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, event)
	if s.metrics != nil {
		s.metrics.RecordEventPublished(event.Type, err)
	}
	if err != nil {
		// Publishing never fails the command; downstream catches up from the store.
		s.logger.WithError(err).Warn("Failed to publish item event", "eventType", event.Type)
	}
}

func (s *DetailService) recordDecrement(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordDecrement(outcome)
	}
}

func (s *DetailService) recordStoreOperation(operation string, err error, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordStoreOperation(operation, err, duration)
	}
}

// sessionScoped derives a context cancelled by whichever of the caller
// context or the session scope ends first.
func (s *DetailService) sessionScoped(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
