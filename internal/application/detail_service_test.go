package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
)

// recordingStore records every write it receives and lets tests drive the
// watch stream by hand. An optional delete gate holds Delete open until the
// test releases it.
type recordingStore struct {
	mu         sync.Mutex
	emissions  chan *domain.Item
	stored     *domain.Item
	updates    []domain.Item
	deletes    []domain.Item
	deleteGate chan struct{}
}

func newRecordingStore() *recordingStore {
	return &recordingStore{emissions: make(chan *domain.Item, 16)}
}

func (s *recordingStore) Get(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored, nil
}

func (s *recordingStore) Watch(ctx context.Context, id int64) (<-chan *domain.Item, error) {
	out := make(chan *domain.Item, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-s.emissions:
				select {
				case out <- item:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *recordingStore) Update(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, item)
	return nil
}

func (s *recordingStore) Delete(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, item)
	gate := s.deleteGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (s *recordingStore) updateCalls() []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Item(nil), s.updates...)
}

func (s *recordingStore) deleteCalls() []domain.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Item(nil), s.deletes...)
}

func newTestLogger() *logging.Logger {
	cfg := logging.DefaultConfig("test")
	cfg.Level = logging.LevelError
	return logging.New(cfg)
}

func newSession(t *testing.T, store domain.ItemStore) *DetailService {
	t.Helper()
	svc, err := NewDetailService(Config{
		ItemID: 42,
		Store:  store,
		Logger: newTestLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

// awaitName blocks until the session's state carries the given item name,
// which marks the watch stream as caught up with the test's last emission.
func awaitName(t *testing.T, svc *DetailService, name string) {
	t.Helper()
	states, stop := svc.WatchState()
	defer stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-states:
			if state.ItemDetails.Name == name {
				return
			}
		case <-deadline:
			t.Fatalf("state never reached item %q, current %+v", name, svc.State(context.Background()))
		}
	}
}

func TestNewDetailServiceRejectsInvalidItemID(t *testing.T) {
	_, err := NewDetailService(Config{
		ItemID: 0,
		Store:  newRecordingStore(),
		Logger: newTestLogger(),
	})
	require.ErrorIs(t, err, domain.ErrInvalidItemID)
}

func TestDecrementQuantityAtZeroSkipsWrite(t *testing.T) {
	store := newRecordingStore()
	svc := newSession(t, store)

	store.emissions <- &domain.Item{ID: 42, Name: "Wrench", Quantity: 0}
	awaitName(t, svc, "Wrench")

	svc.DecrementQuantity()

	// Commands run in order, so an acknowledged delete proves the decrement
	// already finished.
	require.NoError(t, svc.DeleteItem(context.Background()))
	assert.Empty(t, store.updateCalls())
}

func TestDecrementQuantityWritesExactlyOnce(t *testing.T) {
	store := newRecordingStore()
	svc := newSession(t, store)

	store.emissions <- &domain.Item{ID: 42, Name: "Wrench", Price: 19.99, Quantity: 5}
	awaitName(t, svc, "Wrench")

	svc.DecrementQuantity()
	require.NoError(t, svc.DeleteItem(context.Background()))

	updates := store.updateCalls()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(42), updates[0].ID)
	assert.Equal(t, int64(4), updates[0].Quantity)
	assert.Equal(t, "Wrench", updates[0].Name)
}

func TestDeleteItemWaitsForStoreAcknowledgement(t *testing.T) {
	store := newRecordingStore()
	gate := make(chan struct{})
	store.deleteGate = gate
	svc := newSession(t, store)

	store.emissions <- &domain.Item{ID: 42, Name: "Wrench", Quantity: 1}
	awaitName(t, svc, "Wrench")

	done := make(chan error, 1)
	go func() {
		done <- svc.DeleteItem(context.Background())
	}()

	select {
	case err := <-done:
		t.Fatalf("DeleteItem returned before the store acknowledged: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-done)

	deletes := store.deleteCalls()
	require.Len(t, deletes, 1)
	assert.Equal(t, int64(42), deletes[0].ID)
}

func TestDeleteItemAbortsOnCallerCancel(t *testing.T) {
	store := newRecordingStore()
	store.deleteGate = make(chan struct{})
	svc := newSession(t, store)

	store.emissions <- &domain.Item{ID: 42, Name: "Wrench", Quantity: 1}
	awaitName(t, svc, "Wrench")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.DeleteItem(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(store.deleteCalls()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestCommandsAfterCloseAreRejected(t *testing.T) {
	store := newRecordingStore()
	svc := newSession(t, store)
	svc.Close()

	svc.DecrementQuantity() // must not panic or write

	err := svc.DeleteItem(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.updateCalls())
	assert.Empty(t, store.deleteCalls())
}

func TestComposeShareText(t *testing.T) {
	store := newRecordingStore()
	svc := newSession(t, store)

	store.emissions <- &domain.Item{
		ID:           42,
		Name:         "Wrench",
		Price:        19.99,
		Quantity:     5,
		ProviderName: "Acme Tools",
	}
	awaitName(t, svc, "Wrench")

	dto := svc.ComposeShareText(context.Background())
	assert.Equal(t, "text/plain", dto.ContentType)
	assert.Contains(t, dto.Text, "Name: Wrench")
	assert.Contains(t, dto.Text, "Price: 19.99$")
	assert.Contains(t, dto.Text, "Quantity: 5")
	assert.Contains(t, dto.Text, "Provider Info")
	assert.Contains(t, dto.Text, "Name: Acme Tools")
}

// One-shot callers never subscribe, so the session must serve the stored
// item rather than the default zero state.
func TestStateHydratesFromStoreWithoutSubscribers(t *testing.T) {
	store := newRecordingStore()
	store.stored = &domain.Item{ID: 42, Name: "Wrench", Price: 19.99, Quantity: 3}
	svc := newSession(t, store)

	state := svc.State(context.Background())
	assert.Equal(t, "42", state.ItemDetails.ID)
	assert.Equal(t, "Wrench", state.ItemDetails.Name)
	assert.Equal(t, "3", state.ItemDetails.Quantity)
	assert.False(t, state.OutOfStock)
}

func TestCommandsActOnStoredItemWithoutSubscribers(t *testing.T) {
	store := newRecordingStore()
	store.stored = &domain.Item{ID: 42, Name: "Wrench", Price: 19.99, Quantity: 3}
	svc := newSession(t, store)

	svc.DecrementQuantity()
	require.NoError(t, svc.DeleteItem(context.Background()))

	updates := store.updateCalls()
	require.Len(t, updates, 1)
	assert.Equal(t, int64(42), updates[0].ID)
	assert.Equal(t, int64(2), updates[0].Quantity)

	deletes := store.deleteCalls()
	require.Len(t, deletes, 1)
	assert.Equal(t, int64(42), deletes[0].ID)
}

func TestSessionManagerReusesAndRemovesSessions(t *testing.T) {
	store := newRecordingStore()
	manager := NewSessionManager(func(itemID int64) (*DetailService, error) {
		return NewDetailService(Config{
			ItemID: itemID,
			Store:  store,
			Logger: newTestLogger(),
		})
	})
	t.Cleanup(manager.CloseAll)

	first, err := manager.Get(7)
	require.NoError(t, err)
	second, err := manager.Get(7)
	require.NoError(t, err)
	assert.Same(t, first, second)

	manager.Remove(7)
	replacement, err := manager.Get(7)
	require.NoError(t, err)
	assert.NotSame(t, first, replacement)
}

func TestSessionManagerPropagatesFactoryError(t *testing.T) {
	manager := NewSessionManager(func(itemID int64) (*DetailService, error) {
		return NewDetailService(Config{
			ItemID: itemID,
			Store:  newRecordingStore(),
			Logger: newTestLogger(),
		})
	})
	t.Cleanup(manager.CloseAll)

	_, err := manager.Get(0)
	require.ErrorIs(t, err, domain.ErrInvalidItemID)
}
