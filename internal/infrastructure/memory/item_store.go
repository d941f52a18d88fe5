// Package memory provides an in-memory ItemStore with live watch fan-out,
// used by tests and the local store backend.
package memory

import (
	"context"
	"sync"

	"github.com/inventory-platform/item-detail-service/internal/domain"
)

type watcher struct {
	itemID int64
	ch     chan *domain.Item
}

// ItemStore keeps items in a mutex-guarded map and pushes every mutation to
// active watchers of the affected item.
type ItemStore struct {
	mu       sync.RWMutex
	items    map[int64]domain.Item
	watchers map[*watcher]struct{}
}

// New returns an empty store.
func New() *ItemStore {
	return &ItemStore{
		items:    make(map[int64]domain.Item),
		watchers: make(map[*watcher]struct{}),
	}
}

// Seed inserts items without notifying watchers; intended for startup data.
func (s *ItemStore) Seed(items ...domain.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.items[item.ID] = item
	}
}

// Get returns the current item, or nil when absent.
func (s *ItemStore) Get(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

// Watch emits the current record (or nil when absent) followed by one
// emission per mutation of the item. The channel closes when ctx ends.
func (s *ItemStore) Watch(ctx context.Context, id int64) (<-chan *domain.Item, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidItemID
	}

	w := &watcher{itemID: id, ch: make(chan *domain.Item, 16)}

	s.mu.Lock()
	if item, ok := s.items[id]; ok {
		copied := item
		w.ch <- &copied
	} else {
		w.ch <- nil
	}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	out := make(chan *domain.Item)
	go func() {
		defer close(out)
		defer s.removeWatcher(w)
		for {
			select {
			case <-ctx.Done():
				return
			case item := <-w.ch:
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

// Update upserts the item and notifies its watchers.
func (s *ItemStore) Update(ctx context.Context, item domain.Item) error {
	if item.ID <= 0 {
		return domain.ErrInvalidItemID
	}

	s.mu.Lock()
	s.items[item.ID] = item
	s.notifyLocked(item.ID, &item)
	s.mu.Unlock()
	return nil
}

// Delete removes the item and notifies its watchers with an absent emission.
func (s *ItemStore) Delete(ctx context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		return domain.ErrItemNotFound
	}
	delete(s.items, item.ID)
	s.notifyLocked(item.ID, nil)
	return nil
}

func (s *ItemStore) notifyLocked(id int64, item *domain.Item) {
	for w := range s.watchers {
		if w.itemID != id {
			continue
		}
		var payload *domain.Item
		if item != nil {
			copied := *item
			payload = &copied
		}
		select {
		case w.ch <- payload:
		default:
			// Slow watcher: drop the oldest pending emission.
			select {
			case <-w.ch:
			default:
			}
			w.ch <- payload
		}
	}
}

func (s *ItemStore) removeWatcher(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watchers, w)
}
