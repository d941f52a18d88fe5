package domain

import "context"

// ItemStore is the persistence port for the detail session. Watch returns a
// live stream for one item: the current record is emitted first, then one
// emission per change. A nil element marks an absent item (not yet created,
// or deleted). The channel is closed when ctx ends.
//
// After a successful Update or Delete the watch stream eventually emits a
// value reflecting the change; no stronger ordering is guaranteed.
type ItemStore interface {
	Get(ctx context.Context, id int64) (*Item, error)
	Watch(ctx context.Context, id int64) (<-chan *Item, error)
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, item Item) error
}
