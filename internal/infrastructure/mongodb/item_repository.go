// Package mongodb implements the ItemStore port on MongoDB. Live watches are
// built on change streams, so every acknowledged write eventually surfaces on
// the stream without polling.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inventory-platform/item-detail-service/internal/domain"
	"github.com/inventory-platform/item-detail-service/pkg/logging"
	"github.com/inventory-platform/item-detail-service/pkg/resilience"
)

const collectionName = "items"

// ItemRepository is the MongoDB ItemStore. Writes run through a circuit
// breaker so a struggling replica set sheds load instead of queueing it.
type ItemRepository struct {
	collection *mongo.Collection
	breaker    *resilience.CircuitBreaker
	logger     *logging.Logger
}

// NewItemRepository creates the repository on the given database.
func NewItemRepository(db *mongo.Database, breaker *resilience.CircuitBreaker, logger *logging.Logger) *ItemRepository {
	return &ItemRepository{
		collection: db.Collection(collectionName),
		breaker:    breaker,
		logger:     logger.WithComponent("mongodb"),
	}
}

// Get returns the current item, or nil when absent.
func (r *ItemRepository) Get(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item %d: %w", id, err)
	}
	return &item, nil
}

// Watch emits the current record first, then one emission per change event
// for the item. Deletions surface as an absent (nil) emission. The channel
// closes when ctx ends or the change stream fails.
func (r *ItemRepository) Watch(ctx context.Context, id int64) (<-chan *domain.Item, error) {
	if id <= 0 {
		return nil, domain.ErrInvalidItemID
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := r.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream for item %d: %w", id, err)
	}

	initial, err := r.Get(ctx, id)
	if err != nil {
		stream.Close(ctx)
		return nil, err
	}

	out := make(chan *domain.Item, 1)
	out <- initial

	go r.pump(ctx, stream, out)
	return out, nil
}

type changeEvent struct {
	OperationType string       `bson:"operationType"`
	FullDocument  *domain.Item `bson:"fullDocument"`
}

func (r *ItemRepository) pump(ctx context.Context, stream *mongo.ChangeStream, out chan<- *domain.Item) {
	defer close(out)
	defer stream.Close(context.Background())

	for stream.Next(ctx) {
		var event changeEvent
		if err := stream.Decode(&event); err != nil {
			r.logger.WithError(err).Error("Failed to decode change event")
			continue
		}

		var emission *domain.Item
		switch event.OperationType {
		case "insert", "update", "replace":
			emission = event.FullDocument
		case "delete":
			emission = nil
		default:
			continue
		}

		select {
		case out <- emission:
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		r.logger.WithError(err).Error("Change stream terminated")
	}
}

// Update replaces the stored record, creating it if absent.
func (r *ItemRepository) Update(ctx context.Context, item domain.Item) error {
	if item.ID <= 0 {
		return domain.ErrInvalidItemID
	}

	_, err := r.breaker.Execute(func() (interface{}, error) {
		opts := options.Replace().SetUpsert(true)
		return r.collection.ReplaceOne(ctx, bson.M{"_id": item.ID}, item, opts)
	})
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", item.ID, err)
	}
	return nil
}

// Delete removes the stored record.
func (r *ItemRepository) Delete(ctx context.Context, item domain.Item) error {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.collection.DeleteOne(ctx, bson.M{"_id": item.ID})
	})
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", item.ID, err)
	}
	if result.(*mongo.DeleteResult).DeletedCount == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}
