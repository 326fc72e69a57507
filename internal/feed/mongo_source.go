package feed

import (
	"context"
	"fmt"

	"guardshift/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSource watches the offers collection with a change stream filtered
// to inserts for one candidate. Requires a replica set.
type MongoSource struct {
	collection *mongo.Collection
}

func NewMongoSource(collection *mongo.Collection) *MongoSource {
	return &MongoSource{collection: collection}
}

type offerChangeEvent struct {
	FullDocument models.ShiftOffer `bson:"fullDocument"`
}

func (s *MongoSource) Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "fullDocument.personnel_id", Value: personnelID},
		}}},
	}

	stream, err := s.collection.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.Default))
	if err != nil {
		return fmt.Errorf("failed to open offer change stream: %w", err)
	}
	defer stream.Close(context.Background())

	live()

	for stream.Next(ctx) {
		var event offerChangeEvent
		if err := stream.Decode(&event); err != nil {
			return fmt.Errorf("failed to decode offer change event: %w", err)
		}
		offer := event.FullDocument
		deliver(&offer)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("offer change stream failed: %w", err)
	}
	return ErrStreamClosed
}
