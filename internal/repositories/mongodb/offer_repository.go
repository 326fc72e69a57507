package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const OffersCollection = "shift_offers"

type offerRepository struct {
	collection *mongo.Collection
}

func NewOfferRepository(db *mongo.Database) interfaces.OfferRepository {
	return &offerRepository{
		collection: db.Collection(OffersCollection),
	}
}

func (r *offerRepository) Create(ctx context.Context, offer *models.ShiftOffer) error {
	if offer.ID == "" {
		offer.ID = models.NewID()
	}
	if offer.Status == "" {
		offer.Status = models.OfferStatusPending
	}
	offer.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, offer)
	if err != nil {
		return fmt.Errorf("failed to create shift offer: %w", err)
	}

	return nil
}

func (r *offerRepository) GetByID(ctx context.Context, id string) (*models.ShiftOffer, error) {
	var offer models.ShiftOffer
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shift offer: %w", err)
	}

	return &offer, nil
}

func (r *offerRepository) ListPendingForPersonnel(ctx context.Context, personnelID string) ([]*models.ShiftOffer, error) {
	filter := bson.M{
		"personnel_id": personnelID,
		"status":       models.OfferStatusPending,
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find pending offers: %w", err)
	}
	defer cursor.Close(ctx)

	var offers []*models.ShiftOffer
	for cursor.Next(ctx) {
		var offer models.ShiftOffer
		if err := cursor.Decode(&offer); err != nil {
			return nil, fmt.Errorf("failed to decode shift offer: %w", err)
		}
		offers = append(offers, &offer)
	}

	return offers, cursor.Err()
}

func (r *offerRepository) transition(ctx context.Context, id string, from, to models.OfferStatus, at time.Time) (interfaces.CASResult, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{
			"status":       to,
			"responded_at": at,
		}},
	)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to move offer %s from %s to %s: %w", id, from, to, err)
	}

	return interfaces.CASFromCount(result.MatchedCount), nil
}

func (r *offerRepository) MarkAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusPending, models.OfferStatusAccepted, at)
}

func (r *offerRepository) MarkDeclined(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusPending, models.OfferStatusDeclined, at)
}

func (r *offerRepository) RevertAccepted(ctx context.Context, id string, at time.Time) (interfaces.CASResult, error) {
	return r.transition(ctx, id, models.OfferStatusAccepted, models.OfferStatusExpired, at)
}

func (r *offerRepository) ReopenAccepted(ctx context.Context, id string) (interfaces.CASResult, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "status": models.OfferStatusAccepted},
		bson.M{
			"$set":   bson.M{"status": models.OfferStatusPending},
			"$unset": bson.M{"responded_at": ""},
		},
	)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to reopen offer %s: %w", id, err)
	}

	return interfaces.CASFromCount(result.MatchedCount), nil
}

func (r *offerRepository) ExpireSiblings(ctx context.Context, shiftID, exceptOfferID string) (int64, error) {
	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{
			"shift_id": shiftID,
			"_id":      bson.M{"$ne": exceptOfferID},
			"status":   models.OfferStatusPending,
		},
		bson.M{"$set": bson.M{"status": models.OfferStatusExpired}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire sibling offers: %w", err)
	}

	return result.MatchedCount, nil
}

func (r *offerRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(
		ctx,
		bson.M{
			"status":     models.OfferStatusPending,
			"expires_at": bson.M{"$lte": now},
		},
		bson.M{"$set": bson.M{"status": models.OfferStatusExpired}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire overdue offers: %w", err)
	}

	return result.MatchedCount, nil
}
