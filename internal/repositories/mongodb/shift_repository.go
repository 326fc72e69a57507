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
)

const ShiftsCollection = "shifts"

type shiftRepository struct {
	collection *mongo.Collection
}

func NewShiftRepository(db *mongo.Database) interfaces.ShiftRepository {
	return &shiftRepository{
		collection: db.Collection(ShiftsCollection),
	}
}

func (r *shiftRepository) Create(ctx context.Context, shift *models.Shift) error {
	if shift.ID == "" {
		shift.ID = models.NewID()
	}
	if shift.Status == "" {
		shift.Status = models.ShiftStatusPending
	}
	shift.CreatedAt = time.Now()
	shift.UpdatedAt = shift.CreatedAt

	_, err := r.collection.InsertOne(ctx, shift)
	if err != nil {
		return fmt.Errorf("failed to create shift: %w", err)
	}

	return nil
}

func (r *shiftRepository) GetByID(ctx context.Context, id string) (*models.Shift, error) {
	var shift models.Shift
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&shift)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}

	return &shift, nil
}

// Claim matches on status and a null assignee in the same filter, so the
// single-document update is the arbiter between racing candidates.
func (r *shiftRepository) Claim(ctx context.Context, id, personnelID string, at time.Time) (interfaces.CASResult, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":                   id,
			"status":                models.ShiftStatusPending,
			"assigned_personnel_id": nil,
		},
		bson.M{"$set": bson.M{
			"assigned_personnel_id": personnelID,
			"status":                models.ShiftStatusAccepted,
			"accepted_at":           at,
			"updated_at":            at,
		}},
	)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to claim shift: %w", err)
	}

	return interfaces.CASFromCount(result.MatchedCount), nil
}
