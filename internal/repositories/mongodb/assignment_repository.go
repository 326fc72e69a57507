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

const AssignmentsCollection = "booking_assignments"

type assignmentRepository struct {
	collection *mongo.Collection
}

func NewAssignmentRepository(db *mongo.Database) interfaces.AssignmentRepository {
	return &assignmentRepository{
		collection: db.Collection(AssignmentsCollection),
	}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.BookingAssignment) error {
	if assignment.ID == "" {
		assignment.ID = models.NewID()
	}
	assignment.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, assignment)
	if err != nil {
		return fmt.Errorf("failed to create booking assignment: %w", err)
	}

	return nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id string) (*models.BookingAssignment, error) {
	var assignment models.BookingAssignment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&assignment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking assignment: %w", err)
	}

	return &assignment, nil
}

func (r *assignmentRepository) CheckIn(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id, "check_in_at": nil},
		bson.M{"$set": bson.M{
			"check_in_at":     when,
			"check_in_lat":    at.Latitude,
			"check_in_lng":    at.Longitude,
			"auto_checked_in": true,
		}},
	)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to check in: %w", err)
	}

	return interfaces.CASFromCount(result.MatchedCount), nil
}

func (r *assignmentRepository) CheckOut(ctx context.Context, id string, at models.Point, when time.Time) (interfaces.CASResult, error) {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{
			"_id":          id,
			"check_in_at":  bson.M{"$ne": nil},
			"check_out_at": nil,
		},
		bson.M{"$set": bson.M{
			"check_out_at":     when,
			"check_out_lat":    at.Latitude,
			"check_out_lng":    at.Longitude,
			"auto_checked_out": true,
		}},
	)
	if err != nil {
		return interfaces.CASConflict, fmt.Errorf("failed to check out: %w", err)
	}

	return interfaces.CASFromCount(result.MatchedCount), nil
}
