package mongodb

import (
	"context"
	"testing"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/repositories/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func updateReply(matched, modified int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: matched},
		bson.E{Key: "nModified", Value: modified},
	)
}

// A guarded update counts as applied once its filter matched, even when the
// server reports no modification, as happens on a retried write.
func TestCASUsesMatchedCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	now := time.Now()

	mt.Run("claim", func(mt *mtest.T) {
		repo := NewShiftRepository(mt.DB)

		mt.AddMockResponses(updateReply(1, 0))
		res, err := repo.Claim(ctx, "s1", "p1", now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASApplied, res)

		mt.AddMockResponses(updateReply(0, 0))
		res, err = repo.Claim(ctx, "s1", "p2", now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASConflict, res)
	})

	mt.Run("offer transitions", func(mt *mtest.T) {
		repo := NewOfferRepository(mt.DB)

		mt.AddMockResponses(updateReply(1, 0))
		res, err := repo.MarkAccepted(ctx, "o1", now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASApplied, res)

		mt.AddMockResponses(updateReply(0, 0))
		res, err = repo.MarkDeclined(ctx, "o1", now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASConflict, res)

		mt.AddMockResponses(updateReply(3, 2))
		n, err := repo.ExpireOverdue(ctx, now)
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, n)
	})

	mt.Run("attendance", func(mt *mtest.T) {
		repo := NewAssignmentRepository(mt.DB)
		at := models.Point{Latitude: 51.5, Longitude: -0.12}

		mt.AddMockResponses(updateReply(1, 0))
		res, err := repo.CheckIn(ctx, "a1", at, now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASApplied, res)

		mt.AddMockResponses(updateReply(0, 0))
		res, err = repo.CheckOut(ctx, "a1", at, now)
		require.NoError(mt, err)
		assert.Equal(mt, interfaces.CASConflict, res)
	})
}
