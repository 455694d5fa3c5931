package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"PMarket/module/room/model"
	"PMarket/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const room = "negotiation:technology:T1"

func TestMemory_ListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, m := range []*model.Message{
		{ID: "m3", Room: room, CreatedAt: t0.Add(time.Minute)},
		{ID: "m2", Room: room, CreatedAt: t0},
		{ID: "m1", Room: room, CreatedAt: t0},
		{ID: "x1", Room: "chat:direct:D1", CreatedAt: t0},
	} {
		require.NoError(t, s.InsertMessage(ctx, m))
	}

	got, err := s.ListMessages(ctx, room)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.GetOffer(ctx, "nope")
	assert.True(t, errors.Is(err, errs.ErrRecordNotFound))
	assert.True(t, errors.Is(s.DeleteMessage(ctx, room, "nope"), errs.ErrRecordNotFound))
	assert.True(t, errors.Is(s.UpdateMessage(ctx, &model.Message{ID: "nope", Room: room}), errs.ErrRecordNotFound))
}

func TestMemory_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.InsertMessage(ctx, &model.Message{ID: "m1", Room: room, Body: "hi"}))
	assert.Error(t, s.InsertMessage(ctx, &model.Message{ID: "m1", Room: room}))

	require.NoError(t, s.UpdateMessage(ctx, &model.Message{ID: "m1", Room: room, Body: "edited"}))
	m, err := s.GetMessage(ctx, room, "m1")
	require.NoError(t, err)
	assert.Equal(t, "edited", m.Body)

	require.NoError(t, s.DeleteMessage(ctx, room, "m1"))
	list, err := s.ListMessages(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMongoStore_Unavailable(t *testing.T) {
	s := NewMongoStore(StaticDB{})
	_, err := s.ListMessages(context.Background(), room)
	assert.True(t, errors.Is(err, errs.ErrStoreUnavailable))
}

func TestMongoStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list", func(mt *mtest.T) {
		s := NewMongoStore(StaticDB{DB: mt.DB})
		ns := mt.DB.Name() + "." + model.MessageTableName
		t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		first := mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "m1"}, {Key: "room", Value: room}, {Key: "body", Value: "a"}, {Key: "created_at", Value: t0}},
			bson.D{{Key: "_id", Value: "m2"}, {Key: "room", Value: room}, {Key: "body", Value: "b"}, {Key: "created_at", Value: t0.Add(time.Second)}},
		)
		end := mtest.CreateCursorResponse(0, ns, mtest.NextBatch)
		mt.AddMockResponses(first, end)

		got, err := s.ListMessages(context.Background(), room)
		require.NoError(mt, err)
		require.Len(mt, got, 2)
		assert.Equal(mt, "m1", got[0].ID)
		assert.Equal(mt, "b", got[1].Body)
	})

	mt.Run("get offer missing", func(mt *mtest.T) {
		s := NewMongoStore(StaticDB{DB: mt.DB})
		ns := mt.DB.Name() + "." + model.OfferTableName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := s.GetOffer(context.Background(), "o1")
		assert.True(mt, errors.Is(err, errs.ErrRecordNotFound))
	})

	mt.Run("insert", func(mt *mtest.T) {
		s := NewMongoStore(StaticDB{DB: mt.DB})
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(mt, s.InsertMessage(context.Background(), &model.Message{ID: "m1", Room: room}))
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		s := NewMongoStore(StaticDB{DB: mt.DB})
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		err := s.DeleteMessage(context.Background(), room, "m1")
		assert.True(mt, errors.Is(err, errs.ErrRecordNotFound))
	})

	mt.Run("insert duplicate", func(mt *mtest.T) {
		s := NewMongoStore(StaticDB{DB: mt.DB})
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		err := s.InsertOffer(context.Background(), &model.Offer{ID: "o1"})
		require.Error(mt, err)
		assert.True(mt, mongo.IsDuplicateKeyError(err))
	})
}
