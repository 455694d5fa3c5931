package store

import (
	"context"

	"PMarket/data/database"
	"PMarket/module/room/model"
	"PMarket/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DBSource yields the current database, or false while disconnected.
type DBSource interface {
	TryGetDB() (*mongo.Database, bool)
}

// StaticDB adapts a fixed database handle to DBSource.
type StaticDB struct{ DB *mongo.Database }

func (s StaticDB) TryGetDB() (*mongo.Database, bool) { return s.DB, s.DB != nil }

type MongoStore struct {
	src DBSource
}

func NewMongoStore(src DBSource) *MongoStore {
	return &MongoStore{src: src}
}

func (s *MongoStore) coll(t database.Table) (*mongo.Collection, error) {
	db, ok := s.src.TryGetDB()
	if !ok {
		return nil, errs.ErrStoreUnavailable.Wrap()
	}
	return database.Collection(db, t), nil
}

// EnsureIndexes creates the room listing index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	c, err := s.coll(model.Message{})
	if err != nil {
		return err
	}
	_, err = c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("room_created_at"),
	})
	return errs.WrapMsg(err, "create messages index")
}

func (s *MongoStore) ListMessages(ctx context.Context, room string) ([]*model.Message, error) {
	c, err := s.coll(model.Message{})
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := c.Find(ctx, bson.M{"room": room}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "room", room)
	}
	out := make([]*model.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages", "room", room)
	}
	return out, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, room, id string) (*model.Message, error) {
	c, err := s.coll(model.Message{})
	if err != nil {
		return nil, err
	}
	m := &model.Message{}
	if err := c.FindOne(ctx, bson.M{"_id": id, "room": room}).Decode(m); err != nil {
		return nil, notFound(err, "message", id)
	}
	return m, nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, m *model.Message) error {
	c, err := s.coll(model.Message{})
	if err != nil {
		return err
	}
	_, err = c.InsertOne(ctx, m)
	return errs.WrapMsg(err, "insert message", "id", m.ID)
}

func (s *MongoStore) UpdateMessage(ctx context.Context, m *model.Message) error {
	c, err := s.coll(model.Message{})
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx, bson.M{"_id": m.ID, "room": m.Room}, bson.M{"$set": bson.M{
		"body":        m.Body,
		"attachments": m.Attachments,
		"updated_at":  m.UpdatedAt,
	}})
	if err != nil {
		return errs.WrapMsg(err, "update message", "id", m.ID)
	}
	if res.MatchedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("message", "id", m.ID)
	}
	return nil
}

func (s *MongoStore) DeleteMessage(ctx context.Context, room, id string) error {
	c, err := s.coll(model.Message{})
	if err != nil {
		return err
	}
	res, err := c.DeleteOne(ctx, bson.M{"_id": id, "room": room})
	if err != nil {
		return errs.WrapMsg(err, "delete message", "id", id)
	}
	if res.DeletedCount == 0 {
		return errs.ErrRecordNotFound.WrapMsg("message", "id", id)
	}
	return nil
}

func (s *MongoStore) GetOffer(ctx context.Context, id string) (*model.Offer, error) {
	c, err := s.coll(model.Offer{})
	if err != nil {
		return nil, err
	}
	o := &model.Offer{}
	if err := c.FindOne(ctx, bson.M{"_id": id}).Decode(o); err != nil {
		return nil, notFound(err, "offer", id)
	}
	return o, nil
}

func (s *MongoStore) InsertOffer(ctx context.Context, o *model.Offer) error {
	c, err := s.coll(model.Offer{})
	if err != nil {
		return err
	}
	_, err = c.InsertOne(ctx, o)
	return errs.WrapMsg(err, "insert offer", "id", o.ID)
}

func notFound(err error, kind, id string) error {
	if err == mongo.ErrNoDocuments {
		return errs.ErrRecordNotFound.WrapMsg(kind, "id", id)
	}
	return errs.WrapMsg(err, "find "+kind, "id", id)
}
