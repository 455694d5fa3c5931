package store

import (
	"context"

	"PMarket/module/room/model"
)

// Store is the durable side of the room collaborator.
type Store interface {
	// ListMessages returns the room's messages ordered by created_at, then id.
	ListMessages(ctx context.Context, room string) ([]*model.Message, error)
	GetMessage(ctx context.Context, room, id string) (*model.Message, error)
	InsertMessage(ctx context.Context, m *model.Message) error
	UpdateMessage(ctx context.Context, m *model.Message) error
	DeleteMessage(ctx context.Context, room, id string) error
	GetOffer(ctx context.Context, id string) (*model.Offer, error)
	InsertOffer(ctx context.Context, o *model.Offer) error
}
