// Package roomsync keeps a client's view of one room's messages consistent while
// merging server pushes with periodic polls of the authoritative list.
package roomsync

import (
	"context"
	"encoding/json"
	"time"

	"PMarket/protocol"
)

// push events the engine applies
const (
	EventMessageCreated = protocol.EventMessageCreated
	EventMessageUpdated = protocol.EventMessageUpdated
	EventMessageDeleted = protocol.EventMessageDeleted
)

type Offer struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	CreatedBy string    `json:"createdBy"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID          string    `json:"id"`
	Room        string    `json:"room"`
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments,omitempty"`
	IsOffer     bool      `json:"isOffer"`
	OfferID     string    `json:"offerId,omitempty"`
	Offer       *Offer    `json:"offer,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// needsOffer reports whether the message references an offer it does not carry.
func (m Message) needsOffer() bool {
	return m.IsOffer && m.Offer == nil && m.OfferID != ""
}

// version is the timestamp compared against a deletion.
func (m Message) version() time.Time {
	if !m.UpdatedAt.IsZero() {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

type deletedPayload struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	DeletedAt time.Time `json:"deletedAt"`
}

// PushEvent is one server frame as seen by the engine.
type PushEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Source is the collaborator's read side.
type Source interface {
	ListMessages(ctx context.Context, room string) ([]Message, error)
	GetOffer(ctx context.Context, id string) (*Offer, error)
}

// Transport is the push channel. Join and Leave are remembered so a reconnecting
// transport re-joins on its own.
type Transport interface {
	Listen(fn func(PushEvent)) (detach func())
	OnState(fn func(connected bool)) (detach func())
	Join(room string) error
	Leave(room string) error
}
