package model

import "time"

const (
	MessageTableName = "messages"
	OfferTableName   = "offers"
)

// Message is one persisted chat or negotiation message of a room.
type Message struct {
	ID          string    `bson:"_id"          json:"id"`
	Room        string    `bson:"room"         json:"room"`
	SenderID    string    `bson:"sender_id"    json:"senderId"`
	SenderName  string    `bson:"sender_name"  json:"senderName"`
	Body        string    `bson:"body"         json:"body"`
	Attachments []string  `bson:"attachments"  json:"attachments,omitempty"`
	IsOffer     bool      `bson:"is_offer"     json:"isOffer"`
	OfferID     string    `bson:"offer_id"     json:"offerId,omitempty"`
	Offer       *Offer    `bson:"-"            json:"offer,omitempty"`
	CreatedAt   time.Time `bson:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time `bson:"updated_at"   json:"updatedAt"`
}

func (Message) GetTableName() string { return MessageTableName }

// Offer is a price proposal referenced by offer messages.
type Offer struct {
	ID        string    `bson:"_id"        json:"id"`
	Room      string    `bson:"room"       json:"room"`
	CreatedBy string    `bson:"created_by" json:"createdBy"`
	Amount    int64     `bson:"amount"     json:"amount"` // minor units
	Currency  string    `bson:"currency"   json:"currency"`
	Status    string    `bson:"status"     json:"status"`
	Note      string    `bson:"note"       json:"note,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

func (Offer) GetTableName() string { return OfferTableName }

// OfferPending is the status of a newly created offer.
const OfferPending = "pending"

// DeletedMessage is the payload of message:deleted.
type DeletedMessage struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	DeletedAt time.Time `json:"deletedAt"`
}
