package chat

import (
	"time"

	"PMarket/protocol"
)

// inbound events
const (
	EventAuthenticate   = protocol.EventAuthenticate
	EventJoinRoom       = protocol.EventJoinRoom
	EventLeaveRoom      = protocol.EventLeaveRoom
	EventTypingStart    = protocol.EventTypingStart
	EventTypingStop     = protocol.EventTypingStop
	EventNewMessage     = protocol.EventNewMessage
	EventMessageRead    = protocol.EventMessageRead
	EventAddReaction    = protocol.EventAddReaction
	EventRemoveReaction = protocol.EventRemoveReaction
	EventUserStatus     = protocol.EventUserStatus
	EventPing           = protocol.EventPing
)

// outbound events
const (
	EventAuthenticated   = protocol.EventAuthenticated
	EventRoomUsers       = protocol.EventRoomUsers
	EventUserJoined      = protocol.EventUserJoined
	EventUserLeft        = protocol.EventUserLeft
	EventUserTypingStart = protocol.EventUserTypingStart
	EventUserTypingStop  = protocol.EventUserTypingStop
	EventMessageReceived = protocol.EventMessageReceived
	EventReactionUpdated = protocol.EventReactionUpdated
	EventPong            = protocol.EventPong
	EventError           = protocol.EventError
)

// The wire format lives in package protocol so clients do not link the server.
type (
	Envelope             = protocol.Envelope
	AuthenticatePayload  = protocol.AuthenticatePayload
	AuthenticatedPayload = protocol.AuthenticatedPayload
	RoomPayload          = protocol.RoomPayload
	RoomUsersPayload     = protocol.RoomUsersPayload
	PresencePayload      = protocol.PresencePayload
	MessageReadPayload   = protocol.MessageReadPayload
	ReactionPayload      = protocol.ReactionPayload
	StatusPayload        = protocol.StatusPayload
	PongPayload          = protocol.PongPayload
	ErrorPayload         = protocol.ErrorPayload
)

// statuses accepted by user-status
const (
	StatusOnline  = protocol.StatusOnline
	StatusAway    = protocol.StatusAway
	StatusBusy    = protocol.StatusBusy
	StatusOffline = protocol.StatusOffline
)

var (
	ParseEnvelope = protocol.ParseEnvelope
	Encode        = protocol.Encode
	ValidStatus   = protocol.ValidStatus
)

func nowMilli() int64 { return time.Now().UnixMilli() }
