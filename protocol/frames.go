// Package protocol holds the websocket wire format shared by the gateway and its clients.
package protocol

import (
	"encoding/json"

	"PMarket/tools/errs"

	"github.com/pkg/errors"
)

// inbound events
const (
	EventAuthenticate   = "authenticate"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventTypingStart    = "typing-start"
	EventTypingStop     = "typing-stop"
	EventNewMessage     = "new-message"
	EventMessageRead    = "message-read"
	EventAddReaction    = "add-reaction"
	EventRemoveReaction = "remove-reaction"
	EventUserStatus     = "user-status"
	EventPing           = "ping"
)

// outbound events
const (
	EventAuthenticated   = "authenticated"
	EventRoomUsers       = "room-users"
	EventUserJoined      = "user-joined"
	EventUserLeft        = "user-left"
	EventUserTypingStart = "user-typing-start"
	EventUserTypingStop  = "user-typing-stop"
	EventMessageReceived = "message-received"
	EventReactionUpdated = "reaction-updated"
	EventPong            = "pong"
	EventError           = "error"
)

// room write notifications sent through server push
const (
	EventMessageCreated = "message:created"
	EventMessageUpdated = "message:updated"
	EventMessageDeleted = "message:deleted"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	env := &Envelope{}
	if err := json.Unmarshal(raw, env); err != nil {
		return nil, errs.ErrBadPayload.WrapMsg("envelope is not json", "err", err.Error())
	}
	if env.Event == "" {
		return nil, errs.ErrInvalidEvent.WrapMsg("missing event")
	}
	return env, nil
}

// Encode marshals data into an envelope frame. json.RawMessage and []byte
// payloads are embedded as-is.
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", event)
		}
		raw = b
	}
	if len(raw) > 0 && !json.Valid(raw) {
		return nil, errors.Errorf("encode %s payload: invalid json", event)
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s envelope", event)
	}
	return b, nil
}

// ---- payloads ----

type AuthenticatePayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Token       string `json:"token"`
}

type AuthenticatedPayload struct {
	Success  bool   `json:"success"`
	Identity string `json:"identity,omitempty"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type RoomUsersPayload struct {
	Room    string     `json:"room"`
	Members []Identity `json:"members"`
}

// PresencePayload is used by user-joined, user-left and the typing events.
type PresencePayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Room        string `json:"room"`
}

type MessageReadPayload struct {
	MessageID string `json:"messageId"`
	Identity  string `json:"identity"`
	Room      string `json:"room"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Identity  string `json:"identity"`
	Action    string `json:"action"`
	Room      string `json:"room"`
}

type StatusPayload struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

type PongPayload struct {
	TS int64 `json:"ts"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// statuses accepted by user-status
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}
