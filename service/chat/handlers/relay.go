package handlers

import (
	"bytes"
	"encoding/json"
	"strings"

	"PMarket/service/chat"
	"PMarket/tools/decode"
	"PMarket/tools/errs"
)

// TypingHandler relays typing-start and typing-stop.
type TypingHandler struct {
	in, out string
}

func NewTypingStartHandler() chat.Handler {
	return &TypingHandler{in: chat.EventTypingStart, out: chat.EventUserTypingStart}
}

func NewTypingStopHandler() chat.Handler {
	return &TypingHandler{in: chat.EventTypingStop, out: chat.EventUserTypingStop}
}

func (h *TypingHandler) Type() string { return h.in }

func (h *TypingHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	if _, err := sess.RequireIdentity(); err != nil {
		return err
	}
	p, err := decode.Payload[chat.RoomPayload](env.Data)
	if err != nil {
		return errs.ErrBadPayload.WrapMsg(err.Error())
	}
	id, room, err := relayRoom(sess, p.Room)
	if err != nil {
		return err
	}
	ctx.S.Broadcaster().ToRoom(room, sess.ID(), h.out, chat.PresencePayload{
		Identity:    id.ID,
		DisplayName: id.DisplayName,
		Room:        room,
	})
	return nil
}

// NewMessageHandler relays a client message as message-received. The payload is
// passed through and stamped with the sender and room; nothing is persisted.
type NewMessageHandler struct{}

func NewNewMessageHandler() chat.Handler { return &NewMessageHandler{} }

func (h *NewMessageHandler) Type() string { return chat.EventNewMessage }

func (h *NewMessageHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	if _, err := sess.RequireIdentity(); err != nil {
		return err
	}
	body, err := jsonObject(env.Data)
	if err != nil {
		return err
	}
	raw, _ := body["room"].(string)
	id, room, err := relayRoom(sess, raw)
	if err != nil {
		return err
	}
	body["identity"] = id.ID
	body["displayName"] = id.DisplayName
	body["room"] = room
	ctx.S.Broadcaster().ToRoom(room, sess.ID(), chat.EventMessageReceived, body)
	return nil
}

type messageReadIn struct {
	MessageID string `json:"messageId"`
	Room      string `json:"room"`
}

type MessageReadHandler struct{}

func NewMessageReadHandler() chat.Handler { return &MessageReadHandler{} }

func (h *MessageReadHandler) Type() string { return chat.EventMessageRead }

func (h *MessageReadHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	if _, err := sess.RequireIdentity(); err != nil {
		return err
	}
	p, err := decode.Payload[messageReadIn](env.Data)
	if err != nil {
		return errs.ErrBadPayload.WrapMsg(err.Error())
	}
	if strings.TrimSpace(p.MessageID) == "" {
		return errs.ErrBadPayload.WrapMsg("messageId required")
	}
	id, room, err := relayRoom(sess, p.Room)
	if err != nil {
		return err
	}
	ctx.S.Broadcaster().ToRoom(room, sess.ID(), chat.EventMessageRead, chat.MessageReadPayload{
		MessageID: p.MessageID,
		Identity:  id.ID,
		Room:      room,
	})
	return nil
}

type reactionIn struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Room      string `json:"room"`
}

// ReactionHandler relays add-reaction and remove-reaction as reaction-updated.
type ReactionHandler struct {
	in, action string
}

func NewAddReactionHandler() chat.Handler {
	return &ReactionHandler{in: chat.EventAddReaction, action: "add"}
}

func NewRemoveReactionHandler() chat.Handler {
	return &ReactionHandler{in: chat.EventRemoveReaction, action: "remove"}
}

func (h *ReactionHandler) Type() string { return h.in }

func (h *ReactionHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	if _, err := sess.RequireIdentity(); err != nil {
		return err
	}
	p, err := decode.Payload[reactionIn](env.Data)
	if err != nil {
		return errs.ErrBadPayload.WrapMsg(err.Error())
	}
	if p.MessageID == "" || p.Emoji == "" {
		return errs.ErrBadPayload.WrapMsg("messageId and emoji required")
	}
	id, room, err := relayRoom(sess, p.Room)
	if err != nil {
		return err
	}
	ctx.S.Broadcaster().ToRoom(room, sess.ID(), chat.EventReactionUpdated, chat.ReactionPayload{
		MessageID: p.MessageID,
		Emoji:     p.Emoji,
		Identity:  id.ID,
		Action:    h.action,
		Room:      room,
	})
	return nil
}

// jsonObject keeps numbers as json.Number so relayed payloads round-trip unchanged.
func jsonObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, errs.ErrBadPayload.WrapMsg("payload must be a json object")
	}
	return m, nil
}
