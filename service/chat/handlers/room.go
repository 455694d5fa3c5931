package handlers

import (
	"strings"

	"PMarket/service/chat"
	"PMarket/tools/decode"
	"PMarket/tools/errs"

	"go.uber.org/zap"
)

type JoinRoomHandler struct{}

func NewJoinRoomHandler() chat.Handler { return &JoinRoomHandler{} }

func (h *JoinRoomHandler) Type() string { return chat.EventJoinRoom }

// Handle joins the room, tells the other members and sends the joiner the member snapshot.
func (h *JoinRoomHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	id, err := sess.RequireIdentity()
	if err != nil {
		return err
	}
	room, err := roomOf(env)
	if err != nil {
		return err
	}

	members, joined := ctx.S.Rooms().Join(room, id, sess.ID())
	ctx.S.SyncRoomGauge()
	if joined {
		ctx.S.Broadcaster().ToRoom(room, sess.ID(), chat.EventUserJoined, chat.PresencePayload{
			Identity:    id.ID,
			DisplayName: id.DisplayName,
			Room:        room,
		})
	}
	ctx.S.Logger().Debug("joined room",
		zap.String("conn_id", sess.ID()), zap.String("identity", id.ID), zap.String("room", room), zap.Int("members", len(members)))
	return sess.Send(chat.EventRoomUsers, chat.RoomUsersPayload{Room: room, Members: members})
}

type LeaveRoomHandler struct{}

func NewLeaveRoomHandler() chat.Handler { return &LeaveRoomHandler{} }

func (h *LeaveRoomHandler) Type() string { return chat.EventLeaveRoom }

func (h *LeaveRoomHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	id, err := sess.RequireIdentity()
	if err != nil {
		return err
	}
	room, err := roomOf(env)
	if err != nil {
		return err
	}
	if !ctx.S.Rooms().Joined(room, sess.ID()) {
		return errs.ErrNotJoined.WrapMsg("", "room", room)
	}

	left, _ := ctx.S.Rooms().Leave(room, id.ID, sess.ID())
	ctx.S.SyncRoomGauge()
	if left {
		ctx.S.Broadcaster().ToRoom(room, sess.ID(), chat.EventUserLeft, chat.PresencePayload{
			Identity:    id.ID,
			DisplayName: id.DisplayName,
			Room:        room,
		})
	}
	return nil
}

// roomOf decodes {room} and validates the key.
func roomOf(env *chat.Envelope) (string, error) {
	p, err := decode.Payload[chat.RoomPayload](env.Data)
	if err != nil {
		return "", errs.ErrBadPayload.WrapMsg(err.Error())
	}
	room := strings.TrimSpace(p.Room)
	if _, err := chat.ParseRoom(room); err != nil {
		return "", err
	}
	return room, nil
}

// relayRoom resolves the sender and the trimmed, validated room for an ephemeral relay.
// Relays need no prior join; the room's members receive them.
func relayRoom(sess *chat.Session, room string) (chat.Identity, string, error) {
	id, err := sess.RequireIdentity()
	if err != nil {
		return chat.Identity{}, "", err
	}
	room = strings.TrimSpace(room)
	if _, err := chat.ParseRoom(room); err != nil {
		return chat.Identity{}, "", err
	}
	return id, room, nil
}
