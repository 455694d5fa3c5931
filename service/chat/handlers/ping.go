package handlers

import (
	"time"

	"PMarket/service/chat"
)

// PingHandler answers application level pings; transport pings are handled by the pumps.
type PingHandler struct{}

func NewPingHandler() chat.Handler { return &PingHandler{} }

func (h *PingHandler) Type() string { return chat.EventPing }

func (h *PingHandler) Handle(_ *chat.Context, sess *chat.Session, _ *chat.Envelope) error {
	return sess.Send(chat.EventPong, chat.PongPayload{TS: time.Now().UnixMilli()})
}
