package handlers

import (
	"time"

	"PMarket/service/chat"
	"PMarket/tools/decode"
	"PMarket/tools/errs"
)

type statusIn struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

// StatusHandler broadcasts user-status to every other connection; it is not room scoped.
type StatusHandler struct{}

func NewStatusHandler() chat.Handler { return &StatusHandler{} }

func (h *StatusHandler) Type() string { return chat.EventUserStatus }

func (h *StatusHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	id, err := sess.RequireIdentity()
	if err != nil {
		return err
	}
	p, err := decode.Payload[statusIn](env.Data)
	if err != nil {
		return errs.ErrBadPayload.WrapMsg(err.Error())
	}
	if !chat.ValidStatus(p.Status) {
		return errs.ErrInvalidStatus.WrapMsg("", "status", p.Status)
	}
	if p.LastSeen == 0 {
		p.LastSeen = time.Now().UnixMilli()
	}
	ctx.S.Broadcaster().ToAll(sess.ID(), chat.EventUserStatus, chat.StatusPayload{
		Identity: id.ID,
		Status:   p.Status,
		LastSeen: p.LastSeen,
	})
	return nil
}
