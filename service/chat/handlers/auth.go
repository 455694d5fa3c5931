package handlers

import (
	"strings"

	"PMarket/service/chat"
	"PMarket/tools/decode"
	"PMarket/tools/errs"
	"PMarket/tools/security"

	"go.uber.org/zap"
)

type AuthHandler struct{}

func NewAuthHandler() chat.Handler { return &AuthHandler{} }

func (h *AuthHandler) Type() string { return chat.EventAuthenticate }

// Handle binds the connection. When a secret is configured the token must
// verify and its subject must equal the claimed identity.
func (h *AuthHandler) Handle(ctx *chat.Context, sess *chat.Session, env *chat.Envelope) error {
	p, err := decode.Payload[chat.AuthenticatePayload](env.Data)
	if err != nil {
		_ = sess.Send(chat.EventAuthenticated, chat.AuthenticatedPayload{Success: false})
		return errs.ErrBadPayload.WrapMsg(err.Error())
	}
	p.Identity = strings.TrimSpace(p.Identity)
	if p.Identity == "" {
		_ = sess.Send(chat.EventAuthenticated, chat.AuthenticatedPayload{Success: false})
		return errs.ErrBadPayload.WrapMsg("identity required")
	}

	if opts := ctx.S.AuthOptions(); opts.Enabled() {
		claims, verr := security.VerifyIdentity(opts, p.Token, p.Identity)
		if verr != nil {
			ctx.S.Logger().Info("authenticate rejected",
				zap.String("conn_id", sess.ID()), zap.String("identity", p.Identity), zap.Error(verr))
			_ = sess.Send(chat.EventAuthenticated, chat.AuthenticatedPayload{Success: false})
			return errs.ErrAuthFailed.WrapMsg(verr.Error())
		}
		if p.DisplayName == "" {
			p.DisplayName = claims.Name
		}
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Identity
	}

	ctx.S.Bind(sess, chat.Identity{ID: p.Identity, DisplayName: p.DisplayName})
	return sess.Send(chat.EventAuthenticated, chat.AuthenticatedPayload{Success: true, Identity: p.Identity})
}
