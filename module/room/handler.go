package room

import (
	"context"
	"strings"
	"time"

	"PMarket/module/room/model"
	"PMarket/module/room/store"
	"PMarket/protocol"
	"PMarket/tools/apiresp"
	"PMarket/tools/errs"
	"PMarket/tools/ids"
	"PMarket/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// events published after a successful write
const (
	EventMessageCreated = protocol.EventMessageCreated
	EventMessageUpdated = protocol.EventMessageUpdated
	EventMessageDeleted = protocol.EventMessageDeleted
)

// Publisher pushes a server event to every connection joined to a room.
type Publisher interface {
	Publish(room, event string, payload any) (int, error)
}

// Presence answers online queries from the local registry.
type Presence interface {
	IsOnline(identityID string) bool
}

// PresenceMirror answers online queries from the shared mirror.
type PresenceMirror interface {
	IsOnline(ctx context.Context, identityID string) (bool, error)
	LastSeen(ctx context.Context, identityID string) (time.Time, bool, error)
}

type Handler struct {
	store    store.Store
	pub      Publisher
	presence Presence
	mirror   PresenceMirror
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Handler)

// WithMirror enables mirror lookups for identities not connected to this node.
func WithMirror(m PresenceMirror) Option {
	return func(h *Handler) { h.mirror = m }
}

func NewHandler(s store.Store, pub Publisher, presence Presence, log *zap.Logger, opts ...Option) *Handler {
	safe.MustNotNil(s, "store")
	safe.MustNotNil(pub, "publisher")
	safe.MustNotNil(presence, "presence")
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{store: s, pub: pub, presence: presence, log: log, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

type offerReq struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Note     string `json:"note"`
}

type createReq struct {
	SenderID    string    `json:"senderId"`
	SenderName  string    `json:"senderName"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments"`
	Offer       *offerReq `json:"offer"`
}

type updateReq struct {
	Body        *string  `json:"body"`
	Attachments []string `json:"attachments"`
}

type onlineResp struct {
	Identity string `json:"identity"`
	Online   bool   `json:"online"`
	Local    bool   `json:"local"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

func roomParam(c *gin.Context) (string, error) {
	r, err := protocol.ParseRoom(c.Param("room"))
	if err != nil {
		return "", err
	}
	return r.Key(), nil
}

func (h *Handler) ListMessages(c *gin.Context) {
	room, err := roomParam(c)
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	list, err := h.store.ListMessages(c.Request.Context(), room)
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	apiresp.OK(c, list)
}

func (h *Handler) CreateMessage(c *gin.Context) {
	room, err := roomParam(c)
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, errs.ErrBadPayload.WrapMsg(err.Error()))
		return
	}
	req.SenderID = strings.TrimSpace(req.SenderID)
	if req.SenderID == "" {
		apiresp.Fail(c, errs.ErrBadPayload.WrapMsg("senderId required"))
		return
	}
	if strings.TrimSpace(req.Body) == "" && len(req.Attachments) == 0 && req.Offer == nil {
		apiresp.Fail(c, errs.ErrBadPayload.WrapMsg("empty message"))
		return
	}
	if req.Offer != nil && (req.Offer.Amount <= 0 || req.Offer.Currency == "") {
		apiresp.Fail(c, errs.ErrBadPayload.WrapMsg("offer needs amount and currency"))
		return
	}
	if req.SenderName == "" {
		req.SenderName = req.SenderID
	}

	ctx := c.Request.Context()
	now := h.now().UTC().Truncate(time.Millisecond)
	msg := &model.Message{
		ID:          ids.GenerateString(),
		Room:        room,
		SenderID:    req.SenderID,
		SenderName:  req.SenderName,
		Body:        req.Body,
		Attachments: req.Attachments,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Offer != nil {
		offer := &model.Offer{
			ID:        ids.GenerateString(),
			Room:      room,
			CreatedBy: req.SenderID,
			Amount:    req.Offer.Amount,
			Currency:  strings.ToUpper(req.Offer.Currency),
			Status:    model.OfferPending,
			Note:      req.Offer.Note,
			CreatedAt: now,
		}
		if err := h.store.InsertOffer(ctx, offer); err != nil {
			apiresp.Fail(c, err)
			return
		}
		msg.IsOffer = true
		msg.OfferID = offer.ID
		msg.Offer = offer
	}
	if err := h.store.InsertMessage(ctx, msg); err != nil {
		apiresp.Fail(c, err)
		return
	}

	h.notify(room, EventMessageCreated, msg)
	apiresp.OK(c, msg)
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	room, err := roomParam(c)
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresp.Fail(c, errs.ErrBadPayload.WrapMsg(err.Error()))
		return
	}
	ctx := c.Request.Context()
	msg, err := h.store.GetMessage(ctx, room, c.Param("id"))
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	if req.Body != nil {
		msg.Body = *req.Body
	}
	if req.Attachments != nil {
		msg.Attachments = req.Attachments
	}
	msg.UpdatedAt = h.now().UTC().Truncate(time.Millisecond)
	if err := h.store.UpdateMessage(ctx, msg); err != nil {
		apiresp.Fail(c, err)
		return
	}
	if msg.IsOffer && msg.OfferID != "" {
		if offer, err := h.store.GetOffer(ctx, msg.OfferID); err == nil {
			msg.Offer = offer
		}
	}

	h.notify(room, EventMessageUpdated, msg)
	apiresp.OK(c, msg)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	room, err := roomParam(c)
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	id := c.Param("id")
	if err := h.store.DeleteMessage(c.Request.Context(), room, id); err != nil {
		apiresp.Fail(c, err)
		return
	}
	ev := model.DeletedMessage{ID: id, Room: room, DeletedAt: h.now().UTC().Truncate(time.Millisecond)}
	h.notify(room, EventMessageDeleted, ev)
	apiresp.OK(c, ev)
}

func (h *Handler) GetOffer(c *gin.Context) {
	offer, err := h.store.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiresp.Fail(c, err)
		return
	}
	apiresp.OK(c, offer)
}

func (h *Handler) IdentityOnline(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp := onlineResp{Identity: id}
	if h.presence != nil && h.presence.IsOnline(id) {
		resp.Online, resp.Local = true, true
		apiresp.OK(c, resp)
		return
	}
	if h.mirror != nil {
		ctx := c.Request.Context()
		online, err := h.mirror.IsOnline(ctx, id)
		if err != nil {
			h.log.Warn("presence mirror lookup failed", zap.String("identity", id), zap.Error(err))
		}
		resp.Online = online
		if !online {
			if at, ok, err := h.mirror.LastSeen(ctx, id); err == nil && ok {
				resp.LastSeen = at.UnixMilli()
			}
		}
	}
	apiresp.OK(c, resp)
}

// notify runs after the write has committed; a failed publish does not undo it.
func (h *Handler) notify(room, event string, payload any) {
	if h.pub == nil {
		return
	}
	n, err := h.pub.Publish(room, event, payload)
	if err != nil {
		h.log.Warn("publish failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
		return
	}
	h.log.Debug("published", zap.String("room", room), zap.String("event", event), zap.Int("delivered", n))
}
