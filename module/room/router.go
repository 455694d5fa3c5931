package room

import (
	"PMarket/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the message, offer and presence routes under /api.
func (h *Handler) RegisterRoutes(r gin.IRouter, opt middleware.RouteOpt) {
	api := r.Group("/api")
	middleware.GET(api, "/rooms/:room/messages", h.ListMessages, opt)
	middleware.POST(api, "/rooms/:room/messages", h.CreateMessage, opt)
	middleware.PATCH(api, "/rooms/:room/messages/:id", h.UpdateMessage, opt)
	middleware.DELETE(api, "/rooms/:room/messages/:id", h.DeleteMessage, opt)
	middleware.GET(api, "/offers/:id", h.GetOffer, opt)
	middleware.GET(api, "/identities/:id/online", h.IdentityOnline, opt)
}
