package gateway

import (
	"net/http"

	"PMarket/middleware"
	midsec "PMarket/middleware/security"
	"PMarket/module/room"
	"PMarket/service/chat"
	"PMarket/tools/apiresp"
	"PMarket/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Server         *chat.Server
	WS             *chat.WSServer
	Rooms          *room.Handler
	Gatherer       prometheus.Gatherer
	InternalTokens []string
	AllowedOrigins []string
	// Health returns nil when every required backend is usable.
	Health func() error
	Log    *zap.Logger
}

type pushResp struct {
	Delivered int `json:"delivered"`
}

type kickResp struct {
	Identity string `json:"identity"`
	Closed   int    `json:"closed"`
}

func NewEngine(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.Recovery(d.Log),
		middleware.AccessLog(d.Log),
		middleware.Origin(d.AllowedOrigins),
		middleware.Manager().Use(),
	)

	r.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) { apiresp.OK(c, d.Server.Stats()) })
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.WS != nil {
		r.GET("/ws", d.WS.HandleWS)
	}
	if d.Rooms != nil {
		d.Rooms.RegisterRoutes(r, middleware.RouteOpt{})
	}

	internal := middleware.RouteOpt{IsAuth: true, Security: midsec.DefaultOptions(d.InternalTokens...)}
	g := r.Group("/internal")
	middleware.POST(g, "/push", pushHandler(d.Server), internal)
	middleware.POST(g, "/identities/:id/kick", kickHandler(d.Server), internal)
	return r
}

func pushHandler(srv *chat.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chat.PushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apiresp.Fail(c, errs.ErrBadPayload.WrapMsg(err.Error()))
			return
		}
		n, err := srv.Pusher().PublishRequest(req)
		if err != nil {
			apiresp.Fail(c, err)
			return
		}
		apiresp.OK(c, pushResp{Delivered: n})
	}
}

func kickHandler(srv *chat.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		apiresp.OK(c, kickResp{Identity: id, Closed: srv.Kick(id)})
	}
}
