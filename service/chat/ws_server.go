package chat

import (
	"net/http"
	"strings"

	"PMarket/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSServer upgrades HTTP requests and runs each connection against Server.
type WSServer struct {
	srv      *Server
	conf     ClientConf
	upgrader websocket.Upgrader
}

// NewWSServer allows every origin when allowedOrigins is empty or contains "*".
func NewWSServer(srv *Server, conf ClientConf, allowedOrigins []string) *WSServer {
	return &WSServer{
		srv:  srv,
		conf: conf,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// HandleWS is mounted on GET /ws.
func (w *WSServer) HandleWS(c *gin.Context) {
	ws, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.srv.log.Info("upgrade websocket failed", zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}
	w.ServeConn(ws)
}

// ServeConn runs the pumps for an upgraded socket and returns when it closes.
func (w *WSServer) ServeConn(ws *websocket.Conn) {
	client := NewClient(ids.GenerateString(), ws, w.conf)
	sess := w.srv.Open(client)

	dispatched := make(chan struct{})
	go client.WritePump()
	go func() {
		defer close(dispatched)
		w.srv.Serve(sess, client.Inbound())
	}()

	client.ReadPump()
	<-dispatched
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(strings.ToLower(origin), "/")]
		return ok
	}
}
