package handler

import (
	"net/http"
	"time"

	"github.com/fred1433/CounselAI/middleware"
	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/fred1433/CounselAI/relay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type RelayHandler struct {
	hub      *relay.Hub
	editor   relay.Editor
	upgrader websocket.Upgrader
	opts     relay.ClientOptions
}

// NewRelayHandler serves the relay. opts applies to every connection; the
// username and remote IP are filled in per request.
func NewRelayHandler(hub *relay.Hub, editor relay.Editor, allowedOrigins []string, opts relay.ClientOptions) *RelayHandler {
	return &RelayHandler{
		hub:    hub,
		editor: editor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		opts: opts,
	}
}

// ServeWS upgrades GET /ws and hands the connection to the hub.
func (h *RelayHandler) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		logger.Warn(c.Request.Context(), "websocket upgrade failed", logger.Err(err))
		return
	}

	opts := h.opts
	opts.Username = middleware.GetUsername(c)
	opts.RemoteIP = c.ClientIP()
	client := h.hub.Serve(conn, h.editor, opts)
	logger.Info(c.Request.Context(), "websocket upgraded", "client_id", client.ID())
}
