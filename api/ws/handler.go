package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/config"
	"github.com/fateforge/server/game/client"
	mw "github.com/fateforge/server/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	cache    cache.Cache
	sec      config.SecurityConfig
	cm       *client.Manager
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	c cache.Cache,
	sec config.SecurityConfig,
	cm *client.Manager,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		cache:  c,
		sec:    sec,
		cm:     cm,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	// Validate JWT.
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	// Validate session cache.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, "login:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
		return
	}

	// Upgrade to WebSocket.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	cc := client.NewConn(uuid.NewString(), claims.AccountID, conn, h.logger)
	h.cm.Register(cc)
	h.readPump(cc)
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(c *client.Conn) {
	defer h.handleDisconnect(c)

	c.SetReadDeadline()
	c.WS.SetPongHandler(func(string) error {
		c.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := c.WS.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.Int64("account_id", c.AccountID),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		c.SetReadDeadline()
		h.router.Dispatch(c, raw)
	}
}

// handleDisconnect cleans up after the connection closes. Closing the
// conn cancels all of its session-channel subscriptions.
func (h *Handler) handleDisconnect(c *client.Conn) {
	c.Close()
	h.cm.Unregister(c.ID)
}
