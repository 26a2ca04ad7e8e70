package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/config"
	"github.com/fateforge/server/game/session"
	mw "github.com/fateforge/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const announceChannel = "announce"

// Handler streams session events over SSE for clients that cannot hold
// a WebSocket open.
type Handler struct {
	pubsub   cache.PubSub
	sessions *session.Service
	sec      config.SecurityConfig
	c        cache.Cache
	logger   *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, sessions *session.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, sessions: sessions, c: c, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>&session_id=<id>.
// It streams the session's event channel plus system announcements.
// EventSource cannot set headers, so the token rides the query string.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	_, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, "login:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id"})
		return
	}
	if _, err := h.sessions.Get(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, broadcast.Channel(sessionID), announceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"session_id\":%q}\n\n", sessionID)
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	// Per-stream resolver: stale entity updates are dropped instead of
	// being replayed over newer ones.
	resolver := broadcast.NewResolver()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			name := "session"
			if msg.Channel == announceChannel {
				name = "announce"
			}
			if name == "session" {
				var ev broadcast.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil && !resolver.ShouldForward(&ev) {
					continue
				}
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// Announce publishes a system-wide announcement to every SSE stream.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
