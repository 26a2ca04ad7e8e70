package ws

import (
	"context"
	"encoding/json"

	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/cache"
	"github.com/fateforge/server/game/client"
	"github.com/fateforge/server/game/session"
	"go.uber.org/zap"
)

// SessionHandlers wires session-channel subscription messages. A
// subscribed connection receives every event published on the
// session's channel until it unsubscribes or disconnects.
type SessionHandlers struct {
	pubsub   cache.PubSub
	sessions *session.Service
	logger   *zap.Logger
}

// NewSessionHandlers creates session subscription handlers.
func NewSessionHandlers(pubsub cache.PubSub, sessions *session.Service, logger *zap.Logger) *SessionHandlers {
	return &SessionHandlers{pubsub: pubsub, sessions: sessions, logger: logger}
}

// RegisterHandlers registers all session WS message handlers.
func (sh *SessionHandlers) RegisterHandlers(r *Router) {
	r.On("session_subscribe", sh.HandleSubscribe)
	r.On("session_unsubscribe", sh.HandleUnsubscribe)
	r.On("ping", sh.HandlePing)
}

type subscribePayload struct {
	SessionID string `json:"session_id"`
}

// HandleSubscribe attaches the connection to a session's event channel.
func (sh *SessionHandlers) HandleSubscribe(ctx context.Context, c *client.Conn, payload json.RawMessage) error {
	var req subscribePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	if _, err := sh.sessions.Get(ctx, req.SessionID); err != nil {
		sh.sendError(c, "session_subscribe", err.Error())
		return nil
	}

	// The subscription outlives this dispatch; it is cancelled on
	// unsubscribe or disconnect.
	msgCh, unsub, err := sh.pubsub.Subscribe(context.Background(), broadcast.Channel(req.SessionID))
	if err != nil {
		sh.sendError(c, "session_subscribe", "subscribe failed")
		return err
	}
	c.AddSubscription(req.SessionID, unsub)

	// Each subscription gets its own resolver: stale entity updates
	// arriving after a newer one for the same entity/field are dropped
	// before they reach the client.
	resolver := broadcast.NewResolver()
	go func() {
		for msg := range msgCh {
			var ev broadcast.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err == nil && !resolver.ShouldForward(&ev) {
				continue
			}
			c.Send(&client.Packet{Type: "event", Payload: json.RawMessage(msg.Payload)})
		}
	}()

	sh.sendAck(c, "session_subscribed", req.SessionID)
	sh.logger.Info("session subscribed",
		zap.String("conn_id", c.ID),
		zap.String("session_id", req.SessionID))
	return nil
}

// HandleUnsubscribe detaches the connection from a session's channel.
func (sh *SessionHandlers) HandleUnsubscribe(_ context.Context, c *client.Conn, payload json.RawMessage) error {
	var req subscribePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return err
	}
	if !c.RemoveSubscription(req.SessionID) {
		sh.sendError(c, "session_unsubscribe", "not subscribed")
		return nil
	}
	sh.sendAck(c, "session_unsubscribed", req.SessionID)
	return nil
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

// HandlePing answers an application-level heartbeat.
func (sh *SessionHandlers) HandlePing(_ context.Context, c *client.Conn, payload json.RawMessage) error {
	var req pingPayload
	_ = json.Unmarshal(payload, &req)
	c.SendHeartbeatPong(req.ClientTS)
	return nil
}

func (sh *SessionHandlers) sendAck(c *client.Conn, msgType, sessionID string) {
	data, _ := json.Marshal(map[string]string{"session_id": sessionID})
	c.Send(&client.Packet{Type: msgType, Payload: data})
}

func (sh *SessionHandlers) sendError(c *client.Conn, op, msg string) {
	data, _ := json.Marshal(map[string]string{"op": op, "error": msg})
	c.Send(&client.Packet{Type: "error", Payload: data})
}
