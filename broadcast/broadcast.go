package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fateforge/server/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published on session channels.
const (
	EventSessionUpdated     = "session-updated"
	EventChatMessage        = "chat-message"
	EventDiceRolled         = "dice-rolled"
	EventCombatStarted      = "combat-started"
	EventCombatEnded        = "combat-ended"
	EventTurnAdvanced       = "turn-advanced"
	EventEntitiesUpdated    = "location-entities-updated"
	EventExplorationStarted = "exploration-started"
	EventExplorationUpdated = "exploration-updated"
)

// Sub-types for location-entities-updated events.
const (
	SubTypeEntityStatusChanged = "entity-status-changed"
	SubTypeEntitiesRefreshed   = "entities-refreshed"
)

// Event is the envelope delivered to every subscriber of a session
// channel. Timestamp drives the conflict rule: when two events touch
// the same entity/field, the later timestamp wins regardless of
// arrival order.
type Event struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	SubType   string          `json:"sub_type,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Broadcaster fans committed state changes out to every subscriber of
// a session's channel. Delivery is fire-and-forget: a slow or dead
// subscriber never affects others or the publisher.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID, eventType string, payload interface{})
	PublishSub(ctx context.Context, sessionID, eventType, subType string, payload interface{})
}

// Channel returns the pub/sub channel name for a session.
func Channel(sessionID string) string {
	return "session:" + sessionID
}

// Coordinator publishes events through a cache.PubSub backend (local
// in-process fan-out or Redis).
type Coordinator struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// New creates a Coordinator over the given pub/sub backend.
func New(pubsub cache.PubSub, logger *zap.Logger) *Coordinator {
	return &Coordinator{pubsub: pubsub, logger: logger}
}

// Publish sends an event to all subscribers of the session's channel.
func (c *Coordinator) Publish(ctx context.Context, sessionID, eventType string, payload interface{}) {
	c.PublishSub(ctx, sessionID, eventType, "", payload)
}

// PublishSub sends a sub-typed event to all subscribers of the
// session's channel.
func (c *Coordinator) PublishSub(ctx context.Context, sessionID, eventType, subType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("broadcast payload encode failed",
			zap.String("session_id", sessionID),
			zap.String("type", eventType),
			zap.Error(err))
		return
	}
	ev := Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		SubType:   subType,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("broadcast event encode failed", zap.Error(err))
		return
	}
	if err := c.pubsub.Publish(ctx, Channel(sessionID), string(data)); err != nil {
		c.logger.Warn("broadcast publish failed",
			zap.String("session_id", sessionID),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// Nop is a valid Broadcaster that delivers nothing. Services accept it
// so business logic never null-checks the broadcaster.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, interface{}) {}

func (Nop) PublishSub(context.Context, string, string, string, interface{}) {}
