package broadcast

import (
	"encoding/json"
	"sync"
	"time"
)

type fieldKey struct {
	EntityID string
	Field    string
}

// Resolver applies the event conflict rule: for two updates to the
// same entity/field, the one carrying the later timestamp wins, no
// matter which arrives first. The WS and SSE relays hold one per
// subscription and call ShouldForward on every outbound event;
// consumers with a local entity view can call ShouldApply directly.
type Resolver struct {
	mu      sync.Mutex
	applied map[fieldKey]time.Time
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{applied: make(map[fieldKey]time.Time)}
}

// ShouldApply records ts as applied for (entityID, field) and returns
// true when ts is not older than every previously applied update.
// A stale update returns false and leaves the recorded state alone.
func (r *Resolver) ShouldApply(entityID, field string, ts time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fieldKey{EntityID: entityID, Field: field}
	if last, ok := r.applied[key]; ok && ts.Before(last) {
		return false
	}
	r.applied[key] = ts
	return true
}

// ShouldForward applies the conflict rule to a subscriber-bound event.
// Only entity update events participate; everything else always
// forwards. The payload's entity_id keys the entry and the sub-type
// names the contested field, so an entity update that arrives after a
// newer one for the same entity and field is dropped. Events whose
// payload cannot be read are forwarded rather than lost.
func (r *Resolver) ShouldForward(ev *Event) bool {
	if ev.Type != EventEntitiesUpdated {
		return true
	}
	var body struct {
		EntityID string `json:"entity_id"`
	}
	if err := json.Unmarshal(ev.Payload, &body); err != nil || body.EntityID == "" {
		return true
	}
	field := ev.SubType
	if field == "" {
		field = "state"
	}
	return r.ShouldApply(body.EntityID, field, ev.Timestamp)
}

// Reset forgets all applied timestamps (e.g. after a full refetch).
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = make(map[fieldKey]time.Time)
}
