package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Entity types.
const (
	EntityObject          = "object"
	EntityNPC             = "npc"
	EntityLocationFeature = "location_feature"
	EntityHazard          = "hazard"
	EntityTreasure        = "treasure"
	EntityMystery         = "mystery"
)

// Entity discovery lifecycle. Status only moves forward
// (undiscovered → discovered → investigating → completed) except the
// explicit unavailable terminal override.
const (
	EntityUndiscovered  = "undiscovered"
	EntityDiscovered    = "discovered"
	EntityInvestigating = "investigating"
	EntityCompleted     = "completed"
	EntityUnavailable   = "unavailable"
)

// Danger levels shown to players.
const (
	DangerNone      = "none"
	DangerLow       = "low"
	DangerMedium    = "medium"
	DangerHigh      = "high"
	DangerDangerous = "dangerous"
)

// EntityAction is one interaction a player may attempt on an entity.
type EntityAction struct {
	Type       string `json:"type"` // investigate | interact | search | ...
	Name       string `json:"name"`
	Skill      string `json:"skill,omitempty"`      // empty = inferred from Type
	Difficulty string `json:"difficulty,omitempty"` // easy | normal | hard | expert
}

// LocationEntity is anything explorable at a location: an object, NPC,
// feature, hazard, treasure, or mystery. Rows are never deleted within
// a session; unavailable is the removal mechanism.
type LocationEntity struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	EntityKey         string         `gorm:"index:idx_entity_key;size:64;not null" json:"entity_key"`
	SessionID         string         `gorm:"index:idx_entity_location;size:36;not null" json:"session_id"`
	LocationID        string         `gorm:"index:idx_entity_location;size:64;not null" json:"location_id"`
	Name              string         `gorm:"size:128;not null" json:"name"`
	Type              string         `gorm:"size:24;not null" json:"type"`
	Status            string         `gorm:"size:16;default:undiscovered" json:"status"`
	DiscoveryMethod   string         `gorm:"size:32" json:"discovery_method"`
	DiscoveredBy      string         `gorm:"size:36" json:"discovered_by"`
	DiscoveredAt      *time.Time     `json:"discovered_at"`
	InteractionCount  int            `gorm:"default:0" json:"interaction_count"`
	LastInteractionAt *time.Time     `json:"last_interaction_at"`
	Actions           datatypes.JSON `json:"actions"`
	DangerLevel       string         `gorm:"size:16;default:none" json:"danger_level"`
	Description       string         `gorm:"type:text" json:"description"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidEntityStatus reports whether s is a recognized entity status.
func ValidEntityStatus(s string) bool {
	switch s {
	case EntityUndiscovered, EntityDiscovered, EntityInvestigating, EntityCompleted, EntityUnavailable:
		return true
	}
	return false
}

// Dangerous reports whether the entity counts toward the dangerous
// aggregate stat.
func (e *LocationEntity) Dangerous() bool {
	return e.DangerLevel == DangerHigh || e.DangerLevel == DangerDangerous
}

// DecodeActions returns the entity's action menu.
func (e *LocationEntity) DecodeActions() ([]EntityAction, error) {
	var out []EntityAction
	if len(e.Actions) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Actions, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetActions encodes the entity's action menu.
func (e *LocationEntity) SetActions(actions []EntityAction) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	e.Actions = datatypes.JSON(raw)
	return nil
}
