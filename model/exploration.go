package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Exploration execution states. Transitions are strictly
// processing → waiting_input → rolling → resolving → completed; no
// skips, no re-entry once completed. Resolving is held only while one
// caller runs the skill check; a failed check drops back to rolling.
const (
	ExecProcessing   = "processing"
	ExecWaitingInput = "waiting_input"
	ExecRolling      = "rolling"
	ExecResolving    = "resolving"
	ExecCompleted    = "completed"
)

// ExplorationExecution tracks one attempt by a character to perform an
// action on an entity, through its own state machine. Immutable once
// completed.
type ExplorationExecution struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	SessionID        string         `gorm:"index:idx_exec_session;size:36;not null" json:"session_id"`
	CharacterID      string         `gorm:"size:36;not null" json:"character_id"`
	EntityID         string         `gorm:"index:idx_exec_entity;size:36;not null" json:"entity_id"`
	ActionType       string         `gorm:"size:32;not null" json:"action_type"`
	Description      string         `gorm:"type:text" json:"description"`
	Approach         string         `gorm:"type:text" json:"approach"` // empty until ProvideInput
	RequiresInput    bool           `gorm:"default:true" json:"requires_input"`
	SkillType        string         `gorm:"size:32" json:"skill_type"` // empty until resolution
	TargetNumber     *int           `json:"target_number"`
	State            string         `gorm:"size:16;default:processing" json:"state"`
	Roll             datatypes.JSON `json:"roll"` // *DiceRoll, null until rolled
	Success          *bool          `json:"success"`
	InitialNarration string         `gorm:"type:text" json:"initial_narration"`
	OutcomeNarration string         `gorm:"type:text" json:"outcome_narration"`
	StartedAt        time.Time      `gorm:"autoCreateTime" json:"started_at"`
	InputAt          *time.Time     `json:"input_at"`
	ResolvedAt       *time.Time     `json:"resolved_at"`
	MessageIDs       datatypes.JSON `json:"message_ids"` // ordered chat message ids produced
}

// DecodeRoll returns the resolved dice roll, or nil before resolution.
func (x *ExplorationExecution) DecodeRoll() (*DiceRoll, error) {
	if len(x.Roll) == 0 || string(x.Roll) == "null" {
		return nil, nil
	}
	var r DiceRoll
	if err := json.Unmarshal(x.Roll, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SetRoll encodes the resolved dice roll.
func (x *ExplorationExecution) SetRoll(r *DiceRoll) error {
	if r == nil {
		x.Roll = datatypes.JSON("null")
		return nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	x.Roll = datatypes.JSON(raw)
	return nil
}

// DecodeMessageIDs returns the chat message ids this execution
// produced, in production order.
func (x *ExplorationExecution) DecodeMessageIDs() ([]string, error) {
	var out []string
	if len(x.MessageIDs) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(x.MessageIDs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessageID records one more produced chat message id.
func (x *ExplorationExecution) AppendMessageID(id string) error {
	ids, err := x.DecodeMessageIDs()
	if err != nil {
		return err
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	x.MessageIDs = datatypes.JSON(raw)
	return nil
}
