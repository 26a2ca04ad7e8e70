package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SessionStatus values. Any status may follow any other; active and
// completed/cancelled additionally stamp start/end times once.
const (
	SessionPreparing = "preparing"
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Session modes.
const (
	ModeExploration = "exploration"
	ModeCombat      = "combat"
)

// Chat channel types.
const (
	ChannelIC     = "ic"
	ChannelOOC    = "ooc"
	ChannelSystem = "system"
)

// ChatMessage is one immutable entry in a session's chat ledger.
// Ordering is append order.
type ChatMessage struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Speaker     string    `json:"speaker"`
	CharacterID string    `json:"character_id,omitempty"`
	Body        string    `json:"body"`
	Channel     string    `json:"channel"` // ic | ooc | system
}

// DiceRoll is one immutable entry in a session's dice ledger.
type DiceRoll struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Roller     string    `json:"roller"`
	Expression string    `json:"expression"`
	Rolls      []int     `json:"rolls"`
	Modifier   int       `json:"modifier"`
	Total      int       `json:"total"`
	Purpose    string    `json:"purpose,omitempty"`
	Target     *int      `json:"target,omitempty"`
	Success    *bool     `json:"success,omitempty"`
}

// SessionEvent is one planned beat in a session's event queue, laid
// out by the GM before or during play. The queue is advisory; nothing
// in the engine consumes it automatically.
type SessionEvent struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// CombatParticipant is one slot in the initiative order.
type CombatParticipant struct {
	ParticipantID string `json:"participant_id"`
	Initiative    int    `json:"initiative"`
	HasActed      bool   `json:"has_acted"`
}

// CombatState exists only while the session mode is combat. Turns are
// sorted by initiative descending, ties kept in insertion order.
type CombatState struct {
	Active      bool                `json:"active"`
	Round       int                 `json:"round"`
	Turns       []CombatParticipant `json:"turns"`
	CurrentTurn int                 `json:"current_turn"`
}

// Session is one played instance of a campaign. List-valued fields are
// stored as JSON columns; engine code only sees the decoded native
// forms through the helpers below.
type Session struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	CampaignID     string         `gorm:"size:36;not null;uniqueIndex:idx_campaign_number" json:"campaign_id"`
	SessionNumber  int            `gorm:"not null;uniqueIndex:idx_campaign_number" json:"session_number"`
	Status         string         `gorm:"size:16;default:preparing" json:"status"`
	Mode           string         `gorm:"size:16;default:exploration" json:"mode"`
	GMID           string         `gorm:"size:36;not null" json:"gm_id"`
	Participants   datatypes.JSON `json:"participants"` // []string of character ids
	ScheduledStart *time.Time     `json:"scheduled_start"`
	ActualStart    *time.Time     `json:"actual_start"`
	ActualEnd      *time.Time     `json:"actual_end"`
	Combat         datatypes.JSON `json:"combat"`      // *CombatState, null outside combat
	EventQueue     datatypes.JSON `json:"event_queue"` // []SessionEvent planned by the GM
	ChatLog        datatypes.JSON `json:"chat_log"`
	DiceLog        datatypes.JSON `json:"dice_log"`
	Notes          string         `gorm:"type:text" json:"notes"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// ValidStatus reports whether s is a recognized session status.
func ValidStatus(s string) bool {
	switch s {
	case SessionPreparing, SessionActive, SessionPaused, SessionCompleted, SessionCancelled:
		return true
	}
	return false
}

// DecodeParticipants returns the participant character ids.
func (s *Session) DecodeParticipants() ([]string, error) {
	var out []string
	if len(s.Participants) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.Participants, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetParticipants encodes the participant character ids.
func (s *Session) SetParticipants(ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	s.Participants = datatypes.JSON(raw)
	return nil
}

// DecodeEventQueue returns the planned events in GM order.
func (s *Session) DecodeEventQueue() ([]SessionEvent, error) {
	var out []SessionEvent
	if len(s.EventQueue) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.EventQueue, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetEventQueue encodes the planned events.
func (s *Session) SetEventQueue(events []SessionEvent) error {
	raw, err := json.Marshal(events)
	if err != nil {
		return err
	}
	s.EventQueue = datatypes.JSON(raw)
	return nil
}

// DecodeChatLog returns the chat ledger in append order.
func (s *Session) DecodeChatLog() ([]ChatMessage, error) {
	var out []ChatMessage
	if len(s.ChatLog) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.ChatLog, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetChatLog encodes the chat ledger.
func (s *Session) SetChatLog(msgs []ChatMessage) error {
	raw, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	s.ChatLog = datatypes.JSON(raw)
	return nil
}

// DecodeDiceLog returns the dice ledger in append order.
func (s *Session) DecodeDiceLog() ([]DiceRoll, error) {
	var out []DiceRoll
	if len(s.DiceLog) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(s.DiceLog, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDiceLog encodes the dice ledger.
func (s *Session) SetDiceLog(rolls []DiceRoll) error {
	raw, err := json.Marshal(rolls)
	if err != nil {
		return err
	}
	s.DiceLog = datatypes.JSON(raw)
	return nil
}

// DecodeCombat returns the combat sub-state, or nil outside combat.
func (s *Session) DecodeCombat() (*CombatState, error) {
	if len(s.Combat) == 0 || string(s.Combat) == "null" {
		return nil, nil
	}
	var cs CombatState
	if err := json.Unmarshal(s.Combat, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

// SetCombat encodes the combat sub-state. Passing nil clears it.
func (s *Session) SetCombat(cs *CombatState) error {
	if cs == nil {
		s.Combat = datatypes.JSON("null")
		return nil
	}
	raw, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	s.Combat = datatypes.JSON(raw)
	return nil
}
