package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Campaign groups the sessions of one ongoing game. Sessions are
// numbered sequentially within their campaign.
type Campaign struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:128;not null" json:"name"`
	GMAccountID int64     `gorm:"index:idx_campaign_gm;not null" json:"gm_account_id"`
	Setting     string    `gorm:"type:text" json:"setting"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Character is a player character within a campaign. Skills holds
// the per-skill modifier map used for skill-check resolution.
type Character struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	CampaignID string         `gorm:"index:idx_char_campaign;size:36;not null" json:"campaign_id"`
	AccountID  int64          `gorm:"index:idx_char_account;not null" json:"account_id"`
	Name       string         `gorm:"size:64;not null" json:"name"`
	Class      string         `gorm:"size:32" json:"class"`
	Level      int            `gorm:"default:1" json:"level"`
	Skills     datatypes.JSON `json:"skills"` // {"investigation": 3, "stealth": -1, ...}
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// SkillModifiers decodes the per-skill modifier map. A nil column
// decodes to an empty map.
func (c *Character) SkillModifiers() (map[string]int, error) {
	mods := make(map[string]int)
	if len(c.Skills) == 0 {
		return mods, nil
	}
	if err := json.Unmarshal(c.Skills, &mods); err != nil {
		return nil, err
	}
	return mods, nil
}

// SetSkillModifiers encodes the per-skill modifier map.
func (c *Character) SetSkillModifiers(mods map[string]int) error {
	raw, err := json.Marshal(mods)
	if err != nil {
		return err
	}
	c.Skills = datatypes.JSON(raw)
	return nil
}
