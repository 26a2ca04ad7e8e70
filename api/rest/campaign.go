package rest

import (
	"errors"
	"net/http"

	"github.com/fateforge/server/apperr"
	mw "github.com/fateforge/server/middleware"
	"github.com/fateforge/server/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignHandler handles campaign and character REST endpoints.
type CampaignHandler struct {
	db *gorm.DB
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(db *gorm.DB) *CampaignHandler {
	return &CampaignHandler{db: db}
}

type createCampaignRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=128"`
	Setting string `json:"setting"`
}

// Create handles POST /api/campaigns. The caller becomes the GM.
func (h *CampaignHandler) Create(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	camp := model.Campaign{
		ID:          uuid.NewString(),
		Name:        req.Name,
		GMAccountID: mw.GetAccountID(c),
		Setting:     req.Setting,
	}
	if err := h.db.Create(&camp).Error; err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusCreated, camp)
}

// Get handles GET /api/campaigns/:id.
func (h *CampaignHandler) Get(c *gin.Context) {
	var camp model.Campaign
	err := h.db.First(&camp, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondErr(c, apperr.NotFound(c.Param("id"), "campaign not found"))
		return
	}
	if err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusOK, camp)
}

// List handles GET /api/campaigns. Returns campaigns the caller runs.
func (h *CampaignHandler) List(c *gin.Context) {
	var camps []model.Campaign
	if err := h.db.
		Where("gm_account_id = ?", mw.GetAccountID(c)).
		Order("created_at desc").
		Find(&camps).Error; err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": camps})
}

type createCharacterRequest struct {
	Name   string         `json:"name" binding:"required,min=1,max=64"`
	Class  string         `json:"class"`
	Level  int            `json:"level"`
	Skills map[string]int `json:"skills"`
}

// CreateCharacter handles POST /api/campaigns/:id/characters.
func (h *CampaignHandler) CreateCharacter(c *gin.Context) {
	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	campaignID := c.Param("id")

	var camp model.Campaign
	err := h.db.First(&camp, "id = ?", campaignID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondErr(c, apperr.NotFound(campaignID, "campaign not found"))
		return
	}
	if err != nil {
		respondErr(c, apperr.Database(err))
		return
	}

	level := req.Level
	if level <= 0 {
		level = 1
	}
	char := model.Character{
		ID:         uuid.NewString(),
		CampaignID: campaignID,
		AccountID:  mw.GetAccountID(c),
		Name:       req.Name,
		Class:      req.Class,
		Level:      level,
	}
	if err := char.SetSkillModifiers(req.Skills); err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	if err := h.db.Create(&char).Error; err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusCreated, char)
}

// GetCharacter handles GET /api/characters/:id.
func (h *CampaignHandler) GetCharacter(c *gin.Context) {
	var char model.Character
	err := h.db.First(&char, "id = ?", c.Param("id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondErr(c, apperr.NotFound(c.Param("id"), "character not found"))
		return
	}
	if err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusOK, char)
}

// ListCharacters handles GET /api/campaigns/:id/characters.
func (h *CampaignHandler) ListCharacters(c *gin.Context) {
	var chars []model.Character
	if err := h.db.
		Where("campaign_id = ?", c.Param("id")).
		Order("created_at asc").
		Find(&chars).Error; err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}
