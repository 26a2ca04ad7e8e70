package rest

import (
	"net/http"

	"github.com/fateforge/server/game/exploration"
	"github.com/gin-gonic/gin"
)

// ExplorationHandler handles exploration action REST endpoints.
type ExplorationHandler struct {
	explorations *exploration.Service
}

// NewExplorationHandler creates a new ExplorationHandler.
func NewExplorationHandler(explorations *exploration.Service) *ExplorationHandler {
	return &ExplorationHandler{explorations: explorations}
}

type startExplorationRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	CharacterID string `json:"character_id" binding:"required"`
	EntityID    string `json:"entity_id" binding:"required"`
	ActionType  string `json:"action_type" binding:"required"`
	Description string `json:"description"`
}

// Start handles POST /api/explorations.
func (h *ExplorationHandler) Start(c *gin.Context) {
	var req startExplorationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.explorations.Start(c.Request.Context(),
		req.SessionID, req.CharacterID, req.EntityID, req.ActionType, req.Description)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type provideInputRequest struct {
	CharacterID string `json:"character_id" binding:"required"`
	Approach    string `json:"approach" binding:"required"`
}

// ProvideInput handles POST /api/explorations/:id/input.
func (h *ExplorationHandler) ProvideInput(c *gin.Context) {
	var req provideInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.explorations.ProvideInput(c.Request.Context(),
		c.Param("id"), req.CharacterID, req.Approach)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type resolveRequest struct {
	CharacterID  string `json:"character_id" binding:"required"`
	SkillType    string `json:"skill_type"`
	TargetNumber *int   `json:"target_number"`
}

// Resolve handles POST /api/explorations/:id/check. Also used to retry
// a check that failed mid-resolution and left the execution rolling.
func (h *ExplorationHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.explorations.Resolve(c.Request.Context(),
		c.Param("id"), req.CharacterID, req.SkillType, req.TargetNumber)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Get handles GET /api/explorations/:id.
func (h *ExplorationHandler) Get(c *gin.Context) {
	exec, err := h.explorations.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}
