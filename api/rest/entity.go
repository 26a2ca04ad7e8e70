package rest

import (
	"net/http"

	"github.com/fateforge/server/game/entity"
	"github.com/fateforge/server/model"
	"github.com/gin-gonic/gin"
)

// EntityHandler handles location-entity REST endpoints.
type EntityHandler struct {
	entities *entity.Service
}

// NewEntityHandler creates a new EntityHandler.
func NewEntityHandler(entities *entity.Service) *EntityHandler {
	return &EntityHandler{entities: entities}
}

// List handles GET /api/sessions/:id/locations/:location/entities.
// ?include_hidden=true also returns undiscovered entities (GM view).
func (h *EntityHandler) List(c *gin.Context) {
	includeHidden := c.Query("include_hidden") == "true"
	list, stats, err := h.entities.List(c.Request.Context(),
		c.Param("id"), c.Param("location"), includeHidden)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": list, "stats": stats})
}

type generateEntityRequest struct {
	Name        string               `json:"name" binding:"required"`
	Type        string               `json:"type" binding:"required"`
	Actions     []model.EntityAction `json:"actions"`
	DangerLevel string               `json:"danger_level"`
	Description string               `json:"description"`
	EntityKey   string               `json:"entity_key"`
}

// Generate handles POST /api/sessions/:id/locations/:location/entities.
func (h *EntityHandler) Generate(c *gin.Context) {
	var req generateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.entities.Generate(c.Request.Context(), c.Param("id"), c.Param("location"), entity.GenerateParams{
		Name:        req.Name,
		Type:        req.Type,
		Actions:     req.Actions,
		DangerLevel: req.DangerLevel,
		Description: req.Description,
		EntityKey:   req.EntityKey,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// Get handles GET /api/entities/:id.
func (h *EntityHandler) Get(c *gin.Context) {
	e, err := h.entities.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type setEntityStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Reason string `json:"reason"`
}

// SetStatus handles PUT /api/entities/:id/status, the GM override.
func (h *EntityHandler) SetStatus(c *gin.Context) {
	var req setEntityStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.entities.SetStatus(c.Request.Context(), c.Param("id"), req.Status, req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

type discoverEntityRequest struct {
	DiscoveredBy string `json:"discovered_by"`
	Method       string `json:"method"`
}

// Discover handles POST /api/entities/:id/discover.
func (h *EntityHandler) Discover(c *gin.Context) {
	var req discoverEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.entities.MarkDiscovered(c.Request.Context(), c.Param("id"), req.DiscoveredBy, req.Method)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
