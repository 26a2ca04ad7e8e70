package rest

import (
	"net/http"
	"time"

	"github.com/fateforge/server/config"
	"github.com/fateforge/server/game/client"
	"github.com/fateforge/server/game/exploration"
	"github.com/fateforge/server/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AdminHandler handles operator endpoints guarded by the admin key.
type AdminHandler struct {
	db           *gorm.DB
	cm           *client.Manager
	explorations *exploration.Service
	game         config.GameConfig
	started      time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(db *gorm.DB, cm *client.Manager, explorations *exploration.Service, game config.GameConfig) *AdminHandler {
	return &AdminHandler{
		db:           db,
		cm:           cm,
		explorations: explorations,
		game:         game,
		started:      time.Now(),
	}
}

// AdminAuth rejects requests without the configured X-Admin-Key header.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" || c.GetHeader("X-Admin-Key") != adminKey {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Metrics handles GET /api/admin/metrics.
func (h *AdminHandler) Metrics(c *gin.Context) {
	var activeSessions, totalSessions, entities, executions int64
	h.db.Model(&model.Session{}).Where("status = ?", model.SessionActive).Count(&activeSessions)
	h.db.Model(&model.Session{}).Count(&totalSessions)
	h.db.Model(&model.LocationEntity{}).Count(&entities)
	h.db.Model(&model.ExplorationExecution{}).Count(&executions)

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":    int(time.Since(h.started).Seconds()),
		"connected_clients": h.cm.Count(),
		"active_sessions":   activeSessions,
		"total_sessions":    totalSessions,
		"entities":          entities,
		"executions":        executions,
	})
}

// StaleExecutions handles GET /api/admin/stale-executions. Lists
// executions waiting on player input past the configured age.
func (h *AdminHandler) StaleExecutions(c *gin.Context) {
	stale, err := h.explorations.StaleExecutions(c.Request.Context(), h.game.StaleExecutionAge)
	if err != nil {
		respondErr(c, err)
		return
	}
	if stale == nil {
		stale = []model.ExplorationExecution{}
	}
	c.JSON(http.StatusOK, gin.H{"stale": stale, "age": h.game.StaleExecutionAge.String()})
}
