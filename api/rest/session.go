package rest

import (
	"net/http"
	"time"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/config"
	"github.com/fateforge/server/game/session"
	"github.com/fateforge/server/model"
	"github.com/gin-gonic/gin"
)

// SessionHandler handles session lifecycle, ledger, and combat REST
// endpoints.
type SessionHandler struct {
	sessions *session.Service
	game     config.GameConfig
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Service, game config.GameConfig) *SessionHandler {
	return &SessionHandler{sessions: sessions, game: game}
}

type createSessionRequest struct {
	CampaignID     string               `json:"campaign_id" binding:"required"`
	GMID           string               `json:"gm_id"`
	Participants   []string             `json:"participants"`
	ScheduledStart *time.Time           `json:"scheduled_start"`
	InitialEvents  []model.SessionEvent `json:"initial_event_queue"`
	Notes          string               `json:"notes"`
}

// Create handles POST /api/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), session.CreateParams{
		CampaignID:     req.CampaignID,
		GMID:           req.GMID,
		Participants:   req.Participants,
		ScheduledStart: req.ScheduledStart,
		InitialEvents:  req.InitialEvents,
		Notes:          req.Notes,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// Get handles GET /api/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/sessions/:id/status.
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.sessions.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

type chatRequest struct {
	Speaker     string `json:"speaker" binding:"required"`
	CharacterID string `json:"character_id"`
	Body        string `json:"message" binding:"required"`
	Channel     string `json:"channel"`
}

// AppendChat handles POST /api/sessions/:id/chat.
func (h *SessionHandler) AppendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.game.MaxChatLength > 0 && len(req.Body) > h.game.MaxChatLength {
		respondErr(c, apperr.Validation("message", "message too long"))
		return
	}
	msg, err := h.sessions.AppendChatMessage(c.Request.Context(),
		c.Param("id"), req.Speaker, req.CharacterID, req.Body, req.Channel)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

type diceRequest struct {
	Roller     string `json:"roller" binding:"required"`
	Expression string `json:"expression" binding:"required"`
	Purpose    string `json:"purpose"`
	Target     *int   `json:"target"`
}

// AppendDice handles POST /api/sessions/:id/dice.
func (h *SessionHandler) AppendDice(c *gin.Context) {
	var req diceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roll, mirror, err := h.sessions.AppendDiceRoll(c.Request.Context(),
		c.Param("id"), req.Roller, req.Expression, req.Purpose, req.Target)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"roll": roll, "chat_message": mirror})
}

// ChatLog handles GET /api/sessions/:id/chat.
func (h *SessionHandler) ChatLog(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	msgs, err := s.DecodeChatLog()
	if err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// DiceLog handles GET /api/sessions/:id/dice.
func (h *SessionHandler) DiceLog(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	rolls, err := s.DecodeDiceLog()
	if err != nil {
		respondErr(c, apperr.Database(err))
		return
	}
	if rolls == nil {
		rolls = []model.DiceRoll{}
	}
	c.JSON(http.StatusOK, gin.H{"rolls": rolls})
}

type startCombatRequest struct {
	Participants []session.CombatEntrant `json:"participants" binding:"required"`
}

// StartCombat handles POST /api/sessions/:id/combat/start.
func (h *SessionHandler) StartCombat(c *gin.Context) {
	var req startCombatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cs, err := h.sessions.StartCombat(c.Request.Context(), c.Param("id"), req.Participants)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// EndCombat handles POST /api/sessions/:id/combat/end.
func (h *SessionHandler) EndCombat(c *gin.Context) {
	if err := h.sessions.EndCombat(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "combat ended"})
}

// AdvanceTurn handles POST /api/sessions/:id/combat/advance.
func (h *SessionHandler) AdvanceTurn(c *gin.Context) {
	cs, err := h.sessions.AdvanceTurn(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}
