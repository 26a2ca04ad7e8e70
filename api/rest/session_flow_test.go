package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/config"
	"github.com/fateforge/server/game/dice"
	"github.com/fateforge/server/game/entity"
	"github.com/fateforge/server/game/exploration"
	gsession "github.com/fateforge/server/game/session"
	mw "github.com/fateforge/server/middleware"
	"github.com/fateforge/server/model"
	"github.com/fateforge/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	token  string
}

// newTestServer wires the full REST surface against an in-memory DB
// and an authenticated test account.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: time.Hour}
	game := config.GameConfig{MaxChatLength: 2000, StaleExecutionAge: 30 * time.Minute}

	bc := broadcast.New(ps, logger)
	entitySvc := entity.NewService(db, bc, logger)
	sessionSvc := gsession.NewService(db, dice.NewRoller(nil), bc, logger)
	explorationSvc := exploration.NewService(db, entitySvc, sessionSvc, nil, logger)

	campaignH := NewCampaignHandler(db)
	sessH := NewSessionHandler(sessionSvc, game)
	entityH := NewEntityHandler(entitySvc)
	exploH := NewExplorationHandler(explorationSvc)

	r := gin.New()
	api := r.Group("/api", mw.Auth(sec, c))
	api.POST("/campaigns", campaignH.Create)
	api.POST("/campaigns/:id/characters", campaignH.CreateCharacter)
	api.POST("/sessions", sessH.Create)
	api.GET("/sessions/:id", sessH.Get)
	api.PUT("/sessions/:id/status", sessH.UpdateStatus)
	api.POST("/sessions/:id/chat", sessH.AppendChat)
	api.POST("/sessions/:id/dice", sessH.AppendDice)
	api.POST("/sessions/:id/combat/start", sessH.StartCombat)
	api.POST("/sessions/:id/combat/advance", sessH.AdvanceTurn)
	api.POST("/sessions/:id/combat/end", sessH.EndCombat)
	api.GET("/sessions/:id/locations/:location/entities", entityH.List)
	api.POST("/sessions/:id/locations/:location/entities", entityH.Generate)
	api.PUT("/entities/:id/status", entityH.SetStatus)
	api.POST("/explorations", exploH.Start)
	api.POST("/explorations/:id/input", exploH.ProvideInput)
	api.GET("/explorations/:id", exploH.Get)

	token, err := mw.GenerateToken(1, sec.JWTSecret, sec.JWTTTLH)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "login:"+token, "1", time.Hour))

	return &testServer{router: r, db: db, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+ts.token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestRest_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewBufferString("{}"))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRest_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/sessions", gin.H{
		"campaign_id":  "camp-1",
		"gm_id":        "gm-1",
		"participants": []string{"char-1"},
		"initial_event_queue": []gin.H{
			{"type": "ambush", "description": "goblins at the bridge"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Session
	decode(t, w, &created)
	assert.Equal(t, 1, created.SessionNumber)
	assert.Equal(t, model.SessionPreparing, created.Status)
	queue, err := created.DecodeEventQueue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "ambush", queue[0].Type)

	w = ts.do(t, http.MethodPut, "/api/sessions/"+created.ID+"/status", gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code)
	var active model.Session
	decode(t, w, &active)
	assert.Equal(t, model.SessionActive, active.Status)
	assert.NotNil(t, active.ActualStart)

	w = ts.do(t, http.MethodPut, "/api/sessions/"+created.ID+"/status", gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRest_ChatAndDice(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/sessions", gin.H{"campaign_id": "camp-1", "gm_id": "gm-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var s model.Session
	decode(t, w, &s)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/chat", gin.H{
		"speaker": "Alice", "message": "hello table", "channel": "ic",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/dice", gin.H{
		"roller": "Alice", "expression": "1d20+2", "purpose": "perception check", "target": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/dice", gin.H{
		"roller": "Alice", "expression": "not dice",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+s.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Session
	decode(t, w, &got)
	msgs, err := got.DecodeChatLog()
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "chat line plus mirrored roll")
	rolls, err := got.DecodeDiceLog()
	require.NoError(t, err)
	assert.Len(t, rolls, 1)
}

func TestRest_CombatFlow(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/sessions", gin.H{"campaign_id": "camp-1", "gm_id": "gm-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var s model.Session
	decode(t, w, &s)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/combat/start", gin.H{
		"participants": []gin.H{
			{"id": "A", "initiative": 15},
			{"id": "B", "initiative": 22},
			{"id": "C", "initiative": 8},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cs model.CombatState
	decode(t, w, &cs)
	require.Len(t, cs.Turns, 3)
	assert.Equal(t, "B", cs.Turns[0].ParticipantID)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/combat/advance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cs)
	assert.Equal(t, 1, cs.CurrentTurn)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/combat/end", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/combat/advance", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "advancing outside combat conflicts")
}

func TestRest_EntitiesAndExploration(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/campaigns", gin.H{"name": "The Sunken Keep"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var camp model.Campaign
	decode(t, w, &camp)

	w = ts.do(t, http.MethodPost, "/api/campaigns/"+camp.ID+"/characters", gin.H{
		"name": "Alice", "class": "rogue",
		"skills": gin.H{"investigation": 3},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var char model.Character
	decode(t, w, &char)

	w = ts.do(t, http.MethodPost, "/api/sessions", gin.H{"campaign_id": camp.ID, "gm_id": "gm-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var s model.Session
	decode(t, w, &s)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/locations/crypt/entities", gin.H{
		"name": "Old Chest", "type": "object", "danger_level": "low",
		"actions": []gin.H{
			{"type": "investigate", "name": "Investigate", "skill": "investigation", "difficulty": "normal"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var chest model.LocationEntity
	decode(t, w, &chest)
	assert.Equal(t, model.EntityUndiscovered, chest.Status)

	// Player view hides the undiscovered chest; GM view shows it.
	w = ts.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/locations/crypt/entities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Entities []model.LocationEntity `json:"entities"`
		Stats    entity.Stats           `json:"stats"`
	}
	decode(t, w, &listing)
	assert.Empty(t, listing.Entities)
	assert.Equal(t, 1, listing.Stats.Total)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/locations/crypt/entities?include_hidden=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &listing)
	assert.Len(t, listing.Entities, 1)

	// Start the exploration exchange and answer the narrator.
	w = ts.do(t, http.MethodPost, "/api/explorations", gin.H{
		"session_id": s.ID, "character_id": char.ID,
		"entity_id": chest.ID, "action_type": "investigate",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var started exploration.StartResult
	decode(t, w, &started)
	assert.Equal(t, model.ExecWaitingInput, started.Execution.State)

	w = ts.do(t, http.MethodPost, "/api/explorations/"+started.Execution.ID+"/input", gin.H{
		"character_id": char.ID, "approach": "pry the lid with a crowbar",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var answered exploration.InputResult
	decode(t, w, &answered)
	assert.True(t, answered.JudgmentTriggered)
	assert.Equal(t, model.ExecCompleted, answered.Execution.State)
	assert.NotNil(t, answered.Execution.Success)

	// Double input conflicts.
	w = ts.do(t, http.MethodPost, "/api/explorations/"+started.Execution.ID+"/input", gin.H{
		"character_id": char.ID, "approach": "try again",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// GM override marks the chest unavailable.
	w = ts.do(t, http.MethodPut, "/api/entities/"+chest.ID+"/status", gin.H{
		"status": "unavailable", "reason": "looted and discarded",
	})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &chest)
	assert.Equal(t, model.EntityUnavailable, chest.Status)
}
