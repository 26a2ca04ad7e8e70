package exploration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/game/dice"
	"github.com/fateforge/server/game/entity"
	"github.com/fateforge/server/game/session"
	"github.com/fateforge/server/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// narratorSpeaker is the speaker name used for narration chat lines.
const narratorSpeaker = "Narrator"

// Service drives the per-entity interaction state machine
// (processing → waiting_input → rolling → completed), consuming the
// dice engine and mutating the entity registry.
type Service struct {
	db       *gorm.DB
	entities *entity.Service
	sessions *session.Service
	narrator Narrator
	logger   *zap.Logger
}

// NewService creates a new exploration Service. A nil narrator falls
// back to the template implementation.
func NewService(db *gorm.DB, entities *entity.Service, sessions *session.Service, narrator Narrator, logger *zap.Logger) *Service {
	if narrator == nil {
		narrator = TemplateNarrator{}
	}
	return &Service{
		db:       db,
		entities: entities,
		sessions: sessions,
		narrator: narrator,
		logger:   logger,
	}
}

// StartResult is returned by Start: the execution plus the initial
// narration chat message.
type StartResult struct {
	Execution *model.ExplorationExecution `json:"execution"`
	Narration *model.ChatMessage          `json:"initial_narration_message"`
}

// Start begins an exploration action: validates the action against
// the entity's menu, creates the execution, narrates the scene into
// the session chat, moves to waiting_input, and marks the entity
// discovered.
func (svc *Service) Start(ctx context.Context, sessionID, characterID, entityID, actionType, customDescription string) (*StartResult, error) {
	ent, err := svc.entities.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	actions, err := ent.DecodeActions()
	if err != nil {
		return nil, apperr.Database(err)
	}
	var chosen *model.EntityAction
	for i := range actions {
		if actions[i].Type == actionType {
			chosen = &actions[i]
			break
		}
	}
	if chosen == nil {
		return nil, apperr.Validation("action_type", "action not available")
	}

	char, err := svc.getCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}

	exec := &model.ExplorationExecution{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		CharacterID:   characterID,
		EntityID:      entityID,
		ActionType:    actionType,
		Description:   customDescription,
		RequiresInput: true,
		State:         model.ExecProcessing,
	}
	if err := exec.SetRoll(nil); err != nil {
		return nil, apperr.Database(err)
	}
	if err := svc.db.WithContext(ctx).Create(exec).Error; err != nil {
		return nil, apperr.Database(err)
	}

	narration, err := svc.narrator.DescribeInitialApproach(ctx, NarrationContext{
		CharacterName: char.Name,
		EntityName:    ent.Name,
		EntityType:    ent.Type,
		DangerLevel:   ent.DangerLevel,
		ActionType:    actionType,
		Description:   customDescription,
	})
	if err != nil {
		return nil, fmt.Errorf("initial narration: %w", err)
	}

	msg, err := svc.sessions.AppendChatMessage(ctx, sessionID, narratorSpeaker, "", narration, model.ChannelSystem)
	if err != nil {
		return nil, err
	}

	exec.InitialNarration = narration
	exec.State = model.ExecWaitingInput
	if err := exec.AppendMessageID(msg.ID); err != nil {
		return nil, apperr.Database(err)
	}
	if err := svc.db.WithContext(ctx).Save(exec).Error; err != nil {
		return nil, apperr.Database(err)
	}

	// Targeting an entity reveals it. Idempotent for already-known ones.
	if _, err := svc.entities.MarkDiscovered(ctx, entityID, characterID, "exploration"); err != nil {
		return nil, err
	}

	svc.publish(ctx, broadcast.EventExplorationStarted, exec)
	svc.logger.Info("exploration started",
		zap.String("execution_id", exec.ID),
		zap.String("session_id", sessionID),
		zap.String("entity_id", entityID),
		zap.String("action", actionType))
	return &StartResult{Execution: exec, Narration: msg}, nil
}

// InputResult is returned by ProvideInput.
type InputResult struct {
	Execution         *model.ExplorationExecution `json:"execution"`
	JudgmentTriggered bool                        `json:"judgment_triggered"`
}

// ProvideInput stores the player's approach text and immediately
// triggers skill-check resolution, so an execution never sits
// un-resolved between the two steps. Only the owning character may
// provide input, and only while the execution is waiting for it.
func (svc *Service) ProvideInput(ctx context.Context, executionID, characterID, approach string) (*InputResult, error) {
	exec, err := svc.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.CharacterID != characterID {
		return nil, apperr.Unauthorized(characterID, "execution belongs to another character")
	}
	if exec.State != model.ExecWaitingInput {
		return nil, apperr.StateConflict(executionID, "not accepting input")
	}

	now := time.Now().UTC()
	exec.Approach = approach
	exec.InputAt = &now
	exec.State = model.ExecRolling
	if err := svc.db.WithContext(ctx).Save(exec).Error; err != nil {
		return nil, apperr.Database(err)
	}
	svc.publish(ctx, broadcast.EventExplorationUpdated, exec)

	resolved, err := svc.Resolve(ctx, executionID, characterID, "", nil)
	if err != nil {
		// The execution stays in rolling; the caller may retry Resolve.
		return &InputResult{Execution: exec, JudgmentTriggered: true}, err
	}
	return &InputResult{Execution: resolved.Execution, JudgmentTriggered: true}, nil
}

// ResolveResult is returned by Resolve.
type ResolveResult struct {
	Execution     *model.ExplorationExecution `json:"execution"`
	Roll          *model.DiceRoll             `json:"dice_roll"`
	RollMessage   *model.ChatMessage          `json:"result_message"`
	OutcomeOutput *model.ChatMessage          `json:"narration_message"`
}

// Resolve runs the skill check for an execution in the rolling state:
// a 1d20 plus the character's skill modifier against the target
// number (defaulting through the difficulty table). It appends the
// roll breakdown and the outcome narration to the session chat,
// records the interaction on the entity, and completes the execution.
// The execution is claimed (rolling → resolving) before any side
// effect, so a concurrent retry of the same execution gets a
// StateConflict instead of a second set of ledger entries. On an
// internal failure the claim is released back to rolling so the
// caller can retry; it is never rolled back to waiting_input.
func (svc *Service) Resolve(ctx context.Context, executionID, characterID, skillType string, targetNumber *int) (*ResolveResult, error) {
	exec, err := svc.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.CharacterID != characterID {
		return nil, apperr.Unauthorized(characterID, "execution belongs to another character")
	}
	if exec.State != model.ExecRolling {
		return nil, apperr.StateConflict(executionID, "execution is not ready to resolve")
	}

	if err := svc.claimResolution(ctx, executionID); err != nil {
		return nil, err
	}
	completed := false
	defer func() {
		if !completed {
			svc.releaseResolution(ctx, executionID)
		}
	}()
	exec.State = model.ExecResolving

	char, err := svc.getCharacter(ctx, characterID)
	if err != nil {
		return nil, err
	}
	ent, err := svc.entities.Get(ctx, exec.EntityID)
	if err != nil {
		return nil, err
	}

	skill, target := svc.checkParameters(exec, ent, skillType, targetNumber)
	mods, err := char.SkillModifiers()
	if err != nil {
		return nil, apperr.Database(err)
	}
	expr := "1d20"
	if mod := mods[skill]; mod != 0 {
		expr = fmt.Sprintf("1d20%+d", mod)
	}

	roll, rollMsg, err := svc.sessions.AppendDiceRoll(ctx, exec.SessionID, char.Name, expr,
		skill+" check", &target)
	if err != nil {
		return nil, err
	}
	success := roll.Success != nil && *roll.Success

	narration, err := svc.narrator.DescribeOutcome(ctx, NarrationContext{
		CharacterName: char.Name,
		EntityName:    ent.Name,
		EntityType:    ent.Type,
		DangerLevel:   ent.DangerLevel,
		ActionType:    exec.ActionType,
		Approach:      exec.Approach,
		SkillType:     skill,
		Success:       success,
		Total:         roll.Total,
		Target:        target,
	})
	if err != nil {
		return nil, fmt.Errorf("outcome narration: %w", err)
	}
	outcomeMsg, err := svc.sessions.AppendChatMessage(ctx, exec.SessionID, narratorSpeaker, "", narration, model.ChannelSystem)
	if err != nil {
		return nil, err
	}

	if _, err := svc.entities.RecordInteraction(ctx, exec.EntityID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	exec.SkillType = skill
	exec.TargetNumber = &target
	exec.Success = &success
	exec.OutcomeNarration = narration
	exec.ResolvedAt = &now
	exec.State = model.ExecCompleted
	if err := exec.SetRoll(roll); err != nil {
		return nil, apperr.Database(err)
	}
	if err := exec.AppendMessageID(rollMsg.ID); err != nil {
		return nil, apperr.Database(err)
	}
	if err := exec.AppendMessageID(outcomeMsg.ID); err != nil {
		return nil, apperr.Database(err)
	}
	if err := svc.db.WithContext(ctx).Save(exec).Error; err != nil {
		return nil, apperr.Database(err)
	}
	completed = true

	svc.publish(ctx, broadcast.EventExplorationUpdated, exec)
	svc.logger.Info("exploration resolved",
		zap.String("execution_id", exec.ID),
		zap.String("skill", skill),
		zap.Int("total", roll.Total),
		zap.Int("target", target),
		zap.Bool("success", success))
	return &ResolveResult{Execution: exec, Roll: roll, RollMessage: rollMsg, OutcomeOutput: outcomeMsg}, nil
}

// GetExecution loads one execution by id.
func (svc *Service) GetExecution(ctx context.Context, executionID string) (*model.ExplorationExecution, error) {
	var exec model.ExplorationExecution
	if err := svc.db.WithContext(ctx).First(&exec, "id = ?", executionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(executionID, "execution not found")
		}
		return nil, apperr.Database(err)
	}
	return &exec, nil
}

// claimResolution moves an execution from rolling to resolving with a
// conditional update, so exactly one caller wins when retries race.
func (svc *Service) claimResolution(ctx context.Context, executionID string) error {
	res := svc.db.WithContext(ctx).Model(&model.ExplorationExecution{}).
		Where("id = ? AND state = ?", executionID, model.ExecRolling).
		Update("state", model.ExecResolving)
	if res.Error != nil {
		return apperr.Database(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict(executionID, "execution is already being resolved")
	}
	return nil
}

// releaseResolution drops a claimed execution back to rolling after a
// failed skill check so it can be retried. Best effort; the stale
// report picks up anything left in resolving.
func (svc *Service) releaseResolution(ctx context.Context, executionID string) {
	res := svc.db.WithContext(ctx).Model(&model.ExplorationExecution{}).
		Where("id = ? AND state = ?", executionID, model.ExecResolving).
		Update("state", model.ExecRolling)
	if res.Error != nil {
		svc.logger.Error("release resolution claim failed",
			zap.String("execution_id", executionID),
			zap.Error(res.Error))
	}
}

// checkParameters picks the skill and target number for a check:
// explicit arguments win, then the entity action's declared skill and
// difficulty, then inference from the action verb.
func (svc *Service) checkParameters(exec *model.ExplorationExecution, ent *model.LocationEntity, skillType string, targetNumber *int) (string, int) {
	var action *model.EntityAction
	if actions, err := ent.DecodeActions(); err == nil {
		for i := range actions {
			if actions[i].Type == exec.ActionType {
				action = &actions[i]
				break
			}
		}
	}

	skill := skillType
	if skill == "" && action != nil && action.Skill != "" {
		skill = action.Skill
	}
	if skill == "" {
		skill = dice.InferSkill(exec.ActionType)
	}

	if targetNumber != nil {
		return skill, *targetNumber
	}
	difficulty := ""
	if action != nil {
		difficulty = action.Difficulty
	}
	return skill, dice.TargetForDifficulty(difficulty)
}

func (svc *Service) getCharacter(ctx context.Context, characterID string) (*model.Character, error) {
	var char model.Character
	if err := svc.db.WithContext(ctx).First(&char, "id = ?", characterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(characterID, "character not found")
		}
		return nil, apperr.Database(err)
	}
	return &char, nil
}

func (svc *Service) publish(ctx context.Context, eventType string, exec *model.ExplorationExecution) {
	// Broadcasting goes through the session service's broadcaster so
	// exploration has no direct pub/sub dependency.
	svc.sessions.Broadcast(ctx, exec.SessionID, eventType, exec)
}
