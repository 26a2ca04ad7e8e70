package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/game/dice"
	"github.com/fateforge/server/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// createRetries bounds the session-number races we resolve before
// giving up. Two concurrent creates for one campaign collide on the
// (campaign_id, session_number) unique index; the loser re-reads max.
const createRetries = 3

// Service owns session lifecycle state: status, combat turn order,
// and the append-only chat and dice ledgers.
type Service struct {
	db     *gorm.DB
	roller *dice.Roller
	bc     broadcast.Broadcaster
	logger *zap.Logger
}

// NewService creates a new session Service.
func NewService(db *gorm.DB, roller *dice.Roller, bc broadcast.Broadcaster, logger *zap.Logger) *Service {
	if bc == nil {
		bc = broadcast.Nop{}
	}
	return &Service{db: db, roller: roller, bc: bc, logger: logger}
}

// CreateParams describes a session to create. InitialEvents seeds the
// GM's planned event queue; it may be empty.
type CreateParams struct {
	CampaignID     string
	GMID           string
	Participants   []string
	ScheduledStart *time.Time
	InitialEvents  []model.SessionEvent
	Notes          string
}

// Create starts a new session numbered max(existing)+1 within its
// campaign. The number is assigned once and never changes.
func (svc *Service) Create(ctx context.Context, p CreateParams) (*model.Session, error) {
	if p.CampaignID == "" {
		return nil, apperr.Validation("campaign_id", "campaign id is required")
	}

	var created *model.Session
	var lastErr error
	for attempt := 0; attempt < createRetries; attempt++ {
		s := &model.Session{
			ID:             uuid.NewString(),
			CampaignID:     p.CampaignID,
			Status:         model.SessionPreparing,
			Mode:           model.ModeExploration,
			GMID:           p.GMID,
			ScheduledStart: p.ScheduledStart,
			Notes:          p.Notes,
		}
		if err := s.SetCombat(nil); err != nil {
			return nil, apperr.Database(err)
		}
		if err := s.SetParticipants(p.Participants); err != nil {
			return nil, apperr.Database(err)
		}
		if err := s.SetEventQueue(p.InitialEvents); err != nil {
			return nil, apperr.Database(err)
		}
		err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var max int
			if err := tx.Model(&model.Session{}).
				Where("campaign_id = ?", p.CampaignID).
				Select("COALESCE(MAX(session_number), 0)").
				Scan(&max).Error; err != nil {
				return err
			}
			s.SessionNumber = max + 1
			return tx.Create(s).Error
		})
		if err == nil {
			created = s
			break
		}
		lastErr = err
		if !isUniqueViolation(err) {
			return nil, apperr.Database(err)
		}
		// Lost the numbering race; re-read max and try again.
	}
	if created == nil {
		return nil, apperr.Database(lastErr)
	}

	svc.bc.Publish(ctx, created.ID, broadcast.EventSessionUpdated, created)
	svc.logger.Info("session created",
		zap.String("session_id", created.ID),
		zap.String("campaign_id", created.CampaignID),
		zap.Int("session_number", created.SessionNumber))
	return created, nil
}

// Get loads one session by id.
func (svc *Service) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := svc.db.WithContext(ctx).First(&s, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(sessionID, "session not found")
		}
		return nil, apperr.Database(err)
	}
	return &s, nil
}

// UpdateStatus moves a session to newStatus. Every transition is
// legal; entering active stamps ActualStart once, and entering
// completed or cancelled stamps ActualEnd once. Repeating an
// identical transition is idempotent.
func (svc *Service) UpdateStatus(ctx context.Context, sessionID, newStatus string) (*model.Session, error) {
	if !model.ValidStatus(newStatus) {
		return nil, apperr.Validation("status", "unknown session status: "+newStatus)
	}

	var s model.Session
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&s, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(sessionID, "session not found")
			}
			return apperr.Database(err)
		}
		now := time.Now().UTC()
		s.Status = newStatus
		if newStatus == model.SessionActive && s.ActualStart == nil {
			s.ActualStart = &now
		}
		if (newStatus == model.SessionCompleted || newStatus == model.SessionCancelled) && s.ActualEnd == nil {
			s.ActualEnd = &now
		}
		if err := tx.Save(&s).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.bc.Publish(ctx, s.ID, broadcast.EventSessionUpdated, &s)
	svc.logger.Info("session status updated",
		zap.String("session_id", s.ID),
		zap.String("status", newStatus))
	return &s, nil
}

// AppendChatMessage appends one immutable message to the session's
// chat ledger and publishes the delta.
func (svc *Service) AppendChatMessage(ctx context.Context, sessionID, speaker, characterID, body, channel string) (*model.ChatMessage, error) {
	if speaker == "" {
		return nil, apperr.Validation("speaker", "speaker is required")
	}
	if body == "" {
		return nil, apperr.Validation("message", "message body is required")
	}
	if channel == "" {
		channel = model.ChannelIC
	}

	msg := model.ChatMessage{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Speaker:     speaker,
		CharacterID: characterID,
		Body:        body,
		Channel:     channel,
	}
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return appendChatTx(tx, sessionID, msg)
	})
	if err != nil {
		return nil, err
	}

	svc.bc.Publish(ctx, sessionID, broadcast.EventChatMessage, msg)
	return &msg, nil
}

// AppendDiceRoll evaluates expression through the dice engine, appends
// the roll to the dice ledger, mirrors it into the chat ledger as a
// system line, and publishes both deltas. Returns the roll and the
// mirrored chat message.
func (svc *Service) AppendDiceRoll(ctx context.Context, sessionID, roller, expression, purpose string, target *int) (*model.DiceRoll, *model.ChatMessage, error) {
	if roller == "" {
		return nil, nil, apperr.Validation("roller", "roller is required")
	}
	res, err := svc.roller.Evaluate(expression, target)
	if err != nil {
		return nil, nil, err
	}

	roll := model.DiceRoll{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		Roller:     roller,
		Expression: expression,
		Rolls:      res.Rolls,
		Modifier:   res.Expression.Modifier,
		Total:      res.Total,
		Purpose:    purpose,
		Target:     res.Target,
		Success:    res.Success,
	}
	mirror := model.ChatMessage{
		ID:        uuid.NewString(),
		Timestamp: roll.Timestamp,
		Speaker:   roller,
		Body:      FormatRoll(&roll),
		Channel:   model.ChannelSystem,
	}

	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		rolls, err := s.DecodeDiceLog()
		if err != nil {
			return apperr.Database(err)
		}
		rolls = append(rolls, roll)
		if err := s.SetDiceLog(rolls); err != nil {
			return apperr.Database(err)
		}
		msgs, err := s.DecodeChatLog()
		if err != nil {
			return apperr.Database(err)
		}
		msgs = append(msgs, mirror)
		if err := s.SetChatLog(msgs); err != nil {
			return apperr.Database(err)
		}
		if err := tx.Save(s).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	svc.bc.Publish(ctx, sessionID, broadcast.EventDiceRolled, roll)
	svc.bc.Publish(ctx, sessionID, broadcast.EventChatMessage, mirror)
	return &roll, &mirror, nil
}

// Broadcast publishes an event on a session's channel on behalf of a
// composing engine.
func (svc *Service) Broadcast(ctx context.Context, sessionID, eventType string, payload interface{}) {
	svc.bc.Publish(ctx, sessionID, eventType, payload)
}

// lockSession loads a session row inside tx for read-modify-write.
func lockSession(tx *gorm.DB, sessionID string) (*model.Session, error) {
	var s model.Session
	if err := tx.First(&s, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(sessionID, "session not found")
		}
		return nil, apperr.Database(err)
	}
	return &s, nil
}

// appendChatTx appends one message to the chat ledger inside tx.
func appendChatTx(tx *gorm.DB, sessionID string, msg model.ChatMessage) error {
	s, err := lockSession(tx, sessionID)
	if err != nil {
		return err
	}
	msgs, err := s.DecodeChatLog()
	if err != nil {
		return apperr.Database(err)
	}
	msgs = append(msgs, msg)
	if err := s.SetChatLog(msgs); err != nil {
		return apperr.Database(err)
	}
	if err := tx.Save(s).Error; err != nil {
		return apperr.Database(err)
	}
	return nil
}

// isUniqueViolation detects duplicate-key errors from common database
// drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
