package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CombatEntrant is one participant entering combat with their rolled
// initiative.
type CombatEntrant struct {
	ID         string `json:"id"`
	Initiative int    `json:"initiative"`
}

// StartCombat builds the turn order by initiative descending (stable
// sort keeps input order on ties), switches the session to combat
// mode at round 1, turn 0.
func (svc *Service) StartCombat(ctx context.Context, sessionID string, entrants []CombatEntrant) (*model.CombatState, error) {
	if len(entrants) == 0 {
		return nil, apperr.Validation("participants", "combat needs at least one participant")
	}

	turns := make([]model.CombatParticipant, len(entrants))
	for i, e := range entrants {
		turns[i] = model.CombatParticipant{ParticipantID: e.ID, Initiative: e.Initiative}
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].Initiative > turns[j].Initiative
	})
	cs := &model.CombatState{Active: true, Round: 1, Turns: turns, CurrentTurn: 0}

	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		s.Mode = model.ModeCombat
		if err := s.SetCombat(cs); err != nil {
			return apperr.Database(err)
		}
		if err := tx.Save(s).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.bc.Publish(ctx, sessionID, broadcast.EventCombatStarted, cs)
	svc.logger.Info("combat started",
		zap.String("session_id", sessionID),
		zap.Int("participants", len(turns)))
	return cs, nil
}

// EndCombat destroys the combat sub-state and reverts the session to
// exploration mode.
func (svc *Service) EndCombat(ctx context.Context, sessionID string) error {
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		s.Mode = model.ModeExploration
		if err := s.SetCombat(nil); err != nil {
			return apperr.Database(err)
		}
		if err := tx.Save(s).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	svc.bc.Publish(ctx, sessionID, broadcast.EventCombatEnded, map[string]string{"session_id": sessionID})
	svc.logger.Info("combat ended", zap.String("session_id", sessionID))
	return nil
}

// AdvanceTurn marks the current participant as acted and moves to the
// next. Wrapping past the last participant starts a new round and
// clears every has-acted flag.
func (svc *Service) AdvanceTurn(ctx context.Context, sessionID string) (*model.CombatState, error) {
	var cs *model.CombatState
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := lockSession(tx, sessionID)
		if err != nil {
			return err
		}
		state, err := s.DecodeCombat()
		if err != nil {
			return apperr.Database(err)
		}
		if state == nil || !state.Active {
			return apperr.StateConflict(sessionID, "session is not in combat")
		}
		if len(state.Turns) == 0 {
			return apperr.StateConflict(sessionID, "combat has no participants")
		}

		state.Turns[state.CurrentTurn].HasActed = true
		state.CurrentTurn++
		if state.CurrentTurn >= len(state.Turns) {
			state.CurrentTurn = 0
			state.Round++
			for i := range state.Turns {
				state.Turns[i].HasActed = false
			}
		}

		if err := s.SetCombat(state); err != nil {
			return apperr.Database(err)
		}
		if err := tx.Save(s).Error; err != nil {
			return apperr.Database(err)
		}
		cs = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.bc.Publish(ctx, sessionID, broadcast.EventTurnAdvanced, cs)
	return cs, nil
}

// FormatRoll renders a dice roll as the system chat line mirrored into
// the chat ledger.
func FormatRoll(r *model.DiceRoll) string {
	parts := make([]string, len(r.Rolls))
	for i, v := range r.Rolls {
		parts[i] = fmt.Sprintf("%d", v)
	}
	line := fmt.Sprintf("%s rolled %s: [%s]", r.Roller, r.Expression, strings.Join(parts, ", "))
	if r.Modifier != 0 {
		line += fmt.Sprintf(" %+d", r.Modifier)
	}
	line += fmt.Sprintf(" = %d", r.Total)
	if r.Target != nil {
		if r.Success != nil && *r.Success {
			line += fmt.Sprintf(" vs DC %d (success)", *r.Target)
		} else {
			line += fmt.Sprintf(" vs DC %d (failure)", *r.Target)
		}
	}
	return line
}
