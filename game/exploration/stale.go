package exploration

import (
	"context"
	"time"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/model"
	"go.uber.org/zap"
)

// StaleExecutions returns executions that have been waiting for input
// or stuck mid-check for longer than age. They are reported only,
// never timed out: an abandoned action stays abandoned until the
// player returns or a GM intervenes.
func (svc *Service) StaleExecutions(ctx context.Context, age time.Duration) ([]model.ExplorationExecution, error) {
	cutoff := time.Now().UTC().Add(-age)
	var stale []model.ExplorationExecution
	if err := svc.db.WithContext(ctx).
		Where("state IN ? AND started_at < ?",
			[]string{model.ExecWaitingInput, model.ExecRolling, model.ExecResolving}, cutoff).
		Order("started_at asc").
		Find(&stale).Error; err != nil {
		return nil, apperr.Database(err)
	}
	return stale, nil
}

// ReportStale logs every stale execution. Wired to a scheduler ticker.
func (svc *Service) ReportStale(ctx context.Context, age time.Duration) {
	stale, err := svc.StaleExecutions(ctx, age)
	if err != nil {
		svc.logger.Error("stale execution scan failed", zap.Error(err))
		return
	}
	for _, exec := range stale {
		svc.logger.Warn("stale exploration execution",
			zap.String("execution_id", exec.ID),
			zap.String("session_id", exec.SessionID),
			zap.String("character_id", exec.CharacterID),
			zap.String("state", exec.State),
			zap.Time("started_at", exec.StartedAt))
	}
}
