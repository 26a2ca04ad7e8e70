package entity

import (
	"context"
	"errors"
	"time"

	"github.com/fateforge/server/apperr"
	"github.com/fateforge/server/broadcast"
	"github.com/fateforge/server/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stats aggregates a location's entity list for the client sidebar.
type Stats struct {
	Total        int `json:"total"`
	Discovered   int `json:"discovered"`
	Interactable int `json:"interactable"` // entities with at least one action
	Dangerous    int `json:"dangerous"`    // danger level high or dangerous
}

// Service is the source of truth for what entities exist at a
// location and their discovery/interaction status. Every mutation is
// published as an entity-state delta.
type Service struct {
	db     *gorm.DB
	bc     broadcast.Broadcaster
	logger *zap.Logger
}

// NewService creates a new entity Service.
func NewService(db *gorm.DB, bc broadcast.Broadcaster, logger *zap.Logger) *Service {
	if bc == nil {
		bc = broadcast.Nop{}
	}
	return &Service{db: db, bc: bc, logger: logger}
}

// interactivityRequired lists entity types that must expose at least
// one action at generation time.
var interactivityRequired = map[string]bool{
	model.EntityObject:   true,
	model.EntityNPC:      true,
	model.EntityTreasure: true,
	model.EntityMystery:  true,
}

// List returns a location's entities and aggregate stats. With
// includeHidden false, undiscovered entities are filtered out.
func (svc *Service) List(ctx context.Context, sessionID, locationID string, includeHidden bool) ([]model.LocationEntity, Stats, error) {
	var all []model.LocationEntity
	if err := svc.db.WithContext(ctx).
		Where("session_id = ? AND location_id = ?", sessionID, locationID).
		Order("created_at asc").
		Find(&all).Error; err != nil {
		return nil, Stats{}, apperr.Database(err)
	}

	var stats Stats
	visible := make([]model.LocationEntity, 0, len(all))
	for _, e := range all {
		stats.Total++
		if e.Status != model.EntityUndiscovered {
			stats.Discovered++
		}
		actions, err := e.DecodeActions()
		if err != nil {
			return nil, Stats{}, apperr.Database(err)
		}
		if len(actions) > 0 {
			stats.Interactable++
		}
		if e.Dangerous() {
			stats.Dangerous++
		}
		if includeHidden || e.Status != model.EntityUndiscovered {
			visible = append(visible, e)
		}
	}
	return visible, stats, nil
}

// GenerateParams describes an entity to create.
type GenerateParams struct {
	Name        string
	Type        string
	Actions     []model.EntityAction
	DangerLevel string
	Description string
	EntityKey   string // optional stable identifier; defaults to a new uuid
}

// Generate creates an entity in undiscovered status with a zero
// interaction count.
func (svc *Service) Generate(ctx context.Context, sessionID, locationID string, p GenerateParams) (*model.LocationEntity, error) {
	if p.Name == "" {
		return nil, apperr.Validation("name", "entity name is required")
	}
	if interactivityRequired[p.Type] && len(p.Actions) == 0 {
		return nil, apperr.Validation("actions", "entity type "+p.Type+" requires at least one action")
	}
	key := p.EntityKey
	if key == "" {
		key = uuid.NewString()
	}
	danger := p.DangerLevel
	if danger == "" {
		danger = model.DangerNone
	}

	e := &model.LocationEntity{
		ID:          uuid.NewString(),
		EntityKey:   key,
		SessionID:   sessionID,
		LocationID:  locationID,
		Name:        p.Name,
		Type:        p.Type,
		Status:      model.EntityUndiscovered,
		DangerLevel: danger,
		Description: p.Description,
	}
	if err := e.SetActions(p.Actions); err != nil {
		return nil, apperr.Database(err)
	}
	if err := svc.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, apperr.Database(err)
	}

	svc.bc.PublishSub(ctx, sessionID, broadcast.EventEntitiesUpdated, broadcast.SubTypeEntitiesRefreshed, map[string]interface{}{
		"location_id": locationID,
		"entity_id":   e.ID,
	})
	svc.logger.Info("entity generated",
		zap.String("session_id", sessionID),
		zap.String("entity_id", e.ID),
		zap.String("type", e.Type))
	return e, nil
}

// Get loads one entity by id.
func (svc *Service) Get(ctx context.Context, entityID string) (*model.LocationEntity, error) {
	var e model.LocationEntity
	if err := svc.db.WithContext(ctx).First(&e, "id = ?", entityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(entityID, "entity not found")
		}
		return nil, apperr.Database(err)
	}
	return &e, nil
}

// MarkDiscovered transitions an entity out of undiscovered, recording
// the discoverer and timestamp. Idempotent: already-discovered
// entities are returned unchanged. This is the only legal exit from
// undiscovered other than the unavailable override.
func (svc *Service) MarkDiscovered(ctx context.Context, entityID, discovererID, method string) (*model.LocationEntity, error) {
	var e model.LocationEntity
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, "id = ?", entityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entityID, "entity not found")
			}
			return apperr.Database(err)
		}
		if e.Status != model.EntityUndiscovered {
			return nil // already discovered: no-op
		}
		now := time.Now().UTC()
		e.Status = model.EntityDiscovered
		e.DiscoveredBy = discovererID
		e.DiscoveredAt = &now
		if method != "" {
			e.DiscoveryMethod = method
		}
		if err := tx.Save(&e).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.Status == model.EntityDiscovered {
		svc.publishStatus(ctx, &e)
	}
	return &e, nil
}

// RecordInteraction bumps the interaction counter and stamps the
// last-interaction time. The first interaction promotes a discovered
// entity to investigating; later ones only bump the counter.
func (svc *Service) RecordInteraction(ctx context.Context, entityID string) (*model.LocationEntity, error) {
	var e model.LocationEntity
	var promoted bool
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, "id = ?", entityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entityID, "entity not found")
			}
			return apperr.Database(err)
		}
		now := time.Now().UTC()
		e.InteractionCount++
		e.LastInteractionAt = &now
		if e.Status == model.EntityDiscovered {
			e.Status = model.EntityInvestigating
			promoted = true
		}
		if err := tx.Save(&e).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if promoted {
		svc.publishStatus(ctx, &e)
	} else {
		svc.bc.PublishSub(ctx, e.SessionID, broadcast.EventEntitiesUpdated, broadcast.SubTypeEntitiesRefreshed, map[string]interface{}{
			"location_id":       e.LocationID,
			"entity_id":         e.ID,
			"interaction_count": e.InteractionCount,
		})
	}
	return &e, nil
}

// SetStatus is the explicit override used to force completed or
// unavailable. Transitions that skip discovered from undiscovered are
// rejected unless the new status is unavailable.
func (svc *Service) SetStatus(ctx context.Context, entityID, newStatus, reason string) (*model.LocationEntity, error) {
	if !model.ValidEntityStatus(newStatus) {
		return nil, apperr.Validation("status", "unknown entity status: "+newStatus)
	}
	var e model.LocationEntity
	err := svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&e, "id = ?", entityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound(entityID, "entity not found")
			}
			return apperr.Database(err)
		}
		if e.Status == model.EntityUndiscovered &&
			newStatus != model.EntityDiscovered &&
			newStatus != model.EntityUnavailable {
			return apperr.StateConflict(entityID, "undiscovered entity cannot skip to "+newStatus)
		}
		e.Status = newStatus
		if err := tx.Save(&e).Error; err != nil {
			return apperr.Database(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.logger.Info("entity status override",
		zap.String("entity_id", e.ID),
		zap.String("status", newStatus),
		zap.String("reason", reason))
	svc.publishStatus(ctx, &e)
	return &e, nil
}

func (svc *Service) publishStatus(ctx context.Context, e *model.LocationEntity) {
	svc.bc.PublishSub(ctx, e.SessionID, broadcast.EventEntitiesUpdated, broadcast.SubTypeEntityStatusChanged, map[string]interface{}{
		"location_id": e.LocationID,
		"entity_id":   e.ID,
		"status":      e.Status,
	})
}
