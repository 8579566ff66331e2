package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/thebridge/bridge-checkout/internal/models"
	"github.com/thebridge/bridge-checkout/internal/poller"
	"github.com/thebridge/bridge-checkout/internal/session"
)

// OrderLog records orders placed through the gateway and how tracking
// them ended.
type OrderLog interface {
	RecordPlacement(ctx context.Context, order *models.TrackedOrder) error
	RecordOutcome(ctx context.Context, memberID, pubTrackID, outcome string, attempts int, message string, resolvedAt time.Time) error
	ListForMember(ctx context.Context, memberID string, limit int) ([]models.TrackedOrder, error)
	ListRecent(ctx context.Context, limit int) ([]models.TrackedOrder, error)
}

type GormOrderLog struct {
	db *gorm.DB
}

func NewGormOrderLog(db *gorm.DB) *GormOrderLog {
	return &GormOrderLog{db: db}
}

func (l *GormOrderLog) RecordPlacement(ctx context.Context, order *models.TrackedOrder) error {
	if err := l.db.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("record placement: %w", err)
	}
	return nil
}

// RecordOutcome updates the most recent entry for the tracking id. An entry
// the Member API already settled keeps its outcome.
func (l *GormOrderLog) RecordOutcome(ctx context.Context, memberID, pubTrackID, outcome string, attempts int, message string, resolvedAt time.Time) error {
	var order models.TrackedOrder
	err := l.db.WithContext(ctx).
		Scopes(session.ForMember(memberID)).
		Where("pub_track_id = ?", pubTrackID).
		Order("placed_at DESC").
		First(&order).Error
	if err != nil {
		return fmt.Errorf("tracked order %s not found: %w", pubTrackID, err)
	}
	if poller.Outcome(order.Outcome).Final() {
		return nil
	}

	return l.db.WithContext(ctx).Model(&order).Updates(map[string]interface{}{
		"outcome":     outcome,
		"attempts":    attempts,
		"message":     message,
		"resolved_at": resolvedAt,
	}).Error
}

func (l *GormOrderLog) ListForMember(ctx context.Context, memberID string, limit int) ([]models.TrackedOrder, error) {
	var orders []models.TrackedOrder
	err := l.db.WithContext(ctx).
		Scopes(session.ForMember(memberID)).
		Order("placed_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (l *GormOrderLog) ListRecent(ctx context.Context, limit int) ([]models.TrackedOrder, error) {
	var orders []models.TrackedOrder
	err := l.db.WithContext(ctx).Order("placed_at DESC").Limit(limit).Find(&orders).Error
	return orders, err
}
