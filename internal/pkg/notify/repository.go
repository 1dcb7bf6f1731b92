package notify

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
)

// Repository reads the notification outbox.
type Repository interface {
	ListUnpublished(ctx context.Context, limit int) ([]models.Notification, error)
	MarkPublished(ctx context.Context, ids []uint, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListUnpublished(ctx context.Context, limit int) ([]models.Notification, error) {
	var out []models.Notification
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *gormRepository) MarkPublished(ctx context.Context, ids []uint, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id IN ?", ids).
		Update("published_at", at).Error
}
