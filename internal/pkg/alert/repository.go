package alert

import (
	"context"

	"gorm.io/gorm"

	"github.com/notemarket/notemarket/app/models"
)

// Stats summarises the alert log for health checks.
type Stats struct {
	Delivered       int64   `json:"delivered"`
	Failed          int64   `json:"failed"`
	AverageAttempts float64 `json:"average_attempts"`
}

// Repository persists terminal alert outcomes. FAILED rows are the dead-letter queue.
type Repository interface {
	Create(ctx context.Context, record *models.AlertRecord) error
	ListFailed(ctx context.Context, limit int) ([]models.AlertRecord, error)
	Stats(ctx context.Context) (*Stats, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an alert repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, record *models.AlertRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *gormRepository) ListFailed(ctx context.Context, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []models.AlertRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", models.AlertStatusFailed).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *gormRepository) Stats(ctx context.Context) (*Stats, error) {
	type row struct {
		Status   string
		Count    int64
		Attempts int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.AlertRecord{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(attempt_count), 0) AS attempts").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := &Stats{}
	var total, attempts int64
	for _, r := range rows {
		switch r.Status {
		case models.AlertStatusDelivered:
			out.Delivered = r.Count
		case models.AlertStatusFailed:
			out.Failed = r.Count
		}
		total += r.Count
		attempts += r.Attempts
	}
	if total > 0 {
		out.AverageAttempts = float64(attempts) / float64(total)
	}
	return out, nil
}
