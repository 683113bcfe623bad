package persistence

import (
	"context"
	"errors"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements billing.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Save inserts or replaces a sync log
func (r *GormSyncLogRepository) Save(ctx context.Context, l *billing.SyncLog) error {
	return r.db.WithContext(ctx).Save(models.SyncLogModelFromDomain(l)).Error
}

// FindLatest returns the most recently finished log of the given types
func (r *GormSyncLogRepository) FindLatest(ctx context.Context, types ...billing.FileType) (*billing.SyncLog, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncLogModel{})
	if len(types) > 0 {
		query = query.Where("file_type IN ?", types)
	}
	var model models.SyncLogModel
	if err := query.Order("COALESCE(completed_at, started_at) DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRecent returns up to limit logs, newest first
func (r *GormSyncLogRepository) FindRecent(ctx context.Context, limit int) ([]*billing.SyncLog, error) {
	var rows []models.SyncLogModel
	if err := r.db.WithContext(ctx).
		Order("COALESCE(completed_at, started_at) DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.SyncLog, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out, nil
}

var _ billing.SyncLogRepository = (*GormSyncLogRepository)(nil)
