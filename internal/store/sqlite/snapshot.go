package sqlite

import (
	"context"
	"errors"
	"time"

	"tvbridge/internal/store/model"

	"gorm.io/gorm"
)

// snapshotRepository implements the SnapshotRepository interface.
type snapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepo creates a new snapshotRepo.
func NewSnapshotRepo(db *gorm.DB) *snapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Create(ctx context.Context, snapshot *model.BalanceSnapshotModel) error {
	if snapshot == nil {
		return errors.New("snapshot cannot be nil")
	}
	if snapshot.CreatedAtUnix == 0 {
		snapshot.CreatedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *snapshotRepository) ListRecent(ctx context.Context, limit int) ([]model.BalanceSnapshotModel, error) {
	if limit <= 0 {
		limit = 200
	}
	var snapshots []model.BalanceSnapshotModel
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (r *snapshotRepository) Latest(ctx context.Context) (*model.BalanceSnapshotModel, error) {
	var snapshot model.BalanceSnapshotModel
	err := r.db.WithContext(ctx).Order("id DESC").First(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
