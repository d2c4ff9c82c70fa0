package sqlite

import (
	"context"
	"errors"
	"time"

	"tvbridge/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// positionRepository implements the PositionRepository interface.
type positionRepository struct {
	db *gorm.DB
}

// NewPositionRepo creates a new positionRepo.
func NewPositionRepo(db *gorm.DB) *positionRepository {
	return &positionRepository{db: db}
}

// Upsert inserts or replaces the single row for (channel, symbol).
func (r *positionRepository) Upsert(ctx context.Context, position *model.PositionModel) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	now := time.Now().Unix()
	if position.CreatedAtUnix == 0 {
		position.CreatedAtUnix = now
	}
	position.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}, {Name: "symbol"}},
		UpdateAll: true,
	}).Create(position).Error
}

func (r *positionRepository) Find(ctx context.Context, channel, symbol string) (*model.PositionModel, error) {
	var position model.PositionModel
	err := r.db.WithContext(ctx).
		Where("channel = ? AND symbol = ?", channel, symbol).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

func (r *positionRepository) Delete(ctx context.Context, channel, symbol string) error {
	return r.db.WithContext(ctx).
		Where("channel = ? AND symbol = ?", channel, symbol).
		Delete(&model.PositionModel{}).Error
}

func (r *positionRepository) List(ctx context.Context) ([]model.PositionModel, error) {
	var positions []model.PositionModel
	if err := r.db.WithContext(ctx).
		Order("channel ASC, symbol ASC").
		Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
