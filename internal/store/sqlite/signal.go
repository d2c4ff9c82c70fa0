package sqlite

import (
	"context"
	"errors"
	"time"

	"tvbridge/internal/store/model"

	"gorm.io/gorm"
)

// signalRepository implements the SignalRepository interface.
type signalRepository struct {
	db *gorm.DB
}

// NewSignalRepo creates a new signalRepo.
func NewSignalRepo(db *gorm.DB) *signalRepository {
	return &signalRepository{db: db}
}

func (r *signalRepository) Create(ctx context.Context, event *model.SignalEventModel) error {
	if event == nil {
		return errors.New("signal event cannot be nil")
	}
	now := time.Now().Unix()
	if event.CreatedAtUnix == 0 {
		event.CreatedAtUnix = now
	}
	event.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *signalRepository) ListPending(ctx context.Context, channel string) ([]model.SignalEventModel, error) {
	var events []model.SignalEventModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND status = ?", channel, int(model.SignalStatusPending)).
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *signalRepository) UpdateStatus(ctx context.Context, id uint, status model.SignalStatus, lastError string) error {
	updates := map[string]interface{}{
		"status":     int(status),
		"updated_at": time.Now().Unix(),
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.WithContext(ctx).
		Model(&model.SignalEventModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *signalRepository) Requeue(ctx context.Context, id uint, retries int, flagged bool, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&model.SignalEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     int(model.SignalStatusPending),
			"retries":    retries,
			"flagged":    flagged,
			"last_error": lastError,
			"updated_at": time.Now().Unix(),
		}).Error
}

func (r *signalRepository) CountByStatus(ctx context.Context, channel string) (map[model.SignalStatus]int64, error) {
	type row struct {
		Status int
		Total  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&model.SignalEventModel{}).
		Select("status, COUNT(*) AS total").
		Where("channel = ?", channel).
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.SignalStatus]int64, len(rows))
	for _, r := range rows {
		out[model.SignalStatus(r.Status)] = r.Total
	}
	return out, nil
}
