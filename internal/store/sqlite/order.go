package sqlite

import (
	"context"
	"errors"
	"time"

	"tvbridge/internal/store/model"

	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepo creates a new orderRepo.
func NewOrderRepo(db *gorm.DB) *orderRepository {
	return &orderRepository{db: db}
}

// Create appends an order audit row. Orders are never updated.
func (r *orderRepository) Create(ctx context.Context, order *model.OrderModel) error {
	if order == nil {
		return errors.New("order cannot be nil")
	}
	if order.CreatedAtUnix == 0 {
		order.CreatedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *orderRepository) ListRecent(ctx context.Context, channel, symbol string, limit int) ([]model.OrderModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&model.OrderModel{})
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var orders []model.OrderModel
	if err := q.Order("id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
