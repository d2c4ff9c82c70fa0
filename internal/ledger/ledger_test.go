package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tvbridge/internal/signal"
	"tvbridge/internal/store/model"
)

type MockPositionRepository struct {
	mock.Mock
}

func (m *MockPositionRepository) Upsert(ctx context.Context, position *model.PositionModel) error {
	args := m.Called(ctx, position)
	return args.Error(0)
}

func (m *MockPositionRepository) Find(ctx context.Context, channel, symbol string) (*model.PositionModel, error) {
	args := m.Called(ctx, channel, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PositionModel), args.Error(1)
}

func (m *MockPositionRepository) Delete(ctx context.Context, channel, symbol string) error {
	args := m.Called(ctx, channel, symbol)
	return args.Error(0)
}

func (m *MockPositionRepository) List(ctx context.Context) ([]model.PositionModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PositionModel), args.Error(1)
}

func TestLedger_Get(t *testing.T) {
	t.Run("Flat Symbol Returns Nil", func(t *testing.T) {
		repo := new(MockPositionRepository)
		repo.On("Find", mock.Anything, "tv1", "BTCUSDT").Return(nil, nil)

		l := New(repo)
		rec, err := l.Get(context.Background(), "tv1", "BTCUSDT")
		assert.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("Miss Loads From Store Then Caches", func(t *testing.T) {
		repo := new(MockPositionRepository)
		repo.On("Find", mock.Anything, "tv1", "BTCUSDT").Return(&model.PositionModel{
			Channel:    "tv1",
			Symbol:     "BTCUSDT",
			Side:       "BUY",
			Quantity:   "0.50",
			EntryPrice: "40000",
			Leverage:   5,
		}, nil).Once()

		l := New(repo)
		rec, err := l.Get(context.Background(), "tv1", "BTCUSDT")
		assert.NoError(t, err)
		assert.NotNil(t, rec)
		assert.Equal(t, signal.DirectionBuy, rec.Side)
		assert.True(t, rec.Quantity.Equal(decimal.RequireFromString("0.5")))

		// Second read must come from the cache; the single Once expectation
		// fails the test if Find is hit again.
		again, err := l.Get(context.Background(), "tv1", "BTCUSDT")
		assert.NoError(t, err)
		assert.NotNil(t, again)
		repo.AssertExpectations(t)
	})

	t.Run("Corrupt Quantity Surfaces Error", func(t *testing.T) {
		repo := new(MockPositionRepository)
		repo.On("Find", mock.Anything, "tv1", "ETHUSDT").Return(&model.PositionModel{
			Channel:  "tv1",
			Symbol:   "ETHUSDT",
			Quantity: "not-a-number",
		}, nil)

		l := New(repo)
		rec, err := l.Get(context.Background(), "tv1", "ETHUSDT")
		assert.Error(t, err)
		assert.Nil(t, rec)
	})
}

func TestLedger_UpsertAndClear(t *testing.T) {
	repo := new(MockPositionRepository)
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(m *model.PositionModel) bool {
		return m.Channel == "tv1" && m.Symbol == "BTCUSDT" && m.Quantity == "0.5"
	})).Return(nil)
	repo.On("Delete", mock.Anything, "tv1", "BTCUSDT").Return(nil)

	l := New(repo)
	rec := Record{
		Channel:    "tv1",
		Symbol:     "btcusdt",
		Side:       signal.DirectionBuy,
		Quantity:   decimal.RequireFromString("0.5"),
		EntryPrice: decimal.RequireFromString("40000"),
		Leverage:   5,
	}
	assert.NoError(t, l.Upsert(context.Background(), rec))

	// Upsert normalized the symbol and primed the cache, no Find needed.
	got, err := l.Get(context.Background(), "tv1", "BTCUSDT")
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "BTCUSDT", got.Symbol)

	assert.NoError(t, l.Clear(context.Background(), "tv1", "BTCUSDT"))
	repo.On("Find", mock.Anything, "tv1", "BTCUSDT").Return(nil, nil)
	got, err = l.Get(context.Background(), "tv1", "BTCUSDT")
	assert.NoError(t, err)
	assert.Nil(t, got)
	repo.AssertExpectations(t)
}

func TestLedger_PrimeEvict(t *testing.T) {
	repo := new(MockPositionRepository)
	l := New(repo)

	l.Prime(Record{
		Channel:  "tv1",
		Symbol:   "ethusdt",
		Side:     signal.DirectionSell,
		Quantity: decimal.RequireFromString("2"),
	})

	// Prime alone must satisfy reads without any repository call.
	rec, err := l.Get(context.Background(), "tv1", "ETHUSDT")
	assert.NoError(t, err)
	assert.NotNil(t, rec)
	assert.Equal(t, signal.DirectionSell, rec.Side)

	l.Evict("tv1", "ETHUSDT")
	repo.On("Find", mock.Anything, "tv1", "ETHUSDT").Return(nil, nil)
	rec, err = l.Get(context.Background(), "tv1", "ETHUSDT")
	assert.NoError(t, err)
	assert.Nil(t, rec)
	repo.AssertExpectations(t)
}
