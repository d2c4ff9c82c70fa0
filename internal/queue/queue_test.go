package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"tvbridge/internal/signal"
	"tvbridge/internal/store/model"
)

type MockSignalRepository struct {
	mock.Mock
	nextID uint
}

func (m *MockSignalRepository) Create(ctx context.Context, event *model.SignalEventModel) error {
	args := m.Called(ctx, event)
	if args.Error(0) == nil {
		m.nextID++
		event.ID = m.nextID
		event.CreatedAtUnix = time.Now().Unix()
	}
	return args.Error(0)
}

func (m *MockSignalRepository) ListPending(ctx context.Context, channel string) ([]model.SignalEventModel, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SignalEventModel), args.Error(1)
}

func (m *MockSignalRepository) UpdateStatus(ctx context.Context, id uint, status model.SignalStatus, lastError string) error {
	args := m.Called(ctx, id, status, lastError)
	return args.Error(0)
}

func (m *MockSignalRepository) Requeue(ctx context.Context, id uint, retries int, flagged bool, lastError string) error {
	args := m.Called(ctx, id, retries, flagged, lastError)
	return args.Error(0)
}

func (m *MockSignalRepository) CountByStatus(ctx context.Context, channel string) (map[model.SignalStatus]int64, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.SignalStatus]int64), args.Error(1)
}

func mustPayload(t *testing.T, sig signal.Signal) datatypes.JSON {
	t.Helper()
	b, err := json.Marshal(sig)
	assert.NoError(t, err)
	return datatypes.JSON(b)
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	repo := new(MockSignalRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	q := New("tv1", repo)
	sig := signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy}

	id, err := q.Enqueue(context.Background(), sig)
	assert.NoError(t, err)
	assert.Equal(t, uint(1), id)
	assert.Equal(t, 1, q.Depth())

	item, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, uint(1), item.ID)
	assert.Equal(t, "tv1", item.Channel)
	assert.Equal(t, signal.DirectionBuy, item.Signal.Direction)
	repo.AssertExpectations(t)
}

func TestQueue_DequeueObservesCancellation(t *testing.T) {
	repo := new(MockSignalRepository)
	q := New("tv1", repo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_PersistenceFailureDoesNotBuffer(t *testing.T) {
	repo := new(MockSignalRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	q := New("tv1", repo)
	_, err := q.Enqueue(context.Background(), signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy})
	assert.Error(t, err)
	assert.Equal(t, 0, q.Depth())
}

func TestQueue_RecoverReplaysPendingInOrder(t *testing.T) {
	sigA := signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy}
	sigB := signal.Signal{Symbol: "ETHUSDT", Direction: signal.DirectionSell}
	sigC := signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionSell}

	repo := new(MockSignalRepository)
	repo.On("ListPending", mock.Anything, "tv1").Return([]model.SignalEventModel{
		{ID: 3, Channel: "tv1", Payload: mustPayload(t, sigA), Retries: 1},
		{ID: 7, Channel: "tv1", Payload: mustPayload(t, sigB)},
		{ID: 9, Channel: "tv1", Payload: mustPayload(t, sigC), Flagged: true},
	}, nil)

	q := New("tv1", repo)
	n, err := q.Recover(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	var ids []uint
	for i := 0; i < 3; i++ {
		item, derr := q.Dequeue(context.Background())
		assert.NoError(t, derr)
		ids = append(ids, item.ID)
		if item.ID == 3 {
			assert.Equal(t, 1, item.Retries)
		}
		if item.ID == 9 {
			assert.True(t, item.Flagged)
		}
	}
	assert.Equal(t, []uint{3, 7, 9}, ids)
}

func TestQueue_RecoverFailsUnreadablePayload(t *testing.T) {
	repo := new(MockSignalRepository)
	repo.On("ListPending", mock.Anything, "tv1").Return([]model.SignalEventModel{
		{ID: 4, Channel: "tv1", Payload: datatypes.JSON([]byte("{broken"))},
	}, nil)
	repo.On("UpdateStatus", mock.Anything, uint(4), model.SignalStatusFailed, mock.Anything).Return(nil)

	q := New("tv1", repo)
	n, err := q.Recover(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, q.Depth())
	repo.AssertExpectations(t)
}

func TestQueue_RequeueGoesToTail(t *testing.T) {
	repo := new(MockSignalRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("Requeue", mock.Anything, uint(1), 2, false, "venue timeout").Return(nil)

	q := New("tv1", repo)
	first, err := q.Enqueue(context.Background(), signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy})
	assert.NoError(t, err)
	_, err = q.Enqueue(context.Background(), signal.Signal{Symbol: "ETHUSDT", Direction: signal.DirectionSell})
	assert.NoError(t, err)

	item, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, first, item.ID)

	item.Retries = 2
	assert.NoError(t, q.Requeue(context.Background(), item, "venue timeout"))

	// The untouched second item still comes out before the retried one.
	next, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ETHUSDT", next.Signal.Symbol)

	retried, err := q.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, first, retried.ID)
	assert.Equal(t, 2, retried.Retries)
	repo.AssertExpectations(t)
}

func TestRegistry_Enqueue(t *testing.T) {
	repo := new(MockSignalRepository)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	reg := NewRegistry()
	reg.Register(New("tv1", repo))

	t.Run("Known Channel", func(t *testing.T) {
		id, err := reg.Enqueue(context.Background(), "tv1", signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy})
		assert.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("Unknown Channel", func(t *testing.T) {
		_, err := reg.Enqueue(context.Background(), "nope", signal.Signal{Symbol: "BTCUSDT", Direction: signal.DirectionBuy})
		assert.Error(t, err)
	})

	t.Run("Stable Ordering", func(t *testing.T) {
		reg.Register(New("alpha", repo))
		all := reg.All()
		assert.Len(t, all, 2)
		assert.Equal(t, "alpha", all[0].Channel())
		assert.Equal(t, "tv1", all[1].Channel())
	})
}
