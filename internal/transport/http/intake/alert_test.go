package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tvbridge/internal/config"
	"tvbridge/internal/executor"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/ledger"
	"tvbridge/internal/pkg/trading"
	"tvbridge/internal/queue"
	"tvbridge/internal/rules"
	"tvbridge/internal/signal"
	"tvbridge/internal/store/model"
)

type routerFixture struct {
	signals   *MockSignalRepository
	positions *MockPositionRepository
	orders    *MockOrderRepository
	snapshots *MockSnapshotRepository
	venue     *MockExchange
	usage     *executor.UsageTracker
	rules     *rules.Registry
	ledger    *ledger.Ledger
	registry  *queue.Registry
	queue     *queue.Queue
	server    *Server
}

func newFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		signals:   new(MockSignalRepository),
		positions: new(MockPositionRepository),
		orders:    new(MockOrderRepository),
		snapshots: new(MockSnapshotRepository),
		venue:     new(MockExchange),
		usage:     executor.NewUsageTracker(),
	}
	reg, err := rules.NewRegistry(filepath.Join(t.TempDir(), "rules.yaml"))
	assert.NoError(t, err)
	f.rules = reg
	f.ledger = ledger.New(f.positions)
	f.queue = queue.New("tv1", f.signals)
	f.registry = queue.NewRegistry()
	f.registry.Register(f.queue)

	router := NewRouter(RouterConfig{
		Channels:  []config.ChannelConfig{{ID: "tv1", Enabled: true, Amount: 100, Multiplier: 1, Leverage: 5}},
		Registry:  f.registry,
		Rules:     f.rules,
		Ledger:    f.ledger,
		Orders:    f.orders,
		Snapshots: f.snapshots,
		Usage:     f.usage,
		Venue:     f.venue,
	})
	srv, err := NewServer(ServerConfig{Addr: ":0", Routes: router})
	assert.NoError(t, err)
	f.server = srv
	return f
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// expectPersist arms the signal repo to accept the insert and stamp the
// given durable id, the way the real store does.
func (f *routerFixture) expectPersist(id uint) {
	f.signals.On("Create", mock.Anything, mock.AnythingOfType("*model.SignalEventModel")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*model.SignalEventModel).ID = id
		}).Return(nil).Once()
}

func TestWebhookQueuesNormalizedSignal(t *testing.T) {
	f := newFixture(t)
	f.expectPersist(7)

	body := `{"symbol":"BINANCE:BTCUSDT.P","direction":"long","price":"50000.5","qty":0.5,"leverage":7,"note":"breakout"}`
	w := f.do(http.MethodPost, "/webhook/tv1", body)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	if assert.NotNil(t, env.OrderID) {
		assert.Equal(t, "7", *env.OrderID)
	}

	assert.Equal(t, 1, f.queue.Depth())
	item, err := f.queue.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, uint(7), item.ID)
	assert.Equal(t, "BTCUSDT", item.Signal.Symbol)
	assert.Equal(t, signal.DirectionBuy, item.Signal.Direction)
	assert.True(t, item.Signal.Quantity.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, item.Signal.Price.Equal(decimal.NewFromFloat(50000.5)))
	assert.Equal(t, 7, item.Signal.Leverage)
	assert.Equal(t, "breakout", item.Signal.Note)
}

func TestWebhookExtractsObjectFromAlertText(t *testing.T) {
	f := newFixture(t)
	f.expectPersist(3)

	body := `Alert fired on ETH! {"ticker":"ETHUSDT-PERP","side":"SAT"} -- end of alert`
	w := f.do(http.MethodPost, "/webhook/tv1", body)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)

	item, err := f.queue.Dequeue(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "ETHUSDT", item.Signal.Symbol)
	assert.Equal(t, signal.DirectionSell, item.Signal.Direction)
}

func TestWebhookRejectsUnknownDirection(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/webhook/tv1", `{"symbol":"BTCUSDT","direction":"HODL"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "direction")
	assert.Nil(t, env.OrderID)
	f.signals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWebhookRejectsMissingSymbol(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/webhook/tv1", `{"direction":"BUY"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, 0, f.queue.Depth())
}

func TestWebhookRejectsUnknownChannel(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/webhook/nope", `{"symbol":"BTCUSDT","direction":"BUY"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "unknown channel")
}

func TestWebhookEnforcesWhitelist(t *testing.T) {
	f := newFixture(t)
	next := rules.Defaults()
	next.Whitelist = []string{"ETHUSDT"}
	assert.NoError(t, f.rules.Update(next))

	w := f.do(http.MethodPost, "/webhook/tv1", `{"symbol":"BTCUSDT","direction":"BUY"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Message, "whitelisted")
	f.signals.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWebhookAcksWhenPersistenceFails(t *testing.T) {
	f := newFixture(t)
	f.signals.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	w := f.do(http.MethodPost, "/webhook/tv1", `{"symbol":"BTCUSDT","direction":"BUY"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Nil(t, env.OrderID)
	assert.Equal(t, 0, f.queue.Depth())
}

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Name() string { return "mock" }

func (m *MockExchange) GetBalance(ctx context.Context) (exchange.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(exchange.Balance), args.Error(1)
}

func (m *MockExchange) GetPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]exchange.Position), args.Error(1)
}

func (m *MockExchange) GetLotFilters(ctx context.Context, symbol string) (trading.LotFilters, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(trading.LotFilters), args.Error(1)
}

func (m *MockExchange) GetPositionMode(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockExchange) SetPositionMode(ctx context.Context, hedge bool) error {
	return m.Called(ctx, hedge).Error(0)
}

func (m *MockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(ctx, symbol, leverage).Error(0)
}

func (m *MockExchange) SetMarginType(ctx context.Context, symbol string, marginType exchange.MarginType) error {
	return m.Called(ctx, symbol, marginType).Error(0)
}

func (m *MockExchange) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockExchange) GetNotionalBracket(ctx context.Context, symbol string, leverage int) (decimal.Decimal, error) {
	args := m.Called(ctx, symbol, leverage)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockExchange) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (*exchange.OrderResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.OrderResult), args.Error(1)
}

type MockSignalRepository struct {
	mock.Mock
}

func (m *MockSignalRepository) Create(ctx context.Context, event *model.SignalEventModel) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockSignalRepository) ListPending(ctx context.Context, channel string) ([]model.SignalEventModel, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SignalEventModel), args.Error(1)
}

func (m *MockSignalRepository) UpdateStatus(ctx context.Context, id uint, status model.SignalStatus, lastError string) error {
	return m.Called(ctx, id, status, lastError).Error(0)
}

func (m *MockSignalRepository) Requeue(ctx context.Context, id uint, retries int, flagged bool, lastError string) error {
	return m.Called(ctx, id, retries, flagged, lastError).Error(0)
}

func (m *MockSignalRepository) CountByStatus(ctx context.Context, channel string) (map[model.SignalStatus]int64, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.SignalStatus]int64), args.Error(1)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *model.OrderModel) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) ListRecent(ctx context.Context, channel, symbol string, limit int) ([]model.OrderModel, error) {
	args := m.Called(ctx, channel, symbol, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderModel), args.Error(1)
}

type MockPositionRepository struct {
	mock.Mock
}

func (m *MockPositionRepository) Upsert(ctx context.Context, position *model.PositionModel) error {
	return m.Called(ctx, position).Error(0)
}

func (m *MockPositionRepository) Find(ctx context.Context, channel, symbol string) (*model.PositionModel, error) {
	args := m.Called(ctx, channel, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PositionModel), args.Error(1)
}

func (m *MockPositionRepository) Delete(ctx context.Context, channel, symbol string) error {
	return m.Called(ctx, channel, symbol).Error(0)
}

func (m *MockPositionRepository) List(ctx context.Context) ([]model.PositionModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PositionModel), args.Error(1)
}

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Create(ctx context.Context, snapshot *model.BalanceSnapshotModel) error {
	return m.Called(ctx, snapshot).Error(0)
}

func (m *MockSnapshotRepository) ListRecent(ctx context.Context, limit int) ([]model.BalanceSnapshotModel, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BalanceSnapshotModel), args.Error(1)
}

func (m *MockSnapshotRepository) Latest(ctx context.Context) (*model.BalanceSnapshotModel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BalanceSnapshotModel), args.Error(1)
}
