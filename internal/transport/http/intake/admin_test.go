package intake

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/store/model"
)

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestOrdersEndpointFiltersByChannel(t *testing.T) {
	f := newFixture(t)
	f.orders.On("ListRecent", mock.Anything, "tv1", "", 50).Return([]model.OrderModel{
		{ID: 2, Channel: "tv1", Symbol: "BTCUSDT", Side: "BUY", Quantity: "0.010"},
		{ID: 1, Channel: "tv1", Symbol: "ETHUSDT", Side: "SELL", Quantity: "1.5"},
	}, nil).Once()

	w := f.do(http.MethodGet, "/api/orders?channel=tv1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Orders []model.OrderModel `json:"orders"`
		Count  int                `json:"count"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "BTCUSDT", resp.Orders[0].Symbol)
}

func TestPositionsEndpointServesLedger(t *testing.T) {
	f := newFixture(t)
	f.positions.On("List", mock.Anything).Return([]model.PositionModel{
		{Channel: "tv1", Symbol: "BTCUSDT", Side: "BUY", Quantity: "0.5", EntryPrice: "50000", Leverage: 5},
	}, nil).Once()

	w := f.do(http.MethodGet, "/api/positions", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BTCUSDT")
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestQueueEndpointReportsStats(t *testing.T) {
	f := newFixture(t)
	f.signals.On("CountByStatus", mock.Anything, "tv1").Return(map[model.SignalStatus]int64{
		model.SignalStatusPending:   3,
		model.SignalStatusCompleted: 10,
	}, nil).Once()

	w := f.do(http.MethodGet, "/api/queue", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Queues []struct {
			Channel   string `json:"channel"`
			Pending   int64  `json:"pending"`
			Completed int64  `json:"completed"`
		} `json:"queues"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if assert.Len(t, resp.Queues, 1) {
		assert.Equal(t, "tv1", resp.Queues[0].Channel)
		assert.Equal(t, int64(3), resp.Queues[0].Pending)
		assert.Equal(t, int64(10), resp.Queues[0].Completed)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/rules", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"margin_type":"ISOLATED"`)

	update := `{"leverage":{"mode":"fixed","default":8,"max":20},"margin_type":"CROSSED"}`
	w = f.do(http.MethodPost, "/api/rules", update)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/rules", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"default":8`)
	assert.Contains(t, w.Body.String(), `"margin_type":"CROSSED"`)
}

func TestRulesUpdateRejectsInvalidDocument(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/rules", `{"leverage":{"mode":"psychic","default":5},"margin_type":"ISOLATED"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestResetUsedZeroesCounterAndSnapshots(t *testing.T) {
	f := newFixture(t)
	f.usage.Add("tv1", decimal.NewFromInt(300))
	f.venue.On("GetBalance", mock.Anything).Return(exchange.Balance{
		Asset:     "USDT",
		Wallet:    decimal.NewFromInt(2000),
		Available: decimal.NewFromInt(1500),
	}, nil).Once()
	f.snapshots.On("Create", mock.Anything, mock.MatchedBy(func(s *model.BalanceSnapshotModel) bool {
		return s.UsedAllocationUSD == 0 &&
			s.TotalWalletBalance == 2000 &&
			s.Note == "used allocation reset"
	})).Return(nil).Once()

	w := f.do(http.MethodPost, "/api/admin/reset-used", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"previous_used":300`)
	assert.Contains(t, w.Body.String(), `"snapshot":true`)
	assert.True(t, f.usage.Total().IsZero())
	f.snapshots.AssertExpectations(t)
}

func TestBalanceChartRendersHTML(t *testing.T) {
	f := newFixture(t)
	f.snapshots.On("ListRecent", mock.Anything, 500).Return([]model.BalanceSnapshotModel{
		{ID: 2, TotalWalletBalance: 2100, AvailableBalance: 1600, UsedAllocationUSD: 500, CreatedAtUnix: 1700003600},
		{ID: 1, TotalWalletBalance: 2000, AvailableBalance: 1500, UsedAllocationUSD: 500, CreatedAtUnix: 1700000000},
	}, nil).Once()

	w := f.do(http.MethodGet, "/api/chart/balance", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "echarts")
	assert.Contains(t, w.Body.String(), "Balance History")
}

func TestAuditEndpointDisabledWithoutStore(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/audit", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "audit log disabled")
}
