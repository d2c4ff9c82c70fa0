// Package binance implements the exchange contract on Binance USDT-margined
// futures through the go-binance SDK.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/trading"
)

// Recorder receives one entry per API call. Implementations must be
// fire-and-forget; recording failures never surface to the caller.
type Recorder interface {
	RecordCall(ctx context.Context, endpoint, params string, callErr error, took time.Duration)
}

// Client implements exchange.Exchange against the futures REST API.
type Client struct {
	cfg      Config
	client   *futures.Client
	filters  *filterCache
	recorder Recorder
}

func New(cfg Config, recorder Recorder) (*Client, error) {
	final := cfg.withDefaults()
	if final.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(final.APIKey, final.APISecret)
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient

	c := &Client{
		cfg:      final,
		client:   client,
		filters:  newFilterCache(30 * time.Minute),
		recorder: recorder,
	}
	c.syncServerTime()
	return c, nil
}

// syncServerTime aligns the SDK's time offset with the venue so signed
// requests don't trip recvWindow checks on skewed hosts.
func (c *Client) syncServerTime() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.client.NewSetServerTimeService().Do(ctx); err != nil {
		logger.Warnf("[binance] server time sync failed: %v", err)
	}
}

func (c *Client) Name() string { return "binance-futures" }

func (c *Client) record(ctx context.Context, endpoint, params string, callErr error, start time.Time) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordCall(ctx, endpoint, params, callErr, time.Since(start))
}

func (c *Client) GetBalance(ctx context.Context) (exchange.Balance, error) {
	start := time.Now()
	balances, err := c.client.NewGetBalanceService().Do(ctx)
	c.record(ctx, "balance", "", err, start)
	if err != nil {
		return exchange.Balance{}, classify("get balance", err)
	}
	for _, b := range balances {
		if b == nil || !strings.EqualFold(b.Asset, "USDT") {
			continue
		}
		wallet, werr := decimal.NewFromString(strings.TrimSpace(b.Balance))
		avail, aerr := decimal.NewFromString(strings.TrimSpace(b.AvailableBalance))
		if werr != nil || aerr != nil {
			return exchange.Balance{}, exchange.Permanent("get balance",
				fmt.Errorf("unparseable balance fields %q/%q", b.Balance, b.AvailableBalance))
		}
		return exchange.Balance{
			Asset:     b.Asset,
			Wallet:    wallet,
			Available: avail,
			UpdatedAt: time.Now(),
		}, nil
	}
	return exchange.Balance{}, exchange.Permanent("get balance", fmt.Errorf("no USDT balance entry"))
}

func (c *Client) GetPositions(ctx context.Context, symbols ...string) ([]exchange.Position, error) {
	start := time.Now()
	svc := c.client.NewGetPositionRiskService()
	if len(symbols) == 1 {
		svc = svc.Symbol(symbols[0])
	}
	risks, err := svc.Do(ctx)
	c.record(ctx, "positionRisk", strings.Join(symbols, ","), err, start)
	if err != nil {
		return nil, classify("get positions", err)
	}
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[strings.ToUpper(s)] = true
	}
	out := make([]exchange.Position, 0, len(risks))
	for _, r := range risks {
		if r == nil {
			continue
		}
		if len(want) > 0 && !want[strings.ToUpper(r.Symbol)] {
			continue
		}
		pos, perr := parsePositionRisk(r)
		if perr != nil {
			logger.Warnf("[binance] skip unparseable position %s: %v", r.Symbol, perr)
			continue
		}
		out = append(out, pos)
	}
	return out, nil
}

func parsePositionRisk(r *futures.PositionRisk) (exchange.Position, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(r.PositionAmt))
	if err != nil {
		return exchange.Position{}, fmt.Errorf("positionAmt %q: %w", r.PositionAmt, err)
	}
	entry, err := decimal.NewFromString(strings.TrimSpace(r.EntryPrice))
	if err != nil {
		return exchange.Position{}, fmt.Errorf("entryPrice %q: %w", r.EntryPrice, err)
	}
	mark, _ := decimal.NewFromString(strings.TrimSpace(r.MarkPrice))
	lev, _ := strconv.Atoi(strings.TrimSpace(r.Leverage))
	maxNotional, _ := decimal.NewFromString(strings.TrimSpace(r.MaxNotionalValue))
	return exchange.Position{
		Symbol:      strings.ToUpper(r.Symbol),
		Amount:      amount,
		EntryPrice:  entry,
		MarkPrice:   mark,
		Leverage:    lev,
		MaxNotional: maxNotional,
	}, nil
}

func (c *Client) GetLotFilters(ctx context.Context, symbol string) (trading.LotFilters, error) {
	return c.filters.get(ctx, c, symbol)
}

func (c *Client) GetPositionMode(ctx context.Context) (bool, error) {
	start := time.Now()
	mode, err := c.client.NewGetPositionModeService().Do(ctx)
	c.record(ctx, "positionSide/dual GET", "", err, start)
	if err != nil {
		return false, classify("get position mode", err)
	}
	return mode.DualSidePosition, nil
}

func (c *Client) SetPositionMode(ctx context.Context, hedge bool) error {
	start := time.Now()
	err := c.client.NewChangePositionModeService().DualSide(hedge).Do(ctx)
	c.record(ctx, "positionSide/dual POST", fmt.Sprintf("dualSide=%t", hedge), err, start)
	if err != nil {
		// -4059: "No need to change position side." The account already is
		// where we want it.
		if apiCode(err) == -4059 {
			return nil
		}
		return classify("set position mode", err)
	}
	return nil
}

func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	start := time.Now()
	_, err := c.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	c.record(ctx, "leverage", fmt.Sprintf("symbol=%s leverage=%d", symbol, leverage), err, start)
	if err != nil {
		return classify("set leverage", err)
	}
	return nil
}

func (c *Client) SetMarginType(ctx context.Context, symbol string, marginType exchange.MarginType) error {
	start := time.Now()
	err := c.client.NewChangeMarginTypeService().
		Symbol(symbol).
		MarginType(futures.MarginType(marginType)).
		Do(ctx)
	c.record(ctx, "marginType", fmt.Sprintf("symbol=%s type=%s", symbol, marginType), err, start)
	if err != nil {
		// -4046: "No need to change margin type."
		if apiCode(err) == -4046 {
			return nil
		}
		return classify("set margin type", err)
	}
	return nil
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	start := time.Now()
	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	c.record(ctx, "ticker/price", "symbol="+symbol, err, start)
	if err != nil {
		return decimal.Zero, classify("get price", err)
	}
	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		price, perr := decimal.NewFromString(strings.TrimSpace(p.Price))
		if perr != nil || price.Sign() <= 0 {
			return decimal.Zero, exchange.Permanent("get price",
				fmt.Errorf("unusable price %q for %s", p.Price, symbol))
		}
		return price, nil
	}
	return decimal.Zero, exchange.Permanent("get price", fmt.Errorf("no price for %s", symbol))
}

func (c *Client) GetNotionalBracket(ctx context.Context, symbol string, leverage int) (decimal.Decimal, error) {
	start := time.Now()
	brackets, err := c.client.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
	c.record(ctx, "leverageBracket", "symbol="+symbol, err, start)
	if err != nil {
		return decimal.Zero, classify("get notional bracket", err)
	}
	for _, lb := range brackets {
		if lb == nil || !strings.EqualFold(lb.Symbol, symbol) {
			continue
		}
		return bracketCap(lb.Brackets, leverage), nil
	}
	return decimal.Zero, nil
}

// bracketCap picks the notional cap that governs the requested leverage: the
// bracket with the smallest InitialLeverage still at or above it. A leverage
// beyond every bracket falls back to the tightest (highest-leverage) cap.
func bracketCap(brackets []futures.Bracket, leverage int) decimal.Decimal {
	bestLev := 0
	bestCap := 0.0
	maxLev := 0
	maxLevCap := 0.0
	for _, b := range brackets {
		if b.InitialLeverage > maxLev {
			maxLev = b.InitialLeverage
			maxLevCap = b.NotionalCap
		}
		if b.InitialLeverage >= leverage {
			if bestLev == 0 || b.InitialLeverage < bestLev {
				bestLev = b.InitialLeverage
				bestCap = b.NotionalCap
			}
		}
	}
	if bestLev == 0 {
		bestCap = maxLevCap
	}
	if bestCap <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(bestCap)
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (*exchange.OrderResult, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity)
	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	params := fmt.Sprintf("symbol=%s side=%s qty=%s reduceOnly=%t",
		req.Symbol, req.Side, req.Quantity, req.ReduceOnly)

	start := time.Now()
	res, err := svc.Do(ctx)
	c.record(ctx, "order", params, err, start)
	if err != nil {
		// -2022: reduce-only rejected, the position is already flat.
		if req.ReduceOnly && apiCode(err) == -2022 {
			return nil, exchange.Permanent("place market order",
				fmt.Errorf("%w: %v", exchange.ErrNothingToReduce, err))
		}
		return nil, classify("place market order", err)
	}
	raw, merr := json.Marshal(res)
	if merr != nil {
		raw = nil
	}
	return &exchange.OrderResult{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Status:        string(res.Status),
		Raw:           raw,
	}, nil
}
