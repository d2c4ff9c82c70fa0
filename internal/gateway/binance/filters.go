package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/pkg/trading"
)

// filterCache holds lot-size filters for every listed contract. Exchange
// info is a single heavy endpoint, so one fetch populates the whole map and
// is reused until the TTL lapses.
type filterCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	fetchedAt time.Time
	filters   map[string]trading.LotFilters
}

func newFilterCache(ttl time.Duration) *filterCache {
	return &filterCache{ttl: ttl, filters: map[string]trading.LotFilters{}}
}

func (fc *filterCache) get(ctx context.Context, c *Client, symbol string) (trading.LotFilters, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if time.Since(fc.fetchedAt) > fc.ttl || len(fc.filters) == 0 {
		if err := fc.refreshLocked(ctx, c); err != nil {
			// A stale entry beats a hard failure while the venue hiccups.
			if cached, ok := fc.filters[key]; ok {
				return cached, nil
			}
			return trading.LotFilters{}, err
		}
	}
	filters, ok := fc.filters[key]
	if !ok {
		return trading.LotFilters{}, exchange.Permanent("get lot filters",
			fmt.Errorf("symbol %s not listed on exchange", key))
	}
	return filters, nil
}

func (fc *filterCache) refreshLocked(ctx context.Context, c *Client) error {
	start := time.Now()
	info, err := c.client.NewExchangeInfoService().Do(ctx)
	c.record(ctx, "exchangeInfo", "", err, start)
	if err != nil {
		return classify("get lot filters", err)
	}
	next := make(map[string]trading.LotFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		lot := s.LotSizeFilter()
		if lot == nil {
			continue
		}
		step, serr := decimal.NewFromString(strings.TrimSpace(lot.StepSize))
		minQty, merr := decimal.NewFromString(strings.TrimSpace(lot.MinQuantity))
		if serr != nil || merr != nil || step.Sign() <= 0 {
			continue
		}
		next[strings.ToUpper(s.Symbol)] = trading.LotFilters{
			StepSize: step,
			MinQty:   minQty,
		}
	}
	fc.filters = next
	fc.fetchedAt = time.Now()
	return nil
}
