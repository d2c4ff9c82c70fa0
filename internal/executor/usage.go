package executor

import (
	"sync"

	"github.com/shopspring/decimal"
)

// UsageTracker accumulates the capital basis allocated by executed orders,
// per channel. It is advisory bookkeeping for snapshots and the ops API; the
// reset endpoint zeroes it without touching positions.
type UsageTracker struct {
	mu         sync.Mutex
	perChannel map[string]decimal.Decimal
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{perChannel: map[string]decimal.Decimal{}}
}

func (t *UsageTracker) Add(channel string, amount decimal.Decimal) {
	if amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	t.perChannel[channel] = t.perChannel[channel].Add(amount)
	t.mu.Unlock()
}

func (t *UsageTracker) Total() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := decimal.Zero
	for _, v := range t.perChannel {
		total = total.Add(v)
	}
	return total
}

func (t *UsageTracker) ByChannel() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.perChannel))
	for ch, v := range t.perChannel {
		out[ch] = v.InexactFloat64()
	}
	return out
}

func (t *UsageTracker) Reset() {
	t.mu.Lock()
	t.perChannel = map[string]decimal.Decimal{}
	t.mu.Unlock()
}
