package intake

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tvbridge/internal/logger"
	"tvbridge/internal/queue"
	"tvbridge/internal/rules"
	"tvbridge/internal/store/model"
)

// handleOrders lists recent order audit rows, newest first, optionally
// filtered by channel and/or symbol.
func (r *Router) handleOrders(c *gin.Context) {
	channel := strings.TrimSpace(c.Query("channel"))
	sym := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	limit := clampLimit(c, 50, 500)
	list, err := r.orders.ListRecent(c.Request.Context(), channel, sym, limit)
	if err != nil {
		logger.Errorf("[api] orders list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// handlePositions returns the ledger state, the bridge's own view of what
// is open. It deliberately does not query the exchange.
func (r *Router) handlePositions(c *gin.Context) {
	records, err := r.ledger.List(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] positions list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": records, "count": len(records)})
}

func (r *Router) handleQueue(c *gin.Context) {
	queues := r.registry.All()
	stats := make([]queue.Stats, 0, len(queues))
	for _, q := range queues {
		st, err := q.Stats(c.Request.Context())
		if err != nil {
			logger.Warnf("[api] queue stats failed channel=%s err=%v", q.Channel(), err)
			st = queue.Stats{Channel: q.Channel(), Depth: q.Depth()}
		}
		stats = append(stats, st)
	}
	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

func (r *Router) handleSnapshots(c *gin.Context) {
	limit := clampLimit(c, 100, 1000)
	list, err := r.snapshots.ListRecent(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[api] snapshots list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": list, "count": len(list)})
}

func (r *Router) handleRulesGet(c *gin.Context) {
	c.JSON(http.StatusOK, r.rules.CurrentSnapshot())
}

// handleRulesUpdate is the persisting setter: the new policy is validated,
// written to the rules file, and only then swapped in.
func (r *Router) handleRulesUpdate(c *gin.Context) {
	var next rules.Rules
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rules document: " + err.Error()})
		return
	}
	if err := r.rules.Update(next); err != nil {
		logger.Warnf("[api] rules update rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := r.rules.CurrentSnapshot()
	logger.Infof("[api] rules updated ip=%s version=%d", c.ClientIP(), snap.Version)
	c.JSON(http.StatusOK, snap)
}

func (r *Router) handleAudit(c *gin.Context) {
	if r.audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log disabled"})
		return
	}
	endpoint := strings.TrimSpace(c.Query("endpoint"))
	limit := clampLimit(c, 100, 500)
	entries, err := r.audit.List(c.Request.Context(), endpoint, limit)
	if err != nil {
		logger.Errorf("[api] audit list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": entries, "count": len(entries)})
}

// handleResetUsed zeroes the in-memory used-allocation counter and records
// a fresh snapshot so the balance history shows the reset point. The
// snapshot is best-effort; the reset itself never fails.
func (r *Router) handleResetUsed(c *gin.Context) {
	before := r.usage.Total()
	byChannel := r.usage.ByChannel()
	r.usage.Reset()
	logger.Infof("[api] used allocation reset ip=%s was=%s", c.ClientIP(), before.StringFixed(2))

	resp := gin.H{"status": "ok", "previous_used": before.InexactFloat64(), "previous_by_channel": byChannel}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	balance, err := r.venue.GetBalance(ctx)
	if err != nil {
		logger.Warnf("[api] reset-used balance fetch failed, snapshot skipped: %v", err)
		resp["snapshot"] = false
		c.JSON(http.StatusOK, resp)
		return
	}
	snap := &model.BalanceSnapshotModel{
		TotalWalletBalance: balance.Wallet.InexactFloat64(),
		AvailableBalance:   balance.Available.InexactFloat64(),
		UsedAllocationUSD:  0,
		Note:               "used allocation reset",
	}
	if err := r.snapshots.Create(ctx, snap); err != nil {
		logger.Warnf("[api] reset-used snapshot write failed: %v", err)
		resp["snapshot"] = false
		c.JSON(http.StatusOK, resp)
		return
	}
	resp["snapshot"] = true
	c.JSON(http.StatusOK, resp)
}

func clampLimit(c *gin.Context, def, max int) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}
