package intake

import (
	"github.com/gin-gonic/gin"

	"tvbridge/internal/config"
	"tvbridge/internal/executor"
	"tvbridge/internal/gateway/exchange"
	"tvbridge/internal/ledger"
	"tvbridge/internal/queue"
	"tvbridge/internal/rules"
	"tvbridge/internal/store"
	"tvbridge/internal/store/auditlog"
)

// Router holds the handler dependencies. Audit may be nil when the audit
// trail is disabled; the audit endpoint answers 503 in that case.
type Router struct {
	channels  map[string]config.ChannelConfig
	registry  *queue.Registry
	rules     *rules.Registry
	ledger    *ledger.Ledger
	orders    store.OrderRepository
	snapshots store.SnapshotRepository
	audit     *auditlog.Store
	usage     *executor.UsageTracker
	venue     exchange.Exchange
}

// RouterConfig wires the router. Channels must be the enabled set; webhook
// posts for anything else are rejected.
type RouterConfig struct {
	Channels  []config.ChannelConfig
	Registry  *queue.Registry
	Rules     *rules.Registry
	Ledger    *ledger.Ledger
	Orders    store.OrderRepository
	Snapshots store.SnapshotRepository
	Audit     *auditlog.Store
	Usage     *executor.UsageTracker
	Venue     exchange.Exchange
}

func NewRouter(cfg RouterConfig) *Router {
	byID := make(map[string]config.ChannelConfig, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		byID[ch.ID] = ch
	}
	return &Router{
		channels:  byID,
		registry:  cfg.Registry,
		rules:     cfg.Rules,
		ledger:    cfg.Ledger,
		orders:    cfg.Orders,
		snapshots: cfg.Snapshots,
		audit:     cfg.Audit,
		usage:     cfg.Usage,
		venue:     cfg.Venue,
	}
}

// Register mounts the webhook route and the /api operator routes.
func (r *Router) Register(engine *gin.Engine) {
	if engine == nil {
		return
	}
	engine.POST("/webhook/:channel", r.handleWebhook)

	api := engine.Group("/api")
	api.GET("/orders", r.handleOrders)
	api.GET("/positions", r.handlePositions)
	api.GET("/queue", r.handleQueue)
	api.GET("/snapshots", r.handleSnapshots)
	api.GET("/rules", r.handleRulesGet)
	api.POST("/rules", r.handleRulesUpdate)
	api.GET("/audit", r.handleAudit)
	api.GET("/chart/balance", r.handleBalanceChart)
	api.POST("/admin/reset-used", r.handleResetUsed)
}
