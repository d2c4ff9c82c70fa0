package app

import (
	"fmt"
	"strings"

	"tvbridge/internal/config"
	"tvbridge/internal/rules"
)

// StartupSummary is the operator-facing dump of the effective runtime
// configuration, printed once before the services start.
type StartupSummary struct {
	Env      string
	HTTPAddr string
	DryRun   bool
	Testnet  bool

	DBPath      string
	AuditDBPath string
	RulesPath   string

	Channels []ChannelSummary
	Rules    rules.Rules

	HeartbeatEnabled      bool
	ReportIntervalMinutes int
	RiskSweepEnabled      bool
}

type ChannelSummary struct {
	ID       string
	Capital  string
	Leverage int
	Hedge    bool
	Margin   string
}

func newStartupSummary(cfg *config.Config, channels []config.ChannelConfig, r rules.Rules, addr string) *StartupSummary {
	s := &StartupSummary{
		Env:                   cfg.App.Env,
		HTTPAddr:              addr,
		DryRun:                cfg.Exchange.DryRun,
		Testnet:               cfg.Exchange.Testnet,
		DBPath:                cfg.App.DBPath,
		AuditDBPath:           cfg.App.AuditDBPath,
		RulesPath:             cfg.Trading.RulesPath,
		Rules:                 r,
		HeartbeatEnabled:      cfg.Monitor.HeartbeatEnabled,
		ReportIntervalMinutes: cfg.Monitor.ReportIntervalMinutes,
		RiskSweepEnabled:      cfg.Monitor.RiskSweep.Enabled,
	}
	for _, ch := range channels {
		capital := fmt.Sprintf("%.2f x %.2f USDT", ch.Amount, ch.Multiplier)
		if ch.UseBalancePct {
			capital = fmt.Sprintf("%.1f%% of available balance", ch.BalancePct)
		}
		margin := ch.MarginType
		if margin == "" {
			margin = "(rules)"
		}
		s.Channels = append(s.Channels, ChannelSummary{
			ID:       ch.ID,
			Capital:  capital,
			Leverage: ch.Leverage,
			Hedge:    ch.HedgeMode,
			Margin:   margin,
		})
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[RUNTIME]")
	fmt.Printf("  env:        %s\n", s.Env)
	fmt.Printf("  http:       %s\n", s.HTTPAddr)
	fmt.Printf("  mode:       %s\n", modeLabel(s.DryRun, s.Testnet))
	fmt.Printf("  state db:   %s\n", s.DBPath)
	if s.AuditDBPath != "" {
		fmt.Printf("  audit db:   %s\n", s.AuditDBPath)
	}
	fmt.Printf("  rules file: %s\n", s.RulesPath)
	fmt.Println()

	fmt.Println("[CHANNELS]")
	if len(s.Channels) == 0 {
		fmt.Println("  (none enabled)")
	}
	for _, ch := range s.Channels {
		fmt.Printf("  > %s\n", ch.ID)
		fmt.Printf("      capital:  %s\n", ch.Capital)
		fmt.Printf("      leverage: %dx\n", ch.Leverage)
		fmt.Printf("      margin:   %s  hedge: %t\n", ch.Margin, ch.Hedge)
	}
	fmt.Println()

	fmt.Println("[TRADING RULES]")
	fmt.Printf("  leverage:    mode=%s default=%d max=%d\n",
		s.Rules.Leverage.Mode, s.Rules.Leverage.Default, s.Rules.Leverage.Max)
	fmt.Printf("  margin type: %s\n", s.Rules.MarginType)
	whitelist := "(all symbols allowed)"
	if len(s.Rules.Whitelist) > 0 {
		whitelist = strings.Join(s.Rules.Whitelist, ", ")
	}
	fmt.Printf("  whitelist:   %s\n", whitelist)
	fmt.Println()

	fmt.Println("[MONITORING]")
	fmt.Printf("  heartbeat:      %t\n", s.HeartbeatEnabled)
	fmt.Printf("  balance report: every %d min\n", s.ReportIntervalMinutes)
	fmt.Printf("  risk sweep:     %t\n", s.RiskSweepEnabled)
	fmt.Println(strings.Repeat("=", 80))
}

func modeLabel(dryRun, testnet bool) string {
	switch {
	case dryRun && testnet:
		return "DRY-RUN (testnet)"
	case dryRun:
		return "DRY-RUN"
	case testnet:
		return "LIVE (testnet)"
	default:
		return "LIVE"
	}
}
