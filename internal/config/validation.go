package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := validateChannels(c.Channels); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Monitor.validate(); err != nil {
		return err
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	if !e.DryRun {
		if strings.TrimSpace(e.APIKey) == "" || strings.TrimSpace(e.APISecret) == "" {
			return fmt.Errorf("exchange requires api_key and api_secret unless dry_run is enabled")
		}
	}
	if e.TimeoutSeconds <= 0 {
		return fmt.Errorf("exchange.timeout_seconds must be > 0")
	}
	if e.Proxy.Enabled && e.Proxy.RESTURL == "" {
		return fmt.Errorf("exchange.proxy enabled but rest_url is empty")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if strings.TrimSpace(t.RulesPath) == "" {
		return fmt.Errorf("trading.rules_path cannot be empty")
	}
	if t.MaxAttempts < 1 {
		return fmt.Errorf("trading.max_attempts must be >= 1")
	}
	if t.BackoffBaseSeconds < 1 {
		return fmt.Errorf("trading.backoff_base_seconds must be >= 1")
	}
	return nil
}

func validateChannels(channels []ChannelConfig) error {
	if len(channels) == 0 {
		return fmt.Errorf("channels requires at least one entry")
	}
	seen := make(map[string]bool, len(channels))
	enabled := 0
	for _, ch := range channels {
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = true
		if !ch.Enabled {
			continue
		}
		enabled++
		if ch.UseBalancePct {
			if ch.BalancePct <= 0 || ch.BalancePct > 100 {
				return fmt.Errorf("channel %s: balance_pct must be in (0, 100]", ch.ID)
			}
		} else if ch.Amount <= 0 {
			return fmt.Errorf("channel %s: amount must be > 0 (or enable use_balance_pct)", ch.ID)
		}
		switch ch.MarginType {
		case "", "ISOLATED", "CROSSED":
		default:
			return fmt.Errorf("channel %s: margin_type must be ISOLATED or CROSSED", ch.ID)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("channels requires at least one enabled entry")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (m *MonitorConfig) validate() error {
	if m.ReportIntervalMinutes < 0 {
		return fmt.Errorf("monitor.report_interval_minutes must be >= 0")
	}
	if m.RiskSweep.Enabled {
		if m.RiskSweep.IntervalMinutes <= 0 {
			return fmt.Errorf("monitor.risk_sweep.interval_minutes must be > 0")
		}
		if m.RiskSweep.MaxAgeMinutes <= 0 {
			return fmt.Errorf("monitor.risk_sweep.max_age_minutes must be > 0")
		}
		if m.RiskSweep.MinLossPct < 0 {
			return fmt.Errorf("monitor.risk_sweep.min_loss_pct must be >= 0")
		}
	}
	return nil
}
