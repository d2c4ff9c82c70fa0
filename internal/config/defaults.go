package config

import (
	"fmt"
	"strings"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":8991"
	defaultAppLogPath  = "/data/logs/tvbridge.log"
	defaultAppDBPath   = "/data/db/tvbridge.db"
	defaultAuditDBPath = "/data/db/api_audit.db"

	defaultExchangeTimeout = 15

	defaultRulesPath   = "configs/rules.yaml"
	defaultMaxAttempts = 5
	defaultBackoffBase = 1

	defaultChannelID         = "tv1"
	defaultChannelAmount     = 100
	defaultChannelMultiplier = 1
	defaultChannelLeverage   = 5

	defaultReportInterval    = 60
	defaultSweepIntervalMins = 15
	defaultSweepMaxAgeMins   = 60
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.applyChannelDefaults(keys)
	c.Monitor.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
		stringFieldDefault("app.audit_db_path", &a.AuditDBPath, defaultAuditDBPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Proxy.normalize()
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "exchange.timeout_seconds",
			need:  func() bool { return e.TimeoutSeconds <= 0 },
			apply: func() { e.TimeoutSeconds = defaultExchangeTimeout },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.rules_path", &t.RulesPath, defaultRulesPath),
		fieldDefault{
			key:   "trading.max_attempts",
			need:  func() bool { return t.MaxAttempts <= 0 },
			apply: func() { t.MaxAttempts = defaultMaxAttempts },
		},
		fieldDefault{
			key:   "trading.backoff_base_seconds",
			need:  func() bool { return t.BackoffBaseSeconds <= 0 },
			apply: func() { t.BackoffBaseSeconds = defaultBackoffBase },
		},
	)
}

func (c *Config) applyChannelDefaults(keys keySet) {
	if len(c.Channels) == 0 {
		c.Channels = []ChannelConfig{{
			ID:         defaultChannelID,
			Enabled:    true,
			Amount:     defaultChannelAmount,
			Multiplier: defaultChannelMultiplier,
			Leverage:   defaultChannelLeverage,
		}}
		return
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		ch.ID = strings.TrimSpace(ch.ID)
		if ch.ID == "" {
			ch.ID = fmt.Sprintf("channel_%d", i+1)
		}
		if ch.Multiplier <= 0 {
			ch.Multiplier = defaultChannelMultiplier
		}
		if ch.Leverage <= 0 {
			ch.Leverage = defaultChannelLeverage
		}
		ch.MarginType = strings.ToUpper(strings.TrimSpace(ch.MarginType))
	}
}

func (m *MonitorConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("monitor.heartbeat_enabled", &m.HeartbeatEnabled, true),
		fieldDefault{
			key:   "monitor.report_interval_minutes",
			need:  func() bool { return m.ReportIntervalMinutes <= 0 },
			apply: func() { m.ReportIntervalMinutes = defaultReportInterval },
		},
		fieldDefault{
			key:   "monitor.risk_sweep.interval_minutes",
			need:  func() bool { return m.RiskSweep.IntervalMinutes <= 0 },
			apply: func() { m.RiskSweep.IntervalMinutes = defaultSweepIntervalMins },
		},
		fieldDefault{
			key:   "monitor.risk_sweep.max_age_minutes",
			need:  func() bool { return m.RiskSweep.MaxAgeMinutes <= 0 },
			apply: func() { m.RiskSweep.MaxAgeMinutes = defaultSweepMaxAgeMins },
		},
	)
	if m.RiskSweep.MinLossPct < 0 {
		m.RiskSweep.MinLossPct = 0
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
