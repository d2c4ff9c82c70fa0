package config

import "strings"

// Config is the main configuration carrier for the bridge.
type Config struct {
	App      AppConfig       `toml:"app"`
	Exchange ExchangeConfig  `toml:"exchange"`
	Trading  TradingConfig   `toml:"trading"`
	Channels []ChannelConfig `toml:"channels"`
	Notify   NotifyConfig    `toml:"notify"`
	Monitor  MonitorConfig   `toml:"monitor"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	LogPath     string `toml:"log_path"`
	DBPath      string `toml:"db_path"`
	AuditDBPath string `toml:"audit_db_path"`
}

// ExchangeConfig describes the Binance futures account the bridge trades.
type ExchangeConfig struct {
	APIKey         string      `toml:"api_key"`
	APISecret      string      `toml:"api_secret"`
	Testnet        bool        `toml:"testnet"`
	DryRun         bool        `toml:"dry_run"`
	RESTBaseURL    string      `toml:"rest_base_url"`
	TimeoutSeconds int         `toml:"timeout_seconds"`
	Proxy          ProxyConfig `toml:"proxy"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// TradingConfig holds the execution-wide knobs: where the runtime rules file
// lives and how the retry policy backs off.
type TradingConfig struct {
	RulesPath          string `toml:"rules_path"`
	MaxAttempts        int    `toml:"max_attempts"`
	BackoffBaseSeconds int    `toml:"backoff_base_seconds"`
}

// ChannelConfig is one strategy lane: its own webhook target, queue, worker
// and capital policy. Capital basis is either amount*multiplier or a
// percentage of live available balance.
type ChannelConfig struct {
	ID            string  `toml:"id"`
	Enabled       bool    `toml:"enabled"`
	Amount        float64 `toml:"amount"`
	Multiplier    float64 `toml:"multiplier"`
	Leverage      int     `toml:"leverage"`
	UseBalancePct bool    `toml:"use_balance_pct"`
	BalancePct    float64 `toml:"balance_pct"`
	HedgeMode     bool    `toml:"hedge_mode"`
	MarginType    string  `toml:"margin_type"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	Commands bool   `toml:"commands"`
}

type MonitorConfig struct {
	HeartbeatEnabled      bool            `toml:"heartbeat_enabled"`
	ReportIntervalMinutes int             `toml:"report_interval_minutes"`
	RiskSweep             RiskSweepConfig `toml:"risk_sweep"`
}

// RiskSweepConfig controls the early-loss sweep. Off unless explicitly
// enabled; it closes positions on its own.
type RiskSweepConfig struct {
	Enabled         bool    `toml:"enabled"`
	IntervalMinutes int     `toml:"interval_minutes"`
	MaxAgeMinutes   int     `toml:"max_age_minutes"`
	MinLossPct      float64 `toml:"min_loss_pct"`
}

// EnabledChannels filters the configured channels down to active ones.
func (c *Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// keySet tracks which field paths the config file set explicitly, so
// defaults never override an intentional zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
