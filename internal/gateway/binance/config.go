package binance

import (
	"strings"
	"time"
)

type Config struct {
	APIKey    string
	APISecret string

	// Testnet switches the SDK to the futures testnet endpoints.
	Testnet     bool
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
