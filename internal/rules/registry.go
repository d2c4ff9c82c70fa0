// Package rules holds the mutable trading policy: leverage resolution,
// margin type and the symbol whitelist. The policy lives in a YAML file so
// it survives restarts and can be edited out-of-band; edits are picked up by
// a file watcher, API updates go through Update which persists and reloads.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/symbol"
)

// rulesSchema is the document-shape contract enforced on top of the typed
// checks, so a hand-edited file fails loudly with a schema path instead of a
// half-applied policy.
var rulesSchema = jsonschema.MustCompileString("rules.json", `{
	"type": "object",
	"required": ["leverage", "margin_type"],
	"properties": {
		"leverage": {
			"type": "object",
			"required": ["mode", "default"],
			"properties": {
				"mode": {"enum": ["fixed", "webhook", "per_symbol"]},
				"default": {"type": "integer", "minimum": 1},
				"max": {"type": "integer", "minimum": 0},
				"per_symbol": {
					"type": "object",
					"additionalProperties": {"type": "integer", "minimum": 1}
				}
			}
		},
		"margin_type": {"enum": ["ISOLATED", "CROSSED"]},
		"whitelist": {"type": "array", "items": {"type": "string"}}
	}
}`)

// Leverage resolution modes.
const (
	ModeFixed     = "fixed"      // always the configured default
	ModeWebhook   = "webhook"    // take the signal's leverage hint when present
	ModePerSymbol = "per_symbol" // per-symbol table with default fallback
)

type LeverageRules struct {
	Mode      string         `mapstructure:"mode" yaml:"mode" json:"mode"`
	Default   int            `mapstructure:"default" yaml:"default" json:"default"`
	Max       int            `mapstructure:"max" yaml:"max" json:"max"`
	PerSymbol map[string]int `mapstructure:"per_symbol" yaml:"per_symbol,omitempty" json:"per_symbol,omitempty"`
}

// Rules is the full runtime policy document.
type Rules struct {
	Leverage   LeverageRules `mapstructure:"leverage" yaml:"leverage" json:"leverage"`
	MarginType string        `mapstructure:"margin_type" yaml:"margin_type" json:"margin_type"`
	// Whitelist restricts tradable symbols; empty means every symbol is
	// allowed.
	Whitelist []string `mapstructure:"whitelist" yaml:"whitelist,omitempty" json:"whitelist,omitempty"`
}

// Snapshot is an immutable view of the policy at one load generation.
type Snapshot struct {
	Version  int64     `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
	Rules    Rules     `json:"rules"`
}

// ChangeListener fires after every successful reload.
type ChangeListener func(Snapshot)

// Registry owns the policy file.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func Defaults() Rules {
	return Rules{
		Leverage: LeverageRules{
			Mode:    ModeFixed,
			Default: 5,
			Max:     20,
		},
		MarginType: "ISOLATED",
	}
}

// NewRegistry loads the policy file, creating it with defaults when absent,
// and watches it for external edits.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rules registry requires a file path")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeRulesFile(path, Defaults()); err != nil {
			return nil, fmt.Errorf("seed rules file: %w", err)
		}
		logger.Infof("Rules file %s not found, created with defaults", filepath.Base(path))
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules file failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("rules reload failed, keeping previous policy: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Current returns the active policy.
func (r *Registry) Current() Rules {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRules(r.snapshot.Rules)
}

// CurrentSnapshot includes load metadata for the admin API.
func (r *Registry) CurrentSnapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := r.snapshot
	snap.Rules = cloneRules(snap.Rules)
	return snap
}

// Update is the single write path for the policy: validate, persist to the
// file, then swap the in-memory snapshot. The watcher reloading our own
// write afterwards is harmless.
func (r *Registry) Update(next Rules) error {
	normalized, err := normalize(next)
	if err != nil {
		return err
	}
	if err := writeRulesFile(r.path, normalized); err != nil {
		return fmt.Errorf("persist rules: %w", err)
	}
	if err := r.v.ReadInConfig(); err != nil {
		return fmt.Errorf("re-read rules file: %w", err)
	}
	if err := r.reload(); err != nil {
		return err
	}
	r.notifyListeners()
	return nil
}

// OnChange registers a listener for reloads.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// ResolveLeverage applies the policy to one signal. channelDefault is the
// channel's configured leverage, hint the signal's optional override. The
// result is always clamped into [1, Max].
func (r *Registry) ResolveLeverage(channelDefault int, sym string, hint int) int {
	rules := r.Current()
	lev := channelDefault
	if rules.Leverage.Default > 0 {
		lev = rules.Leverage.Default
	}
	switch rules.Leverage.Mode {
	case ModeWebhook:
		if hint > 0 {
			lev = hint
		}
	case ModePerSymbol:
		if v, ok := rules.Leverage.PerSymbol[strings.ToUpper(sym)]; ok && v > 0 {
			lev = v
		}
	}
	if lev < 1 {
		lev = 1
	}
	if rules.Leverage.Max > 0 && lev > rules.Leverage.Max {
		lev = rules.Leverage.Max
	}
	return lev
}

// SymbolAllowed checks the whitelist. An empty whitelist allows everything.
func (r *Registry) SymbolAllowed(sym string) bool {
	rules := r.Current()
	if len(rules.Whitelist) == 0 {
		return true
	}
	norm := symbol.Normalize(sym)
	for _, allowed := range rules.Whitelist {
		if symbol.Normalize(allowed) == norm {
			return true
		}
	}
	return false
}

func (r *Registry) reload() error {
	cfg, err := readRulesFile(r.path)
	if err != nil {
		return err
	}
	normalized, err := normalize(cfg)
	if err != nil {
		return fmt.Errorf("rules file %s invalid: %w", filepath.Base(r.path), err)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Rules:    normalized,
	}
	r.mu.Unlock()
	logger.Infof("Trading rules loaded from %s (leverage mode=%s default=%dx max=%dx, margin=%s, whitelist=%d)",
		filepath.Base(r.path), normalized.Leverage.Mode, normalized.Leverage.Default,
		normalized.Leverage.Max, normalized.MarginType, len(normalized.Whitelist))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	snap.Rules = cloneRules(snap.Rules)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("rules listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func normalize(in Rules) (Rules, error) {
	out := cloneRules(in)
	out.Leverage.Mode = strings.ToLower(strings.TrimSpace(out.Leverage.Mode))
	if out.Leverage.Mode == "" {
		out.Leverage.Mode = ModeFixed
	}
	switch out.Leverage.Mode {
	case ModeFixed, ModeWebhook, ModePerSymbol:
	default:
		return Rules{}, fmt.Errorf("unknown leverage mode %q", out.Leverage.Mode)
	}
	if out.Leverage.Default < 1 {
		return Rules{}, fmt.Errorf("leverage default must be >= 1, got %d", out.Leverage.Default)
	}
	if out.Leverage.Max > 0 && out.Leverage.Max < out.Leverage.Default {
		return Rules{}, fmt.Errorf("leverage max %d below default %d", out.Leverage.Max, out.Leverage.Default)
	}
	perSymbol := make(map[string]int, len(out.Leverage.PerSymbol))
	for sym, lev := range out.Leverage.PerSymbol {
		key := symbol.Normalize(sym)
		if key == "" {
			return Rules{}, fmt.Errorf("per-symbol leverage has empty symbol")
		}
		if lev < 1 {
			return Rules{}, fmt.Errorf("per-symbol leverage for %s must be >= 1, got %d", key, lev)
		}
		perSymbol[key] = lev
	}
	out.Leverage.PerSymbol = perSymbol

	out.MarginType = strings.ToUpper(strings.TrimSpace(out.MarginType))
	if out.MarginType == "" {
		out.MarginType = "ISOLATED"
	}
	if out.MarginType != "ISOLATED" && out.MarginType != "CROSSED" {
		return Rules{}, fmt.Errorf("unknown margin type %q", out.MarginType)
	}

	whitelist := make([]string, 0, len(out.Whitelist))
	for _, sym := range out.Whitelist {
		norm := symbol.Normalize(sym)
		if norm == "" {
			continue
		}
		whitelist = append(whitelist, norm)
	}
	out.Whitelist = whitelist

	if err := validateSchema(out); err != nil {
		return Rules{}, err
	}
	return out, nil
}

func validateSchema(rules Rules) error {
	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules for schema check: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode rules for schema check: %w", err)
	}
	if err := rulesSchema.Validate(doc); err != nil {
		return fmt.Errorf("rules schema violation: %w", err)
	}
	return nil
}

func cloneRules(src Rules) Rules {
	dst := src
	if src.Leverage.PerSymbol != nil {
		dst.Leverage.PerSymbol = make(map[string]int, len(src.Leverage.PerSymbol))
		for k, v := range src.Leverage.PerSymbol {
			dst.Leverage.PerSymbol[k] = v
		}
	}
	if src.Whitelist != nil {
		dst.Whitelist = append([]string(nil), src.Whitelist...)
	}
	return dst
}

func readRulesFile(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file failed: %w", err)
	}
	var cfg Rules
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Rules{}, fmt.Errorf("parse rules file failed: %w", err)
	}
	return cfg, nil
}

func writeRulesFile(path string, rules Rules) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	raw, err := yaml.Marshal(rules)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
