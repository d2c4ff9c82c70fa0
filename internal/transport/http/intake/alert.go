package intake

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/convert"
	"tvbridge/internal/pkg/jsonutil"
	"tvbridge/internal/pkg/symbol"
	"tvbridge/internal/signal"
)

const maxAlertBodyBytes = 64 * 1024

// handleWebhook ingests one TradingView alert. Every outcome answers HTTP
// 200: a non-200 would make the alert source retry and duplicate the
// signal, so rejection travels in the envelope instead of the status code.
func (r *Router) handleWebhook(c *gin.Context) {
	channel := strings.TrimSpace(c.Param("channel"))
	if _, ok := r.channels[channel]; !ok {
		logger.Warnf("[api] webhook for unknown channel %q ip=%s", channel, c.ClientIP())
		c.JSON(http.StatusOK, rejected(fmt.Sprintf("unknown channel %q", channel)))
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAlertBodyBytes))
	if err != nil {
		logger.Warnf("[api] webhook body read failed channel=%s ip=%s: %v", channel, c.ClientIP(), err)
		c.JSON(http.StatusOK, rejected("unreadable request body"))
		return
	}

	sig, err := parseAlert(string(body))
	if err != nil {
		logger.Warnf("[api] webhook rejected channel=%s ip=%s: %v", channel, c.ClientIP(), err)
		c.JSON(http.StatusOK, rejected(err.Error()))
		return
	}
	if !r.rules.SymbolAllowed(sig.Symbol) {
		logger.Warnf("[api] webhook rejected channel=%s symbol=%s: not whitelisted", channel, sig.Symbol)
		c.JSON(http.StatusOK, rejected(fmt.Sprintf("symbol %s is not whitelisted", sig.Symbol)))
		return
	}

	id, err := r.registry.Enqueue(c.Request.Context(), channel, sig)
	if err != nil {
		// Acknowledge anyway: a retry from the alert source would only
		// duplicate the signal once persistence recovers.
		logger.Errorf("[api] enqueue failed channel=%s symbol=%s, signal lost: %v", channel, sig.Symbol, err)
		c.JSON(http.StatusOK, accepted("signal accepted", ""))
		return
	}
	logger.Infof("[api] signal queued channel=%s symbol=%s direction=%s id=%d ip=%s",
		channel, sig.Symbol, sig.Direction, id, c.ClientIP())
	c.JSON(http.StatusOK, accepted("signal queued", strconv.FormatUint(uint64(id), 10)))
}

// parseAlert extracts the JSON object from the (possibly prose-wrapped)
// body, checks its shape and normalizes it into a signal.
func parseAlert(raw string) (signal.Signal, error) {
	payload, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return signal.Signal{}, fmt.Errorf("no JSON object found in body")
	}
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return signal.Signal{}, fmt.Errorf("invalid JSON payload: %w", err)
	}
	if err := alertSchema.Validate(doc); err != nil {
		return signal.Signal{}, fmt.Errorf("payload must name a symbol (symbol|ticker) and a direction (direction|order|side)")
	}

	sym := symbol.Normalize(firstString(payload, "symbol", "ticker"))
	if sym == "" {
		return signal.Signal{}, fmt.Errorf("missing symbol")
	}
	dir, err := signal.ParseDirection(firstString(payload, "direction", "order", "side"))
	if err != nil {
		return signal.Signal{}, err
	}

	sig := signal.Signal{
		Symbol:    sym,
		Direction: dir,
		Note:      strings.TrimSpace(gjson.Get(payload, "note").String()),
		Raw:       payload,
	}
	if qty := firstNumber(payload, "qty", "quantity"); qty > 0 {
		sig.Quantity = decimal.NewFromFloat(qty)
	}
	if price := firstNumber(payload, "price"); price > 0 {
		sig.Price = decimal.NewFromFloat(price)
	}
	if lev := firstNumber(payload, "leverage"); lev > 0 {
		sig.Leverage = int(lev)
	}
	return sig, nil
}

func firstString(payload string, keys ...string) string {
	for _, key := range keys {
		if res := gjson.Get(payload, key); res.Exists() {
			if s := strings.TrimSpace(res.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstNumber coerces the first present key to a float; "0.5" and 0.5 are
// both valid alert spellings.
func firstNumber(payload string, keys ...string) float64 {
	for _, key := range keys {
		if res := gjson.Get(payload, key); res.Exists() {
			return convert.ToFloat64(res.Value())
		}
	}
	return 0
}
