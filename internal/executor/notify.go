package executor

import (
	"fmt"
	"time"

	"tvbridge/internal/gateway/notifier"
	"tvbridge/internal/logger"
	"tvbridge/internal/queue"
)

func (w *Worker) notifyExecuted(item queue.Item, out *outcome) {
	lines := []string{
		fmt.Sprintf("channel %s", w.channel.ID),
		fmt.Sprintf("side %s", item.Signal.Direction),
		fmt.Sprintf("quantity %s", out.quantity),
		fmt.Sprintf("price %s", out.price),
		fmt.Sprintf("leverage %dx", out.leverage),
		fmt.Sprintf("notional %s USDT", out.notional.StringFixed(2)),
	}
	if out.closed != "" {
		lines = append(lines, fmt.Sprintf("closed opposite position %s first", out.closed))
	}
	if out.warning != "" {
		lines = append(lines, out.warning)
	}
	if out.simulated {
		lines = append(lines, "simulated (dry-run)")
	} else {
		lines = append(lines, fmt.Sprintf("order id %d", out.orderID))
	}
	msg := notifier.StructuredMessage{
		Icon:      "🚀",
		Title:     fmt.Sprintf("Order Executed: %s", item.Signal.Symbol),
		Sections:  []notifier.MessageSection{{Title: "Execution Detail", Lines: lines}},
		Timestamp: time.Now().UTC(),
	}
	if err := w.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[worker:%s] telegram push failed (executed): %v", w.channel.ID, err)
	}
}

func (w *Worker) notifyFailed(item queue.Item, cause error) {
	lines := []string{
		fmt.Sprintf("channel %s", w.channel.ID),
		fmt.Sprintf("side %s", item.Signal.Direction),
		fmt.Sprintf("event %d after %d retries", item.ID, item.Retries),
		fmt.Sprintf("reason: %v", cause),
	}
	msg := notifier.StructuredMessage{
		Icon:      "❌",
		Title:     fmt.Sprintf("Execution Failed: %s", item.Signal.Symbol),
		Sections:  []notifier.MessageSection{{Title: "Detail", Lines: lines}},
		Timestamp: time.Now().UTC(),
	}
	if err := w.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[worker:%s] telegram push failed (failed): %v", w.channel.ID, err)
	}
}

func (w *Worker) notifyFlagged(item queue.Item, cause error) {
	lines := []string{
		fmt.Sprintf("channel %s", w.channel.ID),
		fmt.Sprintf("side %s", item.Signal.Direction),
		fmt.Sprintf("event %d attempt %d", item.ID, item.Retries),
		fmt.Sprintf("last error: %v", cause),
		"kept in queue, retries continue at the backoff ceiling",
	}
	msg := notifier.StructuredMessage{
		Icon:      "⚠️",
		Title:     fmt.Sprintf("Signal Stuck Retrying: %s", item.Signal.Symbol),
		Sections:  []notifier.MessageSection{{Title: "Detail", Lines: lines}},
		Timestamp: time.Now().UTC(),
	}
	if err := w.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("[worker:%s] telegram push failed (flagged): %v", w.channel.ID, err)
	}
}
