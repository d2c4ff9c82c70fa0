package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"tvbridge/internal/logger"
)

// CommandHandler builds the reply for one operator command.
type CommandHandler func(ctx context.Context) string

// CommandPoller long-polls the Telegram getUpdates endpoint and answers a
// small set of registered operator commands (/status, /positions, ...). Only
// messages from the configured chat are answered.
type CommandPoller struct {
	tg       *Telegram
	client   *http.Client
	handlers map[string]CommandHandler
	offset   int64
}

const pollTimeoutSeconds = 25

func NewCommandPoller(tg *Telegram) *CommandPoller {
	return &CommandPoller{
		tg: tg,
		// The HTTP timeout must outlive the long-poll window.
		client:   &http.Client{Timeout: (pollTimeoutSeconds + 10) * time.Second},
		handlers: map[string]CommandHandler{},
	}
}

// Handle registers a command ("/status") with its reply builder.
func (p *CommandPoller) Handle(command string, fn CommandHandler) {
	p.handlers[strings.ToLower(strings.TrimSpace(command))] = fn
}

// Run polls until the context ends. Safe to run in its own goroutine; all
// failures are logged and retried.
func (p *CommandPoller) Run(ctx context.Context) error {
	if p.tg == nil || p.tg.BotToken == "" {
		logger.Infof("Telegram command poller disabled: no bot token")
		<-ctx.Done()
		return ctx.Err()
	}
	logger.Infof("Telegram command poller started (%d commands)", len(p.handlers))
	for {
		updates, err := p.fetchUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warnf("telegram poll failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= p.offset {
				p.offset = u.UpdateID + 1
			}
			p.dispatch(ctx, u)
		}
	}
}

type tgUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

func (p *CommandPoller) fetchUpdates(ctx context.Context) ([]tgUpdate, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d",
		telegramAPIBase, p.tg.BotToken, pollTimeoutSeconds, p.offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("getUpdates status=%d", resp.StatusCode)
	}
	var body struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}
	if !body.OK {
		return nil, fmt.Errorf("getUpdates returned ok=false")
	}
	return body.Result, nil
}

func (p *CommandPoller) dispatch(ctx context.Context, u tgUpdate) {
	if u.Message == nil || !strings.HasPrefix(u.Message.Text, "/") {
		return
	}
	if strconv.FormatInt(u.Message.Chat.ID, 10) != p.tg.ChatID {
		return
	}
	command := strings.ToLower(strings.Fields(u.Message.Text)[0])
	// Group chats address commands as /status@botname.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	handler, ok := p.handlers[command]
	if !ok {
		if err := p.tg.SendText("Unknown command. Available: " + p.commandList()); err != nil {
			logger.Debugf("telegram reply failed: %v", err)
		}
		return
	}
	reply := handler(ctx)
	if strings.TrimSpace(reply) == "" {
		return
	}
	if err := p.tg.SendText(reply); err != nil {
		logger.Warnf("telegram reply to %s failed: %v", command, err)
	}
}

func (p *CommandPoller) commandList() string {
	names := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}
