// Package telegrambot implements the inbound command bot: long-polling
// Telegram for updates and dispatching /start, /help, /ping, /status,
// /list, /watch, /unwatch and /smoke.
package telegrambot

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wallwatch/internal/model"
	"wallwatch/internal/notify"
	"wallwatch/internal/runtimestate"
)

// SymbolUpdater is implemented by the market-data manager.
type SymbolUpdater interface {
	UpdateSymbols(symbols []string)
	GetSymbols() []string
}

// ParsedCommand is a normalized slash command.
type ParsedCommand struct {
	Name string
	Args []string
}

// ParseCommand strips the leading slash and any "@botname" suffix and
// lowercases the command name.
func ParseCommand(text string) (ParsedCommand, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ParsedCommand{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	return ParsedCommand{Name: strings.ToLower(name), Args: fields[1:]}, true
}

// ParseSymbols splits comma-separated symbol lists across all args,
// uppercases and deduplicates while preserving first-seen order.
func ParseSymbols(args []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			s := strings.ToUpper(strings.TrimSpace(part))
			if s == "" {
				continue
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

const helpText = `<b>wallwatch</b>
/ping - liveness check
/status - connection + last wall event
/list - currently watched symbols
/watch SYM[,SYM...] - add symbols
/unwatch SYM[,SYM...] - remove symbols
/smoke - send a synthetic test alert
/help - this message`

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dh%dm%ds", h, m, s)
}

func formatStatus(snap runtimestate.Snapshot, symbols []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Connected: %v\n", snap.Connected)
	fmt.Fprintf(&b, "Uptime: %s\n", formatUptime(time.Since(snap.StartedAt)))
	sort.Strings(symbols)
	fmt.Fprintf(&b, "Symbols: %s\n", html.EscapeString(strings.Join(symbols, ", ")))
	if snap.LastWallEvent != nil {
		ev := snap.LastWallEvent
		fmt.Fprintf(&b, "Last event: %s %s %s @ %.4f\n", ev.EventType, html.EscapeString(ev.Symbol), ev.Side, ev.Price)
	} else {
		b.WriteString("Last event: none\n")
	}
	return b.String()
}

// Handler dispatches parsed commands to their effect and returns the
// reply text.
type Handler struct {
	allowedUserIDs map[int64]struct{}
	manager        SymbolUpdater
	runtime        *runtimestate.Runtime
	maxSymbols     int
	notifier       *notify.Notifier
	smokeSymbol    func() string
}

// NewHandler builds a command Handler. An empty allowedUserIDs set means
// no authorization is enforced (anyone may issue commands).
func NewHandler(allowedUserIDs []int64, manager SymbolUpdater, runtime *runtimestate.Runtime, maxSymbols int, notifier *notify.Notifier, smokeSymbol func() string) *Handler {
	allowed := make(map[int64]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Handler{
		allowedUserIDs: allowed,
		manager:        manager,
		runtime:        runtime,
		maxSymbols:     maxSymbols,
		notifier:       notifier,
		smokeSymbol:    smokeSymbol,
	}
}

// HandleCommand authorizes and dispatches a single command, returning the
// reply text to send back to the chat.
func (h *Handler) HandleCommand(userID int64, cmd ParsedCommand) string {
	if len(h.allowedUserIDs) > 0 {
		if _, ok := h.allowedUserIDs[userID]; !ok {
			return "Not authorized."
		}
	}

	switch cmd.Name {
	case "start", "help":
		return helpText
	case "ping":
		return "pong"
	case "status":
		return formatStatus(h.runtime.Snapshot(), h.manager.GetSymbols())
	case "list":
		symbols := h.manager.GetSymbols()
		sort.Strings(symbols)
		if len(symbols) == 0 {
			return "No symbols watched."
		}
		return strings.Join(symbols, ", ")
	case "watch":
		requested := ParseSymbols(cmd.Args)
		if len(requested) == 0 {
			return "Usage: /watch SYM[,SYM...]"
		}
		current := h.manager.GetSymbols()
		merged := mergeSymbols(current, requested)
		if len(merged) > h.maxSymbols {
			return fmt.Sprintf("Refused: would exceed max_symbols=%d", h.maxSymbols)
		}
		h.manager.UpdateSymbols(merged)
		return "Watching: " + strings.Join(merged, ", ")
	case "unwatch":
		requested := ParseSymbols(cmd.Args)
		current := h.manager.GetSymbols()
		remaining, removed := subtractSymbols(current, requested)
		h.manager.UpdateSymbols(remaining)
		if len(removed) == 0 {
			return "No matching symbols to remove."
		}
		return "Removed: " + strings.Join(removed, ", ")
	case "smoke":
		return h.smoke()
	default:
		return "Unknown command. Use /help."
	}
}

func (h *Handler) smoke() string {
	symbol := "SMOKE"
	if h.smokeSymbol != nil {
		if s := h.smokeSymbol(); s != "" {
			symbol = s
		}
	}
	ev := model.WallEvent{
		Event:  model.EventWallConfirmed,
		Symbol: symbol,
		Side:   model.SideBuy,
		Price:  100,
		Qty:    1000,
		WallKey: model.BuildWallKey("smoke", model.SideBuy, 100),
		TS:     time.Now(),
	}
	if h.notifier != nil {
		h.notifier.Notify(ev)
	}
	return "Sent synthetic alert for " + symbol
}

func mergeSymbols(current, add []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range append(append([]string{}, current...), add...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func subtractSymbols(current, remove []string) ([]string, []string) {
	removeSet := make(map[string]struct{}, len(remove))
	for _, s := range remove {
		removeSet[s] = struct{}{}
	}
	var remaining, removed []string
	for _, s := range current {
		if _, ok := removeSet[s]; ok {
			removed = append(removed, s)
		} else {
			remaining = append(remaining, s)
		}
	}
	return remaining, removed
}

// Poller long-polls the Telegram getUpdates endpoint and dispatches
// incoming messages to a Handler.
type Poller struct {
	token   string
	http    *resty.Client
	handler *Handler
	logger  *zap.Logger
	timeout int
}

// NewPoller builds a Poller. timeoutSeconds is the long-poll timeout
// passed to getUpdates.
func NewPoller(token string, handler *Handler, logger *zap.Logger, timeoutSeconds int) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		token:   token,
		http:    resty.New().SetTimeout(time.Duration(timeoutSeconds+10) * time.Second),
		handler: handler,
		logger:  logger,
		timeout: timeoutSeconds,
	}
}

type tgUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
	} `json:"message"`
}

type tgGetUpdatesResponse struct {
	OK     bool       `json:"ok"`
	Result []tgUpdate `json:"result"`
}

// Run polls for updates until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var resp tgGetUpdatesResponse
		_, err := p.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"timeout": fmt.Sprintf("%d", p.timeout),
				"offset":  fmt.Sprintf("%d", offset),
			}).
			SetResult(&resp).
			Get(fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates", p.token))
		if err != nil {
			p.logger.Warn("telegram_poll_failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			if delay *= 2; delay > 30*time.Second {
				delay = 30 * time.Second
			}
			continue
		}
		delay = time.Second
		for _, u := range resp.Result {
			offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" || u.Message.Chat.ID == 0 {
				continue
			}
			cmd, ok := ParseCommand(u.Message.Text)
			if !ok {
				continue
			}
			reply := p.handler.HandleCommand(u.Message.From.ID, cmd)
			p.sendReply(ctx, u.Message.Chat.ID, reply)
		}
	}
}

func (p *Poller) sendReply(ctx context.Context, chatID int64, text string) {
	_, err := p.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Post(fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", p.token))
	if err != nil {
		p.logger.Warn("telegram_send_failed", zap.Error(err))
	}
}
