// Package notify delivers wall lifecycle events to Telegram: a bounded
// queue drained by a single worker, per-event cooldowns, and per-wall
// lifecycle deduplication so a flapping wall doesn't spam a chat.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wallwatch/internal/model"
)

// lifecycleState tracks what was last sent for a given wall_key, so a
// "lost" for a wall that was never confirmed doesn't get sent, and a
// repeat "confirmed" for the same wall doesn't either.
type lifecycleState int

const (
	lifecycleNone lifecycleState = iota
	lifecycleConfirmed
	lifecycleLost
)

type payload struct {
	event    model.WallEvent
	message  string
	chatID   int64
	instrURL string
}

// Notifier delivers formatted wall events to a set of Telegram chats.
type Notifier struct {
	token     string
	chatIDs   []int64
	parseMode string
	disablePreview bool

	sendEvents map[string]bool
	cooldowns  map[string]time.Duration

	queue  chan payload
	logger *zap.Logger
	http   *resty.Client

	instrumentURLs func(symbol string) string

	mu         sync.Mutex
	lastSentAt map[string]time.Time // key: symbol|event
	lifecycle  map[string]lifecycleState // key: wall_key

	wg   sync.WaitGroup
	stop chan struct{}

	onDeliver func(outcome string)
}

// Config configures a new Notifier.
type Config struct {
	Token                 string
	ChatIDs               []int64
	ParseMode             string
	DisableWebPagePreview bool
	SendEvents            []string
	CooldownSeconds       map[string]int
	QueueMaxSize          int
	InstrumentURL         func(symbol string) string
	OnDeliver             func(outcome string)
}

// New builds a Notifier and starts its worker goroutine.
func New(cfg Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	sendEvents := make(map[string]bool, len(cfg.SendEvents))
	for _, e := range cfg.SendEvents {
		sendEvents[e] = true
	}
	if len(sendEvents) == 0 {
		sendEvents[model.EventWallConfirmed] = true
		sendEvents[model.EventWallConsuming] = true
		sendEvents[model.EventWallLost] = true
	}
	cooldowns := make(map[string]time.Duration, len(cfg.CooldownSeconds))
	for k, v := range cfg.CooldownSeconds {
		cooldowns[k] = time.Duration(v) * time.Second
	}
	maxSize := cfg.QueueMaxSize
	if maxSize <= 0 {
		maxSize = 1000
	}
	n := &Notifier{
		token:          cfg.Token,
		chatIDs:        cfg.ChatIDs,
		parseMode:      cfg.ParseMode,
		disablePreview: cfg.DisableWebPagePreview,
		sendEvents:     sendEvents,
		cooldowns:      cooldowns,
		queue:          make(chan payload, maxSize),
		logger:         logger,
		http:           resty.New().SetTimeout(10 * time.Second),
		instrumentURLs: cfg.InstrumentURL,
		lastSentAt:     make(map[string]time.Time),
		lifecycle:      make(map[string]lifecycleState),
		stop:           make(chan struct{}),
		onDeliver:      cfg.OnDeliver,
	}
	n.wg.Add(1)
	go n.worker()
	return n
}

// QueueDepth reports the number of pending deliveries.
func (n *Notifier) QueueDepth() int {
	return len(n.queue)
}

// Notify enqueues a delivery for every configured chat, applying the
// event allow-list, cooldown and lifecycle dedup gates. It never blocks:
// a full queue drops the event and logs telegram_queue_full.
func (n *Notifier) Notify(ev model.WallEvent) {
	if !n.sendEvents[ev.Event] {
		return
	}
	if !n.cooldownAllows(ev) {
		return
	}
	if !n.lifecycleAllows(ev) {
		return
	}

	msg := FormatEventMessage(ev)
	var instrURL string
	if n.instrumentURLs != nil {
		instrURL = n.instrumentURLs(ev.Symbol)
	}

	for _, chatID := range n.chatIDs {
		p := payload{event: ev, message: msg, chatID: chatID, instrURL: instrURL}
		select {
		case n.queue <- p:
		default:
			n.logger.Warn("telegram_queue_full", zap.String("symbol", ev.Symbol), zap.String("event", ev.Event))
		}
	}
}

func (n *Notifier) cooldownAllows(ev model.WallEvent) bool {
	cd, ok := n.cooldowns[ev.Event]
	if !ok || cd <= 0 {
		return true
	}
	key := ev.Symbol + "|" + ev.Event
	n.mu.Lock()
	defer n.mu.Unlock()
	if last, ok := n.lastSentAt[key]; ok && ev.TS.Sub(last) < cd {
		return false
	}
	n.lastSentAt[key] = ev.TS
	return true
}

// lifecycleAllows deduplicates by wall_key: a confirmed event fires once
// per wall, a consuming event only fires for a wall that is in CONFIRMED
// state, and a lost event only fires for a wall that reached confirmed.
func (n *Notifier) lifecycleAllows(ev model.WallEvent) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := n.lifecycle[ev.WallKey]

	switch ev.Event {
	case model.EventWallConfirmed:
		if state == lifecycleConfirmed {
			return false
		}
		n.lifecycle[ev.WallKey] = lifecycleConfirmed
		return true
	case model.EventWallConsuming:
		return state == lifecycleConfirmed
	case model.EventWallLost:
		if state != lifecycleConfirmed {
			delete(n.lifecycle, ev.WallKey)
			return false
		}
		n.lifecycle[ev.WallKey] = lifecycleLost
		return true
	default:
		return true
	}
}

// Close stops accepting new work conceptually and waits for the queue to
// drain, then stops the worker. Callers should stop producing before
// calling Close.
func (n *Notifier) Close(ctx context.Context) error {
	close(n.stop)
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case p := <-n.queue:
			n.sendPayload(p)
		case <-n.stop:
			for {
				select {
				case p := <-n.queue:
					n.sendPayload(p)
				default:
					return
				}
			}
		}
	}
}

type sendTelegramMessageRequest struct {
	ChatID                int64       `json:"chat_id"`
	Text                  string      `json:"text"`
	ParseMode             string      `json:"parse_mode"`
	DisableWebPagePreview bool        `json:"disable_web_page_preview"`
	ReplyMarkup           interface{} `json:"reply_markup,omitempty"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (n *Notifier) sendPayload(p payload) {
	req := sendTelegramMessageRequest{
		ChatID:                p.chatID,
		Text:                  p.message,
		ParseMode:             n.parseMode,
		DisableWebPagePreview: n.disablePreview,
	}
	if p.instrURL != "" {
		req.ReplyMarkup = inlineKeyboard{InlineKeyboard: [][]inlineButton{{{Text: "Open instrument", URL: p.instrURL}}}}
	}

	url := n.apiURL("sendMessage")
	resp, err := n.http.R().SetBody(req).Post(url)
	if err != nil {
		n.logger.Warn("telegram_send_failed", zap.String("error", redactToken(err.Error(), n.token)))
		n.report("error")
		return
	}
	if resp.IsError() {
		n.logger.Warn("telegram_send_failed", zap.Int("status", resp.StatusCode()))
		n.report("error")
		return
	}
	n.report("ok")
}

func (n *Notifier) report(outcome string) {
	if n.onDeliver != nil {
		n.onDeliver(outcome)
	}
}

func (n *Notifier) apiURL(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", n.token, method)
}

// redactToken removes the bot token from a string before logging it.
func redactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
