// Package manager supervises the upstream market-data connection: it
// resolves the subscribed symbol set, streams order book and trade
// updates into a wall.Detector, forwards lifecycle events to a notifier, and
// retries with exponential backoff on transport failure.
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wallwatch/internal/model"
	"wallwatch/internal/runtimestate"
	"wallwatch/internal/streamclient"
	"wallwatch/internal/wall"
	"wallwatch/pkg/backoff"
)

// AlertSink receives the lifecycle events produced by the detector; the
// detector's alerts are not forwarded.
type AlertSink interface {
	Notify(ev model.WallEvent)
}

// Manager owns the subscribed symbol set and the supervised stream loop.
type Manager struct {
	client   streamclient.Client
	detector *wall.Detector
	runtime  *runtimestate.Runtime
	sink     AlertSink
	logger   *zap.Logger

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu      sync.Mutex
	symbols map[string]struct{}

	restart chan struct{}
}

// New builds a Manager. backoffInitial/backoffMax govern the retry delay
// applied after a stream error.
func New(client streamclient.Client, detector *wall.Detector, runtime *runtimestate.Runtime, sink AlertSink, logger *zap.Logger, backoffInitial, backoffMax time.Duration) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:         client,
		detector:       detector,
		runtime:        runtime,
		sink:           sink,
		logger:         logger,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
		symbols:        make(map[string]struct{}),
		restart:        make(chan struct{}, 1),
	}
}

// UpdateSymbols replaces the subscribed symbol set, normalizing to
// uppercase and deduplicating, then requests a stream restart so the new
// set takes effect.
func (m *Manager) UpdateSymbols(symbols []string) {
	m.mu.Lock()
	m.symbols = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		m.symbols[s] = struct{}{}
	}
	m.mu.Unlock()

	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// GetSymbols returns the current subscribed symbol set.
func (m *Manager) GetSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.symbols))
	for s := range m.symbols {
		out = append(out, s)
	}
	return out
}

// Run supervises the stream loop until ctx is canceled: on every symbol
// set or transport failure, it rebuilds instrument resolution and
// restarts streaming, backing off exponentially between failed attempts.
func (m *Manager) Run(ctx context.Context) error {
	bo := backoff.NewBackoff(m.backoffInitial, m.backoffMax)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		symbols := m.GetSymbols()
		if len(symbols) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				continue
			}
		}

		err := m.streamSymbols(ctx, symbols)
		if err == nil || ctx.Err() != nil {
			bo.Reset()
			continue
		}

		m.runtime.SetConnected(false)
		m.logger.Warn("stream_failed", zap.Error(err))
		delay := bo.Next()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// compositeStop fires when either the outer context is canceled or a
// restart has been requested, mirroring the manager's "stop OR restart"
// gate on the stream loop.
func (m *Manager) compositeStop(ctx context.Context) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-ctx.Done():
		case <-m.restart:
		case <-child.Done():
			return
		}
		cancel()
	}()
	return child, cancel
}

func (m *Manager) streamSymbols(ctx context.Context, symbols []string) error {
	streamCtx, cancel := m.compositeStop(ctx)
	defer cancel()

	instruments, failures, err := m.client.ResolveInstruments(streamCtx, symbols)
	if err != nil {
		return err
	}
	for _, f := range failures {
		m.logger.Warn("instrument_resolve_failed", zap.String("symbol", f))
	}
	if len(instruments) == 0 {
		return nil
	}

	ids := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		m.detector.UpsertInstrument(inst.InstrumentID, inst.TickSize, inst.Symbol)
		ids = append(ids, inst.InstrumentID)
	}

	m.runtime.SetConnected(true)

	onOrderBook := func(snap model.OrderBookSnapshot) {
		m.runtime.IncrementInterval("order_book")
		_, events := m.detector.OnOrderBook(snap)
		for _, ev := range events {
			m.runtime.RecordWallEvent(ev)
			if m.sink != nil {
				m.sink.Notify(ev)
			}
		}
	}
	onTrade := func(tr model.Trade) {
		m.runtime.IncrementInterval("trade")
		m.detector.OnTrade(tr)
	}

	err = m.client.StreamMarketData(streamCtx, ids, onOrderBook, onTrade)
	if err != nil && ctx.Err() == nil && streamCtx.Err() != nil {
		// A restart request ended the session; that is not a transport failure.
		return nil
	}
	return err
}
