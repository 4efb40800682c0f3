package streamclient

import (
	"context"
	"fmt"
	"time"

	"wallwatch/internal/model"
)

// Stub is a deterministic in-memory Client used by the `run`, `telegram`
// and `doctor` commands in place of a real upstream. It resolves every
// symbol to a synthetic instrument and, once streamed, replays a fixed
// snapshot/trade sequence at a configurable cadence.
type Stub struct {
	TickSize     float64
	Snapshots    []model.OrderBookSnapshot
	Trades       []model.Trade
	TickInterval time.Duration
}

// NewStub returns a Stub with sane defaults for doctor-mode smoke checks.
func NewStub() *Stub {
	return &Stub{
		TickSize:     0.01,
		TickInterval: 200 * time.Millisecond,
	}
}

func (s *Stub) ResolveInstruments(_ context.Context, symbols []string) ([]Instrument, []string, error) {
	out := make([]Instrument, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, Instrument{
			InstrumentID: "stub-" + sym,
			Symbol:       sym,
			TickSize:     s.TickSize,
		})
	}
	return out, nil, nil
}

// StreamMarketData replays the configured snapshots/trades one step per
// TickInterval, starting over from the first step after the last, until
// ctx is canceled. Every instrumentID subscribed receives the same replay
// sequence, with InstrumentID rewritten to match.
func (s *Stub) StreamMarketData(ctx context.Context, instrumentIDs []string, onOrderBook func(model.OrderBookSnapshot), onTrade func(model.Trade)) error {
	if len(instrumentIDs) == 0 {
		return fmt.Errorf("streamclient: no instruments subscribed")
	}
	ticker := time.NewTicker(s.TickInterval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range instrumentIDs {
				if idx < len(s.Snapshots) {
					snap := s.Snapshots[idx]
					snap.InstrumentID = id
					onOrderBook(snap)
				}
				if idx < len(s.Trades) {
					tr := s.Trades[idx]
					tr.InstrumentID = id
					onTrade(tr)
				}
			}
			idx++
			if idx >= len(s.Snapshots) && idx >= len(s.Trades) {
				idx = 0
			}
		}
	}
}
