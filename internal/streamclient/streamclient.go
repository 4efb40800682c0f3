// Package streamclient defines the upstream market-data transport
// boundary: resolving instrument identifiers and streaming order book and
// trade updates. Real exchange connectivity is out of scope; callers wire
// a concrete implementation at the edge (the CLI commands use the
// in-memory Stub).
package streamclient

import (
	"context"

	"wallwatch/internal/model"
)

// Instrument describes a resolved tradable instrument.
type Instrument struct {
	InstrumentID string
	Symbol       string
	TickSize     float64
}

// Client resolves instruments and streams market data for them.
type Client interface {
	// ResolveInstruments looks up each symbol, returning resolved
	// instruments and the subset of symbols that could not be resolved.
	ResolveInstruments(ctx context.Context, symbols []string) ([]Instrument, []string, error)

	// StreamMarketData subscribes to order book and trade updates for the
	// given instrument IDs, invoking the callbacks until ctx is canceled
	// or a transport error occurs.
	StreamMarketData(ctx context.Context, instrumentIDs []string, onOrderBook func(model.OrderBookSnapshot), onTrade func(model.Trade)) error
}
