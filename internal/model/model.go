// Package model holds the plain value types shared by the wall detector,
// the market-data manager and the notifier.
package model

import (
	"strconv"
	"time"
)

// Side is the resting side of an order book level or the aggressor side of
// a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderBookLevel is a single price/quantity pair, aligned to the
// instrument's tick size.
type OrderBookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBookSnapshot is an immutable top-of-book view delivered by the
// upstream market-data stream.
//
// Invariants: Bids is non-increasing in price, Asks is non-decreasing;
// if both BestBid and BestAsk are present, BestBid < BestAsk.
type OrderBookSnapshot struct {
	InstrumentID string
	Bids         []OrderBookLevel
	Asks         []OrderBookLevel
	BestBid      *float64
	BestAsk      *float64
	TS           time.Time
}

// Valid reports whether the snapshot satisfies its documented invariants.
// The detector calls it on every snapshot and treats an invalid snapshot
// as having no candidate.
func (s OrderBookSnapshot) Valid() bool {
	for i := 1; i < len(s.Bids); i++ {
		if s.Bids[i].Price > s.Bids[i-1].Price {
			return false
		}
	}
	for i := 1; i < len(s.Asks); i++ {
		if s.Asks[i].Price < s.Asks[i-1].Price {
			return false
		}
	}
	if s.BestBid != nil && s.BestAsk != nil && *s.BestBid >= *s.BestAsk {
		return false
	}
	return true
}

// Trade is a single tape print. Side encodes the aggressor and may be
// absent when the feed does not report it.
type Trade struct {
	InstrumentID string
	Price        float64
	Quantity     float64
	Side         *Side
	TS           time.Time
}

// WallCandidate is a transient, per-snapshot observation of a qualifying
// top-of-book anomaly.
type WallCandidate struct {
	Side          Side
	Price         float64
	Size          float64
	Ratio         float64
	VRef          float64
	DistanceTicks int
}

// SizePoint is one entry of an ActiveWall's bounded size-history deque.
type SizePoint struct {
	TS   time.Time
	Size float64
}

// activeWallHistoryCap bounds ActiveWall.SizeHistory.
const activeWallHistoryCap = 200

// ActiveWall is the detector's per-instrument tracked wall. At most one
// exists per instrument at any time.
type ActiveWall struct {
	Side          Side
	Price         float64
	FirstSeen     time.Time
	LastSeen      time.Time
	LastSize      float64
	DistanceTicks int
	RatioToMedian float64

	RepositionCount int
	ConfirmedTS     *time.Time
	ConsumingTS     *time.Time

	LastConfirmAlertTS  *time.Time
	LastConsumingAlertTS *time.Time

	SizeHistory []SizePoint
}

// PushSize appends a size observation, trimming the deque to its bounded
// capacity from the front.
func (w *ActiveWall) PushSize(ts time.Time, size float64) {
	w.SizeHistory = append(w.SizeHistory, SizePoint{TS: ts, Size: size})
	if len(w.SizeHistory) > activeWallHistoryCap {
		w.SizeHistory = w.SizeHistory[len(w.SizeHistory)-activeWallHistoryCap:]
	}
}

// Alert is emitted on confirm/consume transitions.
type Alert struct {
	InstrumentID    string
	Side            Side
	Price           float64
	Event           string
	Size            float64
	Ratio           float64
	VRef            float64
	DistanceTicks   int
	DwellSeconds    float64
	ExecutedAtWall  float64
	CancelShare     float64
	Reasons         []string
	TS              time.Time
}

const (
	AlertWallConfirmed = "ALERT_WALL_CONFIRMED"
	AlertWallConsuming = "ALERT_WALL_CONSUMING"
)

// Lifecycle event kinds, per the wall state machine.
const (
	EventWallCandidate = "wall_candidate"
	EventWallConfirmed = "wall_confirmed"
	EventWallConsuming = "wall_consuming"
	EventWallLost      = "wall_lost"
)

// Lost reasons.
const (
	LostReasonTeleport  = "teleport"
	LostReasonCancel    = "cancel"
	LostReasonDisappear = "disappear"
)

// ThresholdSnapshot captures the confirmation/consumption thresholds that
// were in effect when a WallEvent was built, for downstream display.
type ThresholdSnapshot struct {
	DwellSeconds       float64
	Emin               float64
	Amin               float64
	CancelShareMax     float64
	ConsumingDropPct   float64
	MinExecConfirm     float64
}

// WallEvent is emitted on lifecycle transitions.
type WallEvent struct {
	Event         string
	Symbol        string
	Side          Side
	Price         float64
	Qty           float64
	WallKey       string
	DistanceTicks int
	// DistanceTicksToSpread is the distance from the wall price to the
	// opposite side's best price, used for display only.
	DistanceTicksToSpread *int
	RatioToMedian         float64
	DwellSeconds          float64
	QtyChangeLastInterval float64
	Reason                string
	Thresholds            *ThresholdSnapshot
	TS                    time.Time
}

// BuildWallKey returns the stable (instrument, side, price) triple used for
// lifecycle deduplication.
func BuildWallKey(instrumentID string, side Side, price float64) string {
	return instrumentID + "|" + string(side) + "|" + strconv.FormatFloat(price, 'f', -1, 64)
}

// InstrumentState is the detector's per-instrument mutable state. Exactly
// one exists per subscribed instrument and it is exclusively owned by the
// detector.
type InstrumentState struct {
	InstrumentID string
	TickSize     float64
	Symbol       string

	LastSnapshot *OrderBookSnapshot
	Trades       []Trade
	ActiveWall   *ActiveWall

	LastDebugTS           *time.Time
	LastDebugCandidateSize *float64
}
