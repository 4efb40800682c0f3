// Package wall implements the order-book wall detection state machine:
// candidate selection, active-wall tracking with teleport/reposition
// detection, confirmation and consumption, and alert/event emission.
package wall

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"wallwatch/internal/model"
)

// Detector tracks wall state for a bounded set of instruments. It is safe
// for concurrent use; the manager calls OnOrderBook/OnTrade from its single
// stream goroutine in practice, but the mutex makes ListStates and
// InstrumentIDs safe from any goroutine.
type Detector struct {
	cfg    DetectorConfig
	logger *zap.Logger

	mu     sync.Mutex
	states map[string]*model.InstrumentState
}

// NewDetector builds a Detector bound to cfg. logger may be nil, in which
// case a no-op logger is used.
func NewDetector(cfg DetectorConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		cfg:    cfg,
		logger: logger,
		states: make(map[string]*model.InstrumentState),
	}
}

// UpsertInstrument registers or re-registers an instrument for tracking.
// Re-registering an existing instrument preserves its accumulated state.
func (d *Detector) UpsertInstrument(instrumentID string, tickSize float64, symbol string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.states[instrumentID]; ok {
		st.TickSize = tickSize
		st.Symbol = symbol
		return
	}
	d.states[instrumentID] = &model.InstrumentState{
		InstrumentID: instrumentID,
		TickSize:     tickSize,
		Symbol:       symbol,
	}
}

// RemoveInstrument drops all tracked state for an instrument.
func (d *Detector) RemoveInstrument(instrumentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, instrumentID)
}

// InstrumentIDs returns the currently tracked instrument IDs.
func (d *Detector) InstrumentIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.states))
	for id := range d.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListStates returns shallow copies of every tracked instrument's state,
// for diagnostics and tests.
func (d *Detector) ListStates() []model.InstrumentState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.InstrumentState, 0, len(d.states))
	for _, st := range d.states {
		out = append(out, *st)
	}
	return out
}

// OnTrade appends a trade to the instrument's rolling window and trims
// entries older than TradesWindowSeconds.
func (d *Detector) OnTrade(trade model.Trade) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[trade.InstrumentID]
	if !ok {
		return
	}
	st.Trades = append(st.Trades, trade)
	d.cleanupTrades(st, trade.TS)
}

// OnOrderBook processes a snapshot and returns any alerts (confirm/consume)
// and lifecycle events (candidate/confirmed/consuming/lost) produced by it.
func (d *Detector) OnOrderBook(snapshot model.OrderBookSnapshot) ([]model.Alert, []model.WallEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.states[snapshot.InstrumentID]
	if !ok {
		return nil, nil
	}
	return d.processOrderBook(st, snapshot)
}

func (d *Detector) cleanupTrades(st *model.InstrumentState, now time.Time) {
	cutoff := now.Add(-time.Duration(d.cfg.TradesWindowSeconds * float64(time.Second)))
	kept := st.Trades[:0]
	for _, t := range st.Trades {
		if !t.TS.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	st.Trades = kept
}

func (d *Detector) processOrderBook(st *model.InstrumentState, snapshot model.OrderBookSnapshot) ([]model.Alert, []model.WallEvent) {
	st.LastSnapshot = &snapshot
	d.cleanupTrades(st, snapshot.TS)

	candidate := d.findCandidate(snapshot, st.TickSize)

	if candidate == nil {
		if st.ActiveWall == nil {
			return nil, nil
		}
		reason := d.resolveLostReason(st, snapshot)
		ev := d.buildWallEvent(st, model.EventWallLost, st.ActiveWall.Side, st.ActiveWall.Price, 0, reason)
		st.ActiveWall = nil
		return nil, []model.WallEvent{ev}
	}

	// previousSize is captured before this snapshot's update is applied,
	// matching wall_detector.py's previous_size = wall.last_size capture
	// ahead of the assignment that follows — size_drop must compare
	// against the size seen on the prior snapshot, not this one.
	var previousSize float64
	if st.ActiveWall != nil {
		previousSize = st.ActiveWall.LastSize
	}

	var alerts []model.Alert
	var events []model.WallEvent

	wasNew := st.ActiveWall == nil
	if wasNew || st.ActiveWall.Side != candidate.Side || st.ActiveWall.Price != candidate.Price {
		events = append(events, d.updateActiveWall(st, snapshot, *candidate, st.TickSize)...)
	} else {
		st.ActiveWall.LastSeen = snapshot.TS
		st.ActiveWall.LastSize = candidate.Size
		st.ActiveWall.RatioToMedian = candidate.Ratio
		st.ActiveWall.PushSize(snapshot.TS, candidate.Size)
	}

	wall := st.ActiveWall
	if wall == nil {
		return alerts, events
	}

	dwellSeconds := snapshot.TS.Sub(wall.FirstSeen).Seconds()
	executed := d.executedVolumeAtPrice(st, wall)
	sizeDrop := previousSize - candidate.Size
	if sizeDrop < 0 {
		sizeDrop = 0
	}
	cancelShare := d.cancelShare(executed, sizeDrop)
	absorption := 0.0
	if wall.LastSize > 0 {
		absorption = executed / wall.LastSize
	}

	if d.shouldConfirm(wall, dwellSeconds, executed, cancelShare, absorption, sizeDrop, snapshot.TS) {
		if wall.ConfirmedTS == nil {
			wall.ConfirmedTS = &snapshot.TS
			events = append(events, d.buildWallEvent(st, model.EventWallConfirmed, wall.Side, wall.Price, candidate.Size, ""))
		}
		wall.LastConfirmAlertTS = &snapshot.TS
		alerts = append(alerts, d.buildAlert(st, wall, model.AlertWallConfirmed, candidate, dwellSeconds, executed, cancelShare))
	}

	dropPct := d.consumingDropPct(wall, candidate.Size, snapshot.TS)
	if d.shouldConsuming(wall, executed, cancelShare, dropPct, snapshot.TS) {
		wall.ConsumingTS = &snapshot.TS
		wall.LastConsumingAlertTS = &snapshot.TS
		alerts = append(alerts, d.buildAlert(st, wall, model.AlertWallConsuming, candidate, dwellSeconds, executed, cancelShare))
		events = append(events, d.buildWallEvent(st, model.EventWallConsuming, wall.Side, wall.Price, candidate.Size, ""))
	}

	return alerts, events
}

// findCandidate picks the highest-ratio qualifying candidate across both
// sides. When both sides qualify, the side with the higher ratio wins even
// if the other side's candidate would itself be a strong wall — preserved
// as the original behavior.
func (d *Detector) findCandidate(snapshot model.OrderBookSnapshot, tickSize float64) *model.WallCandidate {
	if tickSize <= 0 || !snapshot.Valid() {
		return nil
	}
	bid :=d.findSideCandidate(model.SideBuy, snapshot.Bids, tickSize)
	ask := d.findSideCandidate(model.SideSell, snapshot.Asks, tickSize)
	switch {
	case bid == nil:
		return ask
	case ask == nil:
		return bid
	case ask.Ratio > bid.Ratio:
		return ask
	default:
		return bid
	}
}

func (d *Detector) findSideCandidate(side model.Side, levels []model.OrderBookLevel, tickSize float64) *model.WallCandidate {
	if len(levels) == 0 {
		return nil
	}
	best := levels[0].Price
	vRef := d.medianVolume(levels)

	var chosen *model.OrderBookLevel
	var chosenRatio float64
	for i := range levels {
		lvl := levels[i]
		ratio := 0.0
		if vRef > 0 {
			ratio = lvl.Quantity / vRef
		}
		qualifies := ratio >= d.cfg.KRatio || (d.cfg.AbsQtyThreshold > 0 && lvl.Quantity >= d.cfg.AbsQtyThreshold)
		if !qualifies {
			continue
		}
		if chosen == nil || ratio > chosenRatio {
			l := lvl
			chosen = &l
			chosenRatio = ratio
		}
	}
	if chosen == nil {
		return nil
	}

	distTicks := 0
	if tickSize > 0 {
		distTicks = int(math.Round(math.Abs(chosen.Price-best) / tickSize))
	}
	if distTicks > d.cfg.DistanceTicks {
		return nil
	}

	return &model.WallCandidate{
		Side:          side,
		Price:         chosen.Price,
		Size:          chosen.Quantity,
		Ratio:         chosenRatio,
		VRef:          vRef,
		DistanceTicks: distTicks,
	}
}

func (d *Detector) medianVolume(levels []model.OrderBookLevel) float64 {
	n := d.cfg.VRefLevels
	if n > len(levels) {
		n = len(levels)
	}
	if n == 0 {
		return 0
	}
	sizes := make([]float64, n)
	for i := 0; i < n; i++ {
		sizes[i] = levels[i].Quantity
	}
	sort.Float64s(sizes)
	mid := len(sizes) / 2
	if len(sizes)%2 == 1 {
		return sizes[mid]
	}
	return (sizes[mid-1] + sizes[mid]) / 2
}

// updateActiveWall replaces or repositions the active wall for an
// instrument when the candidate differs from the one currently tracked.
// A close, similarly-sized reappearance within RepositionWindowSeconds is
// treated as a reposition (possible spoofing) rather than a fresh wall;
// it increments RepositionCount instead of resetting dwell time.
func (d *Detector) updateActiveWall(st *model.InstrumentState, snapshot model.OrderBookSnapshot, candidate model.WallCandidate, tickSize float64) []model.WallEvent {
	prev := st.ActiveWall
	if prev != nil {
		withinWindow := snapshot.TS.Sub(prev.LastSeen).Seconds() <= d.cfg.RepositionWindowSeconds
		priceDelta := math.Abs(candidate.Price-prev.Price) <= float64(d.cfg.RepositionTicks)*tickSize
		sizeSimilarity := false
		if prev.LastSize > 0 {
			sizeSimilarity = math.Abs(candidate.Size-prev.LastSize)/prev.LastSize <= d.cfg.RepositionSimilarPct
		}
		if withinWindow && priceDelta && sizeSimilarity {
			count := prev.RepositionCount + 1
			if d.cfg.TeleportReset {
				count = 0
			}
			st.ActiveWall = &model.ActiveWall{
				Side:            candidate.Side,
				Price:           candidate.Price,
				FirstSeen:       prev.FirstSeen,
				LastSeen:        snapshot.TS,
				LastSize:        candidate.Size,
				DistanceTicks:   candidate.DistanceTicks,
				RatioToMedian:   candidate.Ratio,
				RepositionCount: count,
			}
			st.ActiveWall.PushSize(snapshot.TS, candidate.Size)
			return []model.WallEvent{d.buildWallEvent(st, model.EventWallCandidate, candidate.Side, candidate.Price, candidate.Size, "")}
		}
	}

	var events []model.WallEvent
	if prev != nil {
		reason := d.resolveLostReason(st, snapshot)
		events = append(events, d.buildWallEvent(st, model.EventWallLost, prev.Side, prev.Price, 0, reason))
	}

	st.ActiveWall = &model.ActiveWall{
		Side:          candidate.Side,
		Price:         candidate.Price,
		FirstSeen:     snapshot.TS,
		LastSeen:      snapshot.TS,
		LastSize:      candidate.Size,
		DistanceTicks: candidate.DistanceTicks,
		RatioToMedian: candidate.Ratio,
	}
	st.ActiveWall.PushSize(snapshot.TS, candidate.Size)
	events = append(events, d.buildWallEvent(st, model.EventWallCandidate, candidate.Side, candidate.Price, candidate.Size, ""))
	return events
}

// resolveLostReason reports "teleport" for a wall that has already been
// repositioned (RepositionCount > 0) and was last seen within
// RepositionWindowSeconds, "cancel" when the wall's price level is still
// present in the snapshot with a non-zero quantity, and "disappear"
// otherwise.
func (d *Detector) resolveLostReason(st *model.InstrumentState, snapshot model.OrderBookSnapshot) string {
	wall := st.ActiveWall
	if wall == nil {
		return model.LostReasonDisappear
	}
	if wall.RepositionCount > 0 && snapshot.TS.Sub(wall.LastSeen).Seconds() <= d.cfg.RepositionWindowSeconds {
		return model.LostReasonTeleport
	}
	levels := snapshot.Bids
	if wall.Side == model.SideSell {
		levels = snapshot.Asks
	}
	if qty, ok := d.findLevelQuantity(levels, wall.Price); ok && qty > 0 {
		return model.LostReasonCancel
	}
	return model.LostReasonDisappear
}

func (d *Detector) findLevelQuantity(levels []model.OrderBookLevel, price float64) (float64, bool) {
	for _, lvl := range levels {
		if lvl.Price == price {
			return lvl.Quantity, true
		}
	}
	return 0, false
}

func (d *Detector) executedVolumeAtPrice(st *model.InstrumentState, wall *model.ActiveWall) float64 {
	var total float64
	for _, t := range st.Trades {
		if t.Price == wall.Price {
			total += t.Quantity
		}
	}
	return total
}

// cancelShare estimates what fraction of an observed size drop was
// cancellation rather than execution. Clamped to zero when executed
// volume exceeds the observed drop (the trade tape and book size can
// disagree slightly at the tick boundary); preserved as-is.
func (d *Detector) cancelShare(executed, drop float64) float64 {
	if drop <= 0 {
		return 0
	}
	const eps = 1e-9
	num := executed
	if num > drop {
		num = drop
	}
	denom := drop
	if denom < eps {
		denom = eps
	}
	share := 1 - num/denom
	if share < 0 {
		return 0
	}
	return share
}

// shouldConfirm gates both the first confirmation and re-alerting on an
// already-confirmed wall: repeats are allowed once cooldown_confirmed_seconds
// has elapsed since the last confirm alert, matching the original's
// "confirm once per session, then keep emitting no more than once per
// cooldown" semantics — confirmed_ts itself never blocks re-alerting.
func (d *Detector) shouldConfirm(wall *model.ActiveWall, dwellSeconds, executed, cancelShare, absorption, sizeDrop float64, now time.Time) bool {
	if wall.RepositionCount > d.cfg.RepositionMax {
		return false
	}
	if dwellSeconds < d.cfg.DwellSeconds {
		return false
	}
	qualifies := executed >= d.cfg.Emin || (sizeDrop > 0 && cancelShare <= d.cfg.CancelShareMax) || absorption >= d.cfg.Amin
	if !qualifies {
		return false
	}
	if wall.LastConfirmAlertTS != nil && now.Sub(*wall.LastConfirmAlertTS).Seconds() < d.cfg.CooldownConfirmedSeconds {
		return false
	}
	return true
}

func (d *Detector) shouldConsuming(wall *model.ActiveWall, executed, cancelShare, dropPct float64, now time.Time) bool {
	if wall.ConfirmedTS == nil {
		return false
	}
	if executed < d.cfg.MinExecConfirm && cancelShare > d.cfg.CancelShareMax {
		return false
	}
	if dropPct < d.cfg.ConsumingDropPct {
		return false
	}
	if wall.LastConsumingAlertTS != nil && now.Sub(*wall.LastConsumingAlertTS).Seconds() < d.cfg.CooldownConsumingSeconds {
		return false
	}
	return true
}

func (d *Detector) consumingDropPct(wall *model.ActiveWall, lastSize float64, now time.Time) float64 {
	cutoff := now.Add(-time.Duration(d.cfg.ConsumingWindowSeconds * float64(time.Second)))
	var baseline float64
	found := false
	for _, p := range wall.SizeHistory {
		if !p.TS.Before(cutoff) {
			baseline = p.Size
			found = true
			break
		}
	}
	if !found || baseline <= 0 {
		return 0
	}
	drop := (baseline - lastSize) / baseline
	if drop < 0 {
		return 0
	}
	return drop
}

func (d *Detector) buildAlert(st *model.InstrumentState, wall *model.ActiveWall, event string, candidate *model.WallCandidate, dwellSeconds, executed, cancelShare float64) model.Alert {
	return model.Alert{
		InstrumentID:   st.InstrumentID,
		Side:           wall.Side,
		Price:          wall.Price,
		Event:          event,
		Size:           candidate.Size,
		Ratio:          candidate.Ratio,
		VRef:           candidate.VRef,
		DistanceTicks:  candidate.DistanceTicks,
		DwellSeconds:   dwellSeconds,
		ExecutedAtWall: executed,
		CancelShare:    cancelShare,
		TS:             st.LastSnapshot.TS,
	}
}

func (d *Detector) buildWallEvent(st *model.InstrumentState, event string, side model.Side, price, qty float64, reason string) model.WallEvent {
	ts := time.Time{}
	if st.LastSnapshot != nil {
		ts = st.LastSnapshot.TS
	}
	ev := model.WallEvent{
		Event:   event,
		Symbol:  st.Symbol,
		Side:    side,
		Price:   price,
		Qty:     qty,
		WallKey: model.BuildWallKey(st.InstrumentID, side, price),
		Reason:  reason,
		TS:      ts,
		Thresholds: &model.ThresholdSnapshot{
			DwellSeconds:     d.cfg.DwellSeconds,
			Emin:             d.cfg.Emin,
			Amin:             d.cfg.Amin,
			CancelShareMax:   d.cfg.CancelShareMax,
			ConsumingDropPct: d.cfg.ConsumingDropPct,
			MinExecConfirm:   d.cfg.MinExecConfirm,
		},
	}
	if st.ActiveWall != nil {
		ev.DistanceTicks = st.ActiveWall.DistanceTicks
		ev.RatioToMedian = st.ActiveWall.RatioToMedian
		if st.ActiveWall.FirstSeen != (time.Time{}) {
			ev.DwellSeconds = ts.Sub(st.ActiveWall.FirstSeen).Seconds()
		}
		if n := len(st.ActiveWall.SizeHistory); n >= 2 {
			ev.QtyChangeLastInterval = st.ActiveWall.SizeHistory[n-1].Size - st.ActiveWall.SizeHistory[n-2].Size
		}
	}
	return ev
}
