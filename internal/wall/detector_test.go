package wall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallwatch/internal/model"
)

func testConfig() DetectorConfig {
	cfg := DefaultDetectorConfig()
	cfg.DwellSeconds = 2
	cfg.TradesWindowSeconds = 20
	cfg.Emin = 50
	cfg.Amin = 0.2
	cfg.CancelShareMax = 0.7
	cfg.ConsumingDropPct = 0.2
	cfg.ConsumingWindowSeconds = 8
	cfg.MinExecConfirm = 10
	cfg.CooldownConfirmedSeconds = 60
	cfg.CooldownConsumingSeconds = 30
	cfg.RepositionWindowSeconds = 3
	cfg.RepositionSimilarPct = 0.2
	cfg.RepositionMax = 1
	return cfg
}

func lvl(p, q float64) model.OrderBookLevel { return model.OrderBookLevel{Price: p, Quantity: q} }

func snapshot(id string, ts time.Time, wallPrice, wallSize float64) model.OrderBookSnapshot {
	bestAsk := wallPrice + 10
	return model.OrderBookSnapshot{
		InstrumentID: id,
		Bids: []model.OrderBookLevel{
			lvl(wallPrice, wallSize),
			lvl(wallPrice-1, 1), lvl(wallPrice-2, 1), lvl(wallPrice-3, 1),
			lvl(wallPrice-4, 1), lvl(wallPrice-5, 1), lvl(wallPrice-6, 1),
			lvl(wallPrice-7, 1), lvl(wallPrice-8, 1), lvl(wallPrice-9, 1),
		},
		Asks:    []model.OrderBookLevel{lvl(bestAsk, 1)},
		BestAsk: &bestAsk,
		TS:      ts,
	}
}

func TestConfirmThenConsume(t *testing.T) {
	d := NewDetector(testConfig(), nil)
	d.UpsertInstrument("ID1", 1, "TEST")

	now := time.Now()
	_, events := d.OnOrderBook(snapshot("ID1", now, 100, 500))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWallCandidate, events[0].Event)

	d.OnTrade(model.Trade{InstrumentID: "ID1", Price: 100, Quantity: 60, TS: now.Add(500 * time.Millisecond)})

	_, events = d.OnOrderBook(snapshot("ID1", now.Add(3*time.Second), 100, 500))
	require.NotEmpty(t, events)
	var sawConfirmed bool
	for _, ev := range events {
		if ev.Event == model.EventWallConfirmed {
			sawConfirmed = true
		}
	}
	assert.True(t, sawConfirmed, "expected wall_confirmed after dwell+execution threshold")

	_, events = d.OnOrderBook(snapshot("ID1", now.Add(4*time.Second), 100, 100))
	var sawConsuming bool
	for _, ev := range events {
		if ev.Event == model.EventWallConsuming {
			sawConsuming = true
		}
	}
	assert.True(t, sawConsuming, "expected wall_consuming after >=20%% drop following confirm")
}

func TestTeleportNotConfirmed(t *testing.T) {
	cfg := testConfig()
	cfg.RepositionMax = 0
	d := NewDetector(cfg, nil)
	d.UpsertInstrument("ID1", 1, "TEST")
	now := time.Now()

	_, events := d.OnOrderBook(snapshot("ID1", now, 100, 500))
	require.Len(t, events, 1)

	_, events = d.OnOrderBook(snapshot("ID1", now.Add(1*time.Second), 101, 490))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWallCandidate, events[0].Event)

	states := d.ListStates()
	require.Len(t, states, 1)
	assert.Equal(t, 1, states[0].ActiveWall.RepositionCount)

	_, events = d.OnOrderBook(snapshot("ID1", now.Add(5*time.Second), 101, 490))
	for _, ev := range events {
		assert.NotEqual(t, model.EventWallConfirmed, ev.Event, "a wall that repositioned beyond reposition_max must not confirm")
	}
}

func TestConsumingRequiresPriorConfirm(t *testing.T) {
	d := NewDetector(testConfig(), nil)
	d.UpsertInstrument("ID1", 1, "TEST")
	now := time.Now()

	d.OnOrderBook(snapshot("ID1", now, 100, 500))
	_, events := d.OnOrderBook(snapshot("ID1", now.Add(1*time.Second), 100, 100))
	for _, ev := range events {
		assert.NotEqual(t, model.EventWallConsuming, ev.Event, "consuming must not fire before a wall is confirmed")
	}
}

func TestCancelWithoutTradesFailsCancelShareGate(t *testing.T) {
	d := NewDetector(testConfig(), nil)
	d.UpsertInstrument("ID1", 1, "TEST")
	now := time.Now()

	_, events := d.OnOrderBook(snapshot("ID1", now, 100, 500))
	require.Len(t, events, 1)

	// No trades at all: the size drop at t0+3s is pure cancellation, so
	// cancel_share must compute to 1 and fail the cancel_share_max gate
	// (executed=0 also fails Emin, absorption=0 also fails Amin).
	_, events = d.OnOrderBook(snapshot("ID1", now.Add(3*time.Second), 100, 50))
	for _, ev := range events {
		assert.NotEqual(t, model.EventWallConfirmed, ev.Event, "a pure cancel with no executed volume must not confirm")
	}

	states := d.ListStates()
	require.Len(t, states, 1)
	require.NotNil(t, states[0].ActiveWall)
	assert.Nil(t, states[0].ActiveWall.ConfirmedTS)
}

func TestReconfirmAfterCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownConfirmedSeconds = 5
	d := NewDetector(cfg, nil)
	d.UpsertInstrument("ID1", 1, "TEST")
	now := time.Now()

	d.OnOrderBook(snapshot("ID1", now, 100, 500))
	d.OnTrade(model.Trade{InstrumentID: "ID1", Price: 100, Quantity: 60, TS: now.Add(500 * time.Millisecond)})

	_, events := d.OnOrderBook(snapshot("ID1", now.Add(3*time.Second), 100, 500))
	require.True(t, containsEvent(events, model.EventWallConfirmed), "expected first wall_confirmed")

	// Within the cooldown window: the confirm alert must not re-fire.
	d.OnTrade(model.Trade{InstrumentID: "ID1", Price: 100, Quantity: 60, TS: now.Add(4 * time.Second)})
	alerts, _ := d.OnOrderBook(snapshot("ID1", now.Add(4*time.Second), 100, 500))
	assert.Empty(t, alerts, "re-confirm alert must not fire inside cooldown_confirmed_seconds")

	// Past the cooldown window, with fresh qualifying executed volume: the
	// confirm alert fires again, while wall_confirmed stays once per wall.
	d.OnTrade(model.Trade{InstrumentID: "ID1", Price: 100, Quantity: 60, TS: now.Add(9 * time.Second)})
	alerts, events = d.OnOrderBook(snapshot("ID1", now.Add(9*time.Second), 100, 500))
	require.Len(t, alerts, 1)
	assert.Equal(t, model.AlertWallConfirmed, alerts[0].Event, "confirm alert must re-fire once cooldown_confirmed_seconds has elapsed")
	assert.False(t, containsEvent(events, model.EventWallConfirmed), "wall_confirmed is emitted once per wall")
}

func containsEvent(events []model.WallEvent, kind string) bool {
	for _, ev := range events {
		if ev.Event == kind {
			return true
		}
	}
	return false
}

func TestLostDedupPerWall(t *testing.T) {
	d := NewDetector(testConfig(), nil)
	d.UpsertInstrument("ID1", 1, "TEST")
	now := time.Now()

	d.OnOrderBook(snapshot("ID1", now, 100, 500))

	empty := model.OrderBookSnapshot{
		InstrumentID: "ID1",
		Bids:         []model.OrderBookLevel{lvl(90, 1)},
		Asks:         []model.OrderBookLevel{lvl(110, 1)},
		TS:           now.Add(time.Second),
	}
	_, events := d.OnOrderBook(empty)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWallLost, events[0].Event)

	_, events = d.OnOrderBook(empty)
	assert.Empty(t, events, "a second snapshot with no wall and no active wall must not re-emit wall_lost")
}
