// Package runtimestate tracks the small set of observable facts the
// command bot's /status handler reports: connection state, per-kind
// message counters and the most recent wall event.
package runtimestate

import (
	"sync"
	"time"

	"wallwatch/internal/model"
)

// WallEventState is the last lifecycle event seen, exposed read-only.
type WallEventState struct {
	EventType string
	TS        time.Time
	Symbol    string
	Side      model.Side
	Price     float64
	Qty       float64
}

// Snapshot is an immutable copy of Runtime's fields at a point in time.
type Snapshot struct {
	StartedAt      time.Time
	Connected      bool
	LastConnectTS  *time.Time
	IntervalCounts map[string]int
	LastWallEvent  *WallEventState
}

// mutation is a closure applied to Runtime's fields by the owning
// goroutine. Hot-path callers never touch the mutex directly: they push a
// mutation onto the channel and move on, mirroring the original
// fire-and-forget update onto whatever event loop happened to be running.
type mutation func(*state)

type state struct {
	startedAt      time.Time
	connected      bool
	lastConnectTS  *time.Time
	intervalCounts map[string]int
	lastWallEvent  *WallEventState
}

// Runtime is the mutex-free-on-write-path observable state holder. Writers
// call UpdateAsync (non-blocking); readers call Snapshot (blocking on a
// read lock only).
type Runtime struct {
	mu    sync.RWMutex
	s     state
	queue chan mutation
	done  chan struct{}
}

// NewRuntime starts the background drain goroutine and returns a ready
// Runtime. Stop must be called to release the goroutine.
func NewRuntime() *Runtime {
	r := &Runtime{
		s: state{
			startedAt:      time.Now(),
			intervalCounts: make(map[string]int),
		},
		queue: make(chan mutation, 256),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Runtime) drain() {
	for {
		select {
		case m, ok := <-r.queue:
			if !ok {
				return
			}
			r.mu.Lock()
			m(&r.s)
			r.mu.Unlock()
		case <-r.done:
			return
		}
	}
}

// Stop terminates the drain goroutine. Safe to call once.
func (r *Runtime) Stop() {
	close(r.done)
}

// UpdateAsync enqueues a mutation without blocking the caller. If the
// queue is full the mutation is dropped rather than applying backpressure
// to the hot path that produced it.
func (r *Runtime) UpdateAsync(fn func(*state)) {
	select {
	case r.queue <- fn:
	default:
	}
}

// SetConnected records a connection state transition.
func (r *Runtime) SetConnected(connected bool) {
	r.UpdateAsync(func(s *state) {
		s.connected = connected
		if connected {
			now := time.Now()
			s.lastConnectTS = &now
		}
	})
}

// IncrementInterval bumps the per-kind counter consumed by
// ConsumeIntervalCounts.
func (r *Runtime) IncrementInterval(kind string) {
	r.UpdateAsync(func(s *state) {
		s.intervalCounts[kind]++
	})
}

// RecordWallEvent stores the most recent lifecycle event for /status.
func (r *Runtime) RecordWallEvent(ev model.WallEvent) {
	r.UpdateAsync(func(s *state) {
		s.lastWallEvent = &WallEventState{
			EventType: ev.Event,
			TS:        ev.TS,
			Symbol:    ev.Symbol,
			Side:      ev.Side,
			Price:     ev.Price,
			Qty:       ev.Qty,
		}
	})
}

// ConsumeIntervalCounts returns a copy of the interval counters and resets
// them to zero — mirrors the original's "return and reset" semantics.
func (r *Runtime) ConsumeIntervalCounts() map[string]int {
	result := make(chan map[string]int, 1)
	r.UpdateAsync(func(s *state) {
		out := make(map[string]int, len(s.intervalCounts))
		for k, v := range s.intervalCounts {
			out[k] = v
		}
		s.intervalCounts = make(map[string]int)
		result <- out
	})
	select {
	case m := <-result:
		return m
	case <-time.After(time.Second):
		return map[string]int{}
	}
}

// Snapshot returns an immutable copy of the current state, safe to read
// from any goroutine.
func (r *Runtime) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int, len(r.s.intervalCounts))
	for k, v := range r.s.intervalCounts {
		counts[k] = v
	}
	return Snapshot{
		StartedAt:      r.s.startedAt,
		Connected:      r.s.connected,
		LastConnectTS:  r.s.lastConnectTS,
		IntervalCounts: counts,
		LastWallEvent:  r.s.lastWallEvent,
	}
}
