package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wallwatch/internal/model"
)

func testEvent(event string, ts time.Time) model.WallEvent {
	return model.WallEvent{
		Event:   event,
		Symbol:  "SBER",
		Side:    model.SideBuy,
		Price:   100,
		WallKey: model.BuildWallKey("INST1", model.SideBuy, 100),
		TS:      ts,
	}
}

func TestCooldownAllows(t *testing.T) {
	n := New(Config{CooldownSeconds: map[string]int{model.EventWallConfirmed: 60}}, nil)
	defer n.Close(context.Background())

	now := time.Now()
	assert.True(t, n.cooldownAllows(testEvent(model.EventWallConfirmed, now)))
	assert.False(t, n.cooldownAllows(testEvent(model.EventWallConfirmed, now.Add(30*time.Second))), "second alert within cooldown must be suppressed")
	assert.True(t, n.cooldownAllows(testEvent(model.EventWallConfirmed, now.Add(61*time.Second))), "alert after cooldown elapses must be allowed")
}

func TestLifecycleDedup(t *testing.T) {
	n := New(Config{}, nil)
	defer n.Close(context.Background())

	now := time.Now()
	confirmed := testEvent(model.EventWallConfirmed, now)
	assert.True(t, n.lifecycleAllows(confirmed), "first confirmed for a wall_key must be allowed")
	assert.False(t, n.lifecycleAllows(confirmed), "a duplicate confirmed for the same wall_key must be suppressed")

	lost := testEvent(model.EventWallLost, now.Add(time.Second))
	assert.True(t, n.lifecycleAllows(lost), "lost after confirmed for the same wall_key must be allowed")

	neverConfirmed := testEvent(model.EventWallLost, now)
	neverConfirmed.WallKey = model.BuildWallKey("INST2", model.SideBuy, 50)
	assert.False(t, n.lifecycleAllows(neverConfirmed), "lost for a wall that was never confirmed must be suppressed")
}

func TestLifecycleDedupConsumingRequiresPriorConfirm(t *testing.T) {
	n := New(Config{}, nil)
	defer n.Close(context.Background())

	now := time.Now()
	bareConsuming := testEvent(model.EventWallConsuming, now)
	bareConsuming.WallKey = model.BuildWallKey("INST3", model.SideBuy, 75)
	assert.False(t, n.lifecycleAllows(bareConsuming), "consuming for a wall_key with no prior confirmed must be suppressed")

	confirmed := testEvent(model.EventWallConfirmed, now)
	assert.True(t, n.lifecycleAllows(confirmed))
	consuming := testEvent(model.EventWallConsuming, now.Add(time.Second))
	assert.True(t, n.lifecycleAllows(consuming), "consuming after confirmed for the same wall_key must be allowed")
}
