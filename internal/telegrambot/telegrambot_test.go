package telegrambot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallwatch/internal/runtimestate"
)

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand("/watch@wallwatch_bot SBER,GAZP")
	require.True(t, ok)
	assert.Equal(t, "watch", cmd.Name)
	assert.Equal(t, []string{"SBER,GAZP"}, cmd.Args)

	_, ok = ParseCommand("not a command")
	assert.False(t, ok)
}

func TestParseSymbolsDedupsAndUppercases(t *testing.T) {
	got := ParseSymbols([]string{"sber,GAZP", "sber", "lkoh"})
	assert.Equal(t, []string{"SBER", "GAZP", "LKOH"}, got)
}

type fakeManager struct {
	symbols []string
}

func (f *fakeManager) UpdateSymbols(s []string) { f.symbols = s }
func (f *fakeManager) GetSymbols() []string      { return f.symbols }

func TestHandleCommandAuthorization(t *testing.T) {
	mgr := &fakeManager{symbols: []string{"SBER"}}
	runtime := runtimestate.NewRuntime()
	defer runtime.Stop()

	h := NewHandler([]int64{42}, mgr, runtime, 10, nil, nil)

	reply := h.HandleCommand(1, ParsedCommand{Name: "ping"})
	assert.Equal(t, "Not authorized.", reply)

	reply = h.HandleCommand(42, ParsedCommand{Name: "ping"})
	assert.Equal(t, "pong", reply)
}

func TestWatchRespectsMaxSymbols(t *testing.T) {
	mgr := &fakeManager{symbols: []string{"A", "B"}}
	runtime := runtimestate.NewRuntime()
	defer runtime.Stop()

	h := NewHandler(nil, mgr, runtime, 2, nil, nil)
	reply := h.HandleCommand(1, ParsedCommand{Name: "watch", Args: []string{"C"}})
	assert.Contains(t, reply, "Refused")
	assert.Equal(t, []string{"A", "B"}, mgr.symbols)
}

func TestUnwatchReportsRemoved(t *testing.T) {
	mgr := &fakeManager{symbols: []string{"A", "B", "C"}}
	runtime := runtimestate.NewRuntime()
	defer runtime.Stop()

	h := NewHandler(nil, mgr, runtime, 10, nil, nil)
	reply := h.HandleCommand(1, ParsedCommand{Name: "unwatch", Args: []string{"B"}})
	assert.Equal(t, "Removed: B", reply)
	assert.Equal(t, []string{"A", "C"}, mgr.symbols)
}
