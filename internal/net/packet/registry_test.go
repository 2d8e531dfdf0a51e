package packet

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegisterAddsOnAlias(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	calls := 0
	reg.Register("moveRequest", []Stage{StageInWorld}, func(uint64, json.RawMessage) { calls++ })

	require.NoError(t, reg.Dispatch(1, StageInWorld, "moveRequest", nil))
	require.NoError(t, reg.Dispatch(1, StageInWorld, "onMoveRequest", nil))
	assert.Equal(t, 2, calls, "bare name and on-alias hit the same handler")
}

func TestNamespacedNamesGetNoAlias(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("duel:challenge", []Stage{StageInWorld}, func(uint64, json.RawMessage) {})

	assert.True(t, reg.Known("duel:challenge"))
	assert.False(t, reg.Known("onDuel:challenge"))
	assert.False(t, reg.Known("onDuel:Challenge"))
}

func TestRegisteringOnNameAliasesBare(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("onCommand", []Stage{StageInWorld}, func(uint64, json.RawMessage) {})

	assert.True(t, reg.Known("onCommand"))
	assert.True(t, reg.Known("command"))
}

func TestDispatchRefusesWrongStage(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	called := false
	reg.Register("enterWorld", []Stage{StageCharSelect}, func(uint64, json.RawMessage) { called = true })

	err := reg.Dispatch(1, StageAuth, "enterWorld", nil)
	assert.Error(t, err, "enterWorld before authentication is refused")
	assert.False(t, called)

	require.NoError(t, reg.Dispatch(1, StageCharSelect, "enterWorld", nil))
	assert.True(t, called)
}

func TestDispatchIgnoresUnknownNames(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.NoError(t, reg.Dispatch(1, StageInWorld, "noSuchPacket", nil), "unknown packets are logged, not errors")
}

func TestDispatchContainsHandlerPanic(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Register("explode", []Stage{StageInWorld}, func(uint64, json.RawMessage) {
		panic("payload bug")
	})

	err := reg.Dispatch(1, StageInWorld, "explode", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestDispatchPassesPayloadAndSocket(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	var gotSocket uint64
	var gotData json.RawMessage
	reg.Register("chatAdded", []Stage{StageInWorld}, func(id uint64, data json.RawMessage) {
		gotSocket, gotData = id, data
	})

	payload := json.RawMessage(`{"message":"hello"}`)
	require.NoError(t, reg.Dispatch(42, StageInWorld, "chatAdded", payload))
	assert.Equal(t, uint64(42), gotSocket)
	assert.JSONEq(t, `{"message":"hello"}`, string(gotData))
}
