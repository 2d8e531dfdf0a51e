package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleScript = `
register_dialogue("hans", {
	start = "greet",
	nodes = {
		greet = function(ctx)
			return {
				speaker = "Hans",
				text = "Hello, " .. ctx.player_name .. "! What can I do for you?",
				options = {
					{ label = "Who are you?", next = "who" },
					{ label = "Open the bank.", next = "bank" },
					{ label = "Nothing, goodbye.", next = "bye" },
				},
			}
		end,
		who = function(ctx)
			return {
				speaker = "Hans",
				text = "I walk these grounds, as I always have.",
				next = "bye",
			}
		end,
		bank = function(ctx)
			return { action = "openBank", done = true }
		end,
		bye = function(ctx)
			return { speaker = "Hans", text = "Farewell.", done = true }
		end,
		rich = function(ctx)
			if ctx.coins >= 1000 then
				return { speaker = "Hans", text = "A wealthy adventurer!", done = true }
			end
			return { speaker = "Hans", text = "Short on coin, I see.", done = true }
		end,
		broken = function(ctx)
			return "not a table"
		end,
		empty = function(ctx)
			return {}
		end,
	},
})
`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "hans.lua"), []byte(sampleScript), 0o644)
	require.NoError(t, err)

	e, err := NewEngine(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngineLoadsScripts(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 1, e.Count())
	assert.True(t, e.Has("hans"))
	assert.False(t, e.Has("nobody"))
}

func TestEngineMissingDirIsNotFatal(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "does-not-exist"), zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, 0, e.Count())
}

func TestStartRendersEntryNode(t *testing.T) {
	e := newTestEngine(t)

	node, err := e.Start("hans", Context{PlayerName: "Zezima"})
	require.NoError(t, err)

	assert.Equal(t, "greet", node.ID)
	assert.Equal(t, "Hans", node.Speaker)
	assert.Contains(t, node.Text, "Zezima")
	require.Len(t, node.Options, 3)
	assert.Equal(t, "Who are you?", node.Options[0].Label)
	assert.Equal(t, "who", node.Options[0].Next)
	assert.False(t, node.End)
}

func TestRenderFollowsOptionTargets(t *testing.T) {
	e := newTestEngine(t)

	node, err := e.Render("hans", "who", Context{PlayerName: "Zezima"})
	require.NoError(t, err)
	assert.Equal(t, "bye", node.Next)
	assert.Empty(t, node.Options)

	node, err = e.Render("hans", node.Next, Context{PlayerName: "Zezima"})
	require.NoError(t, err)
	assert.True(t, node.End)
}

func TestRenderActionNode(t *testing.T) {
	e := newTestEngine(t)

	node, err := e.Render("hans", "bank", Context{})
	require.NoError(t, err)
	assert.Equal(t, "openBank", node.Action)
	assert.True(t, node.End)
}

func TestContextReachesScript(t *testing.T) {
	e := newTestEngine(t)

	node, err := e.Render("hans", "rich", Context{Coins: 5000})
	require.NoError(t, err)
	assert.Contains(t, node.Text, "wealthy")

	node, err = e.Render("hans", "rich", Context{Coins: 3})
	require.NoError(t, err)
	assert.Contains(t, node.Text, "Short on coin")
}

func TestUnknownScript(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Start("nobody", Context{})
	assert.ErrorIs(t, err, ErrUnknownDialogue)

	_, err = e.Render("nobody", "start", Context{})
	assert.ErrorIs(t, err, ErrUnknownDialogue)
}

func TestMissingNode(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Render("hans", "no-such-node", Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no node")
}

func TestNodeMustReturnTable(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Render("hans", "broken", Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want table")
}

func TestNodeNeedsTextOrAction(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Render("hans", "empty", Context{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}

func TestBadScriptFailsBoot(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("this is not lua ("), 0o644)
	require.NoError(t, err)

	_, err = NewEngine(dir, zap.NewNop())
	require.Error(t, err)
}
