package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine hosts NPC dialogue trees as Lua scripts. Every script in the
// dialogue directory runs once at boot and registers its tree under a script
// name; the dialogue session then asks the engine to render one node at a
// time. One shared VM, game loop only — Lua never runs concurrently.
type Engine struct {
	vm        *lua.LState
	dialogues map[string]*lua.LTable
	log       *zap.Logger
}

// ErrUnknownDialogue is returned for script names no loaded file registered.
var ErrUnknownDialogue = errors.New("unknown dialogue script")

// Context is the player view handed to every node function. Scripts read it
// to greet by name, gate options on levels, or price against carried coins.
type Context struct {
	PlayerName string
	Coins      int64
	Skills     map[string]int // skill name -> level
}

// Option is one selectable dialogue response and the node it leads to.
type Option struct {
	Label string
	Next  string
}

// Node is one rendered dialogue screen. Options and Next are mutually
// exclusive in practice: option nodes wait for onDialogueResponse, plain
// nodes advance on onDialogueContinue, and End nodes close after display.
// Action names a hand-off the dialogue system performs when the node shows
// ("openBank", "openStore").
type Node struct {
	ID      string
	Speaker string
	Text    string
	Options []Option
	Next    string
	Action  string
	End     bool
}

// NewEngine creates the VM, installs the registration hook, and runs every
// .lua file under scriptsDir. A missing directory is not an error — the
// server can run with no dialogue at all.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := &Engine{
		vm:        lua.NewState(),
		dialogues: make(map[string]*lua.LTable),
		log:       log,
	}

	e.vm.SetGlobal("register_dialogue", e.vm.NewFunction(e.luaRegister))

	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			e.vm.Close()
			return nil, err
		}
	}

	log.Info("dialogue engine ready",
		zap.Int("dialogues", len(e.dialogues)),
		zap.String("dir", scriptsDir))
	return e, nil
}

// luaRegister is the Lua-visible registration hook:
//
//	register_dialogue("hans", { start = "greet", nodes = { ... } })
func (e *Engine) luaRegister(L *lua.LState) int {
	name := L.CheckString(1)
	def := L.CheckTable(2)
	if name == "" {
		L.RaiseError("register_dialogue: empty name")
		return 0
	}
	if _, ok := def.RawGetString("nodes").(*lua.LTable); !ok {
		L.RaiseError("register_dialogue(%s): definition has no nodes table", name)
		return 0
	}
	if _, dup := e.dialogues[name]; dup {
		e.log.Warn("dialogue redefined, keeping the later one", zap.String("script", name))
	}
	e.dialogues[name] = def
	return 0
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			e.log.Warn("dialogue script directory missing", zap.String("dir", dir))
			return nil
		}
		return fmt.Errorf("read dialogue dir %s: %w", dir, err)
	}

	var files []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".lua") {
			continue
		}
		files = append(files, ent.Name())
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("dialogue script %s: %w", name, err)
		}
		e.log.Debug("dialogue script loaded", zap.String("file", name))
	}
	return nil
}

// Has reports whether a script name is registered. NPC interaction checks
// this before opening a dialogue session.
func (e *Engine) Has(script string) bool {
	_, ok := e.dialogues[script]
	return ok
}

func (e *Engine) Count() int { return len(e.dialogues) }

// Start renders the tree's entry node. The start node id comes from the
// definition's `start` field, defaulting to "start".
func (e *Engine) Start(script string, ctx Context) (*Node, error) {
	def, ok := e.dialogues[script]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialogue, script)
	}
	entry := "start"
	if s, ok := def.RawGetString("start").(lua.LString); ok && s != "" {
		entry = string(s)
	}
	return e.Render(script, entry, ctx)
}

// Render evaluates one node function against the player context and parses
// the returned table. Any script fault comes back as an error; the dialogue
// system closes the session rather than show a broken screen.
func (e *Engine) Render(script, nodeID string, ctx Context) (*Node, error) {
	def, ok := e.dialogues[script]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialogue, script)
	}
	nodes := def.RawGetString("nodes").(*lua.LTable)
	fn, ok := nodes.RawGetString(nodeID).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("dialogue %s: no node %q", script, nodeID)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.contextTable(ctx)); err != nil {
		e.log.Warn("dialogue node error",
			zap.String("script", script),
			zap.String("node", nodeID),
			zap.Error(err))
		return nil, fmt.Errorf("dialogue %s node %s: %w", script, nodeID, err)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	result, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("dialogue %s node %s: returned %s, want table", script, nodeID, ret.Type())
	}
	return e.parseNode(script, nodeID, result)
}

func (e *Engine) contextTable(ctx Context) *lua.LTable {
	t := e.vm.NewTable()
	t.RawSetString("player_name", lua.LString(ctx.PlayerName))
	t.RawSetString("coins", lua.LNumber(ctx.Coins))
	skills := e.vm.NewTable()
	for name, level := range ctx.Skills {
		skills.RawSetString(name, lua.LNumber(level))
	}
	t.RawSetString("skills", skills)
	return t
}

func (e *Engine) parseNode(script, nodeID string, tbl *lua.LTable) (*Node, error) {
	n := &Node{
		ID:      nodeID,
		Speaker: lStr(tbl, "speaker", ""),
		Text:    lStr(tbl, "text", ""),
		Next:    lStr(tbl, "next", ""),
		Action:  lStr(tbl, "action", ""),
		End:     lBool(tbl, "done", false),
	}
	if n.Text == "" && n.Action == "" {
		return nil, fmt.Errorf("dialogue %s node %s: no text", script, nodeID)
	}

	opts, ok := tbl.RawGetString("options").(*lua.LTable)
	if !ok {
		return n, nil
	}
	for i := 1; i <= opts.Len(); i++ {
		row, ok := opts.RawGetInt(i).(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("dialogue %s node %s: option %d is not a table", script, nodeID, i)
		}
		opt := Option{
			Label: lStr(row, "label", ""),
			Next:  lStr(row, "next", ""),
		}
		if opt.Label == "" || opt.Next == "" {
			return nil, fmt.Errorf("dialogue %s node %s: option %d needs label and next", script, nodeID, i)
		}
		n.Options = append(n.Options, opt)
	}
	return n, nil
}

// Close shuts down the VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- Lua table field helpers ---

func lStr(tbl *lua.LTable, key, fallback string) string {
	if v, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(v)
	}
	return fallback
}

func lBool(tbl *lua.LTable, key string, fallback bool) bool {
	if v, ok := tbl.RawGetString(key).(lua.LBool); ok {
		return bool(v)
	}
	return fallback
}
