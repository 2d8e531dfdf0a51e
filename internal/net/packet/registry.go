package packet

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Stage is the socket's protocol phase. Handlers declare which stages may
// invoke them; everything else is refused before the handler runs.
type Stage int32

const (
	StageAuth       Stage = iota // connected, authentication in flight
	StageCharSelect              // authenticated, choosing a character
	StageInWorld                 // playing
	StageClosing
)

func (s Stage) String() string {
	switch s {
	case StageAuth:
		return "Auth"
	case StageCharSelect:
		return "CharSelect"
	case StageInWorld:
		return "InWorld"
	case StageClosing:
		return "Closing"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// HandlerFunc handles one inbound packet. The socket is identified by id;
// handlers resolve it through their dependencies, which keeps this package
// free of the net import.
type HandlerFunc func(socketID uint64, data json.RawMessage)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStages map[Stage]bool
}

// Registry maps packet names to handlers with stage-based access control.
// Registering "foo" also answers to "onFoo", so the wire stays liberal;
// names that already carry a namespace colon (duel:challenge) get no alias.
type Registry struct {
	handlers map[string]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]*handlerEntry),
		log:      log,
	}
}

// Register maps a packet name (and its on-alias) to a handler restricted to
// the given stages.
func (reg *Registry) Register(name string, stages []Stage, fn HandlerFunc) {
	allowed := make(map[Stage]bool, len(stages))
	for _, s := range stages {
		allowed[s] = true
	}
	entry := &handlerEntry{fn: fn, allowedStages: allowed}
	reg.handlers[name] = entry
	if alias := onAlias(name); alias != "" {
		reg.handlers[alias] = entry
	}
}

// onAlias derives the alternate name: foo <-> onFoo. Namespaced names keep
// their colons and get no alias.
func onAlias(name string) string {
	if strings.Contains(name, ":") {
		return ""
	}
	if strings.HasPrefix(name, "on") && len(name) > 2 {
		rest := name[2:]
		if rest[0] >= 'A' && rest[0] <= 'Z' {
			return strings.ToLower(rest[:1]) + rest[1:]
		}
		return ""
	}
	return "on" + strings.ToUpper(name[:1]) + name[1:]
}

// Known reports whether a name resolves to a handler.
func (reg *Registry) Known(name string) bool {
	_, ok := reg.handlers[name]
	return ok
}

// Dispatch routes one packet. Unknown names are logged and dropped; a stage
// mismatch is refused with an error; handler panics are contained so one
// bad packet cannot take the loop down.
func (reg *Registry) Dispatch(socketID uint64, stage Stage, name string, data json.RawMessage) error {
	entry, ok := reg.handlers[name]
	if !ok {
		reg.log.Debug("unknown packet",
			zap.String("packet", name),
			zap.Uint64("socket", socketID),
		)
		return nil
	}
	if !entry.allowedStages[stage] {
		reg.log.Warn("packet refused for stage",
			zap.String("packet", name),
			zap.Stringer("stage", stage),
			zap.Uint64("socket", socketID),
		)
		return fmt.Errorf("packet %s not allowed in stage %s", name, stage)
	}
	return reg.safeCall(entry.fn, socketID, name, data)
}

func (reg *Registry) safeCall(fn HandlerFunc, socketID uint64, name string, data json.RawMessage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("packet", name),
				zap.Uint64("socket", socketID),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for %s: %v", name, rec)
		}
	}()
	fn(socketID, data)
	return nil
}
