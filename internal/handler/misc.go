package handler

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const maxTelemetryLen = 256

// handleCommand gates slash commands on the admin role. Command bodies are
// logged and refused; there is no server-side command language.
func handleCommand(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Command string `json:"command"`
	}
	if !decode(d, "command", data, &req) {
		return
	}
	cmd := strings.TrimSpace(req.Command)
	if cmd == "" {
		return
	}
	if !p.HasRole("admin") {
		SystemChat(d, p.ID, "You are not allowed to do that.")
		return
	}
	d.Log.Info("admin command",
		zap.String("name", p.Name),
		zap.Int64("character", p.CharacterID),
		zap.String("command", cmd))
	SystemChat(d, p.ID, "Unknown command.")
}

// Agent telemetry: bot clients stream their current goal and chain of
// thought; nearby clients render them as overhead debug bubbles.

func handleSyncGoal(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Goal string `json:"goal"`
	}
	if !decode(d, "syncGoal", data, &req) || len(req.Goal) > maxTelemetryLen {
		return
	}
	d.Broadcast.SendToAOI(p.ID, "syncGoal", map[string]any{
		"id":   uint64(p.ID),
		"goal": req.Goal,
	}, p.SocketID)
}

func handleSyncAgentThought(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Thought string `json:"thought"`
	}
	if !decode(d, "syncAgentThought", data, &req) || len(req.Thought) > maxTelemetryLen {
		return
	}
	d.Broadcast.SendToAOI(p.ID, "syncAgentThought", map[string]any{
		"id":      uint64(p.ID),
		"thought": req.Thought,
	}, p.SocketID)
}
