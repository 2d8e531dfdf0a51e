package handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// maxActionBarBytes bounds the opaque layout blob; the server never parses
// it beyond checking it is JSON.
const maxActionBarBytes = 16 * 1024

// handleActionBarSave persists the client's hotbar layout verbatim.
func handleActionBarSave(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || len(data) == 0 || len(data) > maxActionBarBytes {
		return
	}
	if !json.Valid(data) {
		return
	}
	p.ActionBars = append(json.RawMessage(nil), data...)
	charID := p.CharacterID
	blob := p.ActionBars
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := d.Users.SaveActionBars(ctx, charID, blob); err != nil {
			d.Log.Error("action bar save", zap.Int64("character", charID), zap.Error(err))
		}
	}()
}

func handleActionBarLoad(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	blob := p.ActionBars
	if len(blob) == 0 {
		blob = json.RawMessage(`{}`)
	}
	d.Broadcast.SendToPlayer(p.ID, "actionBars", blob)
}
