package system

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/world"
)

const (
	saveTimeout = 10 * time.Second

	// timeSyncEveryTicks paces the worldTimeSync broadcast clients use to
	// re-anchor their clocks. 100 ticks is one minute.
	timeSyncEveryTicks = 100
)

// playerSave is an on-loop snapshot of everything a save writes, so the
// detached writer never touches live state. A nil bank means no bank flush.
type playerSave struct {
	charID   int64
	x, y, z  float64
	settings []byte
	cooldown *time.Time
	slots    []*world.ItemStack
	bank     *world.Bank
}

// capturePlayerSave snapshots a player for persistence. Economy rows are
// excluded while a transaction lock holds them: the exchange owns those rows
// until it reloads the mirror.
func capturePlayerSave(d *handler.Deps, p *world.Player) playerSave {
	save := playerSave{
		charID: p.CharacterID,
		x:      p.X, y: p.Y, z: p.Z,
	}
	raw, err := persist.SettingsFromPlayer(p).Marshal()
	if err != nil {
		d.Log.Error("settings marshal", zap.Int64("character", p.CharacterID), zap.Error(err))
	} else {
		save.settings = raw
	}
	if !p.HomeCooldownAt.IsZero() {
		t := p.HomeCooldownAt
		save.cooldown = &t
	}
	if d.World.Locks.Locked(p.ID) {
		return save
	}
	save.slots = p.Inventory.Snapshot()
	if p.Bank.Loaded && p.Bank.Dirty {
		save.bank = p.Bank.Clone()
		p.Bank.Dirty = false
	}
	return save
}

// writePlayerSave pushes one snapshot through the repositories. Callers pick
// the context: detached saves get their own deadline, shutdown shares one.
func writePlayerSave(ctx context.Context, d *handler.Deps, save playerSave) {
	if err := d.Users.SaveState(ctx, save.charID, save.x, save.y, save.z, save.settings, save.cooldown); err != nil {
		d.Log.Error("player save", zap.Int64("character", save.charID), zap.Error(err))
	}
	if save.slots != nil {
		if err := d.Inventory.ReplaceAll(ctx, save.charID, save.slots); err != nil {
			d.Log.Error("inventory save", zap.Int64("character", save.charID), zap.Error(err))
		}
	}
	if save.bank != nil {
		if err := d.Banks.ReplaceAll(ctx, save.charID, save.bank); err != nil {
			d.Log.Error("bank save", zap.Int64("character", save.charID), zap.Error(err))
		}
	}
}

// SaveSystem is the periodic persistence sweep: dirty players flush on the
// configured interval, changed world settings flush every tick, and the
// world clock broadcast keeps clients anchored.
type SaveSystem struct {
	d         *handler.Deps
	saveEvery int64
}

func NewSaveSystem(d *handler.Deps) *SaveSystem {
	every := int64(1)
	if d.Config.Game.TickRate > 0 {
		every = int64(d.Config.Game.SaveInterval / d.Config.Game.TickRate)
	}
	if every < 1 {
		every = 1
	}
	return &SaveSystem{d: d, saveEvery: every}
}

func (s *SaveSystem) Phase() coresys.Phase { return coresys.PhasePost }

func (s *SaveSystem) Update(tick int64) {
	d := s.d

	if dirty := d.World.TakeDirtySettings(); len(dirty) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
			defer cancel()
			for key, value := range dirty {
				// Mirror values are already jsonb text.
				if err := d.ConfigKV.Set(ctx, key, json.RawMessage(value)); err != nil {
					d.Log.Error("setting save", zap.String("key", key), zap.Error(err))
				}
			}
		}()
	}

	if tick%s.saveEvery == 0 {
		var saves []playerSave
		d.World.EachPlayer(func(p *world.Player) {
			if !p.Dirty || d.World.Locks.Locked(p.ID) {
				return
			}
			p.Dirty = false
			saves = append(saves, capturePlayerSave(d, p))
		})
		if len(saves) > 0 {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
				defer cancel()
				for _, save := range saves {
					writePlayerSave(ctx, d, save)
				}
			}()
			d.Log.Debug("periodic save", zap.Int("players", len(saves)))
		}
	}

	if tick%timeSyncEveryTicks == 0 {
		d.Broadcast.SendToAll("worldTimeSync", map[string]any{
			"startTime": d.Config.Server.StartTime,
			"tick":      tick,
		}, 0)
	}
}

// SaveAll flushes every in-world player synchronously. Shutdown calls it
// after the loop stops, so reading live state is safe.
func (s *SaveSystem) SaveAll(ctx context.Context) {
	d := s.d
	n := 0
	d.World.EachPlayer(func(p *world.Player) {
		p.Dirty = false
		writePlayerSave(ctx, d, capturePlayerSave(d, p))
		n++
	})
	for key, value := range d.World.TakeDirtySettings() {
		if err := d.ConfigKV.Set(ctx, key, json.RawMessage(value)); err != nil {
			d.Log.Error("setting save", zap.String("key", key), zap.Error(err))
		}
	}
	d.Log.Info("final save complete", zap.Int("players", n))
}
