package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/net/packet"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/world"
)

const (
	maxNameLen            = 12
	maxCharactersPerAccount = 8
	dbTimeout             = 10 * time.Second
)

type characterSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SendCharacterList queries the account's characters off-loop and posts the
// packet back through the task queue.
func SendCharacterList(d *Deps, sock *net.Socket) {
	accountID := sock.AccountID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		rows, err := d.Users.CharactersByAccount(ctx, accountID)
		d.Tasks.Post(func() {
			if err != nil {
				d.Log.Error("character list query", zap.String("account", accountID), zap.Error(err))
				sock.Send("characterList", map[string]any{"characters": []characterSummary{}, "error": "server_error"})
				return
			}
			out := make([]characterSummary, 0, len(rows))
			for _, r := range rows {
				out = append(out, characterSummary{ID: r.ID, Name: r.Name})
			}
			sock.Send("characterList", map[string]any{"characters": out})
		})
	}()
}

func handleCharacterListRequest(d *Deps, socketID uint64, _ json.RawMessage) {
	if sock := d.Sockets.Get(socketID); sock != nil {
		SendCharacterList(d, sock)
	}
}

func handleCharacterCreate(d *Deps, socketID uint64, data json.RawMessage) {
	sock := d.Sockets.Get(socketID)
	if sock == nil {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if !decode(d, "characterCreate", data, &req) {
		return
	}
	name := world.CanonicalName(req.Name)
	if len(name) < 3 || len(name) > maxNameLen {
		sock.Send("characterCreateFailed", map[string]string{"reason": "invalid_name"})
		return
	}
	spawn := d.World.Spawn
	accountID, token := sock.AccountID, sock.AuthToken

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()

		fail := func(reason string) {
			d.Tasks.Post(func() { sock.Send("characterCreateFailed", map[string]string{"reason": reason}) })
		}
		taken, err := d.Users.NameExists(ctx, name)
		if err != nil {
			d.Log.Error("character name check", zap.Error(err))
			fail("server_error")
			return
		}
		if taken {
			fail("name_taken")
			return
		}
		count, err := d.Users.CountByAccount(ctx, accountID)
		if err != nil {
			fail("server_error")
			return
		}
		if count >= maxCharactersPerAccount {
			fail("account_full")
			return
		}
		hash, err := d.Users.HashPassword(token)
		if err != nil {
			fail("server_error")
			return
		}
		row := &persist.UserRow{
			AccountID:    accountID,
			Name:         name,
			PasswordHash: hash,
			Roles:        []string{"player"},
			X:            spawn.WorldX(),
			Z:            spawn.WorldZ(),
		}
		if err := d.Users.Create(ctx, row); err != nil {
			d.Log.Error("character create", zap.String("name", name), zap.Error(err))
			fail("server_error")
			return
		}
		d.Log.Info("character created",
			zap.String("account", accountID),
			zap.String("name", name),
			zap.Int64("id", row.ID))
		d.Tasks.Post(func() {
			sock.Send("characterCreated", characterSummary{ID: row.ID, Name: row.Name})
			SendCharacterList(d, sock)
		})
	}()
}

func handleCharacterSelected(d *Deps, socketID uint64, data json.RawMessage) {
	sock := d.Sockets.Get(socketID)
	if sock == nil {
		return
	}
	var req struct {
		CharacterID int64 `json:"characterId"`
	}
	if !decode(d, "characterSelected", data, &req) || req.CharacterID <= 0 {
		return
	}
	accountID := sock.AccountID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		row, err := d.Users.LoadByID(ctx, req.CharacterID)
		d.Tasks.Post(func() {
			if err != nil || row == nil || row.AccountID != accountID {
				sock.Send("characterSelectFailed", map[string]string{"reason": "unknown_character"})
				return
			}
			sock.SelectedCharacterID = row.ID
			sock.CharacterName = row.Name
			sock.Send("characterSelected", characterSummary{ID: row.ID, Name: row.Name})
		})
	}()
}

// handleEnterWorld loads the character off-loop and spawns it. The player
// enters loading (invisible to itself, visible to others) until clientReady.
func handleEnterWorld(d *Deps, socketID uint64, _ json.RawMessage) {
	sock := d.Sockets.Get(socketID)
	if sock == nil || sock.SelectedCharacterID == 0 {
		return
	}
	charID := sock.SelectedCharacterID
	if other := d.World.PlayerByCharacter(charID); other != nil {
		d.Log.Warn("duplicate login refused",
			zap.Int64("character", charID),
			zap.Uint64("holder", other.SocketID),
			zap.Uint64("socket", socketID))
		sock.CloseWithCode(net.CloseDuplicateLogin, "character already in world")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		row, err := d.Users.LoadByID(ctx, charID)
		if err != nil || row == nil {
			d.Log.Error("enter world load", zap.Int64("character", charID), zap.Error(err))
			d.Tasks.Post(func() { sock.CloseWithCode(net.CloseKicked, "load failed") })
			return
		}
		slots, err := d.Inventory.Load(ctx, charID)
		if err != nil {
			d.Log.Error("enter world inventory", zap.Int64("character", charID), zap.Error(err))
			d.Tasks.Post(func() { sock.CloseWithCode(net.CloseKicked, "load failed") })
			return
		}
		social, err := d.Social.Load(ctx, charID)
		if err != nil {
			// Playable without lists; they repopulate on the next login.
			d.Log.Warn("enter world social lists", zap.Int64("character", charID), zap.Error(err))
			social = nil
		}
		d.Tasks.Post(func() { spawnPlayer(d, sock, row, slots, social) })
	}()
}

func spawnPlayer(d *Deps, sock *net.Socket, row *persist.UserRow, slots []*world.ItemStack, social *persist.SocialLists) {
	if sock.IsClosed() {
		return
	}
	// Re-check: another socket may have spawned this character while the
	// load was in flight.
	if d.World.PlayerByCharacter(row.ID) != nil {
		sock.CloseWithCode(net.CloseDuplicateLogin, "character already in world")
		return
	}

	id := d.Ecs.CreateEntity()
	p := world.NewPlayer(id, row.ID, sock.ID, row.Name)
	p.Roles = row.Roles
	p.X, p.Y, p.Z = row.X, row.Y, row.Z
	if p.X == 0 && p.Z == 0 {
		p.SetTile(d.World.Spawn)
	}
	if row.HomeCooldownAt != nil {
		p.HomeCooldownAt = *row.HomeCooldownAt
	}
	if doc, err := persist.UnmarshalSettings(row.Settings); err == nil && doc != nil {
		doc.Apply(p)
	} else if err != nil {
		d.Log.Warn("corrupt settings blob, starting fresh", zap.Int64("character", row.ID), zap.Error(err))
	}
	p.Inventory.Replace(slots)
	p.ActionBars = row.ActionBars
	if social != nil {
		p.Friends = social.Friends
		p.PendingFriends = social.Incoming
		p.Ignored = social.Ignored
	}
	p.Y = world.ClampY(d.World.Terrain, p.X, p.Z)

	d.World.AddPlayer(p)
	d.Broadcast.Bind(p.ID, sock.ID)
	d.Movement.Track(p.ID, p.Tile())
	sock.SetStage(packet.StageInWorld)
	d.Broadcast.SendToAOI(p.ID, "entityAdded", SnapshotPlayer(p), sock.ID)

	sock.Send("enterWorld", map[string]any{
		"self":      SnapshotPlayer(p),
		"spawn":     map[string]int{"x": d.World.Spawn.X, "z": d.World.Spawn.Z},
		"worldTime": d.Config.Server.StartTime,
	})
	SendInventory(d, p)
	SendEquipment(d, p)
	SendStats(d, p)
	SendSocial(d, p)
	d.World.MarkChanged(p.ID)

	d.Log.Info("player entered world",
		zap.String("name", p.Name),
		zap.Int64("character", p.CharacterID),
		zap.Uint64("socket", sock.ID))
}

func handleClientReady(d *Deps, socketID uint64, _ json.RawMessage) {
	p := PlayerFor(d, socketID)
	if p == nil || !p.IsLoading {
		return
	}
	p.IsLoading = false
	d.World.MarkChanged(p.ID)
	event.Emit(d.Bus, event.PlayerReady{EntityID: p.ID, SocketID: socketID})
	d.Broadcast.SendToPlayer(p.ID, "worldTimeSync", map[string]any{
		"startTime": d.Config.Server.StartTime,
		"tick":      d.CurrentTick(),
	})
}

// handleRequestRespawn returns a dead player to the spawn point at full
// health. Agility progress resets as the death penalty.
func handleRequestRespawn(d *Deps, socketID uint64, _ json.RawMessage) {
	p := PlayerFor(d, socketID)
	if p == nil || !p.Dead {
		return
	}
	p.Dead = false
	p.HP = p.MaxHP
	p.LastAttacker = 0
	p.InCombatUntilTick = 0
	p.Dirty = true

	d.Actions.Clear(p.ID)
	d.Intents.CancelAll(p.ID)
	d.Movement.Cancel(p.ID)
	d.Movement.ResetAgilityProgress(p.ID)
	d.Combat.Disengage(p.ID)
	d.Skilling.StopWork(p.ID)

	d.World.MoveEntityTo(p.ID, d.World.Spawn)
	d.Movement.SyncPosition(p.ID, d.World.Spawn)
	d.Broadcast.SendToPlayer(p.ID, "playerTeleport", map[string]any{
		"x": p.X, "y": p.Y, "z": p.Z,
	})
	SendStats(d, p)
}
