package handler

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/world"
)

// maxChatLen caps public chat, private messages, and trade chat alike.
// Longer payloads are malformed and dropped.
const maxChatLen = 64

type socialEntry struct {
	CharacterID int64  `json:"characterId"`
	Name        string `json:"name"`
	Online      bool   `json:"online,omitempty"`
}

func socialEntries(d *Deps, m map[int64]string, withPresence bool) []socialEntry {
	out := make([]socialEntry, 0, len(m))
	for id, name := range m {
		e := socialEntry{CharacterID: id, Name: name}
		if withPresence {
			e.Online = d.World.PlayerByCharacter(id) != nil
		}
		out = append(out, e)
	}
	return out
}

// SendSocial pushes all three lists; the client replaces its copy wholesale.
func SendSocial(d *Deps, p *world.Player) {
	d.Broadcast.SendToPlayer(p.ID, "socialLists", map[string]any{
		"friends":  socialEntries(d, p.Friends, true),
		"incoming": socialEntries(d, p.PendingFriends, false),
		"ignored":  socialEntries(d, p.Ignored, false),
	})
}

type nameRequest struct {
	Name string `json:"name"`
}

type characterRequest struct {
	CharacterID int64 `json:"characterId"`
}

// resolveCharacter finds a character id and display name for a typed-in name,
// preferring the in-world index and falling back to the database. found runs
// on the game loop either way; misses invoke miss instead.
func resolveCharacter(d *Deps, name string, found func(id int64, name string), miss func()) {
	if target := d.World.PlayerByName(name); target != nil {
		found(target.CharacterID, target.Name)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		row, err := d.Users.LoadByName(ctx, world.CanonicalName(name))
		d.Tasks.Post(func() {
			if err != nil {
				d.Log.Error("character name lookup", zap.String("name", name), zap.Error(err))
				miss()
				return
			}
			if row == nil {
				miss()
				return
			}
			found(row.ID, row.Name)
		})
	}()
}

func handleFriendRequest(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req nameRequest
	if !decode(d, "friendRequest", data, &req) || strings.TrimSpace(req.Name) == "" {
		return
	}
	charID := p.CharacterID
	resolveCharacter(d, req.Name,
		func(targetID int64, targetName string) {
			me := d.World.PlayerByCharacter(charID)
			if me == nil {
				return
			}
			deliverFriendRequest(d, me, targetID, targetName)
		},
		func() {
			if me := d.World.PlayerByCharacter(charID); me != nil {
				SystemChat(d, me.ID, "No player by that name exists.")
			}
		})
}

func deliverFriendRequest(d *Deps, p *world.Player, targetID int64, targetName string) {
	if targetID == p.CharacterID {
		SystemChat(d, p.ID, "You can't add yourself.")
		return
	}
	if _, ok := p.Friends[targetID]; ok {
		SystemChat(d, p.ID, targetName+" is already on your friends list.")
		return
	}
	target := d.World.PlayerByCharacter(targetID)
	if target != nil {
		if _, ignored := target.Ignored[p.CharacterID]; ignored {
			// Ignored requesters get the success line and nothing happens.
			SystemChat(d, p.ID, "Friend request sent to "+targetName+".")
			return
		}
	}
	fromID, fromName := p.CharacterID, p.Name
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		err := d.Social.RequestFriend(ctx, fromID, targetID)
		d.Tasks.Post(func() {
			me := d.World.PlayerByCharacter(fromID)
			if err != nil {
				d.Log.Error("friend request", zap.Int64("from", fromID), zap.Int64("to", targetID), zap.Error(err))
				if me != nil {
					SystemChat(d, me.ID, "Something went wrong. Try again.")
				}
				return
			}
			if me != nil {
				SystemChat(d, me.ID, "Friend request sent to "+targetName+".")
			}
			if t := d.World.PlayerByCharacter(targetID); t != nil {
				t.PendingFriends[fromID] = fromName
				d.Broadcast.SendToPlayer(t.ID, "friendRequestIncoming", map[string]any{
					"fromId":   fromID,
					"fromName": fromName,
				})
				SendSocial(d, t)
			}
		})
	}()
}

func handleFriendAccept(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req characterRequest
	if !decode(d, "friendAccept", data, &req) {
		return
	}
	requesterName, ok := p.PendingFriends[req.CharacterID]
	if !ok {
		return
	}
	myID, myName, requesterID := p.CharacterID, p.Name, req.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		err := d.Social.AcceptFriend(ctx, myID, requesterID)
		d.Tasks.Post(func() {
			me := d.World.PlayerByCharacter(myID)
			if err != nil {
				d.Log.Warn("friend accept", zap.Int64("user", myID), zap.Int64("requester", requesterID), zap.Error(err))
				if me != nil {
					delete(me.PendingFriends, requesterID)
					SendSocial(d, me)
					SystemChat(d, me.ID, "That friend request is no longer open.")
				}
				return
			}
			if me != nil {
				delete(me.PendingFriends, requesterID)
				me.Friends[requesterID] = requesterName
				SendSocial(d, me)
				SystemChat(d, me.ID, "You are now friends with "+requesterName+".")
			}
			if r := d.World.PlayerByCharacter(requesterID); r != nil {
				r.Friends[myID] = myName
				SendSocial(d, r)
				SystemChat(d, r.ID, myName+" accepted your friend request.")
			}
		})
	}()
}

func handleFriendDecline(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req characterRequest
	if !decode(d, "friendDecline", data, &req) {
		return
	}
	if _, ok := p.PendingFriends[req.CharacterID]; !ok {
		return
	}
	delete(p.PendingFriends, req.CharacterID)
	SendSocial(d, p)
	myID, requesterID := p.CharacterID, req.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := d.Social.DeclineFriend(ctx, myID, requesterID); err != nil {
			d.Log.Error("friend decline", zap.Int64("user", myID), zap.Error(err))
		}
	}()
}

func handleFriendRemove(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req characterRequest
	if !decode(d, "friendRemove", data, &req) {
		return
	}
	if _, ok := p.Friends[req.CharacterID]; !ok {
		return
	}
	delete(p.Friends, req.CharacterID)
	SendSocial(d, p)
	myID, friendID := p.CharacterID, req.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := d.Social.RemoveFriend(ctx, myID, friendID); err != nil {
			d.Log.Error("friend remove", zap.Int64("user", myID), zap.Error(err))
		}
	}()
}

func handleIgnoreAdd(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req nameRequest
	if !decode(d, "ignoreAdd", data, &req) || strings.TrimSpace(req.Name) == "" {
		return
	}
	charID := p.CharacterID
	resolveCharacter(d, req.Name,
		func(targetID int64, targetName string) {
			me := d.World.PlayerByCharacter(charID)
			if me == nil || targetID == charID {
				return
			}
			if _, ok := me.Ignored[targetID]; ok {
				return
			}
			me.Ignored[targetID] = targetName
			// An open request from them dies with the ignore.
			delete(me.PendingFriends, targetID)
			SendSocial(d, me)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
				defer cancel()
				if err := d.Social.AddIgnore(ctx, charID, targetID); err != nil {
					d.Log.Error("ignore add", zap.Int64("user", charID), zap.Error(err))
					return
				}
				if err := d.Social.DeclineFriend(ctx, charID, targetID); err != nil {
					d.Log.Error("ignore add decline", zap.Int64("user", charID), zap.Error(err))
				}
			}()
		},
		func() {
			if me := d.World.PlayerByCharacter(charID); me != nil {
				SystemChat(d, me.ID, "No player by that name exists.")
			}
		})
}

func handleIgnoreRemove(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req characterRequest
	if !decode(d, "ignoreRemove", data, &req) {
		return
	}
	if _, ok := p.Ignored[req.CharacterID]; !ok {
		return
	}
	delete(p.Ignored, req.CharacterID)
	SendSocial(d, p)
	myID, ignoredID := p.CharacterID, req.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := d.Social.RemoveIgnore(ctx, myID, ignoredID); err != nil {
			d.Log.Error("ignore remove", zap.Int64("user", myID), zap.Error(err))
		}
	}()
}

func handlePrivateMessage(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if !decode(d, "privateMessage", data, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || len(text) > maxChatLen {
		return
	}
	target := d.World.PlayerByName(req.To)
	if target == nil || target.IsLoading {
		SystemChat(d, p.ID, "That player is not online.")
		return
	}
	// Echo to the sender regardless; ignored senders never learn they are.
	d.Broadcast.SendToPlayer(p.ID, "privateMessage", map[string]any{
		"direction": "to",
		"name":      target.Name,
		"text":      text,
	})
	if _, ignored := target.Ignored[p.CharacterID]; ignored {
		return
	}
	d.Broadcast.SendToPlayer(target.ID, "privateMessage", map[string]any{
		"direction": "from",
		"name":      p.Name,
		"fromId":    p.CharacterID,
		"text":      text,
	})
}

// handleChatAdded is public chat: emitted on the bus, rendered to the
// speaker's AOI by the bridge next tick. Ignore filtering is client-side.
func handleChatAdded(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if !decode(d, "chatAdded", data, &req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" || len(text) > maxChatLen {
		return
	}
	event.Emit(d.Bus, event.ChatSaid{Speaker: p.ID, Name: p.Name, Text: text})
}
