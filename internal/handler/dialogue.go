package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/scripting"
	"github.com/runegate/server/internal/world"
)

// DialogueState is a player's position inside one NPC's script tree.
type DialogueState struct {
	NPCID  ecs.EntityID
	Script string
	NodeID string
}

// DialogueTracker pairs dialogue sessions with their script position. The
// session manager enforces exclusivity; this only remembers where the
// conversation stands. Game loop only.
type DialogueTracker struct {
	states map[ecs.EntityID]*DialogueState
}

func NewDialogueTracker() *DialogueTracker {
	return &DialogueTracker{states: make(map[ecs.EntityID]*DialogueState)}
}

func (t *DialogueTracker) Open(playerID, npcID ecs.EntityID, script, nodeID string) {
	t.states[playerID] = &DialogueState{NPCID: npcID, Script: script, NodeID: nodeID}
}

func (t *DialogueTracker) Get(playerID ecs.EntityID) *DialogueState {
	return t.states[playerID]
}

func (t *DialogueTracker) Remove(playerID ecs.EntityID) {
	delete(t.states, playerID)
}

// dialogueContext builds the player view scripts render against.
func dialogueContext(p *world.Player) scripting.Context {
	skills := make(map[string]int, len(p.Skills))
	for name, xp := range p.Skills {
		skills[name] = world.LevelForXP(xp)
	}
	return scripting.Context{PlayerName: p.Name, Coins: p.CoinPouch, Skills: skills}
}

func sendDialogueNode(d *Deps, p *world.Player, npc *world.Mob, node *scripting.Node) {
	speaker := node.Speaker
	var npcID ecs.EntityID
	if npc != nil {
		npcID = npc.ID
		if speaker == "" {
			speaker = npc.Name
		}
	}
	options := make([]string, 0, len(node.Options))
	for _, o := range node.Options {
		options = append(options, o.Label)
	}
	d.Broadcast.SendToPlayer(p.ID, "dialogue", map[string]any{
		"npcId":   uint64(npcID),
		"speaker": speaker,
		"text":    node.Text,
		"options": options,
		"done":    node.End,
	})
}

// showDialogueNode delivers a rendered node, runs its action hand-off, and
// closes the session on terminal nodes.
func showDialogueNode(d *Deps, p *world.Player, st *DialogueState, node *scripting.Node) {
	st.NodeID = node.ID
	npc := d.World.Mob(st.NPCID)

	if node.Action != "" {
		npcID := st.NPCID
		d.Sessions.Close(p.ID)
		switch node.Action {
		case "openBank":
			openBank(d, p)
		case "openStore":
			d.Sessions.Open(p.ID, world.SessionStore, npcID, d.CurrentTick())
			sendStoreStock(d, p, npcID)
		default:
			d.Log.Debug("dialogue action unhandled",
				zap.String("action", node.Action),
				zap.String("script", st.Script))
		}
		return
	}

	sendDialogueNode(d, p, npc, node)
	if node.End {
		d.Sessions.Close(p.ID)
	}
}

// beginDialogue opens the session and renders the entry node.
func beginDialogue(d *Deps, p *world.Player, npc *world.Mob) {
	node, err := d.Scripting.Start(npc.DialogueScript, dialogueContext(p))
	if err != nil {
		d.Log.Warn("dialogue start failed",
			zap.String("script", npc.DialogueScript),
			zap.Error(err))
		return
	}
	d.Sessions.Open(p.ID, world.SessionDialogue, npc.ID, d.CurrentTick())
	d.Dialogue.Open(p.ID, npc.ID, npc.DialogueScript, node.ID)
	showDialogueNode(d, p, d.Dialogue.Get(p.ID), node)
}

// approachNpc walks the player beside an NPC and fires the arrival action.
func approachNpc(d *Deps, p *world.Player, npc *world.Mob, arrive func()) {
	d.Skilling.StopWork(p.ID)
	d.Intents.CancelAll(p.ID)
	now := d.CurrentTick()
	d.Intents.Queue(world.IntentGather, &world.PendingIntent{
		PlayerID:       p.ID,
		TargetID:       npc.ID,
		LastTargetTile: npc.Tile(),
		Reach:          1,
		Arrive: func(in *world.PendingIntent) {
			if !p.Dead {
				arrive()
			}
		},
	}, now)
	d.Movement.MovePlayerToward(p.ID, npc.Tile(), d.Movement.IsRunning(p.ID), 1, "", now)
}

func handleNpcInteract(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "npcInteract", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "npcInteract", func() {
		if p.Dead {
			return
		}
		npc := d.World.Mob(target)
		if npc == nil || !npc.Alive() {
			return
		}
		switch {
		case npc.DialogueScript != "" && d.Scripting.Has(npc.DialogueScript):
			approachNpc(d, p, npc, func() { beginDialogue(d, p, npc) })
		case npc.Store:
			approachNpc(d, p, npc, func() {
				d.Sessions.Open(p.ID, world.SessionStore, npc.ID, d.CurrentTick())
				sendStoreStock(d, p, npc.ID)
			})
		}
	})
}

// handleEntityInteract is the untyped click: route by what the entity turns
// out to be.
func handleEntityInteract(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "entityInteract", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	if m := d.World.Mob(target); m != nil {
		if m.Attackable() {
			handleAttackMob(d, socketID, data)
			return
		}
		handleNpcInteract(d, socketID, data)
		return
	}
	if n := d.World.Resource(target); n != nil {
		switch {
		case n.Kind == world.ResourceBankBooth:
			handleBankOpen(d, socketID, data)
		case n.Kind == world.ResourceRange:
			handleCookingSourceInteract(d, socketID, data)
		case n.Gatherable():
			handleResourceInteract(d, socketID, data)
		}
		return
	}
	if d.World.Fires.Get(target) != nil {
		handleCookingSourceInteract(d, socketID, data)
		return
	}
	if d.World.GroundItem(target) != nil {
		handlePickupItem(d, socketID, data)
	}
}

func handleDialogueResponse(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Option int `json:"option"`
	}
	if !decode(d, "dialogueResponse", data, &req) {
		return
	}
	st := d.Dialogue.Get(p.ID)
	s := d.Sessions.Get(p.ID)
	if st == nil || s == nil || s.Kind != world.SessionDialogue {
		return
	}
	node, err := d.Scripting.Render(st.Script, st.NodeID, dialogueContext(p))
	if err != nil {
		d.Sessions.Close(p.ID)
		return
	}
	if req.Option < 0 || req.Option >= len(node.Options) {
		return
	}
	next, err := d.Scripting.Render(st.Script, node.Options[req.Option].Next, dialogueContext(p))
	if err != nil {
		d.Sessions.Close(p.ID)
		return
	}
	showDialogueNode(d, p, st, next)
}

func handleDialogueContinue(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	st := d.Dialogue.Get(p.ID)
	s := d.Sessions.Get(p.ID)
	if st == nil || s == nil || s.Kind != world.SessionDialogue {
		return
	}
	node, err := d.Scripting.Render(st.Script, st.NodeID, dialogueContext(p))
	if err != nil || node.Next == "" {
		d.Sessions.Close(p.ID)
		return
	}
	next, err := d.Scripting.Render(st.Script, node.Next, dialogueContext(p))
	if err != nil {
		d.Sessions.Close(p.ID)
		return
	}
	showDialogueNode(d, p, st, next)
}

func handleDialogueClose(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	if s := d.Sessions.Get(p.ID); s != nil && s.Kind == world.SessionDialogue {
		d.Sessions.Close(p.ID)
	}
}
