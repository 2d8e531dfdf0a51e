package handler

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/config"
	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/net/packet"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/scripting"
	"github.com/runegate/server/internal/world"
)

// CombatService receives attack requests fired by walk-then-act arrival.
// The combat system implements it; Deps carries it so intent callbacks can
// hand off without this package importing the system package.
type CombatService interface {
	RequestAttack(attacker, target ecs.EntityID)
	Disengage(id ecs.EntityID)
}

// SkillingService receives gather and cooking work opened on arrival, and
// is told to stop when the player does anything else.
type SkillingService interface {
	BeginGather(playerID, nodeID ecs.EntityID)
	BeginCooking(playerID, sourceID ecs.EntityID, rawSlot int)
	StopWork(playerID ecs.EntityID)
}

// Deps holds shared dependencies injected into all packet handlers and the
// tick systems. Everything here is owned by the game loop except the repos,
// Exchange, and Tasks, which are safe off-loop.
type Deps struct {
	Config *config.Config
	Log    *zap.Logger

	Ecs   *ecs.World
	World *world.State
	Bus   *event.Bus
	Tasks *coresys.TaskQueue

	Sockets   *net.SocketTable
	Broadcast *net.BroadcastManager

	Movement     *world.MovementManager
	Intents      *world.IntentRegistry
	Actions      *world.ActionQueueManager
	Sessions     *world.InteractionSessionManager
	Dialogue     *DialogueTracker
	Trades       *world.TradeManager
	Duels        *world.DuelManager
	HomeTeleport *world.HomeTeleportManager

	Catalog   *data.Catalog
	Arenas    *data.ArenaTable
	Scripting *scripting.Engine

	Users     *persist.UserRepo
	Inventory *persist.InventoryRepo
	Banks     *persist.BankRepo
	Entities  *persist.EntityRepo
	ConfigKV  *persist.ConfigRepo
	Social    *persist.SocialRepo
	Exchange  *persist.Exchange

	// Filled by main after the systems are constructed.
	Combat   CombatService
	Skilling SkillingService

	// CurrentTick reads the scheduler counter; safe from any goroutine.
	CurrentTick func() int64
}

// RegisterAll registers every packet handler into the registry. Names are
// registered bare; the registry adds the on-prefixed alias itself, so
// "moveRequest" here answers to both moveRequest and onMoveRequest.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	type raw = json.RawMessage
	charSelect := func(name string, fn func(*Deps, uint64, raw)) {
		reg.Register(name, []packet.Stage{packet.StageCharSelect}, func(id uint64, data raw) { fn(deps, id, data) })
	}
	inWorld := func(name string, fn func(*Deps, uint64, raw)) {
		reg.Register(name, []packet.Stage{packet.StageInWorld}, func(id uint64, data raw) { fn(deps, id, data) })
	}

	// Character flow.
	charSelect("characterListRequest", handleCharacterListRequest)
	charSelect("characterCreate", handleCharacterCreate)
	charSelect("characterSelected", handleCharacterSelected)
	charSelect("enterWorld", handleEnterWorld)
	inWorld("clientReady", handleClientReady)
	inWorld("requestRespawn", handleRequestRespawn)

	// Movement.
	inWorld("moveRequest", handleMoveRequest)
	inWorld("input", handleInput)

	// Combat posture and targets.
	inWorld("attackMob", handleAttackMob)
	inWorld("attackPlayer", handleAttackPlayer)
	inWorld("followPlayer", handleFollowPlayer)
	inWorld("setAutocast", handleSetAutocast)
	inWorld("setAutoRetaliate", handleSetAutoRetaliate)
	inWorld("changeAttackStyle", handleChangeAttackStyle)

	// Items.
	inWorld("pickupItem", handlePickupItem)
	inWorld("dropItem", handleDropItem)
	inWorld("equipItem", handleEquipItem)
	inWorld("unequipItem", handleUnequipItem)
	inWorld("useItem", handleUseItem)
	inWorld("moveItem", handleMoveItem)
	inWorld("coinPouchWithdraw", handleCoinPouchWithdraw)

	// Gathering, cooking, firemaking, processing.
	inWorld("resourceInteract", handleResourceInteract)
	inWorld("cookingSourceInteract", handleCookingSourceInteract)
	inWorld("cookingRequest", handleCookingRequest)
	inWorld("firemakingRequest", handleFiremakingRequest)
	inWorld("smeltingSourceInteract", stationInteract(world.ResourceFurnace))
	inWorld("craftingSourceInteract", stationInteract(world.ResourceCraftingTable))
	inWorld("fletchingSourceInteract", stationInteract(world.ResourceFletchingBench))
	inWorld("runecraftingAltarInteract", handleRunecraftingAltar)
	inWorld("processingSmelting", processing("smelting", world.ResourceFurnace))
	inWorld("processingSmithing", processing("smithing", world.ResourceAnvil))
	inWorld("processingCrafting", processing("crafting", world.ResourceCraftingTable))
	inWorld("processingFletching", processing("fletching", world.ResourceFletchingBench))
	inWorld("processingTanning", processing("tanning", world.ResourceTanningRack))

	// Bank.
	inWorld("bankOpen", handleBankOpen)
	inWorld("bankClose", handleBankClose)
	inWorld("bankDeposit", handleBankDeposit)
	inWorld("bankWithdraw", handleBankWithdraw)
	inWorld("bankMove", handleBankMove)
	inWorld("bankCreateTab", handleBankCreateTab)
	inWorld("bankDeleteTab", handleBankDeleteTab)
	inWorld("bankMoveToTab", handleBankMoveToTab)
	inWorld("bankWithdrawPlaceholder", handleBankWithdrawPlaceholder)
	inWorld("bankReleasePlaceholder", handleBankReleasePlaceholder)
	inWorld("bankReleaseAllPlaceholders", handleBankReleaseAllPlaceholders)
	inWorld("bankToggleAlwaysPlaceholder", handleBankToggleAlwaysPlaceholder)
	inWorld("bankWithdrawToEquipment", handleBankWithdrawToEquipment)
	inWorld("bankDepositEquipment", handleBankDepositEquipment)
	inWorld("bankDepositAllEquipment", handleBankDepositAllEquipment)
	inWorld("bankDepositCoins", handleBankDepositCoins)
	inWorld("bankWithdrawCoins", handleBankWithdrawCoins)
	inWorld("bankDepositAll", handleBankDepositAll)

	// Store.
	inWorld("storeOpen", handleStoreOpen)
	inWorld("storeBuy", handleStoreBuy)
	inWorld("storeSell", handleStoreSell)
	inWorld("storeClose", handleStoreClose)

	// Dialogue and NPC interaction.
	inWorld("npcInteract", handleNpcInteract)
	inWorld("entityInteract", handleEntityInteract)
	inWorld("dialogueResponse", handleDialogueResponse)
	inWorld("dialogueContinue", handleDialogueContinue)
	inWorld("dialogueClose", handleDialogueClose)

	// Trade.
	inWorld("tradeRequest", handleTradeRequest)
	inWorld("tradeRequestRespond", handleTradeRequestRespond)
	inWorld("tradeAddItem", handleTradeAddItem)
	inWorld("tradeRemoveItem", handleTradeRemoveItem)
	inWorld("tradeSetItemQuantity", handleTradeSetItemQuantity)
	inWorld("tradeAccept", handleTradeAccept)
	inWorld("tradeCancelAccept", handleTradeCancelAccept)
	inWorld("tradeCancel", handleTradeCancel)

	// Duel. Namespaced names carry no on-alias.
	inWorld("duel:challenge", handleDuelChallenge)
	inWorld("duel:respond", handleDuelRespond)
	inWorld("duel:toggle:rule", handleDuelToggleRule)
	inWorld("duel:toggle:equipment", handleDuelToggleEquipment)
	inWorld("duel:accept:rules", handleDuelAcceptRules)
	inWorld("duel:add:stake", handleDuelAddStake)
	inWorld("duel:remove:stake", handleDuelRemoveStake)
	inWorld("duel:accept:stakes", handleDuelAcceptStakes)
	inWorld("duel:accept:final", handleDuelAcceptFinal)
	inWorld("duel:cancel", handleDuelCancel)
	inWorld("duel:forfeit", handleDuelForfeit)

	// Home teleport.
	inWorld("homeTeleport", handleHomeTeleport)
	inWorld("homeTeleportCancel", handleHomeTeleportCancel)

	// Social.
	inWorld("friendRequest", handleFriendRequest)
	inWorld("friendAccept", handleFriendAccept)
	inWorld("friendDecline", handleFriendDecline)
	inWorld("friendRemove", handleFriendRemove)
	inWorld("ignoreAdd", handleIgnoreAdd)
	inWorld("ignoreRemove", handleIgnoreRemove)
	inWorld("privateMessage", handlePrivateMessage)
	inWorld("chatAdded", handleChatAdded)

	// Prayer.
	inWorld("prayerToggle", handlePrayerToggle)
	inWorld("prayerDeactivateAll", handlePrayerDeactivateAll)
	inWorld("altarPray", handleAltarPray)

	// Action bars.
	inWorld("actionBarSave", handleActionBarSave)
	inWorld("actionBarLoad", handleActionBarLoad)

	// Admin and agent telemetry.
	inWorld("command", handleCommand)
	inWorld("syncGoal", handleSyncGoal)
	inWorld("syncAgentThought", handleSyncAgentThought)
}

// PlayerFor resolves the in-world player owning a socket. Nil while the
// socket is not bound to a live player.
func PlayerFor(d *Deps, socketID uint64) *world.Player {
	return d.World.PlayerBySocket(socketID)
}

// readyPlayer is PlayerFor plus the loading gate: packets that act on the
// world are ignored until clientReady.
func readyPlayer(d *Deps, socketID uint64) *world.Player {
	p := d.World.PlayerBySocket(socketID)
	if p == nil || p.IsLoading {
		return nil
	}
	return p
}

// Toast sends a one-line popup to a player.
func Toast(d *Deps, id ecs.EntityID, text string) {
	d.Broadcast.SendToPlayer(id, "showToast", map[string]string{"message": text})
}

// SystemChat drops a yellow system line into a player's chatbox.
func SystemChat(d *Deps, id ecs.EntityID, text string) {
	d.Broadcast.SendToPlayer(id, "chatAdded", map[string]any{
		"name":   "",
		"text":   text,
		"color":  "yellow",
		"system": true,
	})
}

// TradeError reports a refusal code on the trade screen.
func TradeError(d *Deps, id ecs.EntityID, code world.Reason) {
	d.Broadcast.SendToPlayer(id, "tradeError", map[string]any{"errorCode": code})
}

func decode[T any](d *Deps, name string, data json.RawMessage, out *T) bool {
	if err := json.Unmarshal(data, out); err != nil {
		d.Log.Debug("malformed packet payload", zap.String("packet", name), zap.Error(err))
		return false
	}
	return true
}
