package world

// Reason is a business-rule refusal code carried inside refusal packets
// (tradeError, showToast, duel refusals). Refusals are not Go errors: the
// handler returns early and the client gets the code.
type Reason string

const (
	ReasonPlayerOffline Reason = "PLAYER_OFFLINE"
	ReasonPlayerBusy    Reason = "PLAYER_BUSY"
	ReasonTooFar        Reason = "TOO_FAR"
	ReasonInterfaceOpen Reason = "INTERFACE_OPEN"
	ReasonRateLimited   Reason = "RATE_LIMITED"
	ReasonNotInTrade    Reason = "NOT_IN_TRADE"

	// Transaction integrity codes, mapped from persist errors when a swap or
	// settlement aborts.
	ReasonServerError       Reason = "server_error"
	ReasonItemChanged       Reason = "ITEM_CHANGED"
	ReasonUntradeableItem   Reason = "UNTRADEABLE_ITEM"
	ReasonInvFullInitiator  Reason = "INVENTORY_FULL_INITIATOR"
	ReasonInvFullRecipient  Reason = "INVENTORY_FULL_RECIPIENT"
)

// Home-teleport cancel reasons are human text, shown verbatim in the client.
const (
	TeleportInterruptMovement = "Interrupted by movement"
	TeleportInterruptCombat   = "Interrupted by combat"
)
