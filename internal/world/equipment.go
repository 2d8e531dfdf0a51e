package world

// EquipSlot identifies a worn-equipment slot.
type EquipSlot int

const (
	SlotHead EquipSlot = iota
	SlotCape
	SlotAmulet
	SlotWeapon
	SlotBody
	SlotShield
	SlotLegs
	SlotGloves
	SlotBoots
	SlotRing
	SlotAmmo
	SlotCount
)

var slotNames = [SlotCount]string{
	"head", "cape", "amulet", "weapon", "body", "shield",
	"legs", "gloves", "boots", "ring", "ammo",
}

func (s EquipSlot) String() string {
	if s < 0 || s >= SlotCount {
		return "none"
	}
	return slotNames[s]
}

// EquipSlotFromName maps a catalog slot string to its EquipSlot. Unknown
// names return (SlotCount, false).
func EquipSlotFromName(name string) (EquipSlot, bool) {
	for i, n := range slotNames {
		if n == name {
			return EquipSlot(i), true
		}
	}
	return SlotCount, false
}

// Equipment tracks what a player currently wears. Each slot holds a stack
// (nil = empty). Duel equipment bans are checked against the slot index.
type Equipment struct {
	Slots [SlotCount]*ItemStack
}

func NewEquipment() *Equipment {
	return &Equipment{}
}

func (e *Equipment) Get(slot EquipSlot) *ItemStack {
	if slot < 0 || slot >= SlotCount {
		return nil
	}
	return e.Slots[slot]
}

func (e *Equipment) Set(slot EquipSlot, s *ItemStack) {
	if slot >= 0 && slot < SlotCount {
		e.Slots[slot] = s
	}
}

func (e *Equipment) Clear(slot EquipSlot) {
	e.Set(slot, nil)
}

// Weapon returns the wielded weapon stack, or nil for unarmed.
func (e *Equipment) Weapon() *ItemStack {
	return e.Slots[SlotWeapon]
}

func (e *Equipment) Each(fn func(EquipSlot, *ItemStack)) {
	for i, s := range e.Slots {
		if s != nil {
			fn(EquipSlot(i), s)
		}
	}
}
