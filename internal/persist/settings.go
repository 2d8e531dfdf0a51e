package persist

import (
	"encoding/json"

	"github.com/runegate/server/internal/world"
)

// SettingsDoc is the users.settings jsonb document: every character field
// that is not hot enough to deserve its own column. Inventory and bank rows
// live in their own tables; equipment rides here because worn items are
// outside the slot-checked inventory range.
type SettingsDoc struct {
	Skills        map[string]int64 `json:"skills,omitempty"`
	HP            int              `json:"hp"`
	MaxHP         int              `json:"maxHp"`
	CoinPouch     int64            `json:"coinPouch,omitempty"`
	AttackStyle   string           `json:"attackStyle,omitempty"`
	Autocast      string           `json:"autocast,omitempty"`
	AutoRetaliate bool             `json:"autoRetaliate,omitempty"`

	Friends        map[int64]string `json:"friends,omitempty"`
	Ignored        map[int64]string `json:"ignored,omitempty"`
	PendingFriends map[int64]string `json:"pendingFriends,omitempty"`

	Equipment map[string]*world.ItemStack `json:"equipment,omitempty"`

	BankAlwaysPlaceholder bool `json:"bankAlwaysPlaceholder,omitempty"`
}

// SettingsFromPlayer captures the persistable slice of a live player.
func SettingsFromPlayer(p *world.Player) *SettingsDoc {
	doc := &SettingsDoc{
		Skills:         p.Skills,
		HP:             p.HP,
		MaxHP:          p.MaxHP,
		CoinPouch:      p.CoinPouch,
		AttackStyle:    p.AttackStyle,
		Autocast:       p.Autocast,
		AutoRetaliate:  p.AutoRetaliate,
		Friends:        p.Friends,
		Ignored:        p.Ignored,
		PendingFriends: p.PendingFriends,
	}
	if p.Bank != nil {
		doc.BankAlwaysPlaceholder = p.Bank.AlwaysPlaceholder
	}
	if p.Equipment != nil {
		eq := make(map[string]*world.ItemStack)
		p.Equipment.Each(func(slot world.EquipSlot, s *world.ItemStack) {
			cp := *s
			eq[slot.String()] = &cp
		})
		if len(eq) > 0 {
			doc.Equipment = eq
		}
	}
	return doc
}

// Apply writes the document onto a freshly-spawned player. Zero-value
// documents (new characters) leave the NewPlayer defaults in place.
func (d *SettingsDoc) Apply(p *world.Player) {
	if d.Skills != nil {
		p.Skills = d.Skills
	}
	if d.MaxHP > 0 {
		p.MaxHP = d.MaxHP
		p.HP = d.HP
		if p.HP <= 0 {
			p.HP = p.MaxHP
		}
	}
	p.CoinPouch = d.CoinPouch
	p.AttackStyle = d.AttackStyle
	p.Autocast = d.Autocast
	p.AutoRetaliate = d.AutoRetaliate
	if d.Friends != nil {
		p.Friends = d.Friends
	}
	if d.Ignored != nil {
		p.Ignored = d.Ignored
	}
	if d.PendingFriends != nil {
		p.PendingFriends = d.PendingFriends
	}
	if p.Bank != nil {
		p.Bank.AlwaysPlaceholder = d.BankAlwaysPlaceholder
	}
	for name, stack := range d.Equipment {
		slot, ok := world.EquipSlotFromName(name)
		if !ok || stack == nil {
			continue
		}
		cp := *stack
		p.Equipment.Set(slot, &cp)
	}
}

func (d *SettingsDoc) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

func UnmarshalSettings(raw []byte) (*SettingsDoc, error) {
	doc := &SettingsDoc{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
