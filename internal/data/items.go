package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Item is one catalog template, keyed by its string id ("coins",
// "bronze_sword", "raw_shrimp"). Fields that do not apply to a category stay
// zero-valued; the combat and skilling systems query by id and read only
// what they need.
type Item struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Stackable bool   `yaml:"stackable"`
	Tradeable bool   `yaml:"tradeable"`
	Value     int    `yaml:"value"`

	// Equipment
	EquipSlot string `yaml:"equip_slot"` // empty = not equippable
	TwoHanded bool   `yaml:"two_handed"`

	// Weapon combat profile
	AttackType  string `yaml:"attack_type"` // melee/ranged/magic
	AttackRange int    `yaml:"attack_range"`
	Damage      int    `yaml:"damage"`
	AttackSpeed int    `yaml:"attack_speed"` // ticks between swings

	// Food
	Heals int `yaml:"heals"`

	// Cooking: what this raw item becomes, and what it burns into.
	CooksInto string `yaml:"cooks_into"`
	BurnsInto string `yaml:"burns_into"`
	CookXP    int    `yaml:"cook_xp"`

	// Firemaking
	Flammable  bool `yaml:"flammable"`
	BurnTicks  int  `yaml:"burn_ticks"`
	FiremakeXP int  `yaml:"firemake_xp"`

	// Processing: station recipes (smelting, smithing, crafting, fletching,
	// tanning, runecrafting). The family names the station; the input item
	// carries its own recipe.
	ProcessFamily string `yaml:"process_family"`
	ProcessInto   string `yaml:"process_into"`
	ProcessCount  int32  `yaml:"process_count"` // outputs per input, default 1
	ProcessXP     int    `yaml:"process_xp"`
	ProcessSkill  string `yaml:"process_skill"`

	// Store
	Stocked bool `yaml:"stocked"` // general stores carry it
}

type itemCatalogFile struct {
	Items []Item `yaml:"items"`
}

// Catalog is the loaded item table. Read-only after boot; safe to share.
type Catalog struct {
	items map[string]*Item
}

// NewCatalog builds a catalog from literals, for tests and tools.
func NewCatalog(items ...*Item) *Catalog {
	c := &Catalog{items: make(map[string]*Item, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// LoadCatalog reads the YAML item table.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item catalog: %w", err)
	}
	var f itemCatalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse item catalog: %w", err)
	}
	c := &Catalog{items: make(map[string]*Item, len(f.Items))}
	for i := range f.Items {
		it := &f.Items[i]
		if it.ID == "" {
			return nil, fmt.Errorf("item catalog: entry %d has no id", i)
		}
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("item catalog: duplicate id %q", it.ID)
		}
		c.items[it.ID] = it
	}
	return c, nil
}

// Get returns an item by id, or nil for unknown ids.
func (c *Catalog) Get(id string) *Item {
	return c.items[id]
}

func (c *Catalog) Count() int {
	return len(c.items)
}

func (c *Catalog) Stackable(id string) bool {
	it := c.items[id]
	return it != nil && it.Stackable
}

func (c *Catalog) Tradeable(id string) bool {
	it := c.items[id]
	return it != nil && it.Tradeable
}

func (c *Catalog) Value(id string) int {
	it := c.items[id]
	if it == nil {
		return 0
	}
	return it.Value
}

// WeaponProfile resolves the reach, attack type, damage, and swing speed for
// a wielded item id. Empty id (unarmed) and non-weapons fall back to
// 1-range melee with fist damage.
func (c *Catalog) WeaponProfile(id string) (reach int, attackType string, damage int, speedTicks int) {
	it := c.items[id]
	if it == nil || it.AttackType == "" {
		return 1, "melee", 1, 4
	}
	reach = it.AttackRange
	if reach <= 0 {
		reach = 1
	}
	speedTicks = it.AttackSpeed
	if speedTicks <= 0 {
		speedTicks = 4
	}
	return reach, it.AttackType, it.Damage, speedTicks
}

// ProcessRecipe resolves the processing recipe carried by an input item for
// one family ("smelting", "smithing", ...). Nil when the item does not
// process under that family.
func (c *Catalog) ProcessRecipe(id, family string) *Item {
	it := c.items[id]
	if it == nil || it.ProcessFamily != family || it.ProcessInto == "" {
		return nil
	}
	return it
}

// StoreStock lists the items a general store sells, sorted by id so the
// client sees a stable layout.
func (c *Catalog) StoreStock() []*Item {
	var out []*Item
	for _, it := range c.items {
		if it.Stocked {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
