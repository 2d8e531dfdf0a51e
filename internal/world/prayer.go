package world

// Protect prayers are the ones combat consults; the rest are client-visible
// stat boosts resolved in the damage rolls.
const (
	PrayerProtectMelee  = "protect_from_melee"
	PrayerProtectRanged = "protect_from_missiles"
	PrayerProtectMagic  = "protect_from_magic"
)

// prayerNames is the closed set of toggleable prayers. Unknown names in a
// toggle packet are dropped.
var prayerNames = map[string]bool{
	"thick_skin":           true,
	"burst_of_strength":    true,
	"clarity_of_thought":   true,
	"rock_skin":            true,
	"superhuman_strength":  true,
	"improved_reflexes":    true,
	"steel_skin":           true,
	"ultimate_strength":    true,
	"incredible_reflexes":  true,
	"eagle_eye":            true,
	"mystic_might":         true,
	PrayerProtectMelee:     true,
	PrayerProtectRanged:    true,
	PrayerProtectMagic:     true,
}

func IsPrayer(name string) bool { return prayerNames[name] }

// ProtectionFor maps an incoming attack type to the prayer that blunts it.
func ProtectionFor(at AttackType) string {
	switch at {
	case AttackMelee:
		return PrayerProtectMelee
	case AttackRanged:
		return PrayerProtectRanged
	case AttackMagic:
		return PrayerProtectMagic
	}
	return ""
}
