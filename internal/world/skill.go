package world

import "math"

const MaxSkillLevel = 99

// xpTable[n] is the cumulative XP required to be level n+1, levels 1..99.
// Built from the classic quarter-sum curve.
var xpTable = buildXPTable()

func buildXPTable() [MaxSkillLevel]int64 {
	var table [MaxSkillLevel]int64
	points := 0.0
	for lvl := 1; lvl < MaxSkillLevel; lvl++ {
		points += float64(lvl) + 300.0*math.Pow(2, float64(lvl)/7.0)
		table[lvl] = int64(points / 4.0)
	}
	return table
}

// LevelForXP maps cumulative XP to a level in [1, 99].
func LevelForXP(xp int64) int {
	if xp < 0 {
		return 1
	}
	for lvl := MaxSkillLevel - 1; lvl >= 1; lvl-- {
		if xp >= xpTable[lvl] {
			return lvl + 1
		}
	}
	return 1
}

// XPForLevel is the cumulative XP threshold of a level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxSkillLevel {
		level = MaxSkillLevel
	}
	return xpTable[level-1]
}
