package rank

import "math"

// xpPerLevelUnit is the constant in the Mee6-style level curve.
const xpPerLevelUnit = 100

// Level returns the level reached at xp: floor(sqrt(xp / 100)).
//
// The float square root is corrected so exact boundary values stay exact:
// Level(XPForLevel(n)) == n for all non-negative n.
func Level(xp int) int {
	if xp <= 0 {
		return 0
	}
	l := int(math.Sqrt(float64(xp) / xpPerLevelUnit))
	for (l+1)*(l+1)*xpPerLevelUnit <= xp {
		l++
	}
	for l > 0 && l*l*xpPerLevelUnit > xp {
		l--
	}
	return l
}

// XPForLevel returns the minimum XP needed for a given level.
func XPForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	return level * level * xpPerLevelUnit
}
