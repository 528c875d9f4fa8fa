package customer

import "strings"

// Tier is the loyalty tier of a registered customer on an ordinal scale.
// Higher values grant access to tier-restricted promotions.
type Tier int

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

// ParseTier maps a stored tier name onto the ordinal scale. Unknown or empty
// values map to TierNone.
func ParseTier(value string) Tier {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "bronze":
		return TierBronze
	case "silver":
		return TierSilver
	case "gold":
		return TierGold
	case "platinum":
		return TierPlatinum
	default:
		return TierNone
	}
}

// String returns the canonical tier name.
func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierPlatinum:
		return "platinum"
	default:
		return "none"
	}
}

// AtLeast reports whether the tier satisfies the required minimum.
func (t Tier) AtLeast(required Tier) bool {
	return t >= required
}
