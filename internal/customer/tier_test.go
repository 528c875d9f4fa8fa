package customer

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseTier(t *testing.T) {
	cases := map[string]Tier{
		"bronze":    TierBronze,
		" Silver ":  TierSilver,
		"GOLD":      TierGold,
		"platinum":  TierPlatinum,
		"":          TierNone,
		"cardboard": TierNone,
	}
	for in, want := range cases {
		if got := ParseTier(in); got != want {
			t.Fatalf("ParseTier(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTierRoundTrip(t *testing.T) {
	for _, tier := range []Tier{TierBronze, TierSilver, TierGold, TierPlatinum} {
		if got := ParseTier(tier.String()); got != tier {
			t.Fatalf("round trip %v -> %q -> %v", tier, tier.String(), got)
		}
	}
}

func TestAtLeast(t *testing.T) {
	if !TierGold.AtLeast(TierSilver) {
		t.Fatalf("gold should satisfy silver")
	}
	if TierBronze.AtLeast(TierGold) {
		t.Fatalf("bronze should not satisfy gold")
	}
	if !TierNone.AtLeast(TierNone) {
		t.Fatalf("none satisfies none")
	}
}

func TestIdentityKnown(t *testing.T) {
	if (Identity{}).Known() {
		t.Fatalf("empty identity should be unknown")
	}
	if !(Identity{Email: "jo@example.com"}).Known() {
		t.Fatalf("email alone resolves an identity")
	}
	id := uuid.New()
	if !(Identity{CustomerID: &id}).Known() {
		t.Fatalf("customer id alone resolves an identity")
	}
}
