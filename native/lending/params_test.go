package lending

import (
	"math/big"
	"testing"
)

func TestParamsSetterBounds(t *testing.T) {
	p := DefaultParams()

	if err := p.SetProtocolFee(2_000); err != nil {
		t.Fatalf("protocol fee at bound: %v", err)
	}
	if err := p.SetProtocolFee(2_001); err == nil {
		t.Fatalf("expected protocol fee bound rejection")
	}
	if p.ProtocolFeeBps != 2_000 {
		t.Fatalf("rejected setter mutated protocol fee: %d", p.ProtocolFeeBps)
	}

	if err := p.SetRepayGrace(60, 100); err == nil {
		t.Fatalf("expected grace period below minimum to be rejected")
	}
	if err := p.SetRepayGrace(2*24*60*60, 2_001); err == nil {
		t.Fatalf("expected grace fee bound rejection")
	}
	if p.RepayGracePeriod != 5*24*60*60 || p.RepayGraceFeeBps != 250 {
		t.Fatalf("rejected setter mutated grace config: %d/%d", p.RepayGracePeriod, p.RepayGraceFeeBps)
	}
	if err := p.SetRepayGrace(2*24*60*60, 300); err != nil {
		t.Fatalf("valid grace config rejected: %v", err)
	}

	if err := p.SetLiquidationFee(2_001); err == nil {
		t.Fatalf("expected liquidation fee bound rejection")
	}
	if err := p.SetOriginationFee(1_001); err == nil {
		t.Fatalf("expected origination fee bound rejection")
	}
	if err := p.SetFeeReductionFactor(FeePrecision - 1); err == nil {
		t.Fatalf("expected reduction factor below precision to be rejected")
	}
	if err := p.SetLenderExclusiveWindow(30 * 60); err == nil {
		t.Fatalf("expected exclusive window below minimum to be rejected")
	}
	if err := p.SetLenderExclusiveWindow(15 * 24 * 60 * 60); err == nil {
		t.Fatalf("expected exclusive window above maximum to be rejected")
	}
}

func TestSetOriginationBracketsValidation(t *testing.T) {
	p := DefaultParams()
	original := p.Clone()

	cases := []struct {
		name     string
		brackets []*big.Int
	}{
		{"empty", nil},
		{"too many", []*big.Int{
			big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4),
			big.NewInt(5), big.NewInt(6), big.NewInt(7),
		}},
		{"zero first entry", []*big.Int{big.NewInt(0), big.NewInt(10)}},
		{"not increasing", []*big.Int{big.NewInt(10), big.NewInt(10)}},
		{"nil entry", []*big.Int{big.NewInt(10), nil}},
	}
	for _, tc := range cases {
		if err := p.SetOriginationBrackets(tc.brackets); err == nil {
			t.Fatalf("%s: expected rejection", tc.name)
		}
		if len(p.OriginationBrackets) != len(original.OriginationBrackets) {
			t.Fatalf("%s: rejected setter mutated brackets", tc.name)
		}
		for i := range p.OriginationBrackets {
			if p.OriginationBrackets[i].Cmp(original.OriginationBrackets[i]) != 0 {
				t.Fatalf("%s: rejected setter mutated bracket %d", tc.name, i)
			}
		}
	}

	replacement := []*big.Int{big.NewInt(5_000), big.NewInt(50_000)}
	if err := p.SetOriginationBrackets(replacement); err != nil {
		t.Fatalf("valid brackets rejected: %v", err)
	}
	// Stored brackets must be independent of the caller's slice.
	replacement[0].SetInt64(99)
	if p.OriginationBrackets[0].Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("stored bracket aliases caller slice: %s", p.OriginationBrackets[0])
	}
}

func TestDurationAprTable(t *testing.T) {
	p := DefaultParams()

	if err := p.SetDurationApr(0, 1000); err == nil {
		t.Fatalf("expected zero duration rejection")
	}
	if err := p.SetDurationApr(100, maxAprBps+1); err == nil {
		t.Fatalf("expected apr bound rejection")
	}
	if err := p.SetDurationApr(2_592_000, 800); err != nil {
		t.Fatalf("install entry: %v", err)
	}
	if err := p.SetDurationApr(7_776_000, 1_000); err != nil {
		t.Fatalf("install entry: %v", err)
	}
	if apr, ok := p.AprForDuration(2_592_000); !ok || apr != 800 {
		t.Fatalf("expected 800 bps for 30-day term, got %d ok=%v", apr, ok)
	}
	if _, ok := p.AprForDuration(999); ok {
		t.Fatalf("unconfigured duration should not be offered")
	}

	// Zero rate removes the entry.
	if err := p.SetDurationApr(2_592_000, 0); err != nil {
		t.Fatalf("remove entry: %v", err)
	}
	if _, ok := p.AprForDuration(2_592_000); ok {
		t.Fatalf("removed duration still offered")
	}
	durations := p.Durations()
	if len(durations) != 1 || durations[0] != 7_776_000 {
		t.Fatalf("unexpected durations %v", durations)
	}
}

func TestTokenAllowList(t *testing.T) {
	p := DefaultParams()

	if err := p.AllowToken("  usdc "); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	if !p.TokenAllowed("USDC") || !p.TokenAllowed("usdc") {
		t.Fatalf("expected case-insensitive allow-list hit")
	}
	if err := p.AllowToken("   "); err == nil {
		t.Fatalf("expected empty symbol rejection")
	}
	if err := p.DisallowToken("usdc"); err != nil {
		t.Fatalf("disallow token: %v", err)
	}
	if p.TokenAllowed("USDC") {
		t.Fatalf("token still allowed after removal")
	}
}

func TestCollateralBlockList(t *testing.T) {
	p := DefaultParams()
	id := CollateralID{Collection: makeAddress(0x11), TokenID: 7}

	if p.CollateralDisallowed(id) {
		t.Fatalf("fresh item should not be blocked")
	}
	p.DisallowCollateral(id)
	if !p.CollateralDisallowed(id) {
		t.Fatalf("expected item to be blocked")
	}
	other := CollateralID{Collection: id.Collection, TokenID: 8}
	if p.CollateralDisallowed(other) {
		t.Fatalf("block must be per-item, not per-collection")
	}
	p.AllowCollateral(id)
	if p.CollateralDisallowed(id) {
		t.Fatalf("expected block to be lifted")
	}
}

func TestParamsCloneIsDeep(t *testing.T) {
	p := DefaultParams()
	if err := p.AllowToken("USDC"); err != nil {
		t.Fatalf("allow token: %v", err)
	}
	clone := p.Clone()
	clone.OriginationBrackets[0].SetInt64(1)
	clone.AllowedTokens["WETH"] = true
	if p.OriginationBrackets[0].Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("clone shares bracket storage")
	}
	if p.AllowedTokens["WETH"] {
		t.Fatalf("clone shares allow-list storage")
	}
}
