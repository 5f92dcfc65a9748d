package lending

import (
	"math/big"
	"testing"
)

func tokens(whole int64, decimals uint) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(whole), scale)
}

func TestDebtWithPenaltyZeroInputs(t *testing.T) {
	if got := DebtWithPenalty(nil, 1000, 100, 50); got.Sign() != 0 {
		t.Fatalf("nil amount: expected zero, got %s", got)
	}
	if got := DebtWithPenalty(big.NewInt(-5), 1000, 100, 50); got.Sign() != 0 {
		t.Fatalf("negative amount: expected zero, got %s", got)
	}
	if got := DebtWithPenalty(big.NewInt(1000), 0, 100, 50); got.Sign() != 0 {
		t.Fatalf("zero apr: expected zero, got %s", got)
	}
	if got := DebtWithPenalty(big.NewInt(1000), 1000, 0, 50); got.Sign() != 0 {
		t.Fatalf("zero duration: expected zero, got %s", got)
	}
}

func TestDebtWithPenaltyEighteenMonthScenario(t *testing.T) {
	// 100,000 tokens at 18 decimals, 10.70% APR over an 18-month term,
	// settled after one month.
	amount := tokens(100_000, 18)
	duration := uint64(18 * 30 * 24 * 60 * 60)
	elapsed := duration / 18

	got := DebtWithPenalty(amount, 1070, duration, elapsed)
	want, _ := new(big.Int).SetString("1733796296296296296295", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("lender interest: expected %s, got %s", want, got)
	}

	combined := DebtWithPenalty(amount, 1070+150, duration, elapsed)
	protocol := new(big.Int).Sub(combined, got)
	wantProtocol, _ := new(big.Int).SetString("243055555555555555555", 10)
	if protocol.Cmp(wantProtocol) != 0 {
		t.Fatalf("protocol interest: expected %s, got %s", wantProtocol, protocol)
	}
}

func TestDebtWithPenaltyClampsElapsed(t *testing.T) {
	amount := tokens(1_000, 18)
	duration := uint64(360 * 24 * 60 * 60)

	atTerm := DebtWithPenalty(amount, 1200, duration, duration)
	beyond := DebtWithPenalty(amount, 1200, duration, duration*3)
	if atTerm.Cmp(beyond) != 0 {
		t.Fatalf("expected clamped settlement %s to equal at-term %s", beyond, atTerm)
	}
	// At full term the penalty component vanishes: the result is the plain
	// linear accrual amount*apr*duration/(year*precision).
	want := new(big.Int).Mul(amount, big.NewInt(1200))
	want.Quo(want, big.NewInt(FeePrecision))
	if atTerm.Cmp(want) != 0 {
		t.Fatalf("at-term accrual: expected %s, got %s", want, atTerm)
	}
}

func TestDebtWithPenaltyPenaltyShrinksWithElapsed(t *testing.T) {
	amount := tokens(10_000, 18)
	duration := uint64(12 * 30 * 24 * 60 * 60)

	// total(e) = accrual(e) + accrual(e)*(D-e)/D grows with elapsed time.
	early := DebtWithPenalty(amount, 1000, duration, duration/12)
	mid := DebtWithPenalty(amount, 1000, duration, duration/2)
	late := DebtWithPenalty(amount, 1000, duration, duration)
	if early.Cmp(mid) >= 0 || mid.Cmp(late) >= 0 {
		t.Fatalf("expected strictly increasing settlements, got %s %s %s", early, mid, late)
	}
}

func TestOriginationFeeTiering(t *testing.T) {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	brackets := []*big.Int{big.NewInt(10_000), big.NewInt(100_000), big.NewInt(1_000_000)}

	// Below the first threshold: plain 1% fee.
	small := tokens(5_000, 18)
	if got, want := OriginationFee(small, 100, 14_000, brackets, scale), tokens(50, 18); got.Cmp(want) != 0 {
		t.Fatalf("below first bracket: expected %s, got %s", want, got)
	}

	// Meeting a threshold exactly triggers its reduction.
	atFirst := tokens(10_000, 18)
	wantFirst := new(big.Int).Mul(atFirst, big.NewInt(100))
	wantFirst.Quo(wantFirst, big.NewInt(FeePrecision))
	wantFirst.Mul(wantFirst, big.NewInt(FeePrecision))
	wantFirst.Quo(wantFirst, big.NewInt(14_000))
	if got := OriginationFee(atFirst, 100, 14_000, brackets, scale); got.Cmp(wantFirst) != 0 {
		t.Fatalf("at first bracket: expected %s, got %s", wantFirst, got)
	}

	// The worked 100,000-token case crosses two brackets: 1,000 tokens of
	// base fee divided by 1.4 twice.
	principal := tokens(100_000, 18)
	want, _ := new(big.Int).SetString("510204081632653061224", 10)
	if got := OriginationFee(principal, 100, 14_000, brackets, scale); got.Cmp(want) != 0 {
		t.Fatalf("two brackets: expected %s, got %s", want, got)
	}
}

func TestOriginationFeeWithoutReduction(t *testing.T) {
	scale := big.NewInt(1)
	brackets := []*big.Int{big.NewInt(10)}
	amount := big.NewInt(1_000_000)

	// A reduction factor at or below precision disables the tier walk.
	base := OriginationFee(amount, 100, FeePrecision, brackets, scale)
	if want := big.NewInt(10_000); base.Cmp(want) != 0 {
		t.Fatalf("expected base fee %s, got %s", want, base)
	}
	if got := OriginationFee(amount, 0, 14_000, brackets, scale); got.Sign() != 0 {
		t.Fatalf("zero base rate: expected zero, got %s", got)
	}
}

func TestFlatFees(t *testing.T) {
	if got, want := LiquidationFee(big.NewInt(10_000), 500), big.NewInt(500); got.Cmp(want) != 0 {
		t.Fatalf("liquidation fee: expected %s, got %s", want, got)
	}
	if got, want := GraceFee(big.NewInt(10_000), 250), big.NewInt(250); got.Cmp(want) != 0 {
		t.Fatalf("grace fee: expected %s, got %s", want, got)
	}
	if got := GraceFee(nil, 250); got.Sign() != 0 {
		t.Fatalf("nil base: expected zero, got %s", got)
	}
}
