package lending

import "math/big"

// FeePrecision is the fixed-point denominator for every rate in the module:
// 10_000 basis points represent 100%.
const FeePrecision = 10_000

// secondsPerYear follows the 360-day banking convention rather than the
// calendar year, matching the rate tables the APR entries are quoted against.
const secondsPerYear = 360 * 24 * 60 * 60

var bpsDivisor = big.NewInt(FeePrecision)

// DebtWithPenalty computes the interest owed on amount at aprBps for a loan of
// loanDuration seconds that is being settled after repaymentDuration seconds.
//
// Interest accrues linearly over the elapsed time, and the unused-time
// fraction of that accrual is charged again as an early-settlement penalty:
// accrued * (loanDuration - elapsed) / loanDuration. The penalty shrinks as
// the loan runs, so the total grows with elapsed time until it reaches
// exactly the full-term accrual at maturity. Durations beyond the term are
// clamped. All divisions truncate toward zero.
func DebtWithPenalty(amount *big.Int, aprBps, loanDuration, repaymentDuration uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || aprBps == 0 || loanDuration == 0 {
		return big.NewInt(0)
	}
	elapsed := repaymentDuration
	if elapsed > loanDuration {
		elapsed = loanDuration
	}

	accrued := new(big.Int).Mul(amount, new(big.Int).SetUint64(aprBps))
	accrued.Mul(accrued, new(big.Int).SetUint64(elapsed))
	accrued.Quo(accrued, big.NewInt(secondsPerYear))
	accrued.Quo(accrued, bpsDivisor)

	// penalty = accrued * (loanDuration - elapsed) / loanDuration
	penalty := new(big.Int).Mul(accrued, new(big.Int).SetUint64(loanDuration-elapsed))
	penalty.Quo(penalty, new(big.Int).SetUint64(loanDuration))

	return accrued.Add(accrued, penalty)
}

// OriginationFee computes the one-time fee charged on the principal. The base
// rate is applied to the amount and then divided by reductionFactor (expressed
// in FeePrecision units, so 14_000 means /1.4) once for every ascending
// bracket threshold the principal meets, stopping at the first threshold it
// does not reach. Thresholds are quoted in whole tokens; decimalScale converts
// them to the token's smallest units.
func OriginationFee(amount *big.Int, baseFeeBps, reductionFactor uint64, brackets []*big.Int, decimalScale *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 || baseFeeBps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(baseFeeBps))
	fee.Quo(fee, bpsDivisor)
	if reductionFactor <= FeePrecision {
		return fee
	}
	factor := new(big.Int).SetUint64(reductionFactor)
	for _, threshold := range brackets {
		if threshold == nil {
			continue
		}
		scaled := new(big.Int).Set(threshold)
		if decimalScale != nil && decimalScale.Sign() > 0 {
			scaled.Mul(scaled, decimalScale)
		}
		if amount.Cmp(scaled) < 0 {
			break
		}
		fee.Mul(fee, bpsDivisor)
		fee.Quo(fee, factor)
	}
	return fee
}

// LiquidationFee computes the flat liquidation surcharge on the principal.
func LiquidationFee(amount *big.Int, liquidationFeeBps uint64) *big.Int {
	return bpsCut(amount, liquidationFeeBps)
}

// GraceFee computes the late-repayment surcharge on the lender-payable amount.
// It applies only to repayments made strictly after maturity.
func GraceFee(lenderPayable *big.Int, graceFeeBps uint64) *big.Int {
	return bpsCut(lenderPayable, graceFeeBps)
}

func bpsCut(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	cut := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return cut.Quo(cut, bpsDivisor)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
