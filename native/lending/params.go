package lending

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
)

// Governance bounds. Setters reject values outside the closed bound instead of
// clamping them, so a bad proposal never silently degrades into a different
// configuration.
const (
	maxProtocolFeeBps    = 2_000
	maxRepayGraceFeeBps  = 2_000
	maxLiquidationFeeBps = 2_000
	maxOriginationFeeBps = 1_000
	maxAprBps            = 30_000

	minRepayGracePeriod = uint64(24 * 60 * 60)
	maxRepayGracePeriod = uint64(30 * 24 * 60 * 60)

	minLenderExclusiveWindow = uint64(60 * 60)
	maxLenderExclusiveWindow = uint64(14 * 24 * 60 * 60)

	// MaxOriginationBrackets bounds the tier table so the per-repayment
	// bracket walk stays O(1) in practice.
	MaxOriginationBrackets = 6
)

var (
	errProtocolFeeBound      = fmt.Errorf("lending params: protocol fee above %d bps", maxProtocolFeeBps)
	errGraceFeeBound         = fmt.Errorf("lending params: grace fee above %d bps", maxRepayGraceFeeBps)
	errGracePeriodBound      = fmt.Errorf("lending params: grace period outside [%d,%d)", minRepayGracePeriod, maxRepayGracePeriod)
	errLiquidationFeeBound   = fmt.Errorf("lending params: liquidation fee above %d bps", maxLiquidationFeeBps)
	errOriginationFeeBound   = fmt.Errorf("lending params: origination fee above %d bps", maxOriginationFeeBps)
	errExclusiveWindowBound  = fmt.Errorf("lending params: exclusive window outside [%d,%d)", minLenderExclusiveWindow, maxLenderExclusiveWindow)
	errReductionFactorBound  = errors.New("lending params: fee reduction factor below precision")
	errBracketsEmpty         = errors.New("lending params: origination brackets must not be empty")
	errBracketsTooMany       = fmt.Errorf("lending params: more than %d origination brackets", MaxOriginationBrackets)
	errBracketsNotIncreasing = errors.New("lending params: origination brackets must be strictly increasing")
	errBracketsFirstEntry    = errors.New("lending params: first origination bracket must be positive")
	errAprBound              = fmt.Errorf("lending params: apr above %d bps", maxAprBps)
	errZeroDuration          = errors.New("lending params: duration must be positive")
	errEmptyToken            = errors.New("lending params: empty token symbol")
)

// Params is the protocol-wide, governance-mutable configuration consulted by
// the loan engine. It is owned by whoever constructed it and mutated only
// through the validated setters below.
type Params struct {
	ProtocolFeeBps        uint64            `json:"protocolFeeBps"`
	RepayGracePeriod      uint64            `json:"repayGracePeriod"`
	RepayGraceFeeBps      uint64            `json:"repayGraceFeeBps"`
	LiquidationFeeBps     uint64            `json:"liquidationFeeBps"`
	OriginationFeeBps     uint64            `json:"originationFeeBps"`
	OriginationBrackets   []*big.Int        `json:"originationBrackets"`
	FeeReductionFactor    uint64            `json:"feeReductionFactor"`
	LenderExclusiveWindow uint64            `json:"lenderExclusiveWindow"`
	AprByDuration         map[uint64]uint64 `json:"aprByDuration"`
	AllowedTokens         map[string]bool   `json:"allowedTokens"`
	DisallowedCollateral  map[string]bool   `json:"disallowedCollateral"`
}

// DefaultParams returns the configuration the module boots with before
// governance overrides anything.
func DefaultParams() Params {
	return Params{
		ProtocolFeeBps:        150,
		RepayGracePeriod:      5 * 24 * 60 * 60,
		RepayGraceFeeBps:      250,
		LiquidationFeeBps:     500,
		OriginationFeeBps:     100,
		OriginationBrackets:   []*big.Int{big.NewInt(10_000), big.NewInt(100_000), big.NewInt(1_000_000)},
		FeeReductionFactor:    14_000,
		LenderExclusiveWindow: 2 * 24 * 60 * 60,
		AprByDuration:         make(map[uint64]uint64),
		AllowedTokens:         make(map[string]bool),
		DisallowedCollateral:  make(map[string]bool),
	}
}

// Clone returns a deep copy of the parameter set.
func (p Params) Clone() Params {
	clone := p
	clone.OriginationBrackets = make([]*big.Int, 0, len(p.OriginationBrackets))
	for _, b := range p.OriginationBrackets {
		clone.OriginationBrackets = append(clone.OriginationBrackets, cloneBigInt(b))
	}
	clone.AprByDuration = make(map[uint64]uint64, len(p.AprByDuration))
	for k, v := range p.AprByDuration {
		clone.AprByDuration[k] = v
	}
	clone.AllowedTokens = make(map[string]bool, len(p.AllowedTokens))
	for k, v := range p.AllowedTokens {
		clone.AllowedTokens[k] = v
	}
	clone.DisallowedCollateral = make(map[string]bool, len(p.DisallowedCollateral))
	for k, v := range p.DisallowedCollateral {
		clone.DisallowedCollateral[k] = v
	}
	return clone
}

// EnsureDefaults populates nil maps so decoded parameter sets are safe to use.
func (p *Params) EnsureDefaults() {
	if p.AprByDuration == nil {
		p.AprByDuration = make(map[uint64]uint64)
	}
	if p.AllowedTokens == nil {
		p.AllowedTokens = make(map[string]bool)
	}
	if p.DisallowedCollateral == nil {
		p.DisallowedCollateral = make(map[string]bool)
	}
}

// SetProtocolFee updates the protocol interest surcharge.
func (p *Params) SetProtocolFee(bps uint64) error {
	if bps > maxProtocolFeeBps {
		return errProtocolFeeBound
	}
	p.ProtocolFeeBps = bps
	return nil
}

// SetRepayGrace updates the late-repayment window and its surcharge together,
// since the fee is meaningless without the window.
func (p *Params) SetRepayGrace(periodSeconds, feeBps uint64) error {
	if periodSeconds < minRepayGracePeriod || periodSeconds >= maxRepayGracePeriod {
		return errGracePeriodBound
	}
	if feeBps > maxRepayGraceFeeBps {
		return errGraceFeeBound
	}
	p.RepayGracePeriod = periodSeconds
	p.RepayGraceFeeBps = feeBps
	return nil
}

// SetLiquidationFee updates the liquidation surcharge.
func (p *Params) SetLiquidationFee(bps uint64) error {
	if bps > maxLiquidationFeeBps {
		return errLiquidationFeeBound
	}
	p.LiquidationFeeBps = bps
	return nil
}

// SetOriginationFee updates the base origination rate.
func (p *Params) SetOriginationFee(bps uint64) error {
	if bps > maxOriginationFeeBps {
		return errOriginationFeeBound
	}
	p.OriginationFeeBps = bps
	return nil
}

// SetOriginationBrackets replaces the tier thresholds. The list must be
// non-empty, bounded in length, strictly increasing and start above zero;
// violating any bound leaves the stored brackets untouched.
func (p *Params) SetOriginationBrackets(brackets []*big.Int) error {
	if len(brackets) == 0 {
		return errBracketsEmpty
	}
	if len(brackets) > MaxOriginationBrackets {
		return errBracketsTooMany
	}
	if brackets[0] == nil || brackets[0].Sign() <= 0 {
		return errBracketsFirstEntry
	}
	cloned := make([]*big.Int, 0, len(brackets))
	for i, b := range brackets {
		if b == nil {
			return errBracketsNotIncreasing
		}
		if i > 0 && b.Cmp(brackets[i-1]) <= 0 {
			return errBracketsNotIncreasing
		}
		cloned = append(cloned, new(big.Int).Set(b))
	}
	p.OriginationBrackets = cloned
	return nil
}

// SetFeeReductionFactor updates the per-bracket divisor. It must be at least
// FeePrecision so crossing a bracket can never raise the effective rate.
func (p *Params) SetFeeReductionFactor(factor uint64) error {
	if factor < FeePrecision {
		return errReductionFactorBound
	}
	p.FeeReductionFactor = factor
	return nil
}

// SetLenderExclusiveWindow updates the post-grace window reserved for the
// lender's collateral claim.
func (p *Params) SetLenderExclusiveWindow(seconds uint64) error {
	if seconds < minLenderExclusiveWindow || seconds >= maxLenderExclusiveWindow {
		return errExclusiveWindowBound
	}
	p.LenderExclusiveWindow = seconds
	return nil
}

// SetDurationApr installs or replaces an APR table entry. A zero rate removes
// the entry, disabling the duration for new requests.
func (p *Params) SetDurationApr(durationSeconds, aprBps uint64) error {
	if durationSeconds == 0 {
		return errZeroDuration
	}
	if aprBps > maxAprBps {
		return errAprBound
	}
	p.EnsureDefaults()
	if aprBps == 0 {
		delete(p.AprByDuration, durationSeconds)
		return nil
	}
	p.AprByDuration[durationSeconds] = aprBps
	return nil
}

// AprForDuration returns the configured rate for the duration, if any.
func (p Params) AprForDuration(durationSeconds uint64) (uint64, bool) {
	apr, ok := p.AprByDuration[durationSeconds]
	return apr, ok && apr > 0
}

// Durations lists the configured loan terms in ascending order.
func (p Params) Durations() []uint64 {
	out := make([]uint64, 0, len(p.AprByDuration))
	for d := range p.AprByDuration {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowToken adds the symbol to the denomination allow-list.
func (p *Params) AllowToken(symbol string) error {
	normalized, err := NormalizeToken(symbol)
	if err != nil {
		return errEmptyToken
	}
	p.EnsureDefaults()
	p.AllowedTokens[normalized] = true
	return nil
}

// DisallowToken removes the symbol from the allow-list. Existing loans keep
// their denomination; only new requests and acceptances are blocked.
func (p *Params) DisallowToken(symbol string) error {
	normalized, err := NormalizeToken(symbol)
	if err != nil {
		return errEmptyToken
	}
	p.EnsureDefaults()
	delete(p.AllowedTokens, normalized)
	return nil
}

// TokenAllowed reports whether the symbol is usable as a loan denomination.
func (p Params) TokenAllowed(symbol string) bool {
	normalized, err := NormalizeToken(symbol)
	if err != nil {
		return false
	}
	return p.AllowedTokens[normalized]
}

// DisallowCollateral blocks a specific item from being pledged.
func (p *Params) DisallowCollateral(id CollateralID) {
	p.EnsureDefaults()
	p.DisallowedCollateral[id.Key()] = true
}

// AllowCollateral lifts a per-item block.
func (p *Params) AllowCollateral(id CollateralID) {
	p.EnsureDefaults()
	delete(p.DisallowedCollateral, id.Key())
}

// CollateralDisallowed reports whether the item is blocked from pledging.
func (p Params) CollateralDisallowed(id CollateralID) bool {
	return p.DisallowedCollateral[id.Key()]
}
