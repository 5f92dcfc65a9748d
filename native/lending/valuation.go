package lending

import (
	"errors"
	"math/big"
	"time"
)

// quoteValidity is the fixed window after which an oracle quote is considered
// stale and unusable for sizing a loan.
const quoteValidity = int64(30 * 60)

var (
	errNilOracle    = errors.New("valuation gate: oracle not configured")
	errQuoteStale   = errors.New("valuation gate: quote outside validity window")
	errQuoteLTV     = errors.New("valuation gate: ltv above 100 percent")
	errQuoteMissing = errors.New("valuation gate: empty quote")
)

// Quote is the oracle's answer for a single collateral item. Price is quoted
// in whole denomination tokens; LTV is a percentage bounding the borrowable
// fraction of that price.
type Quote struct {
	Timestamp int64    `json:"timestamp"`
	Price     *big.Int `json:"price"`
	LTV       uint64   `json:"ltv"`
}

// ValuationOracle is the external price feed consumed by the gate.
type ValuationOracle interface {
	Valuation(id CollateralID) (Quote, error)
}

// ValuationGate wraps the oracle with the staleness and LTV checks every loan
// sizing decision must pass. Request time uses the gate for the snapshot,
// acceptance re-runs it against the live quote so the lender always gets the
// current price's verdict.
type ValuationGate struct {
	oracle ValuationOracle
	nowFn  func() int64
}

// NewValuationGate wires the gate to an oracle. The time source defaults to
// the wall clock and can be overridden for deterministic tests.
func NewValuationGate(oracle ValuationOracle) *ValuationGate {
	return &ValuationGate{
		oracle: oracle,
		nowFn:  func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the gate's time source.
func (g *ValuationGate) SetNowFunc(now func() int64) {
	if g == nil {
		return
	}
	if now == nil {
		g.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	g.nowFn = now
}

// MaxBorrowable fetches a fresh quote and returns the largest principal the
// item supports, in the token's smallest units: price * decimalScale * ltv /
// 100. The quote is returned alongside so callers can snapshot the price.
func (g *ValuationGate) MaxBorrowable(id CollateralID, decimalScale *big.Int) (*big.Int, Quote, error) {
	if g == nil || g.oracle == nil {
		return nil, Quote{}, errNilOracle
	}
	quote, err := g.oracle.Valuation(id)
	if err != nil {
		return nil, Quote{}, err
	}
	if quote.Price == nil || quote.Price.Sign() <= 0 {
		return nil, Quote{}, errQuoteMissing
	}
	now := g.nowFn()
	if quote.Timestamp > now || now-quote.Timestamp > quoteValidity {
		return nil, Quote{}, errQuoteStale
	}
	if quote.LTV > 100 {
		return nil, Quote{}, errQuoteLTV
	}
	max := new(big.Int).Set(quote.Price)
	if decimalScale != nil && decimalScale.Sign() > 0 {
		max.Mul(max, decimalScale)
	}
	max.Mul(max, new(big.Int).SetUint64(quote.LTV))
	max.Quo(max, big.NewInt(100))
	return max, quote, nil
}
