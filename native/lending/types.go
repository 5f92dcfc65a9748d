package lending

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"nftlend/crypto"
)

// CollateralID identifies a single non-fungible item by its collection
// contract and token number.
type CollateralID struct {
	Collection crypto.Address `json:"collection"`
	TokenID    uint64         `json:"tokenId"`
}

// Key returns the canonical map key for per-item flags such as the collateral
// disallow-list.
func (c CollateralID) Key() string {
	return hex.EncodeToString(c.Collection.Bytes()) + "/" + strconv.FormatUint(c.TokenID, 10)
}

// Loan is the persistent record of a single collateralised loan. Records are
// append-only: once created a loan is never deleted, and terminal flags are
// never cleared, so the registry doubles as an audit log.
type Loan struct {
	// ID is the monotonically increasing identifier assigned at request time.
	ID uint64 `json:"id"`
	// Borrower requested the loan and pledged the collateral. Immutable.
	Borrower crypto.Address `json:"borrower"`
	// Lender is the zero address until the loan is accepted and immutable
	// afterwards.
	Lender crypto.Address `json:"lender"`
	// Token is the allow-listed symbol of the denomination token.
	Token string `json:"token"`
	// Amount is the principal in the token's smallest units.
	Amount *big.Int `json:"amount"`
	// Collateral pins the pledged non-fungible item.
	Collateral CollateralID `json:"collateral"`
	// Duration is the agreed term in seconds. It must match a configured APR
	// entry at request time.
	Duration uint64 `json:"duration"`
	// AprBps is the interest rate snapshotted from the parameter store when
	// the loan was requested. Later rate-table edits do not touch it.
	AprBps uint64 `json:"aprBps"`
	// CollateralValue is the oracle price snapshot taken at request time,
	// expressed in whole denomination tokens.
	CollateralValue *big.Int `json:"collateralValue"`
	// Deadline is the Unix time after which the request can no longer be
	// accepted.
	Deadline int64 `json:"deadline"`
	// CreatedAt is the Unix time of the request.
	CreatedAt int64 `json:"createdAt"`
	// StartTime is zero until acceptance and records the Unix time the
	// principal moved.
	StartTime int64 `json:"startTime"`
	// Cancelled marks a request withdrawn by the borrower before acceptance.
	Cancelled bool `json:"cancelled"`
	// Paid covers every terminal settlement: repayment, collateral claim and
	// liquidation share the single flag, which is what makes them mutually
	// exclusive.
	Paid bool `json:"paid"`
}

// Accepted reports whether a lender has funded the loan.
func (l *Loan) Accepted() bool {
	return l != nil && !l.Lender.IsZero()
}

// Maturity returns the Unix time at which the full term elapses. Zero for
// unaccepted loans.
func (l *Loan) Maturity() int64 {
	if l == nil || l.StartTime == 0 {
		return 0
	}
	return l.StartTime + int64(l.Duration)
}

// Clone returns a deep copy so callers can mutate the result without touching
// the stored record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Borrower = l.Borrower.Clone()
	clone.Lender = l.Lender.Clone()
	clone.Collateral.Collection = l.Collateral.Collection.Clone()
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if l.CollateralValue != nil {
		clone.CollateralValue = new(big.Int).Set(l.CollateralValue)
	} else {
		clone.CollateralValue = big.NewInt(0)
	}
	return &clone
}

// NormalizeToken canonicalises a denomination token symbol. Symbols are plain
// uppercase tickers; the allow-list decides which are usable.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("lending: empty token symbol")
	}
	return trimmed, nil
}
