package lending

import (
	"math/big"
	"strconv"

	"nftlend/core/types"
	"nftlend/crypto"
)

const (
	EventTypeLoanRequested  = "lending.requested"
	EventTypeLoanCancelled  = "lending.cancelled"
	EventTypeLoanAccepted   = "lending.accepted"
	EventTypeLoanRepaid     = "lending.repaid"
	EventTypeLoanClaimed    = "lending.collateral_claimed"
	EventTypeLoanLiquidated = "lending.liquidated"
	EventTypeStuckWithdrawn = "lending.stuck_withdrawn"
)

// Settlement carries the computed monetary breakdown of a repay or liquidate
// transition. It is attached to the emitted record and returned to callers so
// the daemon can expose exact amounts without recomputing.
type Settlement struct {
	// LenderPayable is principal plus full-term interest at the loan's APR.
	LenderPayable *big.Int `json:"lenderPayable"`
	// ProtocolInterest is the platform's interest take: debt at APR plus
	// protocol fee minus debt at APR alone.
	ProtocolInterest *big.Int `json:"protocolInterest"`
	// OriginationFee is the tiered one-time fee on the principal.
	OriginationFee *big.Int `json:"originationFee"`
	// GraceFee is non-zero only for repayments strictly after maturity.
	GraceFee *big.Int `json:"graceFee"`
	// LiquidationFee is non-zero only for liquidations.
	LiquidationFee *big.Int `json:"liquidationFee"`
	// LenderPayoutDeferred marks that the lender transfer failed and the
	// amount was routed to the stuck-funds ledger instead.
	LenderPayoutDeferred bool `json:"lenderPayoutDeferred"`
}

// TreasuryShare sums every component routed to the treasury.
func (s *Settlement) TreasuryShare() *big.Int {
	total := big.NewInt(0)
	if s == nil {
		return total
	}
	for _, part := range []*big.Int{s.ProtocolInterest, s.OriginationFee, s.GraceFee, s.LiquidationFee} {
		if part != nil {
			total.Add(total, part)
		}
	}
	return total
}

// Total is the full amount debited from the settling party.
func (s *Settlement) Total() *big.Int {
	total := s.TreasuryShare()
	if s != nil && s.LenderPayable != nil {
		total.Add(total, s.LenderPayable)
	}
	return total
}

func loanAttributes(l *Loan) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(l.ID, 10)
	attrs["borrower"] = l.Borrower.String()
	if !l.Lender.IsZero() {
		attrs["lender"] = l.Lender.String()
	}
	attrs["token"] = l.Token
	if l.Amount != nil {
		attrs["amount"] = l.Amount.String()
	}
	attrs["collection"] = l.Collateral.Collection.String()
	attrs["tokenId"] = strconv.FormatUint(l.Collateral.TokenID, 10)
	attrs["duration"] = strconv.FormatUint(l.Duration, 10)
	attrs["aprBps"] = strconv.FormatUint(l.AprBps, 10)
	attrs["deadline"] = strconv.FormatInt(l.Deadline, 10)
	if l.StartTime > 0 {
		attrs["startTime"] = strconv.FormatInt(l.StartTime, 10)
	}
	return attrs
}

func settlementAttributes(attrs map[string]string, s *Settlement) {
	if s == nil {
		return
	}
	if s.LenderPayable != nil {
		attrs["lenderPayable"] = s.LenderPayable.String()
	}
	attrs["treasuryShare"] = s.TreasuryShare().String()
	if s.GraceFee != nil && s.GraceFee.Sign() > 0 {
		attrs["graceFee"] = s.GraceFee.String()
	}
	if s.LiquidationFee != nil && s.LiquidationFee.Sign() > 0 {
		attrs["liquidationFee"] = s.LiquidationFee.String()
	}
	if s.LenderPayoutDeferred {
		attrs["lenderPayoutDeferred"] = "true"
	}
}

// NewRequestedEvent records a freshly created loan request.
func NewRequestedEvent(l *Loan) *types.Event {
	attrs := loanAttributes(l)
	if l != nil && l.CollateralValue != nil {
		attrs["collateralValue"] = l.CollateralValue.String()
	}
	return &types.Event{Type: EventTypeLoanRequested, Attributes: attrs}
}

// NewCancelledEvent records a pre-acceptance withdrawal by the borrower.
func NewCancelledEvent(l *Loan) *types.Event {
	return &types.Event{Type: EventTypeLoanCancelled, Attributes: loanAttributes(l)}
}

// NewAcceptedEvent records the funding of a loan.
func NewAcceptedEvent(l *Loan) *types.Event {
	return &types.Event{Type: EventTypeLoanAccepted, Attributes: loanAttributes(l)}
}

// NewRepaidEvent records a settlement initiated by the borrower's side.
func NewRepaidEvent(l *Loan, payer crypto.Address, s *Settlement) *types.Event {
	attrs := loanAttributes(l)
	attrs["payer"] = payer.String()
	settlementAttributes(attrs, s)
	return &types.Event{Type: EventTypeLoanRepaid, Attributes: attrs}
}

// NewClaimedEvent records the lender taking the collateral after default.
func NewClaimedEvent(l *Loan) *types.Event {
	return &types.Event{Type: EventTypeLoanClaimed, Attributes: loanAttributes(l)}
}

// NewLiquidatedEvent records a third-party liquidation.
func NewLiquidatedEvent(l *Loan, liquidator crypto.Address, s *Settlement) *types.Event {
	attrs := loanAttributes(l)
	attrs["liquidator"] = liquidator.String()
	settlementAttributes(attrs, s)
	return &types.Event{Type: EventTypeLoanLiquidated, Attributes: attrs}
}

// NewStuckWithdrawnEvent records the drain of a stuck-funds ledger entry.
func NewStuckWithdrawnEvent(token string, recipient crypto.Address, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"token":     token,
		"recipient": recipient.String(),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	}
	return &types.Event{Type: EventTypeStuckWithdrawn, Attributes: attrs}
}
