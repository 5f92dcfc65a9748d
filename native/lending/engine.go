package lending

import (
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"nftlend/core/events"
	"nftlend/core/types"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
)

const moduleName = "lending"

// Roles consulted on administrative entry points. Parameter governance and the
// treasury destination are deliberately split across two roles.
const (
	RoleLendAdmin = "ROLE_LEND_ADMIN"
	RoleTreasurer = "ROLE_TREASURER"
	RoleOracle    = "ROLE_ORACLE"
)

var (
	errNilState              = errors.New("lending engine: state not configured")
	errNilBank               = errors.New("lending engine: token bank not configured")
	errNilKeeper             = errors.New("lending engine: collateral keeper not configured")
	errNilValuation          = errors.New("lending engine: valuation gate not configured")
	errNilTreasury           = errors.New("lending engine: treasury not configured")
	errNotAllowed            = errors.New("lending engine: address not allow-listed")
	errNotAdmin              = errors.New("lending engine: missing admin role")
	errNotTreasurer          = errors.New("lending engine: missing treasurer role")
	errInvalidAmount         = errors.New("lending engine: amount must be positive")
	errTokenNotAllowed       = errors.New("lending engine: token not allow-listed")
	errDurationNotOffered    = errors.New("lending engine: no apr configured for duration")
	errDeadlineNotFuture     = errors.New("lending engine: deadline must be in the future")
	errUnsupportedCollateral = errors.New("lending engine: collection does not expose collateral capability")
	errCollateralBlocked     = errors.New("lending engine: collateral disallowed")
	errOverMaxBorrow         = errors.New("lending engine: amount exceeds collateral borrow limit")
	errNotBorrower           = errors.New("lending engine: caller is not the borrower")
	errNotCollateralOwner    = errors.New("lending engine: caller does not own the collateral")
	errNotLender             = errors.New("lending engine: caller is not the lender")
	errAlreadyAccepted       = errors.New("lending engine: loan already accepted")
	errAlreadyCancelled      = errors.New("lending engine: loan already cancelled")
	errNotAccepted           = errors.New("lending engine: loan not accepted")
	errDeadlinePassed        = errors.New("lending engine: acceptance deadline passed")
	errRepayWindowClosed     = errors.New("lending engine: repayment window closed")
	errClaimTooEarly         = errors.New("lending engine: grace period still running")
	errLiquidateTooEarly     = errors.New("lending engine: lender-exclusive window still running")
	errNoStuckFunds          = errors.New("lending engine: no stuck funds for recipient")

	// ErrLoanNotFound is returned for operations naming an id that was never
	// assigned; exported so serving layers can map it to a not-found reply.
	ErrLoanNotFound = errors.New("lending engine: loan not found")
	// ErrLoanAlreadyPaid is the stale-state guard observed by the loser of a
	// claim/liquidate race; exported so callers can treat it as a clean
	// ordering outcome rather than a fault.
	ErrLoanAlreadyPaid = errors.New("lending engine: loan already paid")
	// ErrReentrantCall rejects any mutating entry point invoked while another
	// one is still executing.
	ErrReentrantCall = errors.New("lending engine: reentrant call")
)

// TokenBank moves fungible tokens between addresses. Transfers follow
// standard balance semantics: they fail when the source balance is short and
// may fail for receiver-side restrictions, which the repay path isolates into
// the stuck-funds ledger.
type TokenBank interface {
	Decimals(token string) (uint8, error)
	Transfer(token string, from, to crypto.Address, amount *big.Int) error
}

// CollateralKeeper holds custody of non-fungible items and answers capability
// and ownership queries.
type CollateralKeeper interface {
	SupportsCollateral(collection crypto.Address) bool
	OwnerOf(id CollateralID) (crypto.Address, error)
	Transfer(id CollateralID, from, to crypto.Address) error
}

// AddressGate is the external allow-list consulted for every user action.
type AddressGate interface {
	IsAddressAllowed(addr crypto.Address) bool
}

// RoleView answers role-membership queries for administrative callers.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

type engineState interface {
	LoanNextID() (uint64, error)
	LoanPut(*Loan) error
	LoanGet(id uint64) (*Loan, bool, error)
	StuckFundsCredit(token string, recipient crypto.Address, amount *big.Int) error
	StuckFundsBalance(token string, recipient crypto.Address) (*big.Int, error)
	StuckFundsClear(token string, recipient crypto.Address) error
}

type lendingEvent struct {
	evt *types.Event
}

func (e lendingEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e lendingEvent) Event() *types.Event { return e.evt }

// Engine owns the loan registry and orchestrates every lifecycle transition,
// consulting the parameter store, the valuation gate and the authorization
// surfaces, and triggering token and collateral transfers through the wired
// collaborators.
type Engine struct {
	state         engineState
	bank          TokenBank
	keeper        CollateralKeeper
	gate          AddressGate
	roles         RoleView
	valuation     *ValuationGate
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	params        Params
	treasury      crypto.Address
	moduleAddress crypto.Address
	nowFn         func() int64

	mu   sync.Mutex
	busy atomic.Bool
}

// NewEngine constructs a loan engine escrowing collateral and stuck funds
// under moduleAddr, booted with the supplied parameter set.
func NewEngine(moduleAddr crypto.Address, params Params) *Engine {
	params.EnsureDefaults()
	return &Engine{
		moduleAddress: moduleAddr,
		params:        params.Clone(),
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to its persistence backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokenBank wires the fungible-token collaborator.
func (e *Engine) SetTokenBank(bank TokenBank) { e.bank = bank }

// SetCollateralKeeper wires the non-fungible custody collaborator.
func (e *Engine) SetCollateralKeeper(keeper CollateralKeeper) { e.keeper = keeper }

// SetAddressGate wires the allow-list consulted on user entry points.
func (e *Engine) SetAddressGate(gate AddressGate) { e.gate = gate }

// SetRoles wires the role-membership view for admin entry points.
func (e *Engine) SetRoles(roles RoleView) { e.roles = roles }

// SetValuationGate wires the oracle wrapper used at request and acceptance.
func (e *Engine) SetValuationGate(gate *ValuationGate) { e.valuation = gate }

// SetPauses wires the module pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the engine's time source, primarily for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(lendingEvent{evt: event})
}

// begin is the shared entry guard. Distinct goroutines serialize on the
// mutex; the busy flag catches a collaborator calling back into the engine on
// the goroutine that already holds it, where locking again would deadlock.
// Either way, no two transitions ever interleave.
func (e *Engine) begin() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.busy.Load() {
		return ErrReentrantCall
	}
	e.mu.Lock()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		e.mu.Unlock()
		return err
	}
	e.busy.Store(true)
	return nil
}

// lock serializes configuration mutations with the lifecycle transitions.
// Unlike begin it skips the pause guard, so a paused module can still be
// reconfigured.
func (e *Engine) lock() error {
	if e == nil {
		return errNilState
	}
	if e.busy.Load() {
		return ErrReentrantCall
	}
	e.mu.Lock()
	e.busy.Store(true)
	return nil
}

func (e *Engine) end() {
	if e == nil {
		return
	}
	e.busy.Store(false)
	e.mu.Unlock()
}

func (e *Engine) requireAllowed(addr crypto.Address) error {
	if e.gate == nil || !e.gate.IsAddressAllowed(addr) {
		return errNotAllowed
	}
	return nil
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if e == nil || e.roles == nil || !e.roles.HasRole(RoleLendAdmin, caller.Bytes()) {
		return errNotAdmin
	}
	return nil
}

func (e *Engine) requireTreasurer(caller crypto.Address) error {
	if e == nil || e.roles == nil || !e.roles.HasRole(RoleTreasurer, caller.Bytes()) {
		return errNotTreasurer
	}
	return nil
}

func (e *Engine) decimalScale(token string) (*big.Int, error) {
	if e.bank == nil {
		return nil, errNilBank
	}
	decimals, err := e.bank.Decimals(token)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil), nil
}

// unwinder stacks compensating moves for a multi-leg transition so a failed
// leg can put back everything the earlier legs already applied.
type unwinder struct {
	steps []func() error
}

func (u *unwinder) add(step func() error) { u.steps = append(u.steps, step) }

// rollback applies the stacked compensations in reverse order and returns
// cause, joined with any compensation failure.
func (u *unwinder) rollback(cause error) error {
	err := cause
	for i := len(u.steps) - 1; i >= 0; i-- {
		if stepErr := u.steps[i](); stepErr != nil {
			err = errors.Join(err, stepErr)
		}
	}
	return err
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	loan, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan, nil
}

// Params returns a copy of the live parameter set.
func (e *Engine) Params() Params {
	if e == nil {
		return Params{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params.Clone()
}

// Treasury returns the configured fee destination.
func (e *Engine) Treasury() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.Clone()
}

// ModuleAddress returns the engine's escrow address.
func (e *Engine) ModuleAddress() crypto.Address { return e.moduleAddress.Clone() }

// GetLoan returns a copy of the stored loan record.
func (e *Engine) GetLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// StuckFunds returns the undelivered balance credited to recipient for token.
func (e *Engine) StuckFunds(token string, recipient crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	return e.state.StuckFundsBalance(normalized, recipient)
}

// RequestLoan validates and persists a new loan request. No funds or
// collateral move; the rate and the oracle price are snapshotted into the
// record.
func (e *Engine) RequestLoan(caller crypto.Address, token string, amount *big.Int, collateral CollateralID, duration uint64, deadline int64) (*Loan, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if err := e.requireAllowed(caller); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if !e.params.TokenAllowed(normalized) {
		return nil, errTokenNotAllowed
	}
	apr, ok := e.params.AprForDuration(duration)
	if !ok {
		return nil, errDurationNotOffered
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	now := e.now()
	if deadline <= now {
		return nil, errDeadlineNotFuture
	}
	if e.keeper == nil {
		return nil, errNilKeeper
	}
	if !e.keeper.SupportsCollateral(collateral.Collection) {
		return nil, errUnsupportedCollateral
	}
	if e.params.CollateralDisallowed(collateral) {
		return nil, errCollateralBlocked
	}
	owner, err := e.keeper.OwnerOf(collateral)
	if err != nil {
		return nil, err
	}
	if !owner.Equal(caller) {
		return nil, errNotCollateralOwner
	}
	if e.valuation == nil {
		return nil, errNilValuation
	}
	scale, err := e.decimalScale(normalized)
	if err != nil {
		return nil, err
	}
	maxBorrow, quote, err := e.valuation.MaxBorrowable(collateral, scale)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(maxBorrow) > 0 {
		return nil, errOverMaxBorrow
	}

	id, err := e.state.LoanNextID()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:              id,
		Borrower:        caller.Clone(),
		Token:           normalized,
		Amount:          cloneBigInt(amount),
		Collateral:      collateral,
		Duration:        duration,
		AprBps:          apr,
		CollateralValue: cloneBigInt(quote.Price),
		Deadline:        deadline,
		CreatedAt:       now,
	}
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	e.emit(NewRequestedEvent(loan))
	return loan.Clone(), nil
}

// CancelLoan withdraws a request before any lender accepts it. Only the
// original borrower may cancel, and only once.
func (e *Engine) CancelLoan(caller crypto.Address, id uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if !caller.Equal(loan.Borrower) {
		return errNotBorrower
	}
	if loan.Accepted() {
		return errAlreadyAccepted
	}
	if loan.Cancelled {
		return errAlreadyCancelled
	}
	loan.Cancelled = true
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(loan))
	return nil
}

// AcceptLoan funds a pending request: the caller becomes the lender, the
// principal moves to the borrower and the collateral moves into module
// escrow. The borrow limit is re-checked against a live quote so the lender
// is never bound by a stale first-look price.
func (e *Engine) AcceptLoan(caller crypto.Address, id uint64) (*Loan, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	if err := e.requireAllowed(caller); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if loan.Cancelled {
		return nil, errAlreadyCancelled
	}
	if loan.Accepted() {
		return nil, errAlreadyAccepted
	}
	now := e.now()
	if now > loan.Deadline {
		return nil, errDeadlinePassed
	}
	if !e.params.TokenAllowed(loan.Token) {
		return nil, errTokenNotAllowed
	}
	if e.params.CollateralDisallowed(loan.Collateral) {
		return nil, errCollateralBlocked
	}
	if e.valuation == nil {
		return nil, errNilValuation
	}
	scale, err := e.decimalScale(loan.Token)
	if err != nil {
		return nil, err
	}
	maxBorrow, _, err := e.valuation.MaxBorrowable(loan.Collateral, scale)
	if err != nil {
		return nil, err
	}
	if loan.Amount.Cmp(maxBorrow) > 0 {
		return nil, errOverMaxBorrow
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if e.keeper == nil {
		return nil, errNilKeeper
	}

	// Custody first: a borrower who no longer owns the item is rejected
	// before any money moves. Every later failure hands the collateral back,
	// so a failed acceptance leaves no trace.
	if err := e.keeper.Transfer(loan.Collateral, loan.Borrower, e.moduleAddress); err != nil {
		return nil, err
	}
	u := &unwinder{}
	u.add(func() error { return e.keeper.Transfer(loan.Collateral, e.moduleAddress, loan.Borrower) })
	if err := e.bank.Transfer(loan.Token, caller, loan.Borrower, loan.Amount); err != nil {
		return nil, u.rollback(err)
	}
	u.add(func() error { return e.bank.Transfer(loan.Token, loan.Borrower, caller, loan.Amount) })

	loan.Lender = caller.Clone()
	loan.StartTime = now
	if err := e.state.LoanPut(loan); err != nil {
		return nil, u.rollback(err)
	}
	e.emit(NewAcceptedEvent(loan))
	return loan.Clone(), nil
}

// settlement computes the monetary breakdown for settling loan after elapsed
// seconds. The lender share always uses the snapshotted APR; the protocol's
// interest take is the difference against the APR plus the live protocol fee.
func (e *Engine) settlement(loan *Loan, elapsed uint64, scale *big.Int, late, liquidation bool) *Settlement {
	lenderInterest := DebtWithPenalty(loan.Amount, loan.AprBps, loan.Duration, elapsed)
	combined := DebtWithPenalty(loan.Amount, loan.AprBps+e.params.ProtocolFeeBps, loan.Duration, elapsed)
	s := &Settlement{
		LenderPayable:    new(big.Int).Add(loan.Amount, lenderInterest),
		ProtocolInterest: new(big.Int).Sub(combined, lenderInterest),
		OriginationFee:   OriginationFee(loan.Amount, e.params.OriginationFeeBps, e.params.FeeReductionFactor, e.params.OriginationBrackets, scale),
		GraceFee:         big.NewInt(0),
		LiquidationFee:   big.NewInt(0),
	}
	if late {
		s.GraceFee = GraceFee(s.LenderPayable, e.params.RepayGraceFeeBps)
	}
	if liquidation {
		s.LiquidationFee = LiquidationFee(loan.Amount, e.params.LiquidationFeeBps)
	}
	return s
}

// RepayLoan settles an accepted loan before the grace window closes. The
// caller fronts the full amount: lender-payable to the lender, the platform
// share to the treasury. A failed lender payout is isolated into the
// stuck-funds ledger instead of blocking the repayment, and the collateral
// always returns to the borrower.
func (e *Engine) RepayLoan(caller crypto.Address, id uint64) (*Settlement, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if !loan.Accepted() {
		return nil, errNotAccepted
	}
	if loan.Paid {
		return nil, ErrLoanAlreadyPaid
	}
	now := e.now()
	maturity := loan.Maturity()
	graceDeadline := maturity + int64(e.params.RepayGracePeriod)
	if now >= graceDeadline {
		return nil, errRepayWindowClosed
	}
	if e.treasury.IsZero() {
		return nil, errNilTreasury
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if e.keeper == nil {
		return nil, errNilKeeper
	}
	scale, err := e.decimalScale(loan.Token)
	if err != nil {
		return nil, err
	}
	elapsed := uint64(0)
	if now > loan.StartTime {
		elapsed = uint64(now - loan.StartTime)
	}
	s := e.settlement(loan, elapsed, scale, now > maturity, false)

	// Settle the record before any value moves; every later failure unwinds
	// back to the open loan, so a failed repayment leaves no trace.
	original := loan.Clone()
	loan.Paid = true
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	u := &unwinder{}
	u.add(func() error { return e.state.LoanPut(original) })
	if err := e.keeper.Transfer(loan.Collateral, e.moduleAddress, loan.Borrower); err != nil {
		return nil, u.rollback(err)
	}
	u.add(func() error { return e.keeper.Transfer(loan.Collateral, loan.Borrower, e.moduleAddress) })
	if treasuryShare := s.TreasuryShare(); treasuryShare.Sign() > 0 {
		if err := e.bank.Transfer(loan.Token, caller, e.treasury, treasuryShare); err != nil {
			return nil, u.rollback(err)
		}
		u.add(func() error { return e.bank.Transfer(loan.Token, e.treasury, caller, treasuryShare) })
	}
	// Lender payout last, via the recoverable path: a receiver-side fault
	// must not block the borrower from closing the loan.
	if err := e.bank.Transfer(loan.Token, caller, loan.Lender, s.LenderPayable); err != nil {
		if err := e.bank.Transfer(loan.Token, caller, e.moduleAddress, s.LenderPayable); err != nil {
			return nil, u.rollback(err)
		}
		u.add(func() error { return e.bank.Transfer(loan.Token, e.moduleAddress, caller, s.LenderPayable) })
		if err := e.state.StuckFundsCredit(loan.Token, loan.Lender, s.LenderPayable); err != nil {
			return nil, u.rollback(err)
		}
		s.LenderPayoutDeferred = true
	}
	e.emit(NewRepaidEvent(loan, caller, s))
	return s, nil
}

// ClaimNFT lets the lender take the collateral after the grace deadline on a
// defaulted loan, forgoing further principal recovery. No money moves.
func (e *Engine) ClaimNFT(caller crypto.Address, id uint64) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	loan, err := e.loadLoan(id)
	if err != nil {
		return err
	}
	if !loan.Accepted() {
		return errNotAccepted
	}
	if loan.Paid {
		return ErrLoanAlreadyPaid
	}
	if !caller.Equal(loan.Lender) {
		return errNotLender
	}
	graceDeadline := loan.Maturity() + int64(e.params.RepayGracePeriod)
	if e.now() < graceDeadline {
		return errClaimTooEarly
	}
	if e.keeper == nil {
		return errNilKeeper
	}
	original := loan.Clone()
	loan.Paid = true
	if err := e.state.LoanPut(loan); err != nil {
		return err
	}
	if err := e.keeper.Transfer(loan.Collateral, e.moduleAddress, caller); err != nil {
		u := &unwinder{}
		u.add(func() error { return e.state.LoanPut(original) })
		return u.rollback(err)
	}
	e.emit(NewClaimedEvent(loan))
	return nil
}

// LiquidateLoan lets anyone settle a defaulted loan once the lender-exclusive
// window after the grace deadline has also elapsed. The liquidator fronts the
// full-term lender-payable plus every fee and receives the collateral.
func (e *Engine) LiquidateLoan(caller crypto.Address, id uint64) (*Settlement, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	loan, err := e.loadLoan(id)
	if err != nil {
		return nil, err
	}
	if !loan.Accepted() {
		return nil, errNotAccepted
	}
	if loan.Paid {
		return nil, ErrLoanAlreadyPaid
	}
	liquidationStart := loan.Maturity() + int64(e.params.RepayGracePeriod) + int64(e.params.LenderExclusiveWindow)
	if e.now() < liquidationStart {
		return nil, errLiquidateTooEarly
	}
	if e.treasury.IsZero() {
		return nil, errNilTreasury
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	if e.keeper == nil {
		return nil, errNilKeeper
	}
	scale, err := e.decimalScale(loan.Token)
	if err != nil {
		return nil, err
	}
	// Full-term settlement: the penalty term vanishes and the lender collects
	// exactly principal plus term interest.
	s := e.settlement(loan, loan.Duration, scale, false, true)

	// Settle the record first; every later failure unwinds back to the open
	// loan, so a failed liquidation leaves no trace.
	original := loan.Clone()
	loan.Paid = true
	if err := e.state.LoanPut(loan); err != nil {
		return nil, err
	}
	u := &unwinder{}
	u.add(func() error { return e.state.LoanPut(original) })
	if err := e.bank.Transfer(loan.Token, caller, loan.Lender, s.LenderPayable); err != nil {
		return nil, u.rollback(err)
	}
	u.add(func() error { return e.bank.Transfer(loan.Token, loan.Lender, caller, s.LenderPayable) })
	if treasuryShare := s.TreasuryShare(); treasuryShare.Sign() > 0 {
		if err := e.bank.Transfer(loan.Token, caller, e.treasury, treasuryShare); err != nil {
			return nil, u.rollback(err)
		}
		u.add(func() error { return e.bank.Transfer(loan.Token, e.treasury, caller, treasuryShare) })
	}
	if err := e.keeper.Transfer(loan.Collateral, e.moduleAddress, caller); err != nil {
		return nil, u.rollback(err)
	}
	e.emit(NewLiquidatedEvent(loan, caller, s))
	return s, nil
}

// WithdrawStuckToken drains the stuck-funds ledger entry for (token,
// recipient) exactly once, paying the recipient from module custody. Anyone
// may trigger the withdrawal on the recipient's behalf.
func (e *Engine) WithdrawStuckToken(recipient crypto.Address, token string) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	balance, err := e.state.StuckFundsBalance(normalized, recipient)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() == 0 {
		return nil, errNoStuckFunds
	}
	if e.bank == nil {
		return nil, errNilBank
	}
	// Clear before paying so the drain is exactly-once; a failed payout puts
	// the credit back.
	if err := e.state.StuckFundsClear(normalized, recipient); err != nil {
		return nil, err
	}
	if err := e.bank.Transfer(normalized, e.moduleAddress, recipient, balance); err != nil {
		if creditErr := e.state.StuckFundsCredit(normalized, recipient, balance); creditErr != nil {
			return nil, errors.Join(err, creditErr)
		}
		return nil, err
	}
	e.emit(NewStuckWithdrawnEvent(normalized, recipient, balance))
	return cloneBigInt(balance), nil
}

// SetTreasury updates the fee destination. Gated by the treasurer role, which
// is narrower than general parameter governance.
func (e *Engine) SetTreasury(caller, treasury crypto.Address) error {
	if err := e.requireTreasurer(caller); err != nil {
		return err
	}
	if treasury.IsZero() {
		return errNilTreasury
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	e.treasury = treasury.Clone()
	return nil
}

// Admin setters below delegate bound checking to the parameter store; a
// rejected bound leaves the stored configuration untouched.

// SetProtocolFee updates the protocol interest surcharge.
func (e *Engine) SetProtocolFee(caller crypto.Address, bps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetProtocolFee(bps)
}

// SetRepayGrace updates the grace window and its fee.
func (e *Engine) SetRepayGrace(caller crypto.Address, periodSeconds, feeBps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetRepayGrace(periodSeconds, feeBps)
}

// SetLiquidationFee updates the liquidation surcharge.
func (e *Engine) SetLiquidationFee(caller crypto.Address, bps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetLiquidationFee(bps)
}

// SetOriginationFee updates the base origination rate.
func (e *Engine) SetOriginationFee(caller crypto.Address, bps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetOriginationFee(bps)
}

// SetOriginationBrackets replaces the tier thresholds.
func (e *Engine) SetOriginationBrackets(caller crypto.Address, brackets []*big.Int) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetOriginationBrackets(brackets)
}

// SetFeeReductionFactor updates the per-bracket fee divisor.
func (e *Engine) SetFeeReductionFactor(caller crypto.Address, factor uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetFeeReductionFactor(factor)
}

// SetLenderExclusiveWindow updates the lender's priority window.
func (e *Engine) SetLenderExclusiveWindow(caller crypto.Address, seconds uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetLenderExclusiveWindow(seconds)
}

// SetDurationApr installs, replaces or (with a zero rate) removes an APR
// table entry. Existing loans keep their snapshotted rate.
func (e *Engine) SetDurationApr(caller crypto.Address, durationSeconds, aprBps uint64) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.SetDurationApr(durationSeconds, aprBps)
}

// AllowToken adds a denomination to the allow-list.
func (e *Engine) AllowToken(caller crypto.Address, symbol string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.AllowToken(symbol)
}

// DisallowToken removes a denomination from the allow-list.
func (e *Engine) DisallowToken(caller crypto.Address, symbol string) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	return e.params.DisallowToken(symbol)
}

// SetCollateralDisallowed flips the per-item collateral block.
func (e *Engine) SetCollateralDisallowed(caller crypto.Address, id CollateralID, disallowed bool) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.lock(); err != nil {
		return err
	}
	defer e.end()
	if disallowed {
		e.params.DisallowCollateral(id)
	} else {
		e.params.AllowCollateral(id)
	}
	return nil
}
