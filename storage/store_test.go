package storage

import (
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"nftlend/crypto"
	"nftlend/native/lending"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "lending.db"), &bolt.Options{Timeout: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testAddress(suffix byte) crypto.Address {
	b := make([]byte, 20)
	b[19] = suffix
	return crypto.NewAddress(crypto.LendPrefix, b)
}

func TestLoanRoundTrip(t *testing.T) {
	store := newTestStore(t)

	first, err := store.LoanNextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	second, err := store.LoanNextID()
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected sequential ids, got %d %d", first, second)
	}

	loan := &lending.Loan{
		ID:              first,
		Borrower:        testAddress(0x01),
		Token:           "USDC",
		Amount:          big.NewInt(1_000_000),
		Collateral:      lending.CollateralID{Collection: testAddress(0x02), TokenID: 7},
		Duration:        2_592_000,
		AprBps:          1_200,
		CollateralValue: big.NewInt(10_000),
		Deadline:        1_700_000_000,
		CreatedAt:       1_699_999_000,
	}
	if err := store.LoanPut(loan); err != nil {
		t.Fatalf("put loan: %v", err)
	}

	got, ok, err := store.LoanGet(first)
	if err != nil || !ok {
		t.Fatalf("get loan: ok=%v err=%v", ok, err)
	}
	if got.ID != loan.ID || got.Token != loan.Token || got.Amount.Cmp(loan.Amount) != 0 {
		t.Fatalf("loan did not round-trip: %+v", got)
	}
	if !got.Borrower.Equal(loan.Borrower) || !got.Lender.IsZero() {
		t.Fatalf("addresses did not round-trip")
	}
	if got.Collateral.TokenID != 7 || !got.Collateral.Collection.Equal(loan.Collateral.Collection) {
		t.Fatalf("collateral id did not round-trip")
	}

	if _, ok, err := store.LoanGet(99); err != nil || ok {
		t.Fatalf("expected miss for unknown id, ok=%v err=%v", ok, err)
	}
	count, err := store.LoanCount()
	if err != nil || count != 1 {
		t.Fatalf("loan count: %d err=%v", count, err)
	}
}

func TestStuckFundsLedger(t *testing.T) {
	store := newTestStore(t)
	recipient := testAddress(0x10)

	if err := store.StuckFundsCredit("USDC", recipient, big.NewInt(0)); err == nil {
		t.Fatalf("expected non-positive credit rejection")
	}
	if err := store.StuckFundsCredit("USDC", recipient, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.StuckFundsCredit("USDC", recipient, big.NewInt(250)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	balance, err := store.StuckFundsBalance("USDC", recipient)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(750)) != 0 {
		t.Fatalf("expected accumulated 750, got %s", balance)
	}
	// Per-token isolation.
	other, err := store.StuckFundsBalance("WETH", recipient)
	if err != nil || other.Sign() != 0 {
		t.Fatalf("expected empty WETH entry, got %s err=%v", other, err)
	}

	if err := store.StuckFundsClear("USDC", recipient); err != nil {
		t.Fatalf("clear: %v", err)
	}
	balance, err = store.StuckFundsBalance("USDC", recipient)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("expected cleared entry, got %s err=%v", balance, err)
	}
}

func TestParamStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, ok, err := store.ParamStoreGet("lending/params"); err != nil || ok {
		t.Fatalf("expected empty store, ok=%v err=%v", ok, err)
	}
	if err := store.ParamStoreSet("lending/params", []byte(`{"protocolFeeBps":150}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, ok, err := store.ParamStoreGet("lending/params")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(raw) != `{"protocolFeeBps":150}` {
		t.Fatalf("payload did not round-trip: %s", raw)
	}
}

func TestTokenLedgerTransfers(t *testing.T) {
	store := newTestStore(t)
	ledger := store.TokenLedger()
	alice := testAddress(0x01)
	bob := testAddress(0x02)

	if _, err := ledger.Decimals("USDC"); !errors.Is(err, ErrTokenUnknown) {
		t.Fatalf("expected unknown token, got %v", err)
	}
	if err := ledger.RegisterToken(" usdc ", 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	decimals, err := ledger.Decimals("USDC")
	if err != nil || decimals != 6 {
		t.Fatalf("decimals: %d err=%v", decimals, err)
	}

	if err := ledger.Mint("USDC", alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer("USDC", alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Transfer("USDC", alice, bob, big.NewInt(700)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	aliceBalance, err := ledger.Balance("USDC", alice)
	if err != nil || aliceBalance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("alice balance: %s err=%v", aliceBalance, err)
	}
	bobBalance, err := ledger.Balance("USDC", bob)
	if err != nil || bobBalance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("bob balance: %s err=%v", bobBalance, err)
	}

	// Zero transfers are no-ops, negative ones are rejected.
	if err := ledger.Transfer("USDC", alice, bob, big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := ledger.Transfer("USDC", alice, bob, big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative transfer rejection")
	}
}

func TestCollateralVaultCustody(t *testing.T) {
	store := newTestStore(t)
	vault := store.CollateralVault()
	collection := testAddress(0x30)
	owner := testAddress(0x31)
	module := testAddress(0x32)
	id := lending.CollateralID{Collection: collection, TokenID: 1}

	if vault.SupportsCollateral(collection) {
		t.Fatalf("unregistered collection reported as supported")
	}
	if err := vault.MintItem(id, owner); !errors.Is(err, ErrCollectionUnknown) {
		t.Fatalf("expected unknown collection, got %v", err)
	}
	if err := vault.RegisterCollection(collection); err != nil {
		t.Fatalf("register collection: %v", err)
	}
	if !vault.SupportsCollateral(collection) {
		t.Fatalf("registered collection not supported")
	}
	if err := vault.MintItem(id, owner); err != nil {
		t.Fatalf("mint item: %v", err)
	}

	got, err := vault.OwnerOf(id)
	if err != nil || !got.Equal(owner) {
		t.Fatalf("owner: %s err=%v", got, err)
	}
	if err := vault.Transfer(id, module, owner); !errors.Is(err, ErrNotItemOwner) {
		t.Fatalf("expected non-owner rejection, got %v", err)
	}
	if err := vault.Transfer(id, owner, module); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, err = vault.OwnerOf(id)
	if err != nil || !got.Equal(module) {
		t.Fatalf("owner after transfer: %s err=%v", got, err)
	}

	missing := lending.CollateralID{Collection: collection, TokenID: 99}
	if _, err := vault.OwnerOf(missing); !errors.Is(err, ErrItemUnknown) {
		t.Fatalf("expected unknown item, got %v", err)
	}
}

func TestAccessListAndRoles(t *testing.T) {
	store := newTestStore(t)
	access := store.AccessList()
	roles := store.RoleSet()
	user := testAddress(0x40)

	if access.IsAddressAllowed(user) {
		t.Fatalf("fresh address should not be allowed")
	}
	if err := access.Allow(user); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if !access.IsAddressAllowed(user) {
		t.Fatalf("allowed address not reported")
	}
	if err := access.Revoke(user); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if access.IsAddressAllowed(user) {
		t.Fatalf("revoked address still allowed")
	}

	if roles.HasRole(lending.RoleLendAdmin, user.Bytes()) {
		t.Fatalf("fresh address should hold no roles")
	}
	if err := roles.Grant(lending.RoleLendAdmin, user); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !roles.HasRole(lending.RoleLendAdmin, user.Bytes()) {
		t.Fatalf("granted role not reported")
	}
	if roles.HasRole(lending.RoleTreasurer, user.Bytes()) {
		t.Fatalf("role grants must not leak across roles")
	}
	if err := roles.Revoke(lending.RoleLendAdmin, user); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	if roles.HasRole(lending.RoleLendAdmin, user.Bytes()) {
		t.Fatalf("revoked role still reported")
	}
}

func TestQuoteBookRoundTrip(t *testing.T) {
	store := newTestStore(t)
	book := store.QuoteBook()
	id := lending.CollateralID{Collection: testAddress(0x50), TokenID: 3}

	if _, err := book.Valuation(id); !errors.Is(err, ErrQuoteUnknown) {
		t.Fatalf("expected unknown quote, got %v", err)
	}
	quote := lending.Quote{Timestamp: 1_700_000_000, Price: big.NewInt(12_345), LTV: 60}
	if err := book.SetQuote(id, quote); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	got, err := book.Valuation(id)
	if err != nil {
		t.Fatalf("valuation: %v", err)
	}
	if got.Timestamp != quote.Timestamp || got.LTV != quote.LTV || got.Price.Cmp(quote.Price) != 0 {
		t.Fatalf("quote did not round-trip: %+v", got)
	}

	// Posting again replaces the previous quote.
	if err := book.SetQuote(id, lending.Quote{Timestamp: 1_700_000_100, Price: big.NewInt(11_000), LTV: 55}); err != nil {
		t.Fatalf("replace quote: %v", err)
	}
	got, err = book.Valuation(id)
	if err != nil || got.Price.Cmp(big.NewInt(11_000)) != 0 {
		t.Fatalf("replacement not visible: %+v err=%v", got, err)
	}
}
