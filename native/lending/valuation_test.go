package lending

import (
	"math/big"
	"testing"
)

func newGateFixture(now int64, quote Quote) (*ValuationGate, CollateralID) {
	id := CollateralID{Collection: makeAddress(0x21), TokenID: 9}
	oracle := &mockOracle{quotes: map[string]Quote{id.Key(): quote}}
	gate := NewValuationGate(oracle)
	gate.SetNowFunc(func() int64 { return now })
	return gate, id
}

func TestMaxBorrowableMath(t *testing.T) {
	now := int64(1_000_000)
	gate, id := newGateFixture(now, Quote{Timestamp: now, Price: big.NewInt(10_000), LTV: 50})

	scale := big.NewInt(1_000_000)
	max, quote, err := gate.MaxBorrowable(id, scale)
	if err != nil {
		t.Fatalf("max borrowable: %v", err)
	}
	if want := big.NewInt(5_000_000_000); max.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, max)
	}
	if quote.Price.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("quote not returned alongside")
	}

	// A 100% LTV lends the full price.
	gate, id = newGateFixture(now, Quote{Timestamp: now, Price: big.NewInt(3), LTV: 100})
	max, _, err = gate.MaxBorrowable(id, scale)
	if err != nil {
		t.Fatalf("max borrowable: %v", err)
	}
	if want := big.NewInt(3_000_000); max.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, max)
	}
}

func TestMaxBorrowableRejectsStaleQuotes(t *testing.T) {
	now := int64(1_000_000)

	gate, id := newGateFixture(now, Quote{Timestamp: now - 30*60 - 1, Price: big.NewInt(100), LTV: 50})
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != errQuoteStale {
		t.Fatalf("expected stale rejection, got %v", err)
	}

	// The boundary second is still valid.
	gate, id = newGateFixture(now, Quote{Timestamp: now - 30*60, Price: big.NewInt(100), LTV: 50})
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != nil {
		t.Fatalf("boundary quote rejected: %v", err)
	}

	// Future-dated quotes are unusable.
	gate, id = newGateFixture(now, Quote{Timestamp: now + 1, Price: big.NewInt(100), LTV: 50})
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != errQuoteStale {
		t.Fatalf("expected future-quote rejection, got %v", err)
	}
}

func TestMaxBorrowableRejectsBadQuotes(t *testing.T) {
	now := int64(1_000_000)

	gate, id := newGateFixture(now, Quote{Timestamp: now, Price: big.NewInt(100), LTV: 101})
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != errQuoteLTV {
		t.Fatalf("expected ltv rejection, got %v", err)
	}

	gate, id = newGateFixture(now, Quote{Timestamp: now, Price: big.NewInt(0), LTV: 50})
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != errQuoteMissing {
		t.Fatalf("expected empty-quote rejection, got %v", err)
	}

	gate = NewValuationGate(nil)
	if _, _, err := gate.MaxBorrowable(id, big.NewInt(1)); err != errNilOracle {
		t.Fatalf("expected nil-oracle rejection, got %v", err)
	}
}
