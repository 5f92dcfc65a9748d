package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	bolt "go.etcd.io/bbolt"

	"nftlend/crypto"
	"nftlend/native/lending"
)

var (
	bucketLoans       = []byte("loans")
	bucketStuck       = []byte("stuck")
	bucketParams      = []byte("params")
	bucketTokens      = []byte("tokens")
	bucketBalances    = []byte("balances")
	bucketCollections = []byte("collections")
	bucketItems       = []byte("items")
	bucketAllowList   = []byte("allowlist")
	bucketRoles       = []byte("roles")
	bucketQuotes      = []byte("quotes")
)

var (
	// ErrTokenUnknown is returned when a token symbol has not been registered.
	ErrTokenUnknown = errors.New("storage: token not registered")
	// ErrInsufficientBalance is returned when a transfer exceeds the source balance.
	ErrInsufficientBalance = errors.New("storage: insufficient balance")
	// ErrCollectionUnknown is returned for collections outside the registry.
	ErrCollectionUnknown = errors.New("storage: collection not registered")
	// ErrItemUnknown is returned for non-existent collateral items.
	ErrItemUnknown = errors.New("storage: collateral item not found")
	// ErrNotItemOwner is returned when a custody transfer names the wrong holder.
	ErrNotItemOwner = errors.New("storage: transfer from non-owner")
	// ErrQuoteUnknown is returned when no valuation has been posted for an item.
	ErrQuoteUnknown = errors.New("storage: no quote for collateral item")
)

// Store is the durable BoltDB-backed state for the lending daemon. It serves
// as the engine's persistence layer (loan arena, stuck-funds ledger, parameter
// KV) and hosts the engine's collaborators: token ledger, collateral vault,
// allow-list, role set and quote book.
type Store struct {
	db *bolt.DB
}

// NewStore opens (and migrates) the database at path.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	buckets := [][]byte{
		bucketLoans, bucketStuck, bucketParams, bucketTokens, bucketBalances,
		bucketCollections, bucketItems, bucketAllowList, bucketRoles, bucketQuotes,
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func loanKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func addrKey(addr crypto.Address) string {
	return fmt.Sprintf("%x", addr.Bytes())
}

// LoanNextID allocates the next monotonic loan identifier. Identifiers are
// never reused, even across restarts.
func (s *Store) LoanNextID() (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq, err := tx.Bucket(bucketLoans).NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return nil
	})
	return id, err
}

// LoanPut persists the loan record under its identifier.
func (s *Store) LoanPut(loan *lending.Loan) error {
	if loan == nil {
		return errors.New("storage: nil loan")
	}
	encoded, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("storage: encode loan %d: %w", loan.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLoans).Put(loanKey(loan.ID), encoded)
	})
}

// LoanGet loads a loan record by identifier.
func (s *Store) LoanGet(id uint64) (*lending.Loan, bool, error) {
	var loan *lending.Loan
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketLoans).Get(loanKey(id))
		if raw == nil {
			return nil
		}
		decoded := new(lending.Loan)
		if err := json.Unmarshal(raw, decoded); err != nil {
			return fmt.Errorf("storage: decode loan %d: %w", id, err)
		}
		loan = decoded
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return loan, loan != nil, nil
}

// LoanCount returns the number of persisted loan records.
func (s *Store) LoanCount() (uint64, error) {
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		count = uint64(tx.Bucket(bucketLoans).Stats().KeyN)
		return nil
	})
	return count, err
}

func stuckKey(token string, recipient crypto.Address) []byte {
	return []byte(token + "/" + addrKey(recipient))
}

// StuckFundsCredit accumulates an undelivered payout for (token, recipient).
func (s *Store) StuckFundsCredit(token string, recipient crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("storage: stuck credit must be positive")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketStuck)
		key := stuckKey(token, recipient)
		total := new(big.Int)
		if raw := bucket.Get(key); raw != nil {
			if _, ok := total.SetString(string(raw), 10); !ok {
				return fmt.Errorf("storage: corrupt stuck balance for %s", key)
			}
		}
		total.Add(total, amount)
		return bucket.Put(key, []byte(total.String()))
	})
}

// StuckFundsBalance reads the accumulated undelivered amount.
func (s *Store) StuckFundsBalance(token string, recipient crypto.Address) (*big.Int, error) {
	total := new(big.Int)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketStuck).Get(stuckKey(token, recipient))
		if raw == nil {
			return nil
		}
		if _, ok := total.SetString(string(raw), 10); !ok {
			return fmt.Errorf("storage: corrupt stuck balance for %s/%s", token, recipient)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// StuckFundsClear removes the ledger entry after a successful withdrawal.
func (s *Store) StuckFundsClear(token string, recipient crypto.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStuck).Delete(stuckKey(token, recipient))
	})
}

// ParamStoreSet persists a raw parameter payload under its canonical name.
func (s *Store) ParamStoreSet(name string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketParams).Put([]byte(name), value)
	})
}

// ParamStoreGet loads a raw parameter payload.
func (s *Store) ParamStoreGet(name string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketParams).Get([]byte(name))
		if raw == nil {
			return nil
		}
		value = append([]byte(nil), raw...)
		found = true
		return nil
	})
	return value, found, err
}
