package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	bolt "go.etcd.io/bbolt"

	"nftlend/crypto"
	"nftlend/native/lending"
)

// TokenLedger is the reference fungible-token collaborator backed by the
// store. It implements the engine's TokenBank interface with standard
// balance semantics.
type TokenLedger struct {
	store *Store
}

// TokenLedger returns the fungible-token facade over the store.
func (s *Store) TokenLedger() *TokenLedger { return &TokenLedger{store: s} }

// RegisterToken installs a token symbol with its decimal precision.
func (l *TokenLedger) RegisterToken(symbol string, decimals uint8) error {
	normalized, err := lending.NormalizeToken(symbol)
	if err != nil {
		return err
	}
	return l.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(normalized), []byte{decimals})
	})
}

// Decimals returns the registered decimal precision for the token.
func (l *TokenLedger) Decimals(token string) (uint8, error) {
	var decimals uint8
	err := l.store.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTokens).Get([]byte(token))
		if len(raw) != 1 {
			return ErrTokenUnknown
		}
		decimals = raw[0]
		return nil
	})
	return decimals, err
}

func balanceKey(token string, addr crypto.Address) []byte {
	return []byte(token + "/" + addrKey(addr))
}

func readBalance(bucket *bolt.Bucket, key []byte) (*big.Int, error) {
	balance := new(big.Int)
	raw := bucket.Get(key)
	if raw == nil {
		return balance, nil
	}
	if _, ok := balance.SetString(string(raw), 10); !ok {
		return nil, fmt.Errorf("storage: corrupt balance for %s", key)
	}
	return balance, nil
}

// Balance reads the current holdings of addr in token smallest units.
func (l *TokenLedger) Balance(token string, addr crypto.Address) (*big.Int, error) {
	var balance *big.Int
	err := l.store.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTokens).Get([]byte(token)) == nil {
			return ErrTokenUnknown
		}
		read, err := readBalance(tx.Bucket(bucketBalances), balanceKey(token, addr))
		if err != nil {
			return err
		}
		balance = read
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// Mint credits freshly issued tokens to addr. Used for bootstrap and tests.
func (l *TokenLedger) Mint(token string, addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("storage: mint amount must be positive")
	}
	return l.store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTokens).Get([]byte(token)) == nil {
			return ErrTokenUnknown
		}
		bucket := tx.Bucket(bucketBalances)
		key := balanceKey(token, addr)
		balance, err := readBalance(bucket, key)
		if err != nil {
			return err
		}
		balance.Add(balance, amount)
		return bucket.Put(key, []byte(balance.String()))
	})
}

// Transfer moves amount between addresses atomically, failing when the source
// balance is short.
func (l *TokenLedger) Transfer(token string, from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("storage: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	return l.store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketTokens).Get([]byte(token)) == nil {
			return ErrTokenUnknown
		}
		bucket := tx.Bucket(bucketBalances)
		fromKey := balanceKey(token, from)
		fromBalance, err := readBalance(bucket, fromKey)
		if err != nil {
			return err
		}
		if fromBalance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		toKey := balanceKey(token, to)
		toBalance, err := readBalance(bucket, toKey)
		if err != nil {
			return err
		}
		fromBalance.Sub(fromBalance, amount)
		toBalance.Add(toBalance, amount)
		if err := bucket.Put(fromKey, []byte(fromBalance.String())); err != nil {
			return err
		}
		return bucket.Put(toKey, []byte(toBalance.String()))
	})
}

// CollateralVault is the reference non-fungible custody collaborator. It
// implements the engine's CollateralKeeper interface.
type CollateralVault struct {
	store *Store
}

// CollateralVault returns the non-fungible custody facade over the store.
func (s *Store) CollateralVault() *CollateralVault { return &CollateralVault{store: s} }

// RegisterCollection marks a collection as exposing the collateral
// capability.
func (v *CollateralVault) RegisterCollection(collection crypto.Address) error {
	return v.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCollections).Put([]byte(addrKey(collection)), []byte{1})
	})
}

// SupportsCollateral reports whether the collection is registered.
func (v *CollateralVault) SupportsCollateral(collection crypto.Address) bool {
	supported := false
	_ = v.store.db.View(func(tx *bolt.Tx) error {
		supported = tx.Bucket(bucketCollections).Get([]byte(addrKey(collection))) != nil
		return nil
	})
	return supported
}

func itemKey(id lending.CollateralID) []byte {
	return []byte(id.Key())
}

// MintItem creates a collateral item owned by owner.
func (v *CollateralVault) MintItem(id lending.CollateralID, owner crypto.Address) error {
	return v.store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCollections).Get([]byte(addrKey(id.Collection))) == nil {
			return ErrCollectionUnknown
		}
		return tx.Bucket(bucketItems).Put(itemKey(id), []byte(owner.String()))
	})
}

// OwnerOf returns the current holder of the item.
func (v *CollateralVault) OwnerOf(id lending.CollateralID) (crypto.Address, error) {
	var owner crypto.Address
	err := v.store.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketItems).Get(itemKey(id))
		if raw == nil {
			return ErrItemUnknown
		}
		decoded, err := crypto.DecodeAddress(string(raw))
		if err != nil {
			return fmt.Errorf("storage: corrupt item owner: %w", err)
		}
		owner = decoded
		return nil
	})
	if err != nil {
		return crypto.Address{}, err
	}
	return owner, nil
}

// Transfer moves custody of the item, failing unless from is the holder.
func (v *CollateralVault) Transfer(id lending.CollateralID, from, to crypto.Address) error {
	return v.store.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketItems)
		raw := bucket.Get(itemKey(id))
		if raw == nil {
			return ErrItemUnknown
		}
		owner, err := crypto.DecodeAddress(string(raw))
		if err != nil {
			return fmt.Errorf("storage: corrupt item owner: %w", err)
		}
		if !owner.Equal(from) {
			return ErrNotItemOwner
		}
		return bucket.Put(itemKey(id), []byte(to.String()))
	})
}

// AccessList is the reference allow-list gate consulted on user entry points.
type AccessList struct {
	store *Store
}

// AccessList returns the allow-list facade over the store.
func (s *Store) AccessList() *AccessList { return &AccessList{store: s} }

// Allow adds the address to the allow-list.
func (a *AccessList) Allow(addr crypto.Address) error {
	return a.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllowList).Put([]byte(addrKey(addr)), []byte{1})
	})
}

// Revoke removes the address from the allow-list.
func (a *AccessList) Revoke(addr crypto.Address) error {
	return a.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAllowList).Delete([]byte(addrKey(addr)))
	})
}

// IsAddressAllowed reports allow-list membership.
func (a *AccessList) IsAddressAllowed(addr crypto.Address) bool {
	allowed := false
	_ = a.store.db.View(func(tx *bolt.Tx) error {
		allowed = tx.Bucket(bucketAllowList).Get([]byte(addrKey(addr))) != nil
		return nil
	})
	return allowed
}

// RoleSet is the reference role-membership backend for admin checks.
type RoleSet struct {
	store *Store
}

// RoleSet returns the role-membership facade over the store.
func (s *Store) RoleSet() *RoleSet { return &RoleSet{store: s} }

func roleKey(role string, addr []byte) []byte {
	return []byte(role + "/" + fmt.Sprintf("%x", addr))
}

// Grant associates addr with the role. Duplicate grants are idempotent.
func (r *RoleSet) Grant(role string, addr crypto.Address) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Put(roleKey(role, addr.Bytes()), []byte{1})
	})
}

// Revoke removes addr from the role.
func (r *RoleSet) Revoke(role string, addr crypto.Address) error {
	return r.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoles).Delete(roleKey(role, addr.Bytes()))
	})
}

// HasRole reports role membership.
func (r *RoleSet) HasRole(role string, addr []byte) bool {
	member := false
	_ = r.store.db.View(func(tx *bolt.Tx) error {
		member = tx.Bucket(bucketRoles).Get(roleKey(role, addr)) != nil
		return nil
	})
	return member
}

// QuoteBook is the reference valuation oracle: attesters post quotes and the
// engine's valuation gate reads them back.
type QuoteBook struct {
	store *Store
}

// QuoteBook returns the oracle facade over the store.
func (s *Store) QuoteBook() *QuoteBook { return &QuoteBook{store: s} }

// SetQuote records the latest valuation for the item.
func (q *QuoteBook) SetQuote(id lending.CollateralID, quote lending.Quote) error {
	encoded, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("storage: encode quote: %w", err)
	}
	return q.store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuotes).Put(itemKey(id), encoded)
	})
}

// Valuation returns the latest posted quote for the item.
func (q *QuoteBook) Valuation(id lending.CollateralID) (lending.Quote, error) {
	var quote lending.Quote
	err := q.store.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketQuotes).Get(itemKey(id))
		if raw == nil {
			return ErrQuoteUnknown
		}
		return json.Unmarshal(raw, &quote)
	})
	if err != nil {
		return lending.Quote{}, err
	}
	return quote, nil
}
