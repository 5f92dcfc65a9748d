package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 protocol address.
type AddressPrefix string

// LendPrefix is the prefix used for all participant and module addresses.
const LendPrefix AddressPrefix = "lend"

// Address represents a 20-byte protocol address with a bech32 prefix. The zero
// value carries no bytes and is used by the lending module to mark an unset
// party (e.g. a loan that has not been accepted yet).
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the raw 20-byte payload with the supplied prefix.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != 20 {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: b}
}

// IsZero reports whether the address carries no payload.
func (a Address) IsZero() bool { return len(a.bytes) == 0 }

// Equal reports whether two addresses share the same payload bytes.
func (a Address) Equal(other Address) bool {
	if len(a.bytes) != len(other.bytes) {
		return false
	}
	for i := range a.bytes {
		if a.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte payload, or nil for the zero address.
func (a Address) Bytes() []byte { return a.bytes }

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix { return a.prefix }

// Clone returns an address backed by an independent byte slice.
func (a Address) Clone() Address {
	if a.IsZero() {
		return Address{}
	}
	cloned := append([]byte(nil), a.bytes...)
	return Address{prefix: a.prefix, bytes: cloned}
}

// DecodeAddress parses a bech32 encoded protocol address.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != 20 {
		return Address{}, fmt.Errorf("address payload must be 20 bytes, got %d", len(conv))
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// MarshalJSON encodes the address as its bech32 string form. The zero address
// encodes as the empty string so unaccepted loans round-trip cleanly.
func (a Address) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a bech32 string, accepting "" as the zero address.
func (a *Address) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("address must be a JSON string")
	}
	raw := string(data[1 : len(data)-1])
	if raw == "" {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(raw)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// PrivateKey wraps an ECDSA key on the secp256k1 curve.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps the public half of a protocol key pair.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key pair.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half of the key pair.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the protocol address from the public key using the keccak
// truncation convention.
func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(LendPrefix, addrBytes)
}

// PrivateKeyFromBytes reconstructs a private key from raw bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("invalid private key bytes: %w", err)
	}
	return &PrivateKey{key}, nil
}
