package crypto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(LendPrefix)) {
		t.Fatalf("expected %q prefix, got %q", LendPrefix, encoded)
	}

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round-trip mismatch: %s vs %s", decoded, addr)
	}
}

func TestZeroAddress(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("zero value must report IsZero")
	}
	if zero.String() != "" {
		t.Fatalf("zero address must encode to empty string, got %q", zero.String())
	}
	if _, err := DecodeAddress(""); err == nil {
		t.Fatalf("empty string must not decode as an address")
	}
}

func TestAddressJSONRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	payload, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("json round-trip mismatch")
	}

	// The zero address survives as the empty string.
	var zero Address
	payload, err = json.Marshal(zero)
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(payload) != `""` {
		t.Fatalf("expected empty-string encoding, got %s", payload)
	}
	var back Address
	if err := json.Unmarshal(payload, &back); err != nil {
		t.Fatalf("unmarshal zero: %v", err)
	}
	if !back.IsZero() {
		t.Fatalf("zero address did not round-trip")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	restored, err := PrivateKeyFromBytes(key.Bytes())
	if err != nil {
		t.Fatalf("restore key: %v", err)
	}
	if !restored.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatalf("restored key derives a different address")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	clone := addr.Clone()
	clone.Bytes()[0] ^= 0xFF
	if !addr.Equal(key.PubKey().Address()) {
		t.Fatalf("mutating the clone changed the original")
	}
}
