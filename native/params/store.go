package params

import (
	"bytes"
	"encoding/json"
	"fmt"

	"nftlend/config"
	"nftlend/crypto"
	"nftlend/native/lending"
)

// StoreState captures the subset of state backend capabilities required by
// the parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Store provides typed accessors for governance-controlled parameters. Values
// are marshalled as JSON so governance payloads and persisted state share one
// encoding.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetPauses persists the module pause configuration.
func (s *Store) SetPauses(pauses config.Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, a zero-value
// configuration is returned.
func (s *Store) Pauses() (config.Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return config.Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return config.Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return config.Pauses{}, nil
	}
	var pauses config.Pauses
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return config.Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// SetLending persists the lending parameter set.
func (s *Store) SetLending(p lending.Params) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("params: encode lending params: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyLending, encoded)
}

// Lending loads the persisted lending parameter set. The boolean reports
// whether a set was present.
func (s *Store) Lending() (lending.Params, bool, error) {
	state, err := s.withState()
	if err != nil {
		return lending.Params{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyLending)
	if err != nil {
		return lending.Params{}, false, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return lending.Params{}, false, nil
	}
	var p lending.Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return lending.Params{}, false, fmt.Errorf("params: decode lending params: %w", err)
	}
	p.EnsureDefaults()
	return p, true, nil
}

// SetTreasury persists the lending fee destination.
func (s *Store) SetTreasury(addr crypto.Address) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	return state.ParamStoreSet(ParamsKeyTreasury, []byte(addr.String()))
}

// Treasury loads the persisted fee destination, if any.
func (s *Store) Treasury() (crypto.Address, bool, error) {
	state, err := s.withState()
	if err != nil {
		return crypto.Address{}, false, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyTreasury)
	if err != nil {
		return crypto.Address{}, false, err
	}
	trimmed := string(bytes.TrimSpace(raw))
	if !ok || trimmed == "" {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, false, fmt.Errorf("params: decode treasury: %w", err)
	}
	return addr, true, nil
}
