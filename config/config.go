package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Pauses holds the administrative kill switches for native modules.
type Pauses struct {
	Lending bool `toml:"Lending" yaml:"Lending" json:"lending"`
}

// IsPaused reports whether the named module is paused.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "lending":
		return p.Lending
	default:
		return false
	}
}

// Token registers one fungible denomination with its decimal precision.
type Token struct {
	Symbol   string `toml:"Symbol" yaml:"Symbol"`
	Decimals uint8  `toml:"Decimals" yaml:"Decimals"`
}

// DurationApr is one entry of the bootstrap APR table.
type DurationApr struct {
	DurationSeconds uint64 `toml:"DurationSeconds" yaml:"DurationSeconds"`
	AprBps          uint64 `toml:"AprBps" yaml:"AprBps"`
}

// Lending captures the bootstrap values for the lending parameter store.
// Persisted governance state takes precedence once present.
type Lending struct {
	ProtocolFeeBps        uint64        `toml:"ProtocolFeeBps" yaml:"ProtocolFeeBps"`
	RepayGracePeriod      uint64        `toml:"RepayGracePeriod" yaml:"RepayGracePeriod"`
	RepayGraceFeeBps      uint64        `toml:"RepayGraceFeeBps" yaml:"RepayGraceFeeBps"`
	LiquidationFeeBps     uint64        `toml:"LiquidationFeeBps" yaml:"LiquidationFeeBps"`
	OriginationFeeBps     uint64        `toml:"OriginationFeeBps" yaml:"OriginationFeeBps"`
	OriginationBrackets   []int64       `toml:"OriginationBrackets" yaml:"OriginationBrackets"`
	FeeReductionFactor    uint64        `toml:"FeeReductionFactor" yaml:"FeeReductionFactor"`
	LenderExclusiveWindow uint64        `toml:"LenderExclusiveWindow" yaml:"LenderExclusiveWindow"`
	Durations             []DurationApr `toml:"durations" yaml:"durations"`
	Tokens                []Token       `toml:"tokens" yaml:"tokens"`
	AllowedTokens         []string      `toml:"AllowedTokens" yaml:"AllowedTokens"`
	Collections           []string      `toml:"Collections" yaml:"Collections"`
}

// Brackets converts the configured thresholds into big integers.
func (l Lending) Brackets() []*big.Int {
	out := make([]*big.Int, 0, len(l.OriginationBrackets))
	for _, v := range l.OriginationBrackets {
		out = append(out, big.NewInt(v))
	}
	return out
}

// Config is the top-level daemon configuration.
type Config struct {
	ListenAddress string  `toml:"ListenAddress" yaml:"ListenAddress"`
	DataDir       string  `toml:"DataDir" yaml:"DataDir"`
	Environment   string  `toml:"Environment" yaml:"Environment"`
	Treasury      string  `toml:"Treasury" yaml:"Treasury"`
	Admin         string  `toml:"Admin" yaml:"Admin"`
	Pauses        Pauses  `toml:"pauses" yaml:"pauses"`
	Lending       Lending `toml:"lending" yaml:"lending"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		ListenAddress: ":8091",
		DataDir:       "./data",
		Lending: Lending{
			ProtocolFeeBps:        150,
			RepayGracePeriod:      5 * 24 * 60 * 60,
			RepayGraceFeeBps:      250,
			LiquidationFeeBps:     500,
			OriginationFeeBps:     100,
			OriginationBrackets:   []int64{10_000, 100_000, 1_000_000},
			FeeReductionFactor:    14_000,
			LenderExclusiveWindow: 2 * 24 * 60 * 60,
		},
	}
}

// Load reads and validates a configuration file, layering it over the
// defaults. The decoder follows the file extension: .yaml/.yml files are
// parsed as YAML, everything else as TOML.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &cfg)
	default:
		err = toml.Unmarshal(raw, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return Config{}, fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return Config{}, fmt.Errorf("config: DataDir must not be empty")
	}
	return cfg, nil
}
