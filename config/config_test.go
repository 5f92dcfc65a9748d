package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
ListenAddress = ":9000"
DataDir = "/tmp/lendingd"
Treasury = "lend1treasury"

[pauses]
Lending = true

[lending]
ProtocolFeeBps = 200
AllowedTokens = ["USDC", "WETH"]

[[lending.tokens]]
Symbol = "USDC"
Decimals = 6

[[lending.durations]]
DurationSeconds = 2592000
AprBps = 800
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "/tmp/lendingd", cfg.DataDir)
	require.True(t, cfg.Pauses.IsPaused("lending"))
	require.Equal(t, uint64(200), cfg.Lending.ProtocolFeeBps)
	// Untouched bootstrap values keep their defaults.
	require.Equal(t, uint64(14_000), cfg.Lending.FeeReductionFactor)
	require.Equal(t, []string{"USDC", "WETH"}, cfg.Lending.AllowedTokens)
	require.Len(t, cfg.Lending.Tokens, 1)
	require.Equal(t, uint8(6), cfg.Lending.Tokens[0].Decimals)
	require.Len(t, cfg.Lending.Durations, 1)
	require.Equal(t, uint64(800), cfg.Lending.Durations[0].AprBps)
}

func TestLoadYAMLByExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
ListenAddress: ":9100"
DataDir: /tmp/lendingd
lending:
  ProtocolFeeBps: 175
  AllowedTokens: [USDC]
  durations:
    - DurationSeconds: 2592000
      AprBps: 900
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9100", cfg.ListenAddress)
	require.Equal(t, uint64(175), cfg.Lending.ProtocolFeeBps)
	require.Len(t, cfg.Lending.Durations, 1)
	require.Equal(t, uint64(900), cfg.Lending.Durations[0].AprBps)
}

func TestLoadRejectsEmptyListenAddress(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "  "`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestBracketsConversion(t *testing.T) {
	l := Lending{OriginationBrackets: []int64{10, 20}}
	brackets := l.Brackets()
	require.Len(t, brackets, 2)
	require.EqualValues(t, 10, brackets[0].Int64())
	require.EqualValues(t, 20, brackets[1].Int64())
}

func TestDefaultMatchesModuleBootstrap(t *testing.T) {
	cfg := Default()
	require.NotEmpty(t, cfg.ListenAddress)
	require.NotEmpty(t, cfg.DataDir)
	require.Equal(t, uint64(150), cfg.Lending.ProtocolFeeBps)
	require.False(t, cfg.Pauses.IsPaused("lending"))
}
