package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

func TestLoadWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cdp.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ZCHF", cfg.DebtAsset)
	require.FileExists(t, path)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Hub, again.Hub)
	require.Equal(t, cfg.Position, again.Position)

	hub, err := again.HubParams()
	require.NoError(t, err)
	require.Equal(t, uint32(20_000), hub.ChallengerRewardPPM)
	require.Equal(t, uint64(10), hub.ExpiredPriceFactor)
	require.Zero(t, hub.OpeningFee.Cmp(new(big.Int).Mul(big.NewInt(1_000), common.One)))
}

func TestLoadParsesProtocolSettings(t *testing.T) {
	objector := crypto.DeriveAddress([]byte("objector")).String()
	holder := crypto.DeriveAddress([]byte("holder")).String()
	contents := `DataDir = "./data"
DebtAsset = "dEURO"
BaseRatePPM = 30000

[position]
PriceIncreaseCooldown = 100
AvertedCooldown = 200
SucceededCooldown = 300

[hub]
OpeningFee = "5"
MinPositionValue = "10"
MinInitPeriod = 7
MinChallengePeriod = 8
ChallengerRewardPPM = 25000
ExpiredPriceFactor = 4
AvertAtPeriodBoundary = true

[governance]
QuorumPPM = 20000
[governance.Objectors]
"` + objector + `" = 30000

[pauses]
roller = true

[genesis]
GenesisTime = "2024-01-01T00:00:00Z"
[[genesis.Assets]]
Symbol = "WETH"
Name = "Wrapped Ether"
Decimals = 18
[genesis.Alloc."` + holder + `"]
WETH = "1000"
`
	path := filepath.Join(t.TempDir(), "cdp.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dEURO", cfg.DebtAsset)
	require.Equal(t, uint64(300), cfg.PositionParams().SucceededCooldown)

	opts, err := cfg.ProtocolOptions()
	require.NoError(t, err)
	require.Equal(t, uint32(30_000), opts.BaseRatePPM)
	require.True(t, opts.HubParams.AvertAtPeriodBoundary)
	require.Zero(t, opts.HubParams.OpeningFee.Cmp(big.NewInt(5)))
	require.True(t, opts.Pauses.IsPaused(common.ModuleRoller))
	require.False(t, opts.Pauses.IsPaused(common.ModuleHub))

	objectors, err := cfg.Objectors()
	require.NoError(t, err)
	require.NoError(t, objectors.CheckQualified(crypto.MustDecodeAddress(objector), nil))
	require.Len(t, cfg.Genesis.Assets, 1)
	require.Equal(t, "1000", cfg.Genesis.Alloc[holder]["WETH"])
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"reward":  "[hub]\nChallengerRewardPPM = 2000000\n",
		"amount":  "[hub]\nOpeningFee = \"-1\"\n",
		"pause":   "[pauses]\nlending = true\n",
		"unknown": "Bootnodes = [\"1.1.1.1\"]\n",
		"genesis": "[genesis]\nGenesisTime = \"soon\"\n",
	}
	for name, contents := range cases {
		path := filepath.Join(t.TempDir(), name+".toml")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		_, err := Load(path)
		require.Error(t, err, name)
	}
}
