package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"cdpchain/core/genesis"
	"cdpchain/native/mintinghub"
	"cdpchain/native/position"
)

type Config struct {
	DataDir     string              `toml:"DataDir"`
	DebtAsset   string              `toml:"DebtAsset"`
	BaseRatePPM uint32              `toml:"BaseRatePPM"`
	GenesisFile string              `toml:"GenesisFile"`
	Position    PositionParams      `toml:"position"`
	Hub         HubParams           `toml:"hub"`
	Governance  Governance          `toml:"governance"`
	Pauses      map[string]bool     `toml:"pauses"`
	Genesis     genesis.GenesisSpec `toml:"genesis"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by the defaults, which are written back to path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the production constants.
func Default() *Config {
	pos := position.DefaultParams()
	hub := mintinghub.DefaultParams()
	return &Config{
		DataDir:   "./cdp-data",
		DebtAsset: "ZCHF",
		Position: PositionParams{
			PriceIncreaseCooldown: pos.PriceIncreaseCooldown,
			AvertedCooldown:       pos.AvertedCooldown,
			SucceededCooldown:     pos.SucceededCooldown,
		},
		Hub: HubParams{
			OpeningFee:          hub.OpeningFee.String(),
			MinPositionValue:    hub.MinPositionValue.String(),
			MinInitPeriod:       hub.MinInitPeriod,
			MinChallengePeriod:  hub.MinChallengePeriod,
			ChallengerRewardPPM: hub.ChallengerRewardPPM,
			ExpiredPriceFactor:  hub.ExpiredPriceFactor,
		},
		Governance: Governance{QuorumPPM: 20_000, Objectors: map[string]uint32{}},
		Pauses:     map[string]bool{},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = def.DataDir
	}
	if strings.TrimSpace(cfg.DebtAsset) == "" {
		cfg.DebtAsset = def.DebtAsset
	}
	if cfg.Position == (PositionParams{}) {
		cfg.Position = def.Position
	}
	if strings.TrimSpace(cfg.Hub.OpeningFee) == "" {
		cfg.Hub.OpeningFee = def.Hub.OpeningFee
	}
	if strings.TrimSpace(cfg.Hub.MinPositionValue) == "" {
		cfg.Hub.MinPositionValue = def.Hub.MinPositionValue
	}
	if cfg.Hub.MinInitPeriod == 0 {
		cfg.Hub.MinInitPeriod = def.Hub.MinInitPeriod
	}
	if cfg.Hub.MinChallengePeriod == 0 {
		cfg.Hub.MinChallengePeriod = def.Hub.MinChallengePeriod
	}
	if cfg.Hub.ExpiredPriceFactor == 0 {
		cfg.Hub.ExpiredPriceFactor = def.Hub.ExpiredPriceFactor
	}
	if cfg.Governance.Objectors == nil {
		cfg.Governance.Objectors = map[string]uint32{}
	}
	if cfg.Pauses == nil {
		cfg.Pauses = map[string]bool{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
