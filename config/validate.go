package config

import (
	"fmt"
	"math/big"
	"strings"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

var knownModules = map[string]struct{}{
	common.ModuleBank:     {},
	common.ModuleStable:   {},
	common.ModulePosition: {},
	common.ModuleHub:      {},
	common.ModuleRoller:   {},
}

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.DebtAsset) == "" {
		return fmt.Errorf("DebtAsset must be provided")
	}
	if cfg.BaseRatePPM > common.PPM {
		return fmt.Errorf("BaseRatePPM above 100%%")
	}
	if _, err := parseUintAmount(cfg.Hub.OpeningFee); err != nil {
		return fmt.Errorf("hub.OpeningFee: %w", err)
	}
	if _, err := parseUintAmount(cfg.Hub.MinPositionValue); err != nil {
		return fmt.Errorf("hub.MinPositionValue: %w", err)
	}
	if cfg.Hub.ChallengerRewardPPM > common.PPM {
		return fmt.Errorf("hub.ChallengerRewardPPM above 100%%")
	}
	if cfg.Hub.MinChallengePeriod == 0 {
		return fmt.Errorf("hub.MinChallengePeriod must be positive")
	}
	if cfg.Hub.ExpiredPriceFactor < 1 {
		return fmt.Errorf("hub.ExpiredPriceFactor must be at least 1")
	}
	if cfg.Governance.QuorumPPM > common.PPM {
		return fmt.Errorf("governance.QuorumPPM above 100%%")
	}
	var weight uint64
	for addr, w := range cfg.Governance.Objectors {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("governance.Objectors[%q]: %w", addr, err)
		}
		weight += uint64(w)
	}
	if weight > uint64(common.PPM) {
		return fmt.Errorf("governance.Objectors weights sum above 100%%")
	}
	for module := range cfg.Pauses {
		if _, ok := knownModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("pauses: unknown module %q", module)
		}
	}
	if err := cfg.Genesis.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	return nil
}

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}
