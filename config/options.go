package config

import (
	"fmt"
	"strings"

	"cdpchain/core"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/governance"
	"cdpchain/native/mintinghub"
	"cdpchain/native/position"
)

// PositionParams converts the cooldowns into engine parameters.
func (c *Config) PositionParams() position.Params {
	return position.Params{
		PriceIncreaseCooldown: c.Position.PriceIncreaseCooldown,
		AvertedCooldown:       c.Position.AvertedCooldown,
		SucceededCooldown:     c.Position.SucceededCooldown,
	}
}

// HubParams parses the hub constants into runtime values.
func (c *Config) HubParams() (mintinghub.Params, error) {
	params := mintinghub.Params{
		MinInitPeriod:         c.Hub.MinInitPeriod,
		MinChallengePeriod:    c.Hub.MinChallengePeriod,
		ChallengerRewardPPM:   c.Hub.ChallengerRewardPPM,
		ExpiredPriceFactor:    c.Hub.ExpiredPriceFactor,
		AvertAtPeriodBoundary: c.Hub.AvertAtPeriodBoundary,
	}
	fee, err := parseUintAmount(c.Hub.OpeningFee)
	if err != nil {
		return params, fmt.Errorf("invalid hub.OpeningFee: %w", err)
	}
	params.OpeningFee = fee
	minValue, err := parseUintAmount(c.Hub.MinPositionValue)
	if err != nil {
		return params, fmt.Errorf("invalid hub.MinPositionValue: %w", err)
	}
	params.MinPositionValue = minValue
	return params, nil
}

// Objectors builds the static governance table.
func (c *Config) Objectors() (*governance.Objectors, error) {
	weights := make(map[crypto.Address]uint32, len(c.Governance.Objectors))
	for raw, weight := range c.Governance.Objectors {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("governance.Objectors[%q]: %w", raw, err)
		}
		weights[addr] = weight
	}
	return governance.NewObjectors(weights, c.Governance.QuorumPPM)
}

// PauseView returns the configured pause switches.
func (c *Config) PauseView() common.StaticPauses {
	pauses := make(common.StaticPauses, len(c.Pauses))
	for module, paused := range c.Pauses {
		pauses[strings.ToLower(strings.TrimSpace(module))] = paused
	}
	return pauses
}

// ProtocolOptions assembles everything core.NewProtocol needs.
func (c *Config) ProtocolOptions() (core.Options, error) {
	hub, err := c.HubParams()
	if err != nil {
		return core.Options{}, err
	}
	objectors, err := c.Objectors()
	if err != nil {
		return core.Options{}, err
	}
	pos := c.PositionParams()
	return core.Options{
		DebtAsset:      c.DebtAsset,
		PositionParams: &pos,
		HubParams:      &hub,
		BaseRatePPM:    c.BaseRatePPM,
		Governance:     objectors,
		Pauses:         c.PauseView(),
	}, nil
}
