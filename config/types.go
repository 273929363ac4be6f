package config

// PositionParams are the cooldowns applied by the position engine, in
// seconds.
type PositionParams struct {
	PriceIncreaseCooldown uint64
	AvertedCooldown       uint64
	SucceededCooldown     uint64
}

// HubParams are the minting hub constants. Amounts are decimal strings in the
// smallest unit of the debt asset.
type HubParams struct {
	OpeningFee            string
	MinPositionValue      string
	MinInitPeriod         uint64
	MinChallengePeriod    uint64
	ChallengerRewardPPM   uint32
	ExpiredPriceFactor    uint64
	AvertAtPeriodBoundary bool
}

// Governance lists the static objector weights, keyed by bech32 address, and
// the quorum needed to deny someone else's position.
type Governance struct {
	QuorumPPM uint32
	Objectors map[string]uint32
}
