package mintinghub

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

// Challenge is one bond posted against a position. Size shrinks as bids fill
// it; a zero size marks the slot as retired.
type Challenge struct {
	Challenger crypto.Address
	Position   crypto.Address
	Start      uint64
	Size       *big.Int
	Initial    *big.Int
}

// Retired reports whether the challenge has been filled completely.
func (c *Challenge) Retired() bool {
	return c == nil || c.Size == nil || c.Size.Sign() == 0
}

func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Size = common.Copy(c.Size)
	clone.Initial = common.Copy(c.Initial)
	return &clone
}

// OpenRequest carries the parameters of a new root position.
type OpenRequest struct {
	Collateral        string
	MinimumCollateral *big.Int
	InitialCollateral *big.Int
	InitialLimit      *big.Int
	Price             *big.Int
	InitPeriod        uint64
	Duration          uint64
	ChallengePeriod   uint64
	RiskPremiumPPM    uint32
	ReservePPM        uint32
}

// Params are the hub-wide protocol constants.
type Params struct {
	OpeningFee          *big.Int
	MinPositionValue    *big.Int
	MinInitPeriod       uint64
	MinChallengePeriod  uint64
	ChallengerRewardPPM uint32
	// ExpiredPriceFactor is the multiple of the liquidation price asked for
	// expired collateral during the grace window.
	ExpiredPriceFactor uint64
	// AvertAtPeriodBoundary treats a fill at exactly one challenge period as
	// still being in the flat phase.
	AvertAtPeriodBoundary bool
}

const day = 24 * 60 * 60

// DefaultParams mirrors the production constants. Amounts are in 18-decimal
// debt units.
func DefaultParams() Params {
	return Params{
		OpeningFee:          new(big.Int).Mul(big.NewInt(1_000), common.One),
		MinPositionValue:    new(big.Int).Mul(big.NewInt(5_000), common.One),
		MinInitPeriod:       3 * day,
		MinChallengePeriod:  1 * day,
		ChallengerRewardPPM: 20_000,
		ExpiredPriceFactor:  10,
	}
}
