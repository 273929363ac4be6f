package position

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

// Position is one collateral escrow plus the debt drawn against it. The
// collateral itself is the Collateral Ledger balance of Address.
type Position struct {
	Address  crypto.Address
	Owner    crypto.Address
	Original crypto.Address

	Collateral        string
	MinimumCollateral *big.Int
	RiskPremiumPPM    uint32
	ReservePPM        uint32
	ChallengePeriod   uint64

	Price            *big.Int
	Minted           *big.Int
	ChallengedAmount *big.Int

	Start      uint64
	Cooldown   uint64
	Expiration uint64
	Denied     bool
}

// IsRoot reports whether the position heads its own family.
func (p *Position) IsRoot() bool {
	return p != nil && p.Address == p.Original
}

// IsHot reports whether the anti flash-sale window is still running.
func (p *Position) IsHot(now uint64) bool {
	return p != nil && now < p.Cooldown
}

// IsExpired reports whether the position has reached its expiration.
func (p *Position) IsExpired(now uint64) bool {
	return p != nil && now >= p.Expiration
}

// IsChallenged reports whether collateral is currently bonded against the
// position.
func (p *Position) IsChallenged() bool {
	return p != nil && p.ChallengedAmount != nil && p.ChallengedAmount.Sign() > 0
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.MinimumCollateral = common.Copy(p.MinimumCollateral)
	clone.Price = common.Copy(p.Price)
	clone.Minted = common.Copy(p.Minted)
	clone.ChallengedAmount = common.Copy(p.ChallengedAmount)
	return &clone
}

func (p *Position) ensureDefaults() {
	if p.MinimumCollateral == nil {
		p.MinimumCollateral = big.NewInt(0)
	}
	if p.Price == nil {
		p.Price = big.NewInt(0)
	}
	if p.Minted == nil {
		p.Minted = big.NewInt(0)
	}
	if p.ChallengedAmount == nil {
		p.ChallengedAmount = big.NewInt(0)
	}
}

// Family is the minting capacity shared by a root position and its clones.
type Family struct {
	Root        crypto.Address
	Limit       *big.Int
	TotalMinted *big.Int
	Members     uint64
}

// Clone returns a deep copy of the family record.
func (f *Family) Clone() *Family {
	if f == nil {
		return nil
	}
	clone := *f
	clone.Limit = common.Copy(f.Limit)
	clone.TotalMinted = common.Copy(f.TotalMinted)
	return &clone
}

func (f *Family) ensureDefaults() {
	if f.Limit == nil {
		f.Limit = big.NewInt(0)
	}
	if f.TotalMinted == nil {
		f.TotalMinted = big.NewInt(0)
	}
}

// Params holds the protocol-wide timing knobs applied to every position.
type Params struct {
	// PriceIncreaseCooldown is re-armed whenever an owner raises the price.
	PriceIncreaseCooldown uint64
	// AvertedCooldown is applied after a challenge is averted.
	AvertedCooldown uint64
	// SucceededCooldown is applied after a challenge liquidates collateral.
	SucceededCooldown uint64
}

const day = 24 * 60 * 60

// SecondsPerYear is the denominator of the fee accrual.
const SecondsPerYear = 365 * day

// DefaultParams mirrors the production timings.
func DefaultParams() Params {
	return Params{
		PriceIncreaseCooldown: 3 * day,
		AvertedCooldown:       1 * day,
		SucceededCooldown:     3 * day,
	}
}

// ChallengeSettlement reports the outcome of a liquidating fill so the hub can
// settle it against the debt ledger.
type ChallengeSettlement struct {
	Owner      crypto.Address
	Collateral string
	Price      *big.Int
	Repaid     *big.Int
	BadDebt    *big.Int
	ReservePPM uint32
	Remaining  *big.Int
}

// ForceSaleResult reports the debt written down by an expired-collateral sale.
type ForceSaleResult struct {
	Owner      crypto.Address
	Amount     *big.Int
	WrittenOff *big.Int
	ReservePPM uint32
}
