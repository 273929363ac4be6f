package mintinghub

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/position"
)

// Positions is the subset of the position engine the hub drives.
type Positions interface {
	Open(caller crypto.Address, pos *position.Position, limit *big.Int) error
	Initialize(caller, child, owner, parent crypto.Address, expiration uint64) error
	Mint(caller, addr, to crypto.Address, amount *big.Int) (*big.Int, error)
	Get(addr crypto.Address) (*position.Position, error)
	IsRegistered(addr crypto.Address) (bool, error)
	ChallengeData(addr crypto.Address) (*big.Int, uint64, error)
	NotifyChallengeStarted(caller, addr crypto.Address, size, expectedPrice *big.Int) error
	NotifyChallengeAverted(caller, addr crypto.Address, size *big.Int) error
	NotifyChallengeSucceeded(caller, addr, bidder crypto.Address, size *big.Int) (*position.ChallengeSettlement, error)
	ForceSale(caller, addr, buyer crypto.Address, amount *big.Int) (*position.ForceSaleResult, error)
}

// CollateralLedger moves collateral between bidders, positions and the hub.
type CollateralLedger interface {
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
}

// DebtLedger settles auction proceeds against the reserve.
type DebtLedger interface {
	Transfer(from, to crypto.Address, amount *big.Int) error
	CollectProfits(from crypto.Address, amount *big.Int) error
	CoverLoss(to crypto.Address, amount *big.Int) error
	BurnWithoutReserve(payer crypto.Address, amount *big.Int, reservePPM uint32) error
}
