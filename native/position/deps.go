package position

import (
	"math/big"

	"cdpchain/crypto"
)

// CollateralLedger moves the escrowed assets.
type CollateralLedger interface {
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
	BalanceOf(asset string, addr crypto.Address) (*big.Int, error)
}

// DebtLedger is the stable unit positions mint against.
type DebtLedger interface {
	MintWithReserve(to crypto.Address, amount *big.Int, reservePPM, feePPM uint32) (*big.Int, error)
	BurnWithReserve(payer crypto.Address, amountExcludingReserve, released *big.Int) error
}

// RateSource publishes the base interest rate added to every risk premium.
type RateSource interface {
	CurrentRatePPM() uint32
}

// StaticRate is a RateSource fixed by configuration.
type StaticRate uint32

func (r StaticRate) CurrentRatePPM() uint32 { return uint32(r) }

// Governance decides whether a third party may deny a position.
type Governance interface {
	CheckQualified(sender crypto.Address, helpers []crypto.Address) error
}
