package roller

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/position"
)

// Positions is the part of the position engine a roll drives. The roller
// acts as an operator on the caller's positions.
type Positions interface {
	Get(addr crypto.Address) (*position.Position, error)
	Repay(caller, addr crypto.Address, amount *big.Int) (*big.Int, error)
	WithdrawCollateral(caller, addr, to crypto.Address, amount *big.Int) error
	Mint(caller, addr, to crypto.Address, amount *big.Int) (*big.Int, error)
	RepaymentAmount(addr crypto.Address) (*big.Int, error)
	MintAmountFor(addr crypto.Address, usable *big.Int) (*big.Int, error)
	CollateralBalance(addr crypto.Address) (*big.Int, error)
}

// Cloner opens a clone of an existing position for the caller.
type Cloner interface {
	Clone(caller, parent crypto.Address, initialCollateral, initialMint *big.Int, expiration uint64) (crypto.Address, error)
}

// FlashLedger issues and burns the stable unit without reserve accounting.
type FlashLedger interface {
	BalanceOf(addr crypto.Address) (*big.Int, error)
	Mint(to crypto.Address, amount *big.Int) error
	Burn(from crypto.Address, amount *big.Int) error
}

type CollateralLedger interface {
	Transfer(asset string, from, to crypto.Address, amount *big.Int) error
}
