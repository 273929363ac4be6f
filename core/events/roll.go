package events

import (
	"math/big"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	// TypeRoll is emitted once per completed roll.
	TypeRoll = "roller.roll"
)

// Roll records the deltas of an atomic roll. Target is the position that
// received the deposit, which is a fresh clone when the expiration differed.
type Roll struct {
	Owner              crypto.Address
	Source             crypto.Address
	Target             crypto.Address
	CollateralWithdraw *big.Int
	Repaid             *big.Int
	CollateralDeposit  *big.Int
	Minted             *big.Int
}

func (Roll) EventType() string { return TypeRoll }

func (e Roll) Event() *types.Event {
	return &types.Event{Type: TypeRoll, Attributes: map[string]string{
		"owner":              formatAddress(e.Owner),
		"source":             formatAddress(e.Source),
		"target":             formatAddress(e.Target),
		"collateralWithdraw": formatAmount(e.CollateralWithdraw),
		"repaid":             formatAmount(e.Repaid),
		"collateralDeposit":  formatAmount(e.CollateralDeposit),
		"minted":             formatAmount(e.Minted),
	}}
}
