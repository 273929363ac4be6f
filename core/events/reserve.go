package events

import (
	"math/big"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	// TypeLossCovered is emitted when the reserve absorbs a loss.
	TypeLossCovered = "reserve.lossCovered"
	// TypeProfitCollected is emitted when profits flow into the reserve.
	TypeProfitCollected = "reserve.profitCollected"
)

// LossCovered records a reserve payout. Minted is the part the reserve could
// not cover and which was issued fresh.
type LossCovered struct {
	To     crypto.Address
	Amount *big.Int
	Minted *big.Int
}

func (LossCovered) EventType() string { return TypeLossCovered }

func (e LossCovered) Event() *types.Event {
	return &types.Event{Type: TypeLossCovered, Attributes: map[string]string{
		"to":     formatAddress(e.To),
		"amount": formatAmount(e.Amount),
		"minted": formatAmount(e.Minted),
	}}
}

type ProfitCollected struct {
	From   crypto.Address
	Amount *big.Int
}

func (ProfitCollected) EventType() string { return TypeProfitCollected }

func (e ProfitCollected) Event() *types.Event {
	return &types.Event{Type: TypeProfitCollected, Attributes: map[string]string{
		"from":   formatAddress(e.From),
		"amount": formatAmount(e.Amount),
	}}
}
