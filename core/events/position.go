package events

import (
	"math/big"
	"strings"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	// TypePositionOpened is emitted when a root position or clone is created.
	TypePositionOpened = "position.opened"
	// TypeMintingUpdate carries the full economic state after any mutation.
	TypeMintingUpdate = "position.mintingUpdate"
	// TypePositionDenied is emitted when a position is recalled during its
	// initial cooldown.
	TypePositionDenied = "position.denied"
	// TypeOwnershipTransferred is emitted when a position changes hands.
	TypeOwnershipTransferred = "position.ownershipTransferred"
)

type PositionOpened struct {
	Position   crypto.Address
	Owner      crypto.Address
	Original   crypto.Address
	Collateral string
	Price      *big.Int
	Start      uint64
	Expiration uint64
	Limit      *big.Int
}

func (PositionOpened) EventType() string { return TypePositionOpened }

func (e PositionOpened) Event() *types.Event {
	return &types.Event{Type: TypePositionOpened, Attributes: map[string]string{
		"position":   formatAddress(e.Position),
		"owner":      formatAddress(e.Owner),
		"original":   formatAddress(e.Original),
		"collateral": normalizeAsset(e.Collateral),
		"price":      formatAmount(e.Price),
		"start":      formatUint(e.Start),
		"expiration": formatUint(e.Expiration),
		"limit":      formatAmount(e.Limit),
	}}
}

// MintingUpdate is sufficient to reconstruct the economic state of a position
// after a mint, repayment, price change or collateral movement.
type MintingUpdate struct {
	Position   crypto.Address
	Collateral *big.Int
	Price      *big.Int
	Minted     *big.Int
	Cooldown   uint64
}

func (MintingUpdate) EventType() string { return TypeMintingUpdate }

func (e MintingUpdate) Event() *types.Event {
	return &types.Event{Type: TypeMintingUpdate, Attributes: map[string]string{
		"position":   formatAddress(e.Position),
		"collateral": formatAmount(e.Collateral),
		"price":      formatAmount(e.Price),
		"minted":     formatAmount(e.Minted),
		"cooldown":   formatUint(e.Cooldown),
	}}
}

type PositionDenied struct {
	Position crypto.Address
	Sender   crypto.Address
	Reason   string
}

func (PositionDenied) EventType() string { return TypePositionDenied }

func (e PositionDenied) Event() *types.Event {
	return &types.Event{Type: TypePositionDenied, Attributes: map[string]string{
		"position": formatAddress(e.Position),
		"sender":   formatAddress(e.Sender),
		"reason":   strings.TrimSpace(e.Reason),
	}}
}

type OwnershipTransferred struct {
	Position crypto.Address
	From     crypto.Address
	To       crypto.Address
}

func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

func (e OwnershipTransferred) Event() *types.Event {
	return &types.Event{Type: TypeOwnershipTransferred, Attributes: map[string]string{
		"position": formatAddress(e.Position),
		"from":     formatAddress(e.From),
		"to":       formatAddress(e.To),
	}}
}
