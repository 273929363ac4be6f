package events

import (
	"math/big"
	"strconv"

	"cdpchain/core/types"
	"cdpchain/crypto"
)

const (
	TypeChallengeStarted   = "challenge.started"
	TypeChallengeAverted   = "challenge.averted"
	TypeChallengeSucceeded = "challenge.succeeded"
	TypeForcedSale         = "position.forcedSale"
	TypePostponedReturn    = "challenge.postponedReturn"
)

type ChallengeStarted struct {
	Index      uint64
	Challenger crypto.Address
	Position   crypto.Address
	Size       *big.Int
	Price      *big.Int
}

func (ChallengeStarted) EventType() string { return TypeChallengeStarted }

func (e ChallengeStarted) Event() *types.Event {
	return &types.Event{Type: TypeChallengeStarted, Attributes: map[string]string{
		"index":      formatUint(e.Index),
		"challenger": formatAddress(e.Challenger),
		"position":   formatAddress(e.Position),
		"size":       formatAmount(e.Size),
		"price":      formatAmount(e.Price),
	}}
}

// ChallengeAverted records a fair-value fill. Remaining is the bond left
// open after the fill.
type ChallengeAverted struct {
	Index     uint64
	Position  crypto.Address
	Bidder    crypto.Address
	Size      *big.Int
	Price     *big.Int
	Remaining *big.Int
}

func (ChallengeAverted) EventType() string { return TypeChallengeAverted }

func (e ChallengeAverted) Event() *types.Event {
	return &types.Event{Type: TypeChallengeAverted, Attributes: map[string]string{
		"index":     formatUint(e.Index),
		"position":  formatAddress(e.Position),
		"bidder":    formatAddress(e.Bidder),
		"size":      formatAmount(e.Size),
		"price":     formatAmount(e.Price),
		"remaining": formatAmount(e.Remaining),
	}}
}

type ChallengeSucceeded struct {
	Index     uint64
	Position  crypto.Address
	Bidder    crypto.Address
	Size      *big.Int
	Bid       *big.Int
	Repaid    *big.Int
	Reward    *big.Int
	BadDebt   *big.Int
	Remaining *big.Int
}

func (ChallengeSucceeded) EventType() string { return TypeChallengeSucceeded }

func (e ChallengeSucceeded) Event() *types.Event {
	return &types.Event{Type: TypeChallengeSucceeded, Attributes: map[string]string{
		"index":     formatUint(e.Index),
		"position":  formatAddress(e.Position),
		"bidder":    formatAddress(e.Bidder),
		"size":      formatAmount(e.Size),
		"bid":       formatAmount(e.Bid),
		"repaid":    formatAmount(e.Repaid),
		"reward":    formatAmount(e.Reward),
		"badDebt":   formatAmount(e.BadDebt),
		"remaining": formatAmount(e.Remaining),
	}}
}

type ForcedSale struct {
	Position   crypto.Address
	Buyer      crypto.Address
	Amount     *big.Int
	Price      *big.Int
	Proceeds   *big.Int
	WrittenOff *big.Int
}

func (ForcedSale) EventType() string { return TypeForcedSale }

func (e ForcedSale) Event() *types.Event {
	return &types.Event{Type: TypeForcedSale, Attributes: map[string]string{
		"position":   formatAddress(e.Position),
		"buyer":      formatAddress(e.Buyer),
		"amount":     formatAmount(e.Amount),
		"price":      formatAmount(e.Price),
		"proceeds":   formatAmount(e.Proceeds),
		"writtenOff": formatAmount(e.WrittenOff),
	}}
}

// PostponedReturn tracks collateral parked for, or claimed by, a beneficiary.
type PostponedReturn struct {
	Asset       string
	Beneficiary crypto.Address
	Amount      *big.Int
	Claimed     bool
}

func (PostponedReturn) EventType() string { return TypePostponedReturn }

func (e PostponedReturn) Event() *types.Event {
	return &types.Event{Type: TypePostponedReturn, Attributes: map[string]string{
		"asset":       normalizeAsset(e.Asset),
		"beneficiary": formatAddress(e.Beneficiary),
		"amount":      formatAmount(e.Amount),
		"claimed":     strconv.FormatBool(e.Claimed),
	}}
}
