package governance

import (
	"errors"
	"fmt"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

var (
	// ErrNotQualified is returned when the sender and helpers together hold
	// less voting weight than the quorum.
	ErrNotQualified = errors.New("governance: not qualified")
	// ErrInvalidHelper flags a helper that repeats the sender or another
	// helper.
	ErrInvalidHelper = errors.New("governance: duplicate or self helper")
	ErrInvalidWeight = errors.New("governance: weight exceeds 100%")
)

// Objectors is a static voting table. Each holder carries a weight in PPM of
// the total voting power; a sender qualifies to deny a position when their
// weight plus the weight of the helpers vouching for them reaches Quorum.
type Objectors struct {
	weights map[crypto.Address]uint32
	quorum  uint32
}

// NewObjectors builds the table from holder weights. The weights must not sum
// to more than 100%.
func NewObjectors(weights map[crypto.Address]uint32, quorumPPM uint32) (*Objectors, error) {
	if quorumPPM > common.PPM {
		return nil, ErrInvalidWeight
	}
	var total uint64
	copied := make(map[crypto.Address]uint32, len(weights))
	for addr, weight := range weights {
		total += uint64(weight)
		copied[addr] = weight
	}
	if total > uint64(common.PPM) {
		return nil, fmt.Errorf("%w: total %d", ErrInvalidWeight, total)
	}
	return &Objectors{weights: copied, quorum: quorumPPM}, nil
}

// Weight returns the voting weight of addr in PPM.
func (o *Objectors) Weight(addr crypto.Address) uint32 {
	if o == nil {
		return 0
	}
	return o.weights[addr]
}

func (o *Objectors) Quorum() uint32 {
	if o == nil {
		return 0
	}
	return o.quorum
}

// CheckQualified sums the weight of sender and helpers against the quorum.
// Helpers must be distinct and must not include the sender.
func (o *Objectors) CheckQualified(sender crypto.Address, helpers []crypto.Address) error {
	if o == nil {
		return ErrNotQualified
	}
	seen := map[crypto.Address]struct{}{sender: {}}
	total := uint64(o.weights[sender])
	for _, helper := range helpers {
		if _, dup := seen[helper]; dup {
			return ErrInvalidHelper
		}
		seen[helper] = struct{}{}
		total += uint64(o.weights[helper])
	}
	if o.quorum == 0 && total == 0 {
		return ErrNotQualified
	}
	if total < uint64(o.quorum) {
		return ErrNotQualified
	}
	return nil
}
