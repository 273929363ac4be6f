package mintinghub

import (
	"math/big"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// returnCollateral pays amount of asset from the hub to owner, or parks it
// under owner's pending balance when postpone is set.
func (h *Hub) returnCollateral(asset string, owner crypto.Address, amount *big.Int, postpone bool) error {
	if !postpone {
		return h.collateral.Transfer(asset, h.address, owner, amount)
	}
	pending, err := h.state.PendingReturn(asset, owner)
	if err != nil {
		return err
	}
	if err := h.state.SetPendingReturn(asset, owner, new(big.Int).Add(pending, amount)); err != nil {
		return err
	}
	h.emitter.Emit(events.PostponedReturn{Asset: asset, Beneficiary: owner, Amount: common.Copy(amount)})
	return nil
}

// PendingReturns reports the collateral of asset parked for owner.
func (h *Hub) PendingReturns(asset string, owner crypto.Address) (*big.Int, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	return h.state.PendingReturn(asset, owner)
}

// ReturnPostponedCollateral pays everything parked for caller in asset to
// target and returns the amount. Nothing pending is not an error.
func (h *Hub) ReturnPostponedCollateral(caller crypto.Address, asset string, target crypto.Address) (*big.Int, error) {
	var claimed *big.Int
	err := h.mutate(func() error {
		pending, err := h.state.PendingReturn(asset, caller)
		if err != nil {
			return err
		}
		claimed = pending
		if pending.Sign() == 0 {
			return nil
		}
		if err := h.state.SetPendingReturn(asset, caller, nil); err != nil {
			return err
		}
		if err := h.collateral.Transfer(asset, h.address, target, pending); err != nil {
			return err
		}
		h.emitter.Emit(events.PostponedReturn{Asset: asset, Beneficiary: target, Amount: common.Copy(pending), Claimed: true})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
