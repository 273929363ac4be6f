package position

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

// availableForMinting is the capacity pos may still draw. The root draws on
// the whole pool, clones on what is left after the root's unused potential.
func (e *Engine) availableForMinting(pos *Position, fam *Family) (*big.Int, error) {
	if pos.IsRoot() {
		return common.SubFloor(fam.Limit, fam.TotalMinted), nil
	}
	root, err := e.load(pos.Original)
	if err != nil {
		return nil, err
	}
	return e.availableForClones(root, fam)
}

// availableForClones reserves the root's own unused potential so clones can
// never crowd out the position that set the family price. An expired or
// denied root no longer holds anything back.
func (e *Engine) availableForClones(root *Position, fam *Family) (*big.Int, error) {
	free := common.SubFloor(fam.Limit, fam.TotalMinted)
	if root.Denied || root.IsExpired(e.now()) {
		return free, nil
	}
	balance, err := e.collateralBalance(root)
	if err != nil {
		return nil, err
	}
	unused := common.SubFloor(common.Value(balance, root.Price), root.Minted)
	return common.SubFloor(free, unused), nil
}

func (e *Engine) consumeLimit(fam *Family, amount *big.Int) error {
	fam.TotalMinted = new(big.Int).Add(fam.TotalMinted, amount)
	return e.state.PutFamily(fam)
}

// returnLimit gives capacity back to the pool. TotalMinted never goes below
// zero so the pool can not grow past its ceiling.
func (e *Engine) returnLimit(fam *Family, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	fam.TotalMinted = common.SubFloor(fam.TotalMinted, amount)
	return e.state.PutFamily(fam)
}

func (e *Engine) requireFamilyCaller(caller crypto.Address, root crypto.Address) error {
	if !e.hub.IsZero() && caller == e.hub {
		return nil
	}
	member, ok, err := e.state.GetPosition(caller)
	if err != nil {
		return err
	}
	if !ok || member == nil || member.Original != root {
		return ErrNotHub
	}
	return nil
}

// NotifyMint records amount as drawn from the pool of root. Only the hub or a
// member of the same family may call it.
func (e *Engine) NotifyMint(caller, root crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		if err := e.requireFamilyCaller(caller, root); err != nil {
			return err
		}
		rootPos, err := e.load(root)
		if err != nil {
			return err
		}
		fam, err := e.loadFamily(rootPos)
		if err != nil {
			return err
		}
		available := common.SubFloor(fam.Limit, fam.TotalMinted)
		if amount.Cmp(available) > 0 {
			return &LimitExceededError{Tried: common.Copy(amount), Available: available}
		}
		return e.consumeLimit(fam, amount)
	})
}

// NotifyRepaid returns amount to the pool of root.
func (e *Engine) NotifyRepaid(caller, root crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		if err := e.requireFamilyCaller(caller, root); err != nil {
			return err
		}
		rootPos, err := e.load(root)
		if err != nil {
			return err
		}
		fam, err := e.loadFamily(rootPos)
		if err != nil {
			return err
		}
		return e.returnLimit(fam, amount)
	})
}
