package position

import (
	"math/big"

	"cdpchain/crypto"
	"cdpchain/native/common"
)

// Get returns a copy of the stored position.
func (e *Engine) Get(addr crypto.Address) (*Position, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// Family returns a copy of the pool shared by the family of addr.
func (e *Engine) Family(addr crypto.Address) (*Family, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	fam, err := e.loadFamily(pos)
	if err != nil {
		return nil, err
	}
	return fam.Clone(), nil
}

// IsRegistered reports whether addr is a known position.
func (e *Engine) IsRegistered(addr crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.state.GetPosition(addr)
	return ok, err
}

func (e *Engine) Price(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return common.Copy(pos.Price), nil
}

func (e *Engine) Minted(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return common.Copy(pos.Minted), nil
}

// Limit returns the family ceiling.
func (e *Engine) Limit(addr crypto.Address) (*big.Int, error) {
	fam, err := e.Family(addr)
	if err != nil {
		return nil, err
	}
	return fam.Limit, nil
}

func (e *Engine) CollateralBalance(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return e.collateralBalance(pos)
}

// AvailableForMinting returns the capacity addr may still draw from its
// family pool.
func (e *Engine) AvailableForMinting(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	fam, err := e.loadFamily(pos)
	if err != nil {
		return nil, err
	}
	return e.availableForMinting(pos, fam)
}

// AvailableForClones returns the capacity the clones of addr's family may
// draw.
func (e *Engine) AvailableForClones(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	root := pos
	if !pos.IsRoot() {
		if root, err = e.load(pos.Original); err != nil {
			return nil, err
		}
	}
	fam, err := e.loadFamily(root)
	if err != nil {
		return nil, err
	}
	return e.availableForClones(root, fam)
}

// ChallengeData returns the liquidation price and the challenge period.
func (e *Engine) ChallengeData(addr crypto.Address) (*big.Int, uint64, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, 0, err
	}
	return common.Copy(pos.Price), pos.ChallengePeriod, nil
}

// CalculateCurrentFee returns the fee in PPM a mint would be charged now.
func (e *Engine) CalculateCurrentFee(addr crypto.Address) (uint32, error) {
	pos, err := e.load(addr)
	if err != nil {
		return 0, err
	}
	return feePPM(pos, e.baseRate(), e.now()), nil
}

// UsableMint returns what the owner would receive from minting amount now.
func (e *Engine) UsableMint(addr crypto.Address, amount *big.Int) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return usableMint(amount, pos.ReservePPM, feePPM(pos, e.baseRate(), e.now())), nil
}

// MintAmountFor returns the smallest mint whose usable part reaches usable.
func (e *Engine) MintAmountFor(addr crypto.Address, usable *big.Int) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return mintAmountFor(usable, pos.ReservePPM, feePPM(pos, e.baseRate(), e.now())), nil
}

// RepaymentAmount returns the payment that clears the debt of addr.
func (e *Engine) RepaymentAmount(addr crypto.Address) (*big.Int, error) {
	pos, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	return RepaymentAmount(pos.Minted, pos.ReservePPM), nil
}

// IsClosed reports whether the position holds neither collateral nor debt.
func (e *Engine) IsClosed(addr crypto.Address) (bool, error) {
	pos, err := e.load(addr)
	if err != nil {
		return false, err
	}
	balance, err := e.collateralBalance(pos)
	if err != nil {
		return false, err
	}
	return balance.Sign() == 0 && pos.Minted.Sign() == 0, nil
}
