package position

import (
	"math/big"
	"strings"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// Mint draws amount of new debt against pos and credits the usable part to
// `to`. The owner, the roller and the hub (for a clone's initial mint) may
// call it. The usable amount is returned.
func (e *Engine) Mint(caller, addr, to crypto.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var usable *big.Int
	err := e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwnerOrOperator(pos, caller); err != nil {
			return err
		}
		usable, err = e.mint(pos, to, amount)
		if err != nil {
			return err
		}
		return e.persist(pos)
	})
	if err != nil {
		return nil, err
	}
	return usable, nil
}

func (e *Engine) mint(pos *Position, to crypto.Address, amount *big.Int) (*big.Int, error) {
	now := e.now()
	if pos.IsHot(now) {
		return nil, ErrHot
	}
	if pos.IsChallenged() {
		return nil, ErrChallenged
	}
	if pos.IsExpired(now) {
		return nil, ErrExpired
	}
	fam, err := e.loadFamily(pos)
	if err != nil {
		return nil, err
	}
	available, err := e.availableForMinting(pos, fam)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(available) > 0 {
		return nil, &LimitExceededError{Tried: common.Copy(amount), Available: available}
	}
	balance, err := e.collateralBalance(pos)
	if err != nil {
		return nil, err
	}
	minted := new(big.Int).Add(pos.Minted, amount)
	if err := checkCollateral(minted, balance, pos.Price); err != nil {
		return nil, err
	}
	if err := e.consumeLimit(fam, amount); err != nil {
		return nil, err
	}
	pos.Minted = minted
	return e.debt.MintWithReserve(to, amount, pos.ReservePPM, feePPM(pos, e.baseRate(), now))
}

// Repay burns amount from the caller against the debt of pos. The reserve
// share of the cleared debt is released, so paying RepaymentAmount(minted)
// clears the position. Over-payment is rejected. The cleared debt is
// returned.
func (e *Engine) Repay(caller, addr crypto.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	var cleared *big.Int
	err := e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwnerOrOperator(pos, caller); err != nil {
			return err
		}
		cleared, err = debtCleared(pos.Minted, amount, pos.ReservePPM)
		if err != nil {
			return err
		}
		if cleared.Sign() == 0 {
			return nil
		}
		if err := e.burnDebt(pos, caller, amount, cleared); err != nil {
			return err
		}
		return e.persist(pos)
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

// burnDebt burns paid from payer, releases cleared−paid from the reserve and
// returns the capacity to the family pool.
func (e *Engine) burnDebt(pos *Position, payer crypto.Address, paid, cleared *big.Int) error {
	released := common.SubFloor(cleared, paid)
	if err := e.debt.BurnWithReserve(payer, paid, released); err != nil {
		return err
	}
	fam, err := e.loadFamily(pos)
	if err != nil {
		return err
	}
	if err := e.returnLimit(fam, cleared); err != nil {
		return err
	}
	pos.Minted = common.SubFloor(pos.Minted, cleared)
	return nil
}

// Adjust moves pos to the requested debt, collateral and price in one step.
// Collateral is topped up first, then debt repaid, then the price changed,
// then collateral withdrawn and finally new debt minted. Only the final state
// has to satisfy the collateral invariant.
func (e *Engine) Adjust(caller, addr crypto.Address, newMinted, newCollateral, newPrice *big.Int) error {
	if newMinted == nil || newCollateral == nil || newPrice == nil ||
		newMinted.Sign() < 0 || newCollateral.Sign() < 0 || newPrice.Sign() < 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwner(pos, caller); err != nil {
			return err
		}
		balance, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if newCollateral.Cmp(balance) > 0 {
			topUp := new(big.Int).Sub(newCollateral, balance)
			if err := e.collateral.Transfer(pos.Collateral, caller, pos.Address, topUp); err != nil {
				return err
			}
		}
		if newMinted.Cmp(pos.Minted) < 0 {
			cleared := new(big.Int).Sub(pos.Minted, newMinted)
			paid := RepaymentAmount(cleared, pos.ReservePPM)
			if err := e.burnDebt(pos, caller, paid, cleared); err != nil {
				return err
			}
		}
		if newPrice.Cmp(pos.Price) != 0 {
			if err := e.setPrice(pos, newPrice); err != nil {
				return err
			}
		}
		if newCollateral.Cmp(balance) < 0 {
			if err := e.withdrawCollateral(pos, caller, new(big.Int).Sub(balance, newCollateral)); err != nil {
				return err
			}
		}
		if newMinted.Cmp(pos.Minted) > 0 {
			if _, err := e.mint(pos, caller, new(big.Int).Sub(newMinted, pos.Minted)); err != nil {
				return err
			}
		}
		final, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if err := checkCollateral(pos.Minted, final, pos.Price); err != nil {
			return err
		}
		return e.persist(pos)
	})
}

// AdjustPrice changes the liquidation price. Raising it re-arms the cooldown,
// lowering it must keep the position backed.
func (e *Engine) AdjustPrice(caller, addr crypto.Address, newPrice *big.Int) error {
	if newPrice == nil || newPrice.Sign() < 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwner(pos, caller); err != nil {
			return err
		}
		if err := e.setPrice(pos, newPrice); err != nil {
			return err
		}
		balance, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if err := checkCollateral(pos.Minted, balance, pos.Price); err != nil {
			return err
		}
		return e.persist(pos)
	})
}

func (e *Engine) setPrice(pos *Position, newPrice *big.Int) error {
	if pos.IsChallenged() {
		return ErrChallenged
	}
	if pos.IsExpired(e.now()) {
		return ErrExpired
	}
	if err := e.checkPriceCeiling(pos, newPrice); err != nil {
		return err
	}
	if newPrice.Cmp(pos.Price) > 0 {
		e.restrictMinting(pos, e.params.PriceIncreaseCooldown)
	}
	pos.Price = new(big.Int).Set(newPrice)
	return nil
}

// checkPriceCeiling bounds the price so that the minimum collateral is never
// worth more than the position could ever mint.
func (e *Engine) checkPriceCeiling(pos *Position, price *big.Int) error {
	fam, err := e.loadFamily(pos)
	if err != nil {
		return err
	}
	available, err := e.availableForMinting(pos, fam)
	if err != nil {
		return err
	}
	return priceWithinCeiling(price, pos.MinimumCollateral, new(big.Int).Add(pos.Minted, available))
}

func priceWithinCeiling(price, minimumCollateral, capacity *big.Int) error {
	lhs := new(big.Int).Mul(price, minimumCollateral)
	rhs := new(big.Int).Mul(capacity, common.One)
	if lhs.Cmp(rhs) > 0 {
		return ErrPriceTooHigh
	}
	return nil
}

// WithdrawCollateral sends amount of collateral to `to`. What remains must be
// either nothing or at least the minimum collateral, and must still back the
// debt.
func (e *Engine) WithdrawCollateral(caller, addr, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwnerOrOperator(pos, caller); err != nil {
			return err
		}
		if err := e.withdrawCollateral(pos, to, amount); err != nil {
			return err
		}
		return e.persist(pos)
	})
}

func (e *Engine) withdrawCollateral(pos *Position, to crypto.Address, amount *big.Int) error {
	if err := e.requireWithdrawable(pos); err != nil {
		return err
	}
	balance, err := e.collateralBalance(pos)
	if err != nil {
		return err
	}
	if amount.Cmp(balance) > 0 {
		return &InsufficientCollateralError{Needed: common.Copy(amount), Available: balance}
	}
	remaining := new(big.Int).Sub(balance, amount)
	if remaining.Sign() > 0 && remaining.Cmp(pos.MinimumCollateral) < 0 {
		return &InsufficientCollateralError{Needed: common.Copy(pos.MinimumCollateral), Available: remaining}
	}
	if err := checkCollateral(pos.Minted, remaining, pos.Price); err != nil {
		return err
	}
	return e.collateral.Transfer(pos.Collateral, pos.Address, to, amount)
}

// requireWithdrawable blocks withdrawals while hot or challenged. A denied
// position may always be unwound.
func (e *Engine) requireWithdrawable(pos *Position) error {
	if pos.IsChallenged() {
		return ErrChallenged
	}
	if !pos.Denied && pos.IsHot(e.now()) {
		return ErrHot
	}
	return nil
}

// Withdraw rescues any asset held by the position address. Collateral goes
// through the collateral withdrawal rules.
func (e *Engine) Withdraw(caller, addr crypto.Address, asset string, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwner(pos, caller); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(asset), pos.Collateral) {
			if err := e.withdrawCollateral(pos, to, amount); err != nil {
				return err
			}
			return e.persist(pos)
		}
		if err := e.requireWithdrawable(pos); err != nil {
			return err
		}
		return e.collateral.Transfer(asset, pos.Address, to, amount)
	})
}

// Deny recalls a position before its initial cooldown ends. The owner may
// always deny; anybody else needs governance to qualify them. A denied
// position can no longer mint and its collateral may be withdrawn at once.
func (e *Engine) Deny(caller, addr crypto.Address, helpers []crypto.Address, reason string) error {
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if e.now() >= pos.Start {
			return ErrTooLate
		}
		if caller != pos.Owner {
			if e.governance == nil {
				return ErrNotOwner
			}
			if err := e.governance.CheckQualified(caller, helpers); err != nil {
				return ErrNotQualified
			}
		}
		pos.Denied = true
		pos.Cooldown = pos.Expiration
		if err := e.persist(pos); err != nil {
			return err
		}
		e.emitter.Emit(events.PositionDenied{Position: pos.Address, Sender: caller, Reason: strings.TrimSpace(reason)})
		return nil
	})
}

// TransferOwnership hands the position to newOwner.
func (e *Engine) TransferOwnership(caller, addr, newOwner crypto.Address) error {
	if newOwner.IsZero() {
		return ErrInvalidOwner
	}
	return e.mutate(func() error {
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if err := e.requireOwner(pos, caller); err != nil {
			return err
		}
		previous := pos.Owner
		pos.Owner = newOwner
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		e.emitter.Emit(events.OwnershipTransferred{Position: pos.Address, From: previous, To: newOwner})
		return nil
	})
}

func (e *Engine) baseRate() uint32 {
	if e.rates == nil {
		return 0
	}
	return e.rates.CurrentRatePPM()
}
