package position

import (
	"math/big"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

// Open registers pos as the root of a new family with the supplied limit. The
// hub moves the initial collateral to pos.Address before calling.
func (e *Engine) Open(caller crypto.Address, pos *Position, limit *big.Int) error {
	if pos == nil || limit == nil || limit.Sign() < 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		if pos.Owner.IsZero() {
			return ErrInvalidOwner
		}
		if _, ok, err := e.state.GetPosition(pos.Address); err != nil {
			return err
		} else if ok {
			return ErrPositionExists
		}
		root := pos.Clone()
		root.ensureDefaults()
		root.Original = root.Address
		root.Minted = big.NewInt(0)
		root.ChallengedAmount = big.NewInt(0)
		if err := priceWithinCeiling(root.Price, root.MinimumCollateral, limit); err != nil {
			return err
		}
		if err := e.requireMinimumCollateral(root); err != nil {
			return err
		}
		fam := &Family{Root: root.Address, Limit: new(big.Int).Set(limit), TotalMinted: big.NewInt(0), Members: 1}
		if err := e.state.PutFamily(fam); err != nil {
			return err
		}
		if err := e.persist(root); err != nil {
			return err
		}
		e.emitOpened(root, fam)
		return nil
	})
}

// Initialize bootstraps a clone of parent at child. The clone inherits the
// family parameters, the price and the timing of its parent except for the
// expiration, which may only be shortened.
func (e *Engine) Initialize(caller, child, owner, parent crypto.Address, expiration uint64) error {
	return e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		if owner.IsZero() {
			return ErrInvalidOwner
		}
		src, ok, err := e.state.GetPosition(parent)
		if err != nil {
			return err
		}
		if !ok || src == nil {
			return ErrInvalidPos
		}
		src.ensureDefaults()
		if _, exists, err := e.state.GetPosition(child); err != nil {
			return err
		} else if exists {
			return ErrPositionExists
		}
		now := e.now()
		if src.IsHot(now) {
			return ErrHot
		}
		if expiration <= now || expiration > src.Expiration {
			return ErrInvalidExpiration
		}
		clone := src.Clone()
		clone.Address = child
		clone.Owner = owner
		clone.Minted = big.NewInt(0)
		clone.ChallengedAmount = big.NewInt(0)
		clone.Expiration = expiration
		clone.Denied = false
		if err := e.requireMinimumCollateral(clone); err != nil {
			return err
		}
		fam, err := e.loadFamily(clone)
		if err != nil {
			return err
		}
		fam.Members++
		if err := e.state.PutFamily(fam); err != nil {
			return err
		}
		if err := e.persist(clone); err != nil {
			return err
		}
		e.emitOpened(clone, fam)
		return nil
	})
}

func (e *Engine) requireMinimumCollateral(pos *Position) error {
	balance, err := e.collateralBalance(pos)
	if err != nil {
		return err
	}
	if balance.Cmp(pos.MinimumCollateral) < 0 {
		return &InsufficientCollateralError{Needed: common.Copy(pos.MinimumCollateral), Available: balance}
	}
	return nil
}

func (e *Engine) emitOpened(pos *Position, fam *Family) {
	e.emitter.Emit(events.PositionOpened{
		Position:   pos.Address,
		Owner:      pos.Owner,
		Original:   pos.Original,
		Collateral: pos.Collateral,
		Price:      common.Copy(pos.Price),
		Start:      pos.Start,
		Expiration: pos.Expiration,
		Limit:      common.Copy(fam.Limit),
	})
}

// NotifyChallengeStarted bonds size against pos. expectedPrice must match the
// current price exactly and size must reach min(minimum collateral, balance).
func (e *Engine) NotifyChallengeStarted(caller, addr crypto.Address, size, expectedPrice *big.Int) error {
	if size == nil || expectedPrice == nil {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if expectedPrice.Cmp(pos.Price) != 0 {
			return &UnexpectedPriceError{Expected: common.Copy(expectedPrice), Actual: common.Copy(pos.Price)}
		}
		balance, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if pos.Denied || (balance.Sign() == 0 && pos.Minted.Sign() == 0) {
			return ErrClosed
		}
		floor := common.Min(pos.MinimumCollateral, balance)
		if size.Sign() <= 0 || size.Cmp(floor) < 0 {
			return ErrChallengeTooSmall
		}
		bonded := new(big.Int).Add(pos.ChallengedAmount, size)
		if bonded.Cmp(balance) > 0 {
			return ErrChallengeExceedsCollateral
		}
		pos.ChallengedAmount = bonded
		return e.persist(pos)
	})
}

// NotifyChallengeAverted releases size of bonded collateral after a fair
// value fill. The debt is untouched.
func (e *Engine) NotifyChallengeAverted(caller, addr crypto.Address, size *big.Int) error {
	if size == nil || size.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if size.Cmp(pos.ChallengedAmount) > 0 {
			return ErrInvalidAmount
		}
		pos.ChallengedAmount = new(big.Int).Sub(pos.ChallengedAmount, size)
		e.restrictMinting(pos, e.params.AvertedCooldown)
		return e.persist(pos)
	})
}

// NotifyChallengeSucceeded liquidates size of collateral to the bidder and
// writes the debt down by the full value of that collateral, capped at the
// outstanding debt. When no collateral is left the rest of the debt is
// written off as bad debt. The hub settles the returned amounts against the
// debt ledger.
func (e *Engine) NotifyChallengeSucceeded(caller, addr, bidder crypto.Address, size *big.Int) (*ChallengeSettlement, error) {
	if size == nil || size.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var settlement *ChallengeSettlement
	err := e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if size.Cmp(pos.ChallengedAmount) > 0 {
			return ErrInvalidAmount
		}
		balance, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if size.Cmp(balance) > 0 {
			return &InsufficientCollateralError{Needed: common.Copy(size), Available: balance}
		}
		pos.ChallengedAmount = new(big.Int).Sub(pos.ChallengedAmount, size)
		repaid := common.Min(pos.Minted, common.Value(size, pos.Price))
		if err := e.collateral.Transfer(pos.Collateral, pos.Address, bidder, size); err != nil {
			return err
		}
		pos.Minted = new(big.Int).Sub(pos.Minted, repaid)
		remaining := new(big.Int).Sub(balance, size)
		badDebt := big.NewInt(0)
		if remaining.Sign() == 0 && pos.Minted.Sign() > 0 {
			badDebt = pos.Minted
			pos.Minted = big.NewInt(0)
		}
		fam, err := e.loadFamily(pos)
		if err != nil {
			return err
		}
		if err := e.returnLimit(fam, new(big.Int).Add(repaid, badDebt)); err != nil {
			return err
		}
		e.restrictMinting(pos, e.params.SucceededCooldown)
		if err := e.persist(pos); err != nil {
			return err
		}
		settlement = &ChallengeSettlement{
			Owner:      pos.Owner,
			Collateral: pos.Collateral,
			Price:      common.Copy(pos.Price),
			Repaid:     repaid,
			BadDebt:    common.Copy(badDebt),
			ReservePPM: pos.ReservePPM,
			Remaining:  remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// ForceSale releases amount of an expired position's collateral to buyer and
// writes down the proportional share of its debt. Selling the whole balance
// writes down all of it.
func (e *Engine) ForceSale(caller, addr, buyer crypto.Address, amount *big.Int) (*ForceSaleResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var result *ForceSaleResult
	err := e.mutate(func() error {
		if err := e.requireHub(caller); err != nil {
			return err
		}
		pos, err := e.load(addr)
		if err != nil {
			return err
		}
		if !pos.IsExpired(e.now()) {
			return ErrNotExpired
		}
		if pos.IsChallenged() {
			return ErrChallenged
		}
		balance, err := e.collateralBalance(pos)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return ErrClosed
		}
		sold := common.Min(amount, balance)
		writtenOff := common.Copy(pos.Minted)
		if sold.Cmp(balance) < 0 {
			writtenOff = common.MulDiv(pos.Minted, sold, balance)
		}
		if err := e.collateral.Transfer(pos.Collateral, pos.Address, buyer, sold); err != nil {
			return err
		}
		pos.Minted = new(big.Int).Sub(pos.Minted, writtenOff)
		fam, err := e.loadFamily(pos)
		if err != nil {
			return err
		}
		if err := e.returnLimit(fam, writtenOff); err != nil {
			return err
		}
		if err := e.persist(pos); err != nil {
			return err
		}
		result = &ForceSaleResult{Owner: pos.Owner, Amount: sold, WrittenOff: writtenOff, ReservePPM: pos.ReservePPM}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
