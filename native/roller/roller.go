package roller

import (
	"errors"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/position"
)

var (
	ErrNotOwner           = errors.New("roller: caller does not own both positions")
	ErrInvalidAmount      = errors.New("roller: amount must not be negative")
	ErrCollateralMismatch = errors.New("roller: positions use different collateral")

	errNilState = errors.New("roller: state not configured")
	errNotWired = errors.New("roller: collaborators not configured")
)

type rollerState interface {
	Atomic(fn func() error) error
}

// Roller moves debt and collateral from one position into another in a
// single atomic step, bridging the repayment with a flash mint.
type Roller struct {
	state      rollerState
	positions  Positions
	hub        Cloner
	flash      FlashLedger
	collateral CollateralLedger
	address    crypto.Address
	emitter    events.Emitter
	pauses     common.PauseView
}

func NewRoller(address crypto.Address) *Roller {
	return &Roller{address: address, emitter: events.NoopEmitter{}}
}

func (r *Roller) SetState(state rollerState) { r.state = state }

func (r *Roller) SetPositions(p Positions) { r.positions = p }

func (r *Roller) SetHub(hub Cloner) { r.hub = hub }

func (r *Roller) SetFlashLedger(l FlashLedger) { r.flash = l }

func (r *Roller) SetCollateralLedger(l CollateralLedger) { r.collateral = l }

func (r *Roller) SetPauses(p common.PauseView) { r.pauses = p }

func (r *Roller) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.emitter = emitter
}

func (r *Roller) Address() crypto.Address { return r.address }

func (r *Roller) ready() error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if r.positions == nil || r.hub == nil || r.flash == nil || r.collateral == nil {
		return errNotWired
	}
	return nil
}

// Roll repays `repay` of the source debt with a flash mint, withdraws
// collWithdraw of its collateral to the caller, deposits collDeposit into the
// target and mints `mint` there, then burns the flash amount from the caller.
// When the caller does not own target or expiration differs from it, a clone
// of target with that expiration receives the deposit instead. The position
// that received the deposit is returned.
func (r *Roller) Roll(caller, source crypto.Address, repay, collWithdraw *big.Int, target crypto.Address, mint, collDeposit *big.Int, expiration uint64) (crypto.Address, error) {
	for _, amount := range []*big.Int{repay, collWithdraw, mint, collDeposit} {
		if amount == nil || amount.Sign() < 0 {
			return crypto.Address{}, ErrInvalidAmount
		}
	}
	if err := r.ready(); err != nil {
		return crypto.Address{}, err
	}
	if err := common.Guard(r.pauses, common.ModuleRoller); err != nil {
		return crypto.Address{}, err
	}
	var landed crypto.Address
	err := r.state.Atomic(func() error {
		var err error
		landed, err = r.roll(caller, source, repay, collWithdraw, target, mint, collDeposit, expiration)
		return err
	})
	if err != nil {
		return crypto.Address{}, err
	}
	return landed, nil
}

func (r *Roller) roll(caller, source crypto.Address, repay, collWithdraw *big.Int, target crypto.Address, mint, collDeposit *big.Int, expiration uint64) (crypto.Address, error) {
	src, dst, err := r.pair(caller, source, target)
	if err != nil {
		return crypto.Address{}, err
	}
	if repay.Sign() > 0 {
		if err := r.flash.Mint(r.address, repay); err != nil {
			return crypto.Address{}, err
		}
		if _, err := r.positions.Repay(r.address, source, repay); err != nil {
			return crypto.Address{}, err
		}
	}
	if collWithdraw.Sign() > 0 {
		if err := r.positions.WithdrawCollateral(r.address, source, caller, collWithdraw); err != nil {
			return crypto.Address{}, err
		}
	}
	landed := target
	if mint.Sign() > 0 {
		if dst.Expiration != expiration {
			landed, err = r.hub.Clone(caller, target, collDeposit, mint, expiration)
			if err != nil {
				return crypto.Address{}, err
			}
		} else {
			if err := r.collateral.Transfer(dst.Collateral, caller, target, collDeposit); err != nil {
				return crypto.Address{}, err
			}
			if _, err := r.positions.Mint(r.address, target, caller, mint); err != nil {
				return crypto.Address{}, err
			}
		}
	}
	if repay.Sign() > 0 {
		if err := r.flash.Burn(caller, repay); err != nil {
			return crypto.Address{}, err
		}
	}
	r.emitter.Emit(events.Roll{
		Owner:              caller,
		Source:             src.Address,
		Target:             landed,
		CollateralWithdraw: common.Copy(collWithdraw),
		Repaid:             common.Copy(repay),
		CollateralDeposit:  common.Copy(collDeposit),
		Minted:             common.Copy(mint),
	})
	return landed, nil
}

// pair loads both positions and checks the caller owns them and that they
// share a collateral asset.
func (r *Roller) pair(caller, source, target crypto.Address) (*position.Position, *position.Position, error) {
	src, err := r.positions.Get(source)
	if err != nil {
		return nil, nil, err
	}
	dst, err := r.positions.Get(target)
	if err != nil {
		return nil, nil, err
	}
	if src.Owner != caller || dst.Owner != caller {
		return nil, nil, ErrNotOwner
	}
	if src.Collateral != dst.Collateral {
		return nil, nil, ErrCollateralMismatch
	}
	return src, dst, nil
}

// RollFully closes source and reopens the same debt in target at target's
// expiration.
func (r *Roller) RollFully(caller, source, target crypto.Address) (crypto.Address, error) {
	if err := r.ready(); err != nil {
		return crypto.Address{}, err
	}
	dst, err := r.positions.Get(target)
	if err != nil {
		return crypto.Address{}, err
	}
	return r.RollFullyWithExpiration(caller, source, target, dst.Expiration)
}

// RollFullyWithExpiration repays all of source and withdraws all its
// collateral. The caller's own stable balance is spent on the repayment
// first; target mints only the rest. The deposit is the least collateral
// backing that mint at the target price, raised to the minimum collateral
// when a clone is opened and capped at what was withdrawn.
func (r *Roller) RollFullyWithExpiration(caller, source, target crypto.Address, expiration uint64) (crypto.Address, error) {
	if err := r.ready(); err != nil {
		return crypto.Address{}, err
	}
	_, dst, err := r.pair(caller, source, target)
	if err != nil {
		return crypto.Address{}, err
	}
	repay, err := r.FindRepaymentAmount(source)
	if err != nil {
		return crypto.Address{}, err
	}
	withdraw, err := r.positions.CollateralBalance(source)
	if err != nil {
		return crypto.Address{}, err
	}
	held, err := r.flash.BalanceOf(caller)
	if err != nil {
		return crypto.Address{}, err
	}
	mint, err := r.positions.MintAmountFor(target, common.SubFloor(repay, held))
	if err != nil {
		return crypto.Address{}, err
	}
	deposit := big.NewInt(0)
	if mint.Sign() > 0 && dst.Price.Sign() > 0 {
		deposit = common.MulDivCeil(mint, common.One, dst.Price)
		if dst.Expiration != expiration && deposit.Cmp(dst.MinimumCollateral) < 0 {
			deposit = common.Copy(dst.MinimumCollateral)
		}
		deposit = common.Min(deposit, withdraw)
	}
	return r.Roll(caller, source, repay, withdraw, target, mint, deposit, expiration)
}

// FindRepaymentAmount returns the flash amount that clears the debt of source.
func (r *Roller) FindRepaymentAmount(source crypto.Address) (*big.Int, error) {
	if r == nil || r.positions == nil {
		return nil, errNotWired
	}
	return r.positions.RepaymentAmount(source)
}

var _ Positions = (*position.Engine)(nil)
