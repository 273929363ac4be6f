package position

import (
	"math/big"
	"time"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

type engineState interface {
	Atomic(fn func() error) error
	GetPosition(addr crypto.Address) (*Position, bool, error)
	PutPosition(pos *Position) error
	GetFamily(root crypto.Address) (*Family, bool, error)
	PutFamily(fam *Family) error
}

// Engine applies every position state transition. Owner operations, the hub
// callbacks and the views all go through it.
type Engine struct {
	state      engineState
	collateral CollateralLedger
	debt       DebtLedger
	rates      RateSource
	governance Governance
	hub        crypto.Address
	roller     crypto.Address
	params     Params
	emitter    events.Emitter
	nowFn      func() uint64
	pauses     common.PauseView
}

// NewEngine constructs a position engine with the default timing parameters.
func NewEngine() *Engine {
	return &Engine{
		params:  DefaultParams(),
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetCollateralLedger(l CollateralLedger) { e.collateral = l }

func (e *Engine) SetDebtLedger(l DebtLedger) { e.debt = l }

func (e *Engine) SetRateSource(r RateSource) { e.rates = r }

func (e *Engine) SetGovernance(g Governance) { e.governance = g }

// SetHub records the only address allowed to invoke the restricted callbacks.
func (e *Engine) SetHub(addr crypto.Address) { e.hub = addr }

// SetRoller records the address allowed to mint, repay and withdraw on behalf
// of owners during a roll.
func (e *Engine) SetRoller(addr crypto.Address) { e.roller = addr }

func (e *Engine) SetParams(p Params) { e.params = p }

func (e *Engine) Params() Params { return e.params }

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		return
	}
	e.nowFn = now
}

func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

func (e *Engine) now() uint64 { return e.nowFn() }

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.collateral == nil || e.debt == nil {
		return errNilLedger
	}
	return nil
}

// mutate runs fn as one atomic unit after the readiness and pause checks.
func (e *Engine) mutate(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, common.ModulePosition); err != nil {
		return err
	}
	return e.state.Atomic(fn)
}

func (e *Engine) load(addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, ok, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if !ok || pos == nil {
		return nil, ErrNotPosition
	}
	pos.ensureDefaults()
	return pos, nil
}

func (e *Engine) loadFamily(pos *Position) (*Family, error) {
	fam, ok, err := e.state.GetFamily(pos.Original)
	if err != nil {
		return nil, err
	}
	if !ok || fam == nil {
		return nil, ErrInvalidPos
	}
	fam.ensureDefaults()
	return fam, nil
}

func (e *Engine) collateralBalance(pos *Position) (*big.Int, error) {
	if e.collateral == nil {
		return nil, errNilLedger
	}
	return e.collateral.BalanceOf(pos.Collateral, pos.Address)
}

func (e *Engine) isOperator(caller crypto.Address) bool {
	return (!e.roller.IsZero() && caller == e.roller) || (!e.hub.IsZero() && caller == e.hub)
}

func (e *Engine) requireOwner(pos *Position, caller crypto.Address) error {
	if caller != pos.Owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) requireOwnerOrOperator(pos *Position, caller crypto.Address) error {
	if caller == pos.Owner || e.isOperator(caller) {
		return nil
	}
	return ErrNotOwner
}

func (e *Engine) requireHub(caller crypto.Address) error {
	if e.hub.IsZero() || caller != e.hub {
		return ErrNotHub
	}
	return nil
}

// checkCollateral enforces minted ≤ price × collateral.
func checkCollateral(minted, collateral, price *big.Int) error {
	value := common.Value(collateral, price)
	if value.Cmp(minted) < 0 {
		return &InsufficientCollateralError{Needed: common.Copy(minted), Available: value}
	}
	return nil
}

// restrictMinting pushes the cooldown out to now+period, never shortening it.
func (e *Engine) restrictMinting(pos *Position, period uint64) {
	next := e.now() + period
	if next > pos.Cooldown {
		pos.Cooldown = next
	}
}

func (e *Engine) emitUpdate(pos *Position) error {
	balance, err := e.collateralBalance(pos)
	if err != nil {
		return err
	}
	e.emitter.Emit(events.MintingUpdate{
		Position:   pos.Address,
		Collateral: balance,
		Price:      common.Copy(pos.Price),
		Minted:     common.Copy(pos.Minted),
		Cooldown:   pos.Cooldown,
	})
	return nil
}

func (e *Engine) persist(pos *Position) error {
	if err := e.state.PutPosition(pos); err != nil {
		return err
	}
	return e.emitUpdate(pos)
}
