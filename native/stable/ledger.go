package stable

import (
	"errors"
	"fmt"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/native/bank"
	"cdpchain/native/common"
)

var (
	ErrNilLedger     = errors.New("stable: ledger not configured")
	ErrInvalidAmount = errors.New("stable: amount must not be negative")
	ErrInvalidRate   = errors.New("stable: reserve and fee exceed 100%")
)

var (
	minterReserveKey = []byte("stable/minter-reserve")
	totalSupplyKey   = []byte("stable/total-supply")
)

// ReserveAddress is the account holding reserve contributions, fees and
// collected profits.
var ReserveAddress = crypto.ModuleAddress("reserve")

// Ledger is the reference debt unit. Balances live in the bank under the
// configured asset symbol; the ledger adds the reserve bookkeeping positions
// rely on.
type Ledger struct {
	state   *state.Manager
	bank    *bank.Ledger
	asset   string
	emitter events.Emitter
	pauses  common.PauseView
}

// NewLedger returns a debt ledger for asset. The asset must already be
// registered with the bank.
func NewLedger(manager *state.Manager, b *bank.Ledger, asset string) *Ledger {
	return &Ledger{
		state:   manager,
		bank:    b,
		asset:   state.NormalizeSymbol(asset),
		emitter: events.NoopEmitter{},
	}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

// Asset returns the bank symbol of the debt unit.
func (l *Ledger) Asset() string { return l.asset }

func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.bank.BalanceOf(l.asset, addr)
}

func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	return l.bank.Transfer(l.asset, from, to, amount)
}

// Mint issues amount to the account and records the supply change.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	return l.mint(to, amount, events.SupplyReasonMint)
}

// Burn destroys amount held by the account.
func (l *Ledger) Burn(from crypto.Address, amount *big.Int) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	return l.burn(from, amount)
}

// MintWithReserve issues amount against a position. The reserve share and the
// fee go to the reserve account, and only the reserve share is tracked as
// minter reserve. The usable remainder is credited to `to` and returned.
func (l *Ledger) MintWithReserve(to crypto.Address, amount *big.Int, reservePPM, feePPM uint32) (*big.Int, error) {
	if err := l.guard(amount); err != nil {
		return nil, err
	}
	if uint64(reservePPM)+uint64(feePPM) > uint64(common.PPM) {
		return nil, ErrInvalidRate
	}
	reserve := common.MulPPM(amount, reservePPM)
	fee := common.MulPPM(amount, feePPM)
	usable := new(big.Int).Sub(amount, reserve)
	usable.Sub(usable, fee)
	if err := l.mint(to, usable, events.SupplyReasonMint); err != nil {
		return nil, err
	}
	if err := l.mint(ReserveAddress, new(big.Int).Add(reserve, fee), events.SupplyReasonMint); err != nil {
		return nil, err
	}
	if err := l.adjustMinterReserve(reserve); err != nil {
		return nil, err
	}
	return usable, nil
}

// BurnWithReserve burns amountExcludingReserve from the payer and the released
// reserve share from the reserve account, shrinking the minter reserve by the
// same share. When losses have drained the reserve account only what is left
// is burned.
func (l *Ledger) BurnWithReserve(payer crypto.Address, amountExcludingReserve, released *big.Int) error {
	if err := l.guard(amountExcludingReserve); err != nil {
		return err
	}
	if err := l.guard(released); err != nil {
		return err
	}
	if err := l.burn(payer, amountExcludingReserve); err != nil {
		return err
	}
	held, err := l.bank.BalanceOf(l.asset, ReserveAddress)
	if err != nil {
		return err
	}
	if err := l.burn(ReserveAddress, common.Min(held, released)); err != nil {
		return err
	}
	return l.adjustMinterReserve(new(big.Int).Neg(released))
}

// BurnWithoutReserve burns amount from the payer. The reserve share that
// backed the burned debt is no longer owed to anyone and becomes equity.
func (l *Ledger) BurnWithoutReserve(payer crypto.Address, amount *big.Int, reservePPM uint32) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	if err := l.burn(payer, amount); err != nil {
		return err
	}
	return l.adjustMinterReserve(new(big.Int).Neg(common.MulPPM(amount, reservePPM)))
}

// CoverLoss pays amount to `to` out of the reserve account. The part the
// reserve cannot fund is minted.
func (l *Ledger) CoverLoss(to crypto.Address, amount *big.Int) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	held, err := l.bank.BalanceOf(l.asset, ReserveAddress)
	if err != nil {
		return err
	}
	paid := common.Min(held, amount)
	if err := l.bank.Transfer(l.asset, ReserveAddress, to, paid); err != nil {
		return err
	}
	deficit := new(big.Int).Sub(amount, paid)
	if err := l.mint(to, deficit, events.SupplyReasonLoss); err != nil {
		return err
	}
	l.emitter.Emit(events.LossCovered{To: to, Amount: new(big.Int).Set(amount), Minted: deficit})
	return nil
}

// CollectProfits moves amount from the account into the reserve.
func (l *Ledger) CollectProfits(from crypto.Address, amount *big.Int) error {
	if err := l.guard(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.bank.Transfer(l.asset, from, ReserveAddress, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.ProfitCollected{From: from, Amount: new(big.Int).Set(amount)})
	return nil
}

// MinterReserve returns the reserve contributions owed back to minters.
func (l *Ledger) MinterReserve() (*big.Int, error) {
	return l.loadAmount(minterReserveKey)
}

// TotalSupply returns the outstanding debt units.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.loadAmount(totalSupplyKey)
}

// Equity is the part of the reserve account not owed to minters.
func (l *Ledger) Equity() (*big.Int, error) {
	held, err := l.BalanceOf(ReserveAddress)
	if err != nil {
		return nil, err
	}
	owed, err := l.MinterReserve()
	if err != nil {
		return nil, err
	}
	return common.SubFloor(held, owed), nil
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil || l.bank == nil || l.asset == "" {
		return ErrNilLedger
	}
	return nil
}

func (l *Ledger) guard(amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := common.Guard(l.pauses, common.ModuleStable); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) mint(to crypto.Address, amount *big.Int, reason string) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.bank.Credit(l.asset, to, amount); err != nil {
		return err
	}
	return l.adjustSupply(amount, reason)
}

func (l *Ledger) burn(from crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := l.bank.Debit(l.asset, from, amount); err != nil {
		return fmt.Errorf("stable: burn: %w", err)
	}
	return l.adjustSupply(new(big.Int).Neg(amount), events.SupplyReasonBurn)
}

func (l *Ledger) adjustSupply(delta *big.Int, reason string) error {
	total, err := l.loadAmount(totalSupplyKey)
	if err != nil {
		return err
	}
	total = common.SubFloor(new(big.Int).Add(total, delta), big.NewInt(0))
	if err := l.state.KVPut(totalSupplyKey, total); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: l.asset, Total: new(big.Int).Set(total), Delta: new(big.Int).Set(delta), Reason: reason})
	return nil
}

func (l *Ledger) adjustMinterReserve(delta *big.Int) error {
	if delta.Sign() == 0 {
		return nil
	}
	current, err := l.loadAmount(minterReserveKey)
	if err != nil {
		return err
	}
	return l.state.KVPut(minterReserveKey, common.SubFloor(new(big.Int).Add(current, delta), big.NewInt(0)))
}

func (l *Ledger) loadAmount(key []byte) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	value := new(big.Int)
	ok, err := l.state.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}
