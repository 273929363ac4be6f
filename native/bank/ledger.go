package bank

import (
	"errors"
	"fmt"
	"math/big"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/native/common"
)

var (
	ErrUnknownAsset        = errors.New("bank: unknown asset")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrNilState            = errors.New("bank: state manager required")
)

// Ledger is the multi-asset balance book. Collateral assets and the debt unit
// both live here.
type Ledger struct {
	state   *state.Manager
	emitter events.Emitter
	pauses  common.PauseView
}

// NewLedger returns a ledger over the supplied state manager.
func NewLedger(manager *state.Manager) *Ledger {
	return &Ledger{state: manager, emitter: events.NoopEmitter{}}
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

// RegisterAsset makes a new asset symbol known to the ledger.
func (l *Ledger) RegisterAsset(symbol, name string, decimals uint8) error {
	if l.state == nil {
		return ErrNilState
	}
	return l.state.RegisterToken(symbol, name, decimals)
}

// HasAsset reports whether the symbol is registered.
func (l *Ledger) HasAsset(symbol string) (bool, error) {
	if l.state == nil {
		return false, ErrNilState
	}
	meta, err := l.state.Token(symbol)
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

// BalanceOf returns the balance of addr in asset.
func (l *Ledger) BalanceOf(asset string, addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, ErrNilState
	}
	return l.state.Balance(addr[:], asset)
}

// Credit issues new units of asset to the account. Used for genesis funding
// and by the debt ledger's mint path.
func (l *Ledger) Credit(asset string, to crypto.Address, amount *big.Int) error {
	if err := l.check(asset, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], asset, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: asset, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Debit destroys units held by the account.
func (l *Ledger) Debit(asset string, from crypto.Address, amount *big.Int) error {
	if err := l.check(asset, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance, amount)
	}
	if err := l.state.SetBalance(from[:], asset, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: asset, From: from, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount of asset between two accounts. Zero transfers and
// funded self transfers succeed without touching state.
func (l *Ledger) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	if err := l.check(asset, amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromBalance, err := l.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := l.state.SetBalance(from[:], asset, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.state.SetBalance(to[:], asset, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: asset, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) check(asset string, amount *big.Int) error {
	if l.state == nil {
		return ErrNilState
	}
	if err := common.Guard(l.pauses, common.ModuleBank); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	ok, err := l.HasAsset(asset)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, state.NormalizeSymbol(asset))
	}
	return nil
}
