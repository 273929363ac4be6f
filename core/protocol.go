package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cdpchain/core/events"
	"cdpchain/core/genesis"
	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/native/bank"
	"cdpchain/native/common"
	"cdpchain/native/mintinghub"
	"cdpchain/native/position"
	"cdpchain/native/roller"
	"cdpchain/native/stable"
	"cdpchain/storage"
)

var (
	HubAddress    = crypto.ModuleAddress(common.ModuleHub)
	RollerAddress = crypto.ModuleAddress(common.ModuleRoller)

	ErrGenesisApplied = errors.New("core: genesis already applied")

	errNilDatabase = errors.New("core: database must not be nil")
	genesisKey     = []byte("core/genesis-applied")
)

// Options configure a Protocol. Zero params fall back to the defaults of each
// engine.
type Options struct {
	DebtAsset      string
	PositionParams *position.Params
	HubParams      *mintinghub.Params
	BaseRatePPM    uint32
	Governance     position.Governance
	Pauses         common.PauseView
	Now            func() uint64
}

// Protocol wires the ledgers and engines over one state manager and
// serializes every mutation. Events raised inside a transaction reach the
// subscribers only once it commits.
type Protocol struct {
	db      storage.Database
	state   *state.Manager
	stateMu sync.RWMutex

	bank      *bank.Ledger
	stable    *stable.Ledger
	positions *position.Engine
	hub       *mintinghub.Hub
	roller    *roller.Roller

	buffer *events.Buffer
	sinkMu sync.RWMutex
	sink   events.Emitter
	nowFn  func() uint64
}

func NewProtocol(db storage.Database, opts Options) (*Protocol, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	asset := state.NormalizeSymbol(opts.DebtAsset)
	if asset == "" {
		return nil, fmt.Errorf("core: debt asset must be provided")
	}
	p := &Protocol{
		db:     db,
		state:  state.NewManager(db),
		buffer: &events.Buffer{},
		sink:   events.NoopEmitter{},
		nowFn:  opts.Now,
	}
	if p.nowFn == nil {
		p.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
	}
	clock := func() uint64 { return p.nowFn() }

	p.bank = bank.NewLedger(p.state)
	p.bank.SetEmitter(p.buffer)
	p.bank.SetPauses(opts.Pauses)

	p.stable = stable.NewLedger(p.state, p.bank, asset)
	p.stable.SetEmitter(p.buffer)
	p.stable.SetPauses(opts.Pauses)

	p.positions = position.NewEngine()
	p.positions.SetState(position.NewStore(p.state))
	p.positions.SetCollateralLedger(p.bank)
	p.positions.SetDebtLedger(p.stable)
	p.positions.SetRateSource(position.StaticRate(opts.BaseRatePPM))
	if opts.Governance != nil {
		p.positions.SetGovernance(opts.Governance)
	}
	p.positions.SetHub(HubAddress)
	p.positions.SetRoller(RollerAddress)
	if opts.PositionParams != nil {
		p.positions.SetParams(*opts.PositionParams)
	}
	p.positions.SetEmitter(p.buffer)
	p.positions.SetNowFunc(clock)
	p.positions.SetPauses(opts.Pauses)

	p.hub = mintinghub.NewHub(HubAddress)
	p.hub.SetState(mintinghub.NewStore(p.state))
	p.hub.SetPositions(p.positions)
	p.hub.SetCollateralLedger(p.bank)
	p.hub.SetDebtLedger(p.stable)
	if opts.HubParams != nil {
		p.hub.SetParams(*opts.HubParams)
	}
	p.hub.SetEmitter(p.buffer)
	p.hub.SetNowFunc(clock)
	p.hub.SetPauses(opts.Pauses)

	p.roller = roller.NewRoller(RollerAddress)
	p.roller.SetState(p.state)
	p.roller.SetPositions(p.positions)
	p.roller.SetHub(p.hub)
	p.roller.SetFlashLedger(p.stable)
	p.roller.SetCollateralLedger(p.bank)
	p.roller.SetEmitter(p.buffer)
	p.roller.SetPauses(opts.Pauses)

	err := p.Execute(func() error {
		known, err := p.bank.HasAsset(asset)
		if err != nil || known {
			return err
		}
		return p.bank.RegisterAsset(asset, asset, 18)
	})
	if err != nil {
		return nil, fmt.Errorf("core: register debt asset: %w", err)
	}
	return p, nil
}

// SetEmitter replaces the subscriber that receives committed events.
func (p *Protocol) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.sinkMu.Lock()
	p.sink = emitter
	p.sinkMu.Unlock()
}

// SetNowFunc swaps the clock shared by every engine.
func (p *Protocol) SetNowFunc(now func() uint64) {
	if now == nil {
		return
	}
	p.stateMu.Lock()
	p.nowFn = now
	p.stateMu.Unlock()
}

func (p *Protocol) Now() uint64 { return p.nowFn() }

// Execute runs fn as one transaction. Either every state change and event of
// fn takes effect or none does.
func (p *Protocol) Execute(fn func() error) error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.buffer.Reset()
	if err := p.state.Atomic(fn); err != nil {
		p.buffer.Reset()
		return err
	}
	p.sinkMu.RLock()
	sink := p.sink
	p.sinkMu.RUnlock()
	p.buffer.Flush(sink)
	return nil
}

// View runs a read-only fn against committed state.
func (p *Protocol) View(fn func() error) error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return fn()
}

// ApplyGenesis registers the genesis assets and credits the allocations. A
// store accepts exactly one genesis.
func (p *Protocol) ApplyGenesis(spec *genesis.GenesisSpec) error {
	return p.Execute(func() error {
		var applied bool
		if _, err := p.state.KVGet(genesisKey, &applied); err != nil {
			return err
		}
		if applied {
			return ErrGenesisApplied
		}
		if err := genesis.Apply(spec, p.bank, p.stable); err != nil {
			return err
		}
		return p.state.KVPut(genesisKey, true)
	})
}

// GenesisApplied reports whether the store already holds a genesis.
func (p *Protocol) GenesisApplied() (bool, error) {
	var applied bool
	err := p.View(func() error {
		_, err := p.state.KVGet(genesisKey, &applied)
		return err
	})
	return applied, err
}

func (p *Protocol) Bank() *bank.Ledger { return p.bank }

func (p *Protocol) Stable() *stable.Ledger { return p.stable }

func (p *Protocol) Positions() *position.Engine { return p.positions }

func (p *Protocol) Hub() *mintinghub.Hub { return p.hub }

func (p *Protocol) Roller() *roller.Roller { return p.roller }

// DebtAsset returns the symbol of the stable unit.
func (p *Protocol) DebtAsset() string { return strings.ToUpper(p.stable.Asset()) }

func (p *Protocol) Close() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.db.Close()
	return nil
}
