package position

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/native/bank"
	"cdpchain/native/common"
	"cdpchain/native/stable"
	"cdpchain/storage"
)

const (
	testCollateral = "COL"
	testDebt       = "ZCHF"
	genesisTime    = uint64(1_700_000_000)
	initPeriod     = uint64(3 * day)
)

type testEnv struct {
	t        *testing.T
	manager  *state.Manager
	bank     *bank.Ledger
	debt     *stable.Ledger
	engine   *Engine
	recorder *events.Recorder
	now      uint64
	nonce    uint64
	hub      crypto.Address
	roller   crypto.Address
	owner    crypto.Address
}

type openOpts struct {
	price        *big.Int
	collateral   int64
	minimum      int64
	limit        int64
	reservePPM   uint32
	riskPPM      uint32
	duration     uint64
	period       uint64
	owner        crypto.Address
	ownerBalance int64
}

func price(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), common.One)
}

func defaultOpts() openOpts {
	return openOpts{
		price:      price(5000),
		collateral: 110,
		minimum:    100,
		limit:      1_000_000,
		reservePPM: 100_000,
		riskPPM:    10_000,
		duration:   180 * day,
		period:     3 * day,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	b := bank.NewLedger(manager)
	if err := b.RegisterAsset(testCollateral, "Collateral", 18); err != nil {
		t.Fatalf("register collateral: %v", err)
	}
	if err := b.RegisterAsset(testDebt, "Stable", 18); err != nil {
		t.Fatalf("register debt: %v", err)
	}
	env := &testEnv{
		t:        t,
		manager:  manager,
		bank:     b,
		debt:     stable.NewLedger(manager, b, testDebt),
		recorder: &events.Recorder{},
		now:      genesisTime,
		hub:      crypto.ModuleAddress("hub"),
		roller:   crypto.ModuleAddress("roller"),
		owner:    crypto.DeriveAddress([]byte("owner")),
	}
	engine := NewEngine()
	engine.SetState(NewStore(manager))
	engine.SetCollateralLedger(b)
	engine.SetDebtLedger(env.debt)
	engine.SetHub(env.hub)
	engine.SetRoller(env.roller)
	engine.SetEmitter(env.recorder)
	engine.SetNowFunc(func() uint64 { return env.now })
	env.engine = engine
	return env
}

func (env *testEnv) fund(addr crypto.Address, collateral int64) {
	env.t.Helper()
	if err := env.bank.Credit(testCollateral, addr, big.NewInt(collateral)); err != nil {
		env.t.Fatalf("fund: %v", err)
	}
}

func (env *testEnv) fundDebt(addr crypto.Address, amount int64) {
	env.t.Helper()
	if err := env.debt.Mint(addr, big.NewInt(amount)); err != nil {
		env.t.Fatalf("fund debt: %v", err)
	}
}

// open plays the hub's part: it moves the collateral to a fresh address and
// registers the root position.
func (env *testEnv) open(opts openOpts) crypto.Address {
	env.t.Helper()
	owner := opts.owner
	if owner.IsZero() {
		owner = env.owner
	}
	env.nonce++
	addr := crypto.DeriveAddress(env.hub[:], []byte("position"), crypto.NonceBytes(env.nonce))
	env.fund(addr, opts.collateral)
	start := env.now + initPeriod
	pos := &Position{
		Address:           addr,
		Owner:             owner,
		Collateral:        testCollateral,
		MinimumCollateral: big.NewInt(opts.minimum),
		RiskPremiumPPM:    opts.riskPPM,
		ReservePPM:        opts.reservePPM,
		ChallengePeriod:   opts.period,
		Price:             new(big.Int).Set(opts.price),
		Start:             start,
		Cooldown:          start,
		Expiration:        start + opts.duration,
	}
	if err := env.engine.Open(env.hub, pos, big.NewInt(opts.limit)); err != nil {
		env.t.Fatalf("open: %v", err)
	}
	return addr
}

func (env *testEnv) clone(parent crypto.Address, owner crypto.Address, collateral int64, expiration uint64) crypto.Address {
	env.t.Helper()
	env.nonce++
	addr := crypto.DeriveAddress(env.hub[:], []byte("position"), crypto.NonceBytes(env.nonce))
	env.fund(addr, collateral)
	if err := env.engine.Initialize(env.hub, addr, owner, parent, expiration); err != nil {
		env.t.Fatalf("initialize: %v", err)
	}
	return addr
}

func (env *testEnv) position(addr crypto.Address) *Position {
	env.t.Helper()
	pos, err := env.engine.Get(addr)
	if err != nil {
		env.t.Fatalf("get: %v", err)
	}
	return pos
}

func (env *testEnv) debtBalance(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.debt.BalanceOf(addr)
	if err != nil {
		env.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (env *testEnv) collateralOf(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.bank.BalanceOf(testCollateral, addr)
	if err != nil {
		env.t.Fatalf("collateral balance: %v", err)
	}
	return bal
}

// requireBacked checks minted ≤ price × collateral.
func (env *testEnv) requireBacked(addr crypto.Address) {
	env.t.Helper()
	pos := env.position(addr)
	value := common.Value(env.collateralOf(addr), pos.Price)
	if pos.Minted.Cmp(value) > 0 {
		env.t.Fatalf("position %s undercollateralised: minted %s > value %s", addr, pos.Minted, value)
	}
}

func (env *testEnv) warpPastCooldown(addr crypto.Address) {
	pos := env.position(addr)
	if env.now < pos.Cooldown {
		env.now = pos.Cooldown
	}
}

func TestRestrictedCallbacksRequireHub(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())

	if err := env.engine.NotifyChallengeStarted(env.owner, addr, big.NewInt(100), price(5000)); !errors.Is(err, ErrNotHub) {
		t.Fatalf("expected ErrNotHub, got %v", err)
	}
	if err := env.engine.NotifyChallengeAverted(env.owner, addr, big.NewInt(1)); !errors.Is(err, ErrNotHub) {
		t.Fatalf("expected ErrNotHub, got %v", err)
	}
	if _, err := env.engine.NotifyChallengeSucceeded(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrNotHub) {
		t.Fatalf("expected ErrNotHub, got %v", err)
	}
	if err := env.engine.Initialize(env.owner, crypto.DeriveAddress([]byte("x")), env.owner, addr, env.now+day); !errors.Is(err, ErrNotHub) {
		t.Fatalf("expected ErrNotHub, got %v", err)
	}
	if err := env.engine.NotifyMint(env.owner, addr, big.NewInt(1)); !errors.Is(err, ErrNotHub) {
		t.Fatalf("expected ErrNotHub for a non-member, got %v", err)
	}
}

func TestOpenRejectsDuplicateAndCeiling(t *testing.T) {
	env := newTestEnv(t)
	opts := defaultOpts()
	opts.limit = 100
	env.fund(crypto.DeriveAddress([]byte("p")), 110)
	pos := &Position{
		Address:           crypto.DeriveAddress([]byte("p")),
		Owner:             env.owner,
		Collateral:        testCollateral,
		MinimumCollateral: big.NewInt(100),
		Price:             price(5000),
		Expiration:        env.now + day,
	}
	// 100 collateral × 5000 exceeds a limit of 100.
	if err := env.engine.Open(env.hub, pos, big.NewInt(opts.limit)); !errors.Is(err, ErrPriceTooHigh) {
		t.Fatalf("expected ErrPriceTooHigh, got %v", err)
	}
	if err := env.engine.Open(env.hub, pos, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := env.engine.Open(env.hub, pos, big.NewInt(1_000_000)); !errors.Is(err, ErrPositionExists) {
		t.Fatalf("expected ErrPositionExists, got %v", err)
	}
	if len(env.recorder.OfType(events.TypePositionOpened)) != 1 {
		t.Fatalf("expected one opened event")
	}
}

func TestTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	next := crypto.DeriveAddress([]byte("next"))

	if err := env.engine.TransferOwnership(next, addr, next); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := env.engine.TransferOwnership(env.owner, addr, crypto.ZeroAddress); !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
	if err := env.engine.TransferOwnership(env.owner, addr, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if env.position(addr).Owner != next {
		t.Fatalf("owner not updated")
	}
	if len(env.recorder.OfType(events.TypeOwnershipTransferred)) != 1 {
		t.Fatalf("expected ownership event")
	}
}

func TestUnknownPositionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Mint(env.owner, crypto.DeriveAddress([]byte("nope")), env.owner, big.NewInt(1)); !errors.Is(err, ErrNotPosition) {
		t.Fatalf("expected ErrNotPosition, got %v", err)
	}
	ok, err := env.engine.IsRegistered(crypto.DeriveAddress([]byte("nope")))
	if err != nil || ok {
		t.Fatalf("unexpected registration: %v %v", ok, err)
	}
}

func TestPauseGuardBlocksMutations(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.engine.SetPauses(common.StaticPauses{common.ModulePosition: true})
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected pause error, got %v", err)
	}
}
