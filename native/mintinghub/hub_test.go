package mintinghub

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/events"
	"cdpchain/core/state"
	"cdpchain/crypto"
	"cdpchain/native/bank"
	"cdpchain/native/common"
	"cdpchain/native/position"
	"cdpchain/native/stable"
	"cdpchain/storage"
)

const (
	testCollateral = "COL"
	testDebt       = "ZCHF"
	genesisTime    = uint64(1_700_000_000)
	period         = uint64(3 * day)
)

type hubEnv struct {
	t          *testing.T
	bank       *bank.Ledger
	debt       *stable.Ledger
	positions  *position.Engine
	hub        *Hub
	recorder   *events.Recorder
	now        uint64
	owner      crypto.Address
	challenger crypto.Address
	bidder     crypto.Address
}

func price(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), common.One)
}

func testParams() Params {
	params := DefaultParams()
	params.OpeningFee = big.NewInt(1_000)
	params.MinPositionValue = big.NewInt(100_000)
	return params
}

func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	b := bank.NewLedger(manager)
	if err := b.RegisterAsset(testCollateral, "Collateral", 18); err != nil {
		t.Fatalf("register collateral: %v", err)
	}
	if err := b.RegisterAsset(testDebt, "Stable", 18); err != nil {
		t.Fatalf("register debt: %v", err)
	}
	env := &hubEnv{
		t:          t,
		bank:       b,
		debt:       stable.NewLedger(manager, b, testDebt),
		recorder:   &events.Recorder{},
		now:        genesisTime,
		owner:      crypto.DeriveAddress([]byte("owner")),
		challenger: crypto.DeriveAddress([]byte("challenger")),
		bidder:     crypto.DeriveAddress([]byte("bidder")),
	}
	clock := func() uint64 { return env.now }
	hubAddr := crypto.ModuleAddress(common.ModuleHub)

	positions := position.NewEngine()
	positions.SetState(position.NewStore(manager))
	positions.SetCollateralLedger(b)
	positions.SetDebtLedger(env.debt)
	positions.SetHub(hubAddr)
	positions.SetEmitter(env.recorder)
	positions.SetNowFunc(clock)

	hub := NewHub(hubAddr)
	hub.SetState(NewStore(manager))
	hub.SetPositions(positions)
	hub.SetCollateralLedger(b)
	hub.SetDebtLedger(env.debt)
	hub.SetParams(testParams())
	hub.SetEmitter(env.recorder)
	hub.SetNowFunc(clock)

	env.positions = positions
	env.hub = hub
	return env
}

func (env *hubEnv) fund(addr crypto.Address, collateral int64) {
	env.t.Helper()
	if err := env.bank.Credit(testCollateral, addr, big.NewInt(collateral)); err != nil {
		env.t.Fatalf("fund: %v", err)
	}
}

func (env *hubEnv) fundDebt(addr crypto.Address, amount int64) {
	env.t.Helper()
	if err := env.debt.Mint(addr, big.NewInt(amount)); err != nil {
		env.t.Fatalf("fund debt: %v", err)
	}
}

func (env *hubEnv) collateralOf(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.bank.BalanceOf(testCollateral, addr)
	if err != nil {
		env.t.Fatalf("collateral balance: %v", err)
	}
	return bal
}

func (env *hubEnv) debtOf(addr crypto.Address) *big.Int {
	env.t.Helper()
	bal, err := env.debt.BalanceOf(addr)
	if err != nil {
		env.t.Fatalf("debt balance: %v", err)
	}
	return bal
}

func (env *hubEnv) minted(addr crypto.Address) *big.Int {
	env.t.Helper()
	minted, err := env.positions.Minted(addr)
	if err != nil {
		env.t.Fatalf("minted: %v", err)
	}
	return minted
}

func defaultRequest() *OpenRequest {
	return &OpenRequest{
		Collateral:        testCollateral,
		MinimumCollateral: big.NewInt(100),
		InitialCollateral: big.NewInt(110),
		InitialLimit:      big.NewInt(1_000_000),
		Price:             price(5000),
		InitPeriod:        3 * day,
		Duration:          180 * day,
		ChallengePeriod:   period,
		RiskPremiumPPM:    10_000,
		ReservePPM:        100_000,
	}
}

// openMinted opens the default position, waits out the initial cooldown and
// mints 500,000 against it.
func (env *hubEnv) openMinted() crypto.Address {
	env.t.Helper()
	env.fund(env.owner, 110)
	env.fundDebt(env.owner, 1_000)
	addr, err := env.hub.OpenPosition(env.owner, defaultRequest())
	if err != nil {
		env.t.Fatalf("open: %v", err)
	}
	env.now += 3 * day
	if _, err := env.positions.Mint(env.owner, addr, env.owner, big.NewInt(500_000)); err != nil {
		env.t.Fatalf("mint: %v", err)
	}
	return addr
}

func (env *hubEnv) challenge(addr crypto.Address, size int64) uint64 {
	env.t.Helper()
	env.fund(env.challenger, size)
	index, err := env.hub.Challenge(env.challenger, addr, big.NewInt(size), price(5000))
	if err != nil {
		env.t.Fatalf("challenge: %v", err)
	}
	return index
}

func TestOpenPositionCollectsFeeAndEscrows(t *testing.T) {
	env := newHubEnv(t)
	env.fund(env.owner, 110)
	env.fundDebt(env.owner, 1_000)
	addr, err := env.hub.OpenPosition(env.owner, defaultRequest())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := env.collateralOf(addr); got.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("expected 110 escrowed, got %s", got)
	}
	if got := env.debtOf(stable.ReserveAddress); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected opening fee in reserve, got %s", got)
	}
	pos, err := env.positions.Get(addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pos.Owner != env.owner || pos.Start != genesisTime+3*day || pos.Expiration != pos.Start+180*day {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if ok, err := env.hub.IsRegistered(addr); err != nil || !ok {
		t.Fatalf("expected registered position, got %v %v", ok, err)
	}
	if len(env.recorder.OfType(events.TypePositionOpened)) != 1 {
		t.Fatalf("expected one opened event")
	}
}

func TestOpenPositionValidation(t *testing.T) {
	env := newHubEnv(t)
	env.fund(env.owner, 1_000)
	env.fundDebt(env.owner, 10_000)

	req := defaultRequest()
	req.ChallengePeriod = 60
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, ErrPeriodTooShort) {
		t.Fatalf("expected ErrPeriodTooShort, got %v", err)
	}
	req = defaultRequest()
	req.InitPeriod = day
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, ErrPeriodTooShort) {
		t.Fatalf("expected ErrPeriodTooShort for init period, got %v", err)
	}
	req = defaultRequest()
	req.ReservePPM = common.PPM + 1
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %v", err)
	}
	req = defaultRequest()
	req.MinimumCollateral = big.NewInt(10)
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, ErrPositionTooSmall) {
		t.Fatalf("expected ErrPositionTooSmall, got %v", err)
	}
	req = defaultRequest()
	req.InitialCollateral = big.NewInt(99)
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, position.ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	req = defaultRequest()
	req.InitialLimit = big.NewInt(1_000)
	if _, err := env.hub.OpenPosition(env.owner, req); !errors.Is(err, position.ErrPriceTooHigh) {
		t.Fatalf("expected ErrPriceTooHigh, got %v", err)
	}
	if got := env.debtOf(env.owner); got.Cmp(big.NewInt(10_000)) != 0 {
		t.Fatalf("failed opens must not charge the fee, balance %s", got)
	}
	if got := env.collateralOf(env.owner); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("failed opens must not move collateral, balance %s", got)
	}
}

func TestCloneWithInitialMint(t *testing.T) {
	env := newHubEnv(t)
	root := env.openMinted()
	other := crypto.DeriveAddress([]byte("other"))
	env.fund(other, 100)
	rootPos, _ := env.positions.Get(root)

	child, err := env.hub.Clone(other, root, big.NewInt(100), big.NewInt(50_000), rootPos.Expiration)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if child == root {
		t.Fatalf("clone must get its own address")
	}
	if got := env.debtOf(other); got.Cmp(big.NewInt(45_000)) != 0 {
		t.Fatalf("expected usable 45000, got %s", got)
	}
	fam, err := env.positions.Family(child)
	if err != nil {
		t.Fatalf("family: %v", err)
	}
	if fam.Root != root || fam.TotalMinted.Cmp(big.NewInt(550_000)) != 0 || fam.Members != 2 {
		t.Fatalf("unexpected family: %+v", fam)
	}
	if _, err := env.hub.Clone(other, crypto.DeriveAddress([]byte("nowhere")), big.NewInt(0), nil, rootPos.Expiration); !errors.Is(err, position.ErrInvalidPos) {
		t.Fatalf("expected ErrInvalidPos, got %v", err)
	}
}

func TestPositionsListsCreationOrder(t *testing.T) {
	env := newHubEnv(t)
	if list, err := env.hub.Positions(); err != nil || len(list) != 0 {
		t.Fatalf("expected empty registry, got %v %v", list, err)
	}
	root := env.openMinted()
	other := crypto.DeriveAddress([]byte("other"))
	env.fund(other, 100)
	rootPos, _ := env.positions.Get(root)
	child, err := env.hub.Clone(other, root, big.NewInt(100), nil, rootPos.Expiration)
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	list, err := env.hub.Positions()
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(list) != 2 || list[0] != root || list[1] != child {
		t.Fatalf("unexpected registry %v", list)
	}
}

// A bid at half the challenge period is averted: the bidder buys the bond at
// the liquidation price and the debt is untouched.
func TestBidDuringFlatPhaseAverts(t *testing.T) {
	env := newHubEnv(t)
	addr := env.openMinted()
	index := env.challenge(addr, 100)

	env.now += period / 2
	env.fundDebt(env.bidder, 125_000)
	if err := env.hub.Bid(env.bidder, index, big.NewInt(25), false); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if got := env.debtOf(env.challenger); got.Cmp(big.NewInt(125_000)) != 0 {
		t.Fatalf("challenger should receive 25 x 5000, got %s", got)
	}
	if got := env.collateralOf(env.bidder); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("bidder should receive the bond, got %s", got)
	}
	if got := env.minted(addr); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("averted bid changed minted: %s", got)
	}
	if got := env.collateralOf(addr); got.Cmp(big.NewInt(110)) != 0 {
		t.Fatalf("averted bid touched the position collateral: %s", got)
	}
	c, err := env.hub.ChallengeAt(index)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if c.Size.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected 75 left, got %s", c.Size)
	}
	pos, _ := env.positions.Get(addr)
	if pos.ChallengedAmount.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected 75 still bonded, got %s", pos.ChallengedAmount)
	}
	if pos.Cooldown != env.now+day {
		t.Fatalf("averted challenge should suspend minting for a day")
	}
	if len(env.recorder.OfType(events.TypeChallengeAverted)) != 1 || len(env.recorder.OfType(events.TypeChallengeSucceeded)) != 0 {
		t.Fatalf("expected exactly one averted event")
	}
}

// A bid at one and a half periods succeeds at half the liquidation price.
func TestBidDuringDecaySucceeds(t *testing.T) {
	env := newHubEnv(t)
	addr := env.openMinted()
	index := env.challenge(addr, 100)

	env.now += period + period/2
	p, err := env.hub.Price(index)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if p.Cmp(price(2500)) != 0 {
		t.Fatalf("expected half the liquidation price, got %s", p)
	}
	env.fundDebt(env.bidder, 100_000)
	if err := env.hub.Bid(env.bidder, index, big.NewInt(25), false); err != nil {
		t.Fatalf("bid: %v", err)
	}
	if got := env.debtOf(env.bidder); got.Cmp(big.NewInt(37_500)) != 0 {
		t.Fatalf("bidder should pay 62500, left %s", got)
	}
	if got := env.collateralOf(env.bidder); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("bidder should receive position collateral, got %s", got)
	}
	if got := env.collateralOf(addr); got.Cmp(big.NewInt(85)) != 0 {
		t.Fatalf("position should keep 85, got %s", got)
	}
	if got := env.minted(addr); got.Cmp(big.NewInt(375_000)) != 0 {
		t.Fatalf("expected minted 375000, got %s", got)
	}
	// 2% of 25 x 5000.
	if got := env.debtOf(env.challenger); got.Cmp(big.NewInt(2_500)) != 0 {
		t.Fatalf("expected challenger reward 2500, got %s", got)
	}
	if got := env.collateralOf(env.challenger); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("challenger bond share should come back, got %s", got)
	}
	if got := env.debtOf(env.hub.Address()); got.Sign() != 0 {
		t.Fatalf("hub must not keep stable units, holds %s", got)
	}
	evts := env.recorder.OfType(events.TypeChallengeSucceeded)
	if len(evts) != 1 {
		t.Fatalf("expected one succeeded event, got %d", len(evts))
	}
	succeeded := evts[0].(events.ChallengeSucceeded)
	if succeeded.Repaid.Cmp(big.NewInt(125_000)) != 0 || succeeded.Bid.Cmp(big.NewInt(62_500)) != 0 {
		t.Fatalf("unexpected settlement: %+v", succeeded)
	}
}

func TestPeriodBoundaryIsConfigurable(t *testing.T) {
	for _, avert := range []bool{false, true} {
		env := newHubEnv(t)
		params := testParams()
		params.AvertAtPeriodBoundary = avert
		env.hub.SetParams(params)
		addr := env.openMinted()
		index := env.challenge(addr, 100)
		env.now += period
		env.fundDebt(env.bidder, 1_000_000)
		if err := env.hub.Bid(env.bidder, index, big.NewInt(10), false); err != nil {
			t.Fatalf("bid: %v", err)
		}
		averted := len(env.recorder.OfType(events.TypeChallengeAverted))
		succeeded := len(env.recorder.OfType(events.TypeChallengeSucceeded))
		if avert && (averted != 1 || succeeded != 0) {
			t.Fatalf("boundary bid should avert, got %d averted %d succeeded", averted, succeeded)
		}
		if !avert && (averted != 0 || succeeded != 1) {
			t.Fatalf("boundary bid should succeed, got %d averted %d succeeded", averted, succeeded)
		}
	}
}

func TestChallengeSizeOnlyShrinks(t *testing.T) {
	env := newHubEnv(t)
	addr := env.openMinted()
	index := env.challenge(addr, 100)
	env.fundDebt(env.bidder, 1_000_000)

	if err := env.hub.Bid(env.bidder, index, big.NewInt(101), false); !errors.Is(err, ErrBidTooLarge) {
		t.Fatalf("expected ErrBidTooLarge, got %v", err)
	}
	last := big.NewInt(100)
	for _, fill := range []int64{30, 30, 40} {
		if err := env.hub.Bid(env.bidder, index, big.NewInt(fill), false); err != nil {
			t.Fatalf("bid %d: %v", fill, err)
		}
		c, err := env.hub.ChallengeAt(index)
		if err != nil {
			t.Fatalf("challenge: %v", err)
		}
		if c.Size.Cmp(last) >= 0 {
			t.Fatalf("size did not shrink: %s -> %s", last, c.Size)
		}
		last = c.Size
	}
	c, _ := env.hub.ChallengeAt(index)
	if !c.Retired() || c.Initial.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected retired slot with initial size kept, got %+v", c)
	}
	if _, err := env.hub.Price(index); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	if err := env.hub.Bid(env.bidder, index, big.NewInt(1), false); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
	open, err := env.hub.Challenges(addr)
	if err != nil || len(open) != 0 {
		t.Fatalf("expected no open challenges, got %d %v", len(open), err)
	}
	if next := env.challenge(addr, 100); next != index+1 {
		t.Fatalf("indices must not be reused, got %d", next)
	}
}

func TestSelfBidPostponesReturn(t *testing.T) {
	env := newHubEnv(t)
	addr := env.openMinted()
	index := env.challenge(addr, 100)

	env.now += 2 * period
	if err := env.hub.Bid(env.challenger, index, big.NewInt(100), true); err != nil {
		t.Fatalf("self bid: %v", err)
	}
	if got := env.minted(addr); got.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("self bid must avert, minted %s", got)
	}
	pending, err := env.hub.PendingReturns(testCollateral, env.challenger)
	if err != nil || pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 pending, got %v %v", pending, err)
	}
	if got := env.collateralOf(env.challenger); got.Sign() != 0 {
		t.Fatalf("postponed collateral must stay at the hub, challenger holds %s", got)
	}
	claimed, err := env.hub.ReturnPostponedCollateral(env.challenger, testCollateral, env.challenger)
	if err != nil || claimed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected 100 claimed, got %v %v", claimed, err)
	}
	if got := env.collateralOf(env.challenger); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected bond back, got %s", got)
	}
	claimed, err = env.hub.ReturnPostponedCollateral(env.challenger, testCollateral, env.challenger)
	if err != nil || claimed.Sign() != 0 {
		t.Fatalf("second claim should be empty, got %v %v", claimed, err)
	}
}

func TestChallengeRejectsStalePrice(t *testing.T) {
	env := newHubEnv(t)
	addr := env.openMinted()
	env.fund(env.challenger, 100)
	if _, err := env.hub.Challenge(env.challenger, addr, big.NewInt(100), price(4000)); !errors.Is(err, position.ErrUnexpectedPrice) {
		t.Fatalf("expected ErrUnexpectedPrice, got %v", err)
	}
	if got := env.collateralOf(env.challenger); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed challenge must keep the bond with the challenger, got %s", got)
	}
	if count, _ := env.hub.ChallengeCount(); count != 0 {
		t.Fatalf("failed challenge must not take an index")
	}
}
