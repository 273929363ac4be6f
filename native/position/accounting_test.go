package position

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/core/events"
	"cdpchain/crypto"
)

func TestMintAfterCooldownChargesElapsedFee(t *testing.T) {
	env := newTestEnv(t)
	env.engine.SetRateSource(StaticRate(5_000))
	addr := env.open(defaultOpts())

	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(10_000)); !errors.Is(err, ErrHot) {
		t.Fatalf("expected ErrHot during the initial cooldown, got %v", err)
	}

	pos := env.position(addr)
	env.now = pos.Start + 30*day
	fee, err := env.engine.CalculateCurrentFee(addr)
	if err != nil {
		t.Fatalf("fee: %v", err)
	}
	want := uint32((uint64(pos.RiskPremiumPPM) + 5_000) * (30 * day) / SecondsPerYear)
	if fee != want {
		t.Fatalf("fee = %d, want %d", fee, want)
	}

	usable, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(10_000))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	expected := int64(10_000) - 1_000 - int64(10_000)*int64(want)/1_000_000
	if usable.Int64() != expected || env.debtBalance(env.owner).Int64() != expected {
		t.Fatalf("usable = %s, want %d", usable, expected)
	}
	preview, _ := env.engine.UsableMint(addr, big.NewInt(10_000))
	if preview.Int64() != expected {
		t.Fatalf("UsableMint preview %s != %d", preview, expected)
	}
	if minted, _ := env.engine.Minted(addr); minted.Int64() != 10_000 {
		t.Fatalf("unexpected minted %s", minted)
	}
	env.requireBacked(addr)
	if len(env.recorder.OfType(events.TypeMintingUpdate)) == 0 {
		t.Fatalf("expected a minting update event")
	}
}

func TestFeeIsMonotoneInElapsedTime(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	pos := env.position(addr)

	env.now = pos.Start - 1
	if fee, _ := env.engine.CalculateCurrentFee(addr); fee != 0 {
		t.Fatalf("fee before start must be zero, got %d", fee)
	}
	var last uint32
	for _, offset := range []uint64{0, day, 30 * day, 365 * day, 1000 * 365 * day} {
		env.now = pos.Start + offset
		fee, _ := env.engine.CalculateCurrentFee(addr)
		if fee < last {
			t.Fatalf("fee decreased at offset %d: %d < %d", offset, fee, last)
		}
		last = fee
	}
	if last != 1_000_000-pos.ReservePPM {
		t.Fatalf("fee must be capped at the non-reserve share, got %d", last)
	}
}

func TestMintGuards(t *testing.T) {
	env := newTestEnv(t)
	opts := defaultOpts()
	opts.limit = 600_000
	addr := env.open(opts)
	env.warpPastCooldown(addr)
	stranger := crypto.DeriveAddress([]byte("stranger"))

	if _, err := env.engine.Mint(stranger, addr, stranger, big.NewInt(1)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	_, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(600_001))
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) || !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected LimitExceededError, got %v", err)
	}
	if limitErr.Tried.Int64() != 600_001 || limitErr.Available.Int64() != 600_000 {
		t.Fatalf("unexpected context %+v", limitErr)
	}

	// 110 collateral at 5000 backs at most 550,000.
	_, err = env.engine.Mint(env.owner, addr, env.owner, big.NewInt(550_001))
	var collErr *InsufficientCollateralError
	if !errors.As(err, &collErr) {
		t.Fatalf("expected InsufficientCollateralError, got %v", err)
	}
	if collErr.Needed.Int64() != 550_001 || collErr.Available.Int64() != 550_000 {
		t.Fatalf("unexpected context %+v", collErr)
	}
	if minted, _ := env.engine.Minted(addr); minted.Sign() != 0 {
		t.Fatalf("failed mint must not change minted")
	}

	if err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(100), price(5000)); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrChallenged) {
		t.Fatalf("expected ErrChallenged, got %v", err)
	}
	if err := env.engine.NotifyChallengeAverted(env.hub, addr, big.NewInt(100)); err != nil {
		t.Fatalf("avert: %v", err)
	}

	env.now = env.position(addr).Expiration
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRepayClearsWithReserveRelease(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	env.fundDebt(env.owner, 1_000)

	_, err := env.engine.Repay(env.owner, addr, big.NewInt(9_001))
	var tooMuch *RepaidTooMuchError
	if !errors.As(err, &tooMuch) || !errors.Is(err, ErrRepaidTooMuch) {
		t.Fatalf("expected RepaidTooMuchError, got %v", err)
	}
	if tooMuch.Excess.Int64() != 2 {
		t.Fatalf("unexpected excess %s", tooMuch.Excess)
	}

	cleared, err := env.engine.Repay(env.owner, addr, big.NewInt(9_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if cleared.Int64() != 10_000 {
		t.Fatalf("expected full clearance, got %s", cleared)
	}
	if minted, _ := env.engine.Minted(addr); minted.Sign() != 0 {
		t.Fatalf("minted must be zero, got %s", minted)
	}
	reserve, _ := env.debt.MinterReserve()
	if reserve.Sign() != 0 {
		t.Fatalf("reserve share must be released, got %s", reserve)
	}
	fam, _ := env.engine.Family(addr)
	if fam.TotalMinted.Sign() != 0 {
		t.Fatalf("pool must be restored, got %s", fam.TotalMinted)
	}
}

func TestPartialRepayUsesGrossAmount(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	cleared, err := env.engine.Repay(env.owner, addr, big.NewInt(4_500))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if cleared.Int64() != 5_000 {
		t.Fatalf("paying 4,500 at 10%% reserve clears 5,000, got %s", cleared)
	}
	if cleared, _ := env.engine.Repay(env.owner, addr, big.NewInt(0)); cleared.Sign() != 0 {
		t.Fatalf("zero repayment must be a no-op")
	}
	if remaining, _ := env.engine.RepaymentAmount(addr); remaining.Int64() != 4_500 {
		t.Fatalf("unexpected remaining repayment %s", remaining)
	}
}

func TestRepaymentAmountClearsForAnyReserveRate(t *testing.T) {
	for _, r := range []uint32{0, 1, 77_777, 100_000, 333_333, 500_000, 999_999, 1_000_000} {
		env := newTestEnv(t)
		opts := defaultOpts()
		opts.reservePPM = r
		addr := env.open(opts)
		env.warpPastCooldown(addr)
		for _, amount := range []int64{10_000, 7, 1} {
			if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(amount)); err != nil {
				t.Fatalf("r=%d mint %d: %v", r, amount, err)
			}
		}
		env.fundDebt(env.owner, 20_000)
		repay, err := env.engine.RepaymentAmount(addr)
		if err != nil {
			t.Fatalf("repayment amount: %v", err)
		}
		if _, err := env.engine.Repay(env.owner, addr, repay); err != nil {
			t.Fatalf("r=%d repay %s: %v", r, repay, err)
		}
		if minted, _ := env.engine.Minted(addr); minted.Sign() != 0 {
			t.Fatalf("r=%d: minted %s after repaying %s", r, minted, repay)
		}
	}
}

func TestAdjustPriceRules(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(500_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// 110 × 4000 = 440,000 < 500,000.
	if err := env.engine.AdjustPrice(env.owner, addr, price(4000)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	// 100 × 20,000 = 2,000,000 > 500,000 + 500,000 capacity.
	if err := env.engine.AdjustPrice(env.owner, addr, price(20_000)); !errors.Is(err, ErrPriceTooHigh) {
		t.Fatalf("expected ErrPriceTooHigh, got %v", err)
	}
	if err := env.engine.AdjustPrice(crypto.DeriveAddress([]byte("x")), addr, price(6000)); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := env.engine.AdjustPrice(env.owner, addr, price(6000)); err != nil {
		t.Fatalf("raise price: %v", err)
	}
	pos := env.position(addr)
	if pos.Cooldown != env.now+env.engine.Params().PriceIncreaseCooldown {
		t.Fatalf("raising the price must re-arm the cooldown")
	}
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrHot) {
		t.Fatalf("expected ErrHot after a price increase, got %v", err)
	}

	if err := env.engine.AdjustPrice(env.owner, addr, price(5000)); err != nil {
		t.Fatalf("lower price: %v", err)
	}
	if env.position(addr).Cooldown != pos.Cooldown {
		t.Fatalf("lowering the price must not touch the cooldown")
	}
	env.requireBacked(addr)
}

func TestWithdrawCollateralRules(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())

	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrHot) {
		t.Fatalf("expected ErrHot, got %v", err)
	}
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(500_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	// Leaving 105 backs only 525,000 and stays above the minimum.
	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(5)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	env.requireBacked(addr)
	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(6)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}

	env.fundDebt(env.owner, 100_000)
	repay, _ := env.engine.RepaymentAmount(addr)
	if _, err := env.engine.Repay(env.owner, addr, repay); err != nil {
		t.Fatalf("repay: %v", err)
	}
	// 104 left would be fine, 50 is dust below the minimum.
	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(55)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected dust rejection, got %v", err)
	}
	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(105)); err != nil {
		t.Fatalf("withdraw all: %v", err)
	}
	if closed, _ := env.engine.IsClosed(addr); !closed {
		t.Fatalf("position with no collateral and no debt is closed")
	}
	if env.collateralOf(env.owner).Int64() != 110 {
		t.Fatalf("owner must hold all collateral")
	}
}

func TestWithdrawRescuesOtherAssets(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	env.fundDebt(addr, 42)

	if err := env.engine.Withdraw(env.owner, addr, testDebt, env.owner, big.NewInt(42)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if env.debtBalance(env.owner).Int64() != 42 {
		t.Fatalf("rescued asset must reach the owner")
	}
	if err := env.engine.Withdraw(env.owner, addr, testCollateral, env.owner, big.NewInt(50)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("collateral withdrawal rules apply, got %v", err)
	}
}

type stubGovernance struct {
	qualified map[crypto.Address]bool
}

func (g stubGovernance) CheckQualified(sender crypto.Address, _ []crypto.Address) error {
	if g.qualified[sender] {
		return nil
	}
	return errors.New("not enough votes")
}

func TestDenyDuringInitialCooldown(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	objector := crypto.DeriveAddress([]byte("objector"))

	if err := env.engine.Deny(objector, addr, nil, "too risky"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner without governance, got %v", err)
	}
	env.engine.SetGovernance(stubGovernance{qualified: map[crypto.Address]bool{}})
	if err := env.engine.Deny(objector, addr, nil, "too risky"); !errors.Is(err, ErrNotQualified) {
		t.Fatalf("expected ErrNotQualified, got %v", err)
	}
	env.engine.SetGovernance(stubGovernance{qualified: map[crypto.Address]bool{objector: true}})
	if err := env.engine.Deny(objector, addr, nil, "too risky"); err != nil {
		t.Fatalf("deny: %v", err)
	}
	pos := env.position(addr)
	if !pos.Denied || pos.Cooldown != pos.Expiration {
		t.Fatalf("denied position must be blocked until expiration")
	}
	if len(env.recorder.OfType(events.TypePositionDenied)) != 1 {
		t.Fatalf("expected a denied event")
	}

	env.now = pos.Start
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(1)); !errors.Is(err, ErrHot) {
		t.Fatalf("denied position can not mint, got %v", err)
	}
	if err := env.engine.WithdrawCollateral(env.owner, addr, env.owner, big.NewInt(110)); err != nil {
		t.Fatalf("denied position must release collateral: %v", err)
	}
}

func TestDenyTooLateAfterStart(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.now = env.position(addr).Start
	if err := env.engine.Deny(env.owner, addr, nil, ""); !errors.Is(err, ErrTooLate) {
		t.Fatalf("expected ErrTooLate, got %v", err)
	}
}

func TestAdjustAppliesStepsAtomically(t *testing.T) {
	env := newTestEnv(t)
	opts := defaultOpts()
	opts.collateral = 2
	opts.minimum = 1
	addr := env.open(opts)
	env.warpPastCooldown(addr)
	env.fund(env.owner, 10)

	// Minting 20,000 first would fail: two units back only 10,000.
	if err := env.engine.Adjust(env.owner, addr, big.NewInt(20_000), big.NewInt(4), price(5000)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if env.collateralOf(addr).Int64() != 4 {
		t.Fatalf("collateral not topped up")
	}
	if minted, _ := env.engine.Minted(addr); minted.Int64() != 20_000 {
		t.Fatalf("unexpected minted %s", minted)
	}

	// Asking for more debt than the final collateral backs undoes every step.
	err := env.engine.Adjust(env.owner, addr, big.NewInt(40_000), big.NewInt(6), price(5000))
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if env.collateralOf(addr).Int64() != 4 || env.collateralOf(env.owner).Int64() != 8 {
		t.Fatalf("failed adjust must not move collateral")
	}

	env.fundDebt(env.owner, 10_000)
	if err := env.engine.Adjust(env.owner, addr, big.NewInt(5_000), big.NewInt(2), price(5000)); err != nil {
		t.Fatalf("adjust down: %v", err)
	}
	if minted, _ := env.engine.Minted(addr); minted.Int64() != 5_000 {
		t.Fatalf("unexpected minted %s", minted)
	}
	env.requireBacked(addr)
}
