package position

import (
	"errors"
	"math/big"
	"testing"

	"cdpchain/crypto"
)

func TestNotifyChallengeStartedValidation(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())

	err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(100), price(4999))
	var priceErr *UnexpectedPriceError
	if !errors.As(err, &priceErr) || priceErr.Actual.Cmp(price(5000)) != 0 {
		t.Fatalf("expected UnexpectedPriceError, got %v", err)
	}
	if err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(99), price(5000)); !errors.Is(err, ErrChallengeTooSmall) {
		t.Fatalf("expected ErrChallengeTooSmall, got %v", err)
	}
	if err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(100), price(5000)); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(100), price(5000)); !errors.Is(err, ErrChallengeExceedsCollateral) {
		t.Fatalf("expected ErrChallengeExceedsCollateral, got %v", err)
	}
	if err := env.engine.AdjustPrice(env.owner, addr, price(4000)); !errors.Is(err, ErrChallenged) {
		t.Fatalf("price changes are blocked while challenged, got %v", err)
	}
}

func TestChallengeSucceededWritesDownDebt(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(500_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := env.engine.NotifyChallengeStarted(env.hub, addr, big.NewInt(100), price(5000)); err != nil {
		t.Fatalf("challenge: %v", err)
	}
	bidder := crypto.DeriveAddress([]byte("bidder"))
	settlement, err := env.engine.NotifyChallengeSucceeded(env.hub, addr, bidder, big.NewInt(40))
	if err != nil {
		t.Fatalf("succeeded: %v", err)
	}
	if settlement.Repaid.Int64() != 200_000 || settlement.BadDebt.Sign() != 0 || settlement.Remaining.Int64() != 70 {
		t.Fatalf("unexpected settlement %+v", settlement)
	}
	pos := env.position(addr)
	if pos.Minted.Int64() != 300_000 || pos.ChallengedAmount.Int64() != 60 {
		t.Fatalf("unexpected position after fill: minted=%s challenged=%s", pos.Minted, pos.ChallengedAmount)
	}
	if env.collateralOf(bidder).Int64() != 40 {
		t.Fatalf("bidder must receive the position's collateral")
	}
	if pos.Cooldown != env.now+env.engine.Params().SucceededCooldown {
		t.Fatalf("a liquidation re-arms the cooldown")
	}
	env.requireBacked(addr)

	// Selling the remaining bond repays at most the outstanding debt.
	settlement, err = env.engine.NotifyChallengeSucceeded(env.hub, addr, bidder, big.NewInt(60))
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if settlement.Repaid.Int64() != 300_000 {
		t.Fatalf("repayment capped at minted, got %s", settlement.Repaid)
	}
	if fam, _ := env.engine.Family(addr); fam.TotalMinted.Sign() != 0 {
		t.Fatalf("written down debt returns to the pool")
	}
}

func TestForceSaleWritesDownProportionally(t *testing.T) {
	env := newTestEnv(t)
	addr := env.open(defaultOpts())
	env.warpPastCooldown(addr)
	if _, err := env.engine.Mint(env.owner, addr, env.owner, big.NewInt(110_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	buyer := crypto.DeriveAddress([]byte("buyer"))
	if _, err := env.engine.ForceSale(env.hub, addr, buyer, big.NewInt(10)); !errors.Is(err, ErrNotExpired) {
		t.Fatalf("expected ErrNotExpired, got %v", err)
	}
	env.now = env.position(addr).Expiration

	result, err := env.engine.ForceSale(env.hub, addr, buyer, big.NewInt(11))
	if err != nil {
		t.Fatalf("force sale: %v", err)
	}
	if result.WrittenOff.Int64() != 11_000 || result.Amount.Int64() != 11 {
		t.Fatalf("unexpected result %+v", result)
	}
	result, err = env.engine.ForceSale(env.hub, addr, buyer, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("capped force sale: %v", err)
	}
	if result.Amount.Int64() != 99 || result.WrittenOff.Int64() != 99_000 {
		t.Fatalf("purchase must be capped to the balance: %+v", result)
	}
	if closed, _ := env.engine.IsClosed(addr); !closed {
		t.Fatalf("selling everything closes the position")
	}
	if _, err := env.engine.ForceSale(env.hub, addr, buyer, big.NewInt(1)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
