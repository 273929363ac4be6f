package mintinghub

import (
	"math/big"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/position"
)

// ChallengePrice is the Dutch auction curve of a challenge. The liquidation
// price holds during the first period and then decays linearly to zero over
// the second. With avertAtBoundary the instant t == period still counts as
// the flat phase.
func ChallengePrice(liqPrice *big.Int, period, elapsed uint64, avertAtBoundary bool) *big.Int {
	if liqPrice == nil {
		return big.NewInt(0)
	}
	if inFlatPhase(period, elapsed, avertAtBoundary) {
		return new(big.Int).Set(liqPrice)
	}
	if elapsed >= 2*period {
		return big.NewInt(0)
	}
	left := new(big.Int).SetUint64(2*period - elapsed)
	return common.MulDiv(liqPrice, left, new(big.Int).SetUint64(period))
}

func inFlatPhase(period, elapsed uint64, avertAtBoundary bool) bool {
	if avertAtBoundary {
		return elapsed <= period
	}
	return elapsed < period
}

func (h *Hub) loadChallenge(index uint64) (*Challenge, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	c, ok, err := h.state.GetChallenge(index)
	if err != nil {
		return nil, err
	}
	if !ok || c.Retired() {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// Challenge bonds size units of the position's collateral from caller and
// opens a new auction. expectedPrice guards against a price change racing the
// challenge. The new challenge index is returned.
func (h *Hub) Challenge(caller, addr crypto.Address, size, expectedPrice *big.Int) (uint64, error) {
	if size == nil || size.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	var index uint64
	err := h.mutate(func() error {
		pos, err := h.positions.Get(addr)
		if err != nil {
			return err
		}
		if err := h.collateral.Transfer(pos.Collateral, caller, h.address, size); err != nil {
			return err
		}
		if err := h.positions.NotifyChallengeStarted(h.address, addr, size, expectedPrice); err != nil {
			return err
		}
		c := &Challenge{
			Challenger: caller,
			Position:   addr,
			Start:      h.now(),
			Size:       common.Copy(size),
			Initial:    common.Copy(size),
		}
		index, err = h.state.AppendChallenge(c)
		if err != nil {
			return err
		}
		h.emitter.Emit(events.ChallengeStarted{
			Index:      index,
			Challenger: caller,
			Position:   addr,
			Size:       common.Copy(size),
			Price:      common.Copy(pos.Price),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// Price returns the current auction price per collateral unit of a challenge.
func (h *Hub) Price(index uint64) (*big.Int, error) {
	if err := h.ready(); err != nil {
		return nil, err
	}
	c, err := h.loadChallenge(index)
	if err != nil {
		return nil, err
	}
	liq, period, err := h.positions.ChallengeData(c.Position)
	if err != nil {
		return nil, err
	}
	return ChallengePrice(liq, period, h.elapsed(c.Start), h.params.AvertAtPeriodBoundary), nil
}

func (h *Hub) elapsed(start uint64) uint64 {
	now := h.now()
	if now <= start {
		return 0
	}
	return now - start
}

// Bid fills size units of a challenge. During the flat phase, or when the
// challenger bids on their own challenge, the challenge is averted: the bidder
// buys the bond at the liquidation price. Afterwards the bid succeeds: the
// bidder buys the position's collateral at the auction price, the debt is
// repaid from the proceeds and the challenger receives the bond back plus a
// reward. With postpone the challenger's collateral is parked at the hub.
func (h *Hub) Bid(caller crypto.Address, index uint64, size *big.Int, postpone bool) error {
	if size == nil || size.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return h.mutate(func() error {
		c, err := h.loadChallenge(index)
		if err != nil {
			return err
		}
		if size.Cmp(c.Size) > 0 {
			return &BidTooLargeError{Tried: common.Copy(size), Available: common.Copy(c.Size)}
		}
		liq, period, err := h.positions.ChallengeData(c.Position)
		if err != nil {
			return err
		}
		elapsed := h.elapsed(c.Start)
		if caller == c.Challenger || inFlatPhase(period, elapsed, h.params.AvertAtPeriodBoundary) {
			return h.avert(caller, index, c, size, liq, postpone)
		}
		return h.succeed(caller, index, c, size, liq, ChallengePrice(liq, period, elapsed, h.params.AvertAtPeriodBoundary), postpone)
	})
}

func (h *Hub) avert(bidder crypto.Address, index uint64, c *Challenge, size, liq *big.Int, postpone bool) error {
	pos, err := h.positions.Get(c.Position)
	if err != nil {
		return err
	}
	selfBid := bidder == c.Challenger
	if !selfBid {
		if err := h.debt.Transfer(bidder, c.Challenger, common.Value(size, liq)); err != nil {
			return err
		}
	}
	if err := h.positions.NotifyChallengeAverted(h.address, c.Position, size); err != nil {
		return err
	}
	if selfBid {
		if err := h.returnCollateral(pos.Collateral, c.Challenger, size, postpone); err != nil {
			return err
		}
	} else if err := h.collateral.Transfer(pos.Collateral, h.address, bidder, size); err != nil {
		return err
	}
	c.Size = new(big.Int).Sub(c.Size, size)
	if err := h.state.PutChallenge(index, c); err != nil {
		return err
	}
	h.emitter.Emit(events.ChallengeAverted{
		Index:     index,
		Position:  c.Position,
		Bidder:    bidder,
		Size:      common.Copy(size),
		Price:     common.Copy(liq),
		Remaining: common.Copy(c.Size),
	})
	return nil
}

func (h *Hub) succeed(bidder crypto.Address, index uint64, c *Challenge, size, liq, price *big.Int, postpone bool) error {
	offer := common.Value(size, price)
	settlement, err := h.positions.NotifyChallengeSucceeded(h.address, c.Position, bidder, size)
	if err != nil {
		return err
	}
	reward := common.MulPPM(common.Value(size, liq), h.params.ChallengerRewardPPM)
	burn := new(big.Int).Add(settlement.Repaid, settlement.BadDebt)
	owed := new(big.Int).Add(burn, reward)
	if err := h.debt.Transfer(bidder, h.address, offer); err != nil {
		return err
	}
	switch offer.Cmp(owed) {
	case 1:
		if err := h.debt.CollectProfits(h.address, new(big.Int).Sub(offer, owed)); err != nil {
			return err
		}
	case -1:
		if err := h.debt.CoverLoss(h.address, new(big.Int).Sub(owed, offer)); err != nil {
			return err
		}
	}
	if burn.Sign() > 0 {
		if err := h.debt.BurnWithoutReserve(h.address, burn, settlement.ReservePPM); err != nil {
			return err
		}
	}
	if err := h.debt.Transfer(h.address, c.Challenger, reward); err != nil {
		return err
	}
	if err := h.returnCollateral(settlement.Collateral, c.Challenger, size, postpone); err != nil {
		return err
	}
	c.Size = new(big.Int).Sub(c.Size, size)
	if err := h.state.PutChallenge(index, c); err != nil {
		return err
	}
	h.emitter.Emit(events.ChallengeSucceeded{
		Index:     index,
		Position:  c.Position,
		Bidder:    bidder,
		Size:      common.Copy(size),
		Bid:       offer,
		Repaid:    common.Copy(settlement.Repaid),
		Reward:    reward,
		BadDebt:   common.Copy(settlement.BadDebt),
		Remaining: common.Copy(c.Size),
	})
	return nil
}

// ChallengeAt returns the stored record at index, including retired ones.
func (h *Hub) ChallengeAt(index uint64) (*Challenge, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	c, ok, err := h.state.GetChallenge(index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// Challenges lists every challenge against addr that still has an open bond.
func (h *Hub) Challenges(addr crypto.Address) (map[uint64]*Challenge, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	count, err := h.state.ChallengeCount()
	if err != nil {
		return nil, err
	}
	open := make(map[uint64]*Challenge)
	for i := uint64(0); i < count; i++ {
		c, ok, err := h.state.GetChallenge(i)
		if err != nil {
			return nil, err
		}
		if !ok || c.Retired() || (!addr.IsZero() && c.Position != addr) {
			continue
		}
		open[i] = c
	}
	return open, nil
}

func (h *Hub) ChallengeCount() (uint64, error) {
	if h == nil || h.state == nil {
		return 0, errNilState
	}
	return h.state.ChallengeCount()
}

// positionOf is used by the views that need the position's collateral.
func (h *Hub) positionOf(addr crypto.Address) (*position.Position, error) {
	if h.positions == nil {
		return nil, errNotWired
	}
	return h.positions.Get(addr)
}
