package mintinghub

import (
	"math/big"

	"cdpchain/core/events"
	"cdpchain/crypto"
	"cdpchain/native/common"
	"cdpchain/native/position"
)

// ExpiredPrice is the asking price for collateral of a position that expired
// elapsed seconds ago. It starts at factor times the liquidation price, falls
// to the liquidation price over the second period and reaches zero at the end
// of the third.
func ExpiredPrice(liqPrice *big.Int, period, elapsed, factor uint64) *big.Int {
	if liqPrice == nil {
		return big.NewInt(0)
	}
	if factor < 1 {
		factor = 1
	}
	p := new(big.Int).SetUint64(period)
	switch {
	case elapsed < period:
		return new(big.Int).Mul(liqPrice, new(big.Int).SetUint64(factor))
	case elapsed < 2*period:
		top := new(big.Int).Mul(liqPrice, new(big.Int).SetUint64(factor))
		spread := new(big.Int).Mul(liqPrice, new(big.Int).SetUint64(factor-1))
		drop := common.MulDiv(spread, new(big.Int).SetUint64(elapsed-period), p)
		return top.Sub(top, drop)
	case elapsed < 3*period:
		return common.MulDiv(liqPrice, new(big.Int).SetUint64(3*period-elapsed), p)
	default:
		return big.NewInt(0)
	}
}

// ExpiredPurchasePrice returns the current per-unit price of an expired
// position's collateral.
func (h *Hub) ExpiredPurchasePrice(addr crypto.Address) (*big.Int, error) {
	pos, err := h.positionOf(addr)
	if err != nil {
		return nil, err
	}
	return h.expiredPrice(pos)
}

func (h *Hub) expiredPrice(pos *position.Position) (*big.Int, error) {
	now := h.now()
	if !pos.IsExpired(now) {
		return nil, position.ErrNotExpired
	}
	return ExpiredPrice(pos.Price, pos.ChallengePeriod, now-pos.Expiration, h.params.ExpiredPriceFactor), nil
}

// BuyExpiredCollateral sells up to upTo units of an expired position's
// collateral to caller at the expired price. Proceeds repay the written-off
// debt; a shortfall is covered by the reserve and a surplus goes to the
// owner. The amount actually bought is returned.
func (h *Hub) BuyExpiredCollateral(caller, addr crypto.Address, upTo *big.Int) (*big.Int, error) {
	if upTo == nil || upTo.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	var bought *big.Int
	err := h.mutate(func() error {
		pos, err := h.positions.Get(addr)
		if err != nil {
			return err
		}
		price, err := h.expiredPrice(pos)
		if err != nil {
			return err
		}
		result, err := h.positions.ForceSale(h.address, addr, caller, upTo)
		if err != nil {
			return err
		}
		proceeds := common.Value(result.Amount, price)
		if err := h.debt.Transfer(caller, h.address, proceeds); err != nil {
			return err
		}
		switch proceeds.Cmp(result.WrittenOff) {
		case 1:
			surplus := new(big.Int).Sub(proceeds, result.WrittenOff)
			if err := h.debt.Transfer(h.address, result.Owner, surplus); err != nil {
				return err
			}
		case -1:
			if err := h.debt.CoverLoss(h.address, new(big.Int).Sub(result.WrittenOff, proceeds)); err != nil {
				return err
			}
		}
		if result.WrittenOff.Sign() > 0 {
			if err := h.debt.BurnWithoutReserve(h.address, result.WrittenOff, result.ReservePPM); err != nil {
				return err
			}
		}
		bought = common.Copy(result.Amount)
		h.emitter.Emit(events.ForcedSale{
			Position:   addr,
			Buyer:      caller,
			Amount:     common.Copy(result.Amount),
			Price:      price,
			Proceeds:   proceeds,
			WrittenOff: common.Copy(result.WrittenOff),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}
