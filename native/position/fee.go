package position

import (
	"math/big"

	"cdpchain/native/common"
)

var (
	ppmScale       = big.NewInt(int64(common.PPM))
	secondsPerYear = big.NewInt(SecondsPerYear)
)

// feePPM is (riskPremium + baseRate) × elapsed / year, measured from Start and
// capped so fee plus reserve never exceeds the minted amount.
func feePPM(pos *Position, baseRatePPM uint32, now uint64) uint32 {
	if now <= pos.Start {
		return 0
	}
	ceiling := uint64(common.PPM) - uint64(min(pos.ReservePPM, common.PPM))
	rate := new(big.Int).SetUint64(uint64(pos.RiskPremiumPPM) + uint64(baseRatePPM))
	fee := rate.Mul(rate, new(big.Int).SetUint64(now-pos.Start))
	fee.Quo(fee, secondsPerYear)
	if !fee.IsUint64() || fee.Uint64() > ceiling {
		return uint32(ceiling)
	}
	return uint32(fee.Uint64())
}

// usableMint mirrors the debt ledger's split: the owner receives the amount
// minus the floored fee and the floored reserve share.
func usableMint(amount *big.Int, reservePPM, fee uint32) *big.Int {
	out := common.Copy(amount)
	out.Sub(out, common.MulPPM(amount, reservePPM))
	out.Sub(out, common.MulPPM(amount, fee))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// mintAmountFor is the smallest amount whose usable part covers usable.
func mintAmountFor(usable *big.Int, reservePPM, fee uint32) *big.Int {
	if usable == nil || usable.Sign() <= 0 {
		return big.NewInt(0)
	}
	kept := int64(common.PPM) - int64(reservePPM) - int64(fee)
	if kept <= 0 {
		return big.NewInt(0)
	}
	return common.MulDivCeil(usable, ppmScale, big.NewInt(kept))
}

// RepaymentAmount is the payment that clears minted entirely once the
// reserve share is released: minted − ⌊minted × r / 1e6⌋.
func RepaymentAmount(minted *big.Int, reservePPM uint32) *big.Int {
	return new(big.Int).Sub(common.Copy(minted), common.MulPPM(minted, reservePPM))
}

// debtCleared converts a repayment into the debt it extinguishes. Paying the
// exact RepaymentAmount always clears everything; smaller payments clear the
// rounded-up gross amount.
func debtCleared(minted, amount *big.Int, reservePPM uint32) (*big.Int, error) {
	maxPayment := RepaymentAmount(minted, reservePPM)
	if amount.Cmp(maxPayment) > 0 {
		return nil, &RepaidTooMuchError{Excess: repaymentExcess(minted, amount, reservePPM)}
	}
	if amount.Cmp(maxPayment) == 0 {
		return common.Copy(minted), nil
	}
	kept := int64(common.PPM) - int64(reservePPM)
	gross := common.MulDivCeil(amount, ppmScale, big.NewInt(kept))
	return common.Min(gross, minted), nil
}

func repaymentExcess(minted, amount *big.Int, reservePPM uint32) *big.Int {
	if reservePPM >= common.PPM {
		return common.Copy(amount)
	}
	kept := int64(common.PPM) - int64(reservePPM)
	gross := common.MulDivCeil(amount, ppmScale, big.NewInt(kept))
	excess := common.SubFloor(gross, minted)
	if excess.Sign() == 0 {
		return common.SubFloor(amount, RepaymentAmount(minted, reservePPM))
	}
	return excess
}
