package common

import "math/big"

const (
	// PPM is the parts-per-million scale shared by every rate.
	PPM uint32 = 1_000_000
)

var (
	ppmScale = big.NewInt(int64(PPM))
	// One is the 18-decimal fixed point unit prices are expressed in.
	One = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Copy returns a fresh copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// MulPPM returns floor(amount × ppm / 1e6).
func MulPPM(amount *big.Int, ppm uint32) *big.Int {
	if amount == nil || ppm == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(ppm)))
	return out.Quo(out, ppmScale)
}

// MulDiv returns floor(a × b / d). A zero divisor yields zero.
func MulDiv(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, d)
}

// MulDivCeil returns ceil(a × b / d) for non-negative operands.
func MulDivCeil(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(num, d, new(big.Int))
	if rem.Sign() > 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// Value converts a collateral amount into debt units at an 18-decimal price.
func Value(collateral, price *big.Int) *big.Int {
	return MulDiv(collateral, price, One)
}

// Min returns a copy of the smaller operand.
func Min(a, b *big.Int) *big.Int {
	if Copy(a).Cmp(Copy(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

// SubFloor returns max(0, a − b).
func SubFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(Copy(a), Copy(b))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}
