package challenge

import (
	"math"
	"math/big"
)

// PRNG advances the generator once from seed and maps the result into
// (-1, 1). The modulo is floor-style: its result takes the sign of the
// modulus. When every seed is integral the intermediate value is computed
// exactly, so products beyond 2^53 do not lose precision before the final
// division. A zero modulus yields NaN.
func PRNG(seed int32, s Seeds) float64 {
	if s.Modulus == 0 {
		return math.NaN()
	}
	if isIntegral(s.Multiplier) && isIntegral(s.Addend) && isIntegral(s.Modulus) {
		return prngExact(int64(seed), int64(s.Multiplier), int64(s.Addend), int64(s.Modulus))
	}

	a := float64(seed)*s.Multiplier + s.Addend
	r := floorMod(a, s.Modulus)
	if a < 0 {
		return (r - s.Modulus) / s.Modulus
	}
	return r / s.Modulus
}

func prngExact(seed, multiplier, addend, modulus int64) float64 {
	m := big.NewInt(modulus)
	a := new(big.Int).Mul(big.NewInt(seed), big.NewInt(multiplier))
	a.Add(a, big.NewInt(addend))

	r := new(big.Int).Rem(a, m)
	if r.Sign() != 0 && (r.Sign() < 0) != (m.Sign() < 0) {
		r.Add(r, m)
	}
	if a.Sign() < 0 {
		r.Sub(r, m)
	}

	f, _ := new(big.Rat).SetFrac(r, m).Float64()
	return f
}

func floorMod(a, m float64) float64 {
	r := math.Mod(a, m)
	if r == 0 {
		return math.Copysign(0, m)
	}
	if (r < 0) != (m < 0) {
		r += m
	}
	return r
}

func isIntegral(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f == math.Trunc(f) && math.Abs(f) < 1<<62
}
