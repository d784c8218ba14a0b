package value

import (
	"fmt"
	"math/big"
	"strings"
)

// Dec is an arbitrary-precision fixed-scale decimal: Unscaled * 10^-Scale.
// It is kept deliberately small (no ecosystem decimal library is exercised
// anywhere in the example pack) rather than reaching for a borrowed
// approximation like float64 or an unscaled big.Rat, either of which would
// silently violate the engine's precision/scale contract.
type Dec struct {
	Unscaled *big.Int
	Scale    uint32
}

func DecZero() Dec { return Dec{Unscaled: big.NewInt(0), Scale: 0} }

func DecFromInt64(n int64) Dec {
	return Dec{Unscaled: big.NewInt(n), Scale: 0}
}

func DecFromBigIntScale(n *big.Int, scale uint32) Dec {
	return Dec{Unscaled: new(big.Int).Set(n), Scale: scale}
}

// ParseDec parses a decimal literal such as "-12.340" or "7".
func ParseDec(token string) (Dec, error) {
	s := strings.TrimSpace(token)
	if s == "" {
		return Dec{}, fmt.Errorf("empty decimal literal")
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return Dec{}, fmt.Errorf("invalid decimal literal")
	}
	if intPart == "" {
		intPart = "0"
	}
	digits := intPart
	scale := 0
	if hasFrac {
		digits += fracPart
		scale = len(fracPart)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Dec{}, fmt.Errorf("invalid decimal literal")
		}
	}
	unscaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Dec{}, fmt.Errorf("invalid decimal literal")
	}
	if neg {
		unscaled.Neg(unscaled)
	}
	return Dec{Unscaled: unscaled, Scale: uint32(scale)}, nil
}

// Normalize strips trailing zero digits from the fractional part, matching
// rust_decimal's normalize() used for on-disk and display canonicalization.
func (d Dec) Normalize() Dec {
	if d.Scale == 0 {
		return d
	}
	ten := big.NewInt(10)
	unscaled := new(big.Int).Set(d.Unscaled)
	scale := d.Scale
	for scale > 0 {
		q, r := new(big.Int).QuoRem(unscaled, ten, new(big.Int))
		if r.Sign() != 0 {
			break
		}
		unscaled = q
		scale--
	}
	return Dec{Unscaled: unscaled, Scale: scale}
}

func (d Dec) String() string {
	n := d.Normalize()
	if n.Scale == 0 {
		return n.Unscaled.String()
	}
	neg := n.Unscaled.Sign() < 0
	digits := new(big.Int).Abs(n.Unscaled).String()
	for len(digits) <= int(n.Scale) {
		digits = "0" + digits
	}
	cut := len(digits) - int(n.Scale)
	out := digits[:cut] + "." + digits[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// rescaled returns unscaled values for a and b aligned to the same scale.
func rescaled(a, b Dec) (*big.Int, *big.Int, uint32) {
	scale := a.Scale
	if b.Scale > scale {
		scale = b.Scale
	}
	ten := big.NewInt(10)
	av := new(big.Int).Set(a.Unscaled)
	bv := new(big.Int).Set(b.Unscaled)
	if d := scale - a.Scale; d > 0 {
		av.Mul(av, new(big.Int).Exp(ten, big.NewInt(int64(d)), nil))
	}
	if d := scale - b.Scale; d > 0 {
		bv.Mul(bv, new(big.Int).Exp(ten, big.NewInt(int64(d)), nil))
	}
	return av, bv, scale
}

func (d Dec) Cmp(o Dec) int {
	av, bv, _ := rescaled(d, o)
	return av.Cmp(bv)
}

func (d Dec) Add(o Dec) Dec {
	av, bv, scale := rescaled(d, o)
	return Dec{Unscaled: new(big.Int).Add(av, bv), Scale: scale}
}

// DivCount divides by a positive integer count, extending the result to at
// least minScale fractional digits (used by AVG).
func (d Dec) DivCount(count int64, minScale uint32) Dec {
	scale := d.Scale
	if scale < minScale {
		scale = minScale
	}
	ten := big.NewInt(10)
	numerator := new(big.Int).Set(d.Unscaled)
	if extra := scale - d.Scale; extra > 0 {
		numerator.Mul(numerator, new(big.Int).Exp(ten, big.NewInt(int64(extra)), nil))
	}
	q := new(big.Int).Div(numerator, big.NewInt(count))
	return Dec{Unscaled: q, Scale: scale}
}

func (d Dec) Abs() Dec {
	return Dec{Unscaled: new(big.Int).Abs(d.Unscaled), Scale: d.Scale}
}

// ValidateBounds checks the decimal fits within the column's declared
// precision and scale, mirroring the original's validate_decimal_bounds.
func (d Dec) ValidateBounds(precision, scale uint32) error {
	n := d.Normalize()
	if n.Scale > scale {
		return fmt.Errorf("decimal scale %d exceeds allowed scale %d", n.Scale, scale)
	}
	digits := uint32(len(n.Abs().Unscaled.String()))
	if n.Unscaled.Sign() == 0 {
		digits = 1
	}
	if digits > precision {
		return fmt.Errorf("decimal precision %d exceeds allowed precision %d", digits, precision)
	}
	return nil
}
