package lending

import "github.com/holiman/uint256"

// Fixed point scale. One unit is represented as WAD.
const (
	WAD           uint64 = 1_000_000_000_000_000_000
	HalfWAD       uint64 = WAD / 2
	PercentScaler uint64 = 10_000_000_000_000_000
)

// maxWadBits bounds every stored fixed point value to 128 bits. Intermediates
// are computed in 256 bits.
const maxWadBits = 128

var (
	wadInt     = uint256.NewInt(WAD)
	halfWadInt = uint256.NewInt(HalfWAD)
)

// Wad is an unsigned fixed point number scaled by 10^18. The zero value is
// zero. All arithmetic is checked and fails instead of wrapping.
type Wad struct {
	v uint256.Int
}

func newWad(raw *uint256.Int) (Wad, error) {
	if raw.BitLen() > maxWadBits {
		return Wad{}, ErrMathOverflow
	}
	var w Wad
	w.v.Set(raw)
	return w, nil
}

// WadFromU64 scales an integer amount into fixed point. A u64 times WAD always
// fits in 128 bits.
func WadFromU64(amount uint64) Wad {
	var w Wad
	w.v.Mul(uint256.NewInt(amount), wadInt)
	return w
}

// WadFromPercent converts a whole percent into fixed point, so 50 becomes 0.5.
func WadFromPercent(percent uint64) Wad {
	var w Wad
	w.v.Mul(uint256.NewInt(percent), uint256.NewInt(PercentScaler))
	return w
}

// WadFromRaw wraps an already scaled value.
func WadFromRaw(raw uint64) Wad {
	var w Wad
	w.v.SetUint64(raw)
	return w
}

func (a Wad) IsZero() bool { return a.v.IsZero() }

func (a Wad) Cmp(b Wad) int { return a.v.Cmp(&b.v) }

// String returns the scaled representation in decimal.
func (a Wad) String() string { return a.v.Dec() }

func (a Wad) Add(b Wad) (Wad, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(&a.v, &b.v); overflow {
		return Wad{}, ErrMathOverflow
	}
	return newWad(&out)
}

// Sub fails with ErrMathOverflow when b > a.
func (a Wad) Sub(b Wad) (Wad, error) {
	var out uint256.Int
	if _, underflow := out.SubOverflow(&a.v, &b.v); underflow {
		return Wad{}, ErrMathOverflow
	}
	return newWad(&out)
}

// Mul returns a*b/WAD.
func (a Wad) Mul(b Wad) (Wad, error) {
	var out uint256.Int
	if _, overflow := out.MulOverflow(&a.v, &b.v); overflow {
		return Wad{}, ErrMathOverflow
	}
	out.Div(&out, wadInt)
	return newWad(&out)
}

// Div returns a*WAD/b.
func (a Wad) Div(b Wad) (Wad, error) {
	if b.v.IsZero() {
		return Wad{}, ErrDivideByZero
	}
	var out uint256.Int
	if _, overflow := out.MulOverflow(&a.v, wadInt); overflow {
		return Wad{}, ErrMathOverflow
	}
	out.Div(&out, &b.v)
	return newWad(&out)
}

// MulU64 multiplies by a plain integer.
func (a Wad) MulU64(b uint64) (Wad, error) {
	var out uint256.Int
	if _, overflow := out.MulOverflow(&a.v, uint256.NewInt(b)); overflow {
		return Wad{}, ErrMathOverflow
	}
	return newWad(&out)
}

// FloorU64 truncates the fractional part.
func (a Wad) FloorU64() (uint64, error) {
	var out uint256.Int
	out.Div(&a.v, wadInt)
	if !out.IsUint64() {
		return 0, ErrMathOverflow
	}
	return out.Uint64(), nil
}

// RoundU64 rounds half up.
func (a Wad) RoundU64() (uint64, error) {
	var out uint256.Int
	if _, overflow := out.AddOverflow(&a.v, halfWadInt); overflow {
		return 0, ErrMathOverflow
	}
	out.Div(&out, wadInt)
	if !out.IsUint64() {
		return 0, ErrMathOverflow
	}
	return out.Uint64(), nil
}

// MulDiv computes floor(a*b/c) with a 256-bit intermediate. The product must
// fit in 128 bits and the quotient in 64 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}
	var product uint256.Int
	product.Mul(uint256.NewInt(a), uint256.NewInt(b))
	if product.BitLen() > maxWadBits {
		return 0, ErrMathOverflow
	}
	product.Div(&product, uint256.NewInt(c))
	if !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

// MulDivCeil is MulDiv rounded up.
func MulDivCeil(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivideByZero
	}
	var product, quo, rem uint256.Int
	product.Mul(uint256.NewInt(a), uint256.NewInt(b))
	if product.BitLen() > maxWadBits {
		return 0, ErrMathOverflow
	}
	divisor := uint256.NewInt(c)
	quo.DivMod(&product, divisor, &rem)
	if !rem.IsZero() {
		quo.AddUint64(&quo, 1)
	}
	if !quo.IsUint64() {
		return 0, ErrMathOverflow
	}
	return quo.Uint64(), nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrMathOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrMathOverflow
	}
	return a - b, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/b != a {
		return 0, ErrMathOverflow
	}
	return product, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
