package calculator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// MaxIterations bounds the stable-curve Newton solver.
const MaxIterations = 255

var (
	one         = uint256.NewInt(1)
	three       = uint256.NewInt(3)
	ten         = uint256.NewInt(10)
	oneE18      = uint256.NewInt(1_000_000_000_000_000_000)
	basisPoints = uint256.NewInt(10_000)

	// precomputed 10^dec for the decimals a uint64 amount can carry (0..19)
	precomputedPowers [20]*uint256.Int

	// ErrGetYFailed is returned when the Newton step has a zero derivative or leaves the domain.
	ErrGetYFailed = errors.New("get_y failed")
	// ErrZeroInputAmount is returned when a forward quote is asked for a zero input.
	ErrZeroInputAmount = errors.New("zero input amount")
	// ErrZeroOutputAmount is returned when a reverse quote is asked for a zero output.
	ErrZeroOutputAmount = errors.New("zero output amount")
	// ErrInsufficientReserves is returned when the requested output drains the reserve.
	ErrInsufficientReserves = errors.New("insufficient reserves")
	// ErrMathOverflow is returned when an intermediate value does not fit in 256 bits.
	ErrMathOverflow = errors.New("math overflow")
	// ErrDivisionByZero is returned for a zero denominator.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrInvalidFee is returned for a fee of 100% or more where that is not representable.
	ErrInvalidFee = errors.New("invalid fee")
	// ErrInvalidDecimals is returned when 10^decimals does not fit in 256 bits.
	ErrInvalidDecimals = errors.New("invalid decimals")
)

func init() {
	precomputedPowers[0] = uint256.NewInt(1)
	for i := 1; i < len(precomputedPowers); i++ {
		precomputedPowers[i] = new(uint256.Int).Mul(precomputedPowers[i-1], ten)
	}
}

// PowDecimals returns 10^dec. The returned value MUST NOT be modified.
func PowDecimals(dec uint8) (*uint256.Int, error) {
	if int(dec) < len(precomputedPowers) {
		return precomputedPowers[dec], nil
	}
	// 10^77 is the largest power of ten below 2^256
	if dec > 77 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDecimals, dec)
	}
	return new(uint256.Int).Exp(ten, uint256.NewInt(uint64(dec))), nil
}

// mulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

func mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

func add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// RoundingUpDivision returns ceil(n/d).
func RoundingUpDivision(n, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(n, d, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q, nil
}

// Adjust normalizes an amount with the given 10^decimals to 18-decimal fixed point.
func Adjust(amount, powDecimals *uint256.Int) (*uint256.Int, error) {
	return mulDiv(amount, oneE18, powDecimals)
}

// F evaluates the stable invariant x0*y^3 + x0^3*y in 18-decimal fixed point.
func F(x0, y *uint256.Int) (*uint256.Int, error) {
	y2, err := mulDiv(y, y, oneE18)
	if err != nil {
		return nil, err
	}
	y3, err := mulDiv(y2, y, oneE18)
	if err != nil {
		return nil, err
	}
	a, err := mul(x0, y3)
	if err != nil {
		return nil, err
	}
	x2, err := mulDiv(x0, x0, oneE18)
	if err != nil {
		return nil, err
	}
	x3, err := mulDiv(x2, x0, oneE18)
	if err != nil {
		return nil, err
	}
	b, err := mul(x3, y)
	if err != nil {
		return nil, err
	}
	return add(a, b)
}

// D is the Newton step denominator 3*x0*y^2 + x0^3, scaled like F.
func D(x0, y *uint256.Int) (*uint256.Int, error) {
	y2, err := mulDiv(y, y, oneE18)
	if err != nil {
		return nil, err
	}
	x03, err := mul(three, x0)
	if err != nil {
		return nil, err
	}
	a, err := mulDiv(x03, y2, oneE18)
	if err != nil {
		return nil, err
	}
	x2, err := mulDiv(x0, x0, oneE18)
	if err != nil {
		return nil, err
	}
	x3, err := mulDiv(x2, x0, oneE18)
	if err != nil {
		return nil, err
	}
	return add(a, x3)
}

// K returns the invariant of a pool with reserves x and y.
// For stable pools the reserves are normalized first and k = x*y*(x^2+y^2).
func K(stable bool, x, y, powX, powY *uint256.Int) (*uint256.Int, error) {
	if !stable {
		return mul(x, y)
	}
	adjX, err := Adjust(x, powX)
	if err != nil {
		return nil, err
	}
	adjY, err := Adjust(y, powY)
	if err != nil {
		return nil, err
	}
	a, err := mulDiv(adjX, adjY, oneE18)
	if err != nil {
		return nil, err
	}
	x2, err := mulDiv(adjX, adjX, oneE18)
	if err != nil {
		return nil, err
	}
	y2, err := mulDiv(adjY, adjY, oneE18)
	if err != nil {
		return nil, err
	}
	b, err := add(x2, y2)
	if err != nil {
		return nil, err
	}
	return mul(a, b)
}

// solver holds scratch values for one GetY run.
// Instances are NOT safe for concurrent use and are managed by solverPool.
type solver struct {
	prev uint256.Int
	dy   uint256.Int
}

var solverPool = sync.Pool{
	New: func() any {
		return new(solver)
	},
}

// GetY solves F(x0, y) = xy for y by Newton iteration starting at yStart.
// It stops once two successive iterates differ by at most one unit and returns
// the last iterate when MaxIterations is reached.
func GetY(x0, xy, yStart *uint256.Int) (*uint256.Int, error) {
	s := solverPool.Get().(*solver)
	defer solverPool.Put(s)
	return s.getY(x0, xy, yStart)
}

func (s *solver) getY(x0, xy, yStart *uint256.Int) (*uint256.Int, error) {
	y := new(uint256.Int).Set(yStart)
	for i := 0; i < MaxIterations; i++ {
		s.prev.Set(y)

		k, err := F(x0, y)
		if err != nil {
			return nil, err
		}
		d, err := D(x0, y)
		if err != nil {
			return nil, err
		}
		if d.IsZero() {
			return nil, fmt.Errorf("%w: zero derivative at iteration %d", ErrGetYFailed, i)
		}

		if k.Lt(xy) {
			s.dy.Sub(xy, k)
			s.dy.Div(&s.dy, d)
			if _, overflow := y.AddOverflow(y, &s.dy); overflow {
				return nil, ErrMathOverflow
			}
		} else {
			s.dy.Sub(k, xy)
			s.dy.Div(&s.dy, d)
			if s.dy.Gt(y) {
				return nil, fmt.Errorf("%w: step below zero at iteration %d", ErrGetYFailed, i)
			}
			y.Sub(y, &s.dy)
		}

		if y.Gt(&s.prev) {
			s.dy.Sub(y, &s.prev)
		} else {
			s.dy.Sub(&s.prev, y)
		}
		if !s.dy.Gt(one) {
			return y, nil
		}
	}
	return y, nil
}

// Direction is one pool oriented for a trade: the input side and the output side.
type Direction struct {
	Stable      bool
	ReserveIn   uint64
	ReserveOut  uint64
	DecimalsIn  uint8
	DecimalsOut uint8
}

// GetAmountOut quotes the output for amountIn, which must already have fees removed.
func GetAmountOut(dir Direction, amountIn uint64) (*uint256.Int, error) {
	if amountIn == 0 {
		return nil, ErrZeroInputAmount
	}
	in := uint256.NewInt(amountIn)
	reserveIn := uint256.NewInt(dir.ReserveIn)
	reserveOut := uint256.NewInt(dir.ReserveOut)

	if !dir.Stable {
		// in * reserveOut / (reserveIn + in)
		denominator := new(uint256.Int).Add(reserveIn, in)
		return mulDiv(in, reserveOut, denominator)
	}

	powIn, err := PowDecimals(dir.DecimalsIn)
	if err != nil {
		return nil, err
	}
	powOut, err := PowDecimals(dir.DecimalsOut)
	if err != nil {
		return nil, err
	}
	xy, err := K(true, reserveIn, reserveOut, powIn, powOut)
	if err != nil {
		return nil, err
	}
	inAdj, err := Adjust(in, powIn)
	if err != nil {
		return nil, err
	}
	reserveInAdj, err := Adjust(reserveIn, powIn)
	if err != nil {
		return nil, err
	}
	reserveOutAdj, err := Adjust(reserveOut, powOut)
	if err != nil {
		return nil, err
	}
	x0, err := add(inAdj, reserveInAdj)
	if err != nil {
		return nil, err
	}
	y, err := GetY(x0, xy, reserveOutAdj)
	if err != nil {
		return nil, err
	}
	if !y.Lt(reserveOutAdj) {
		return new(uint256.Int), nil
	}
	y.Sub(reserveOutAdj, y)
	return mulDiv(y, powOut, oneE18)
}

// GetAmountIn quotes the input, before fees, needed to receive amountOut.
func GetAmountIn(dir Direction, amountOut uint64) (*uint256.Int, error) {
	if amountOut == 0 {
		return nil, ErrZeroOutputAmount
	}
	if dir.ReserveOut <= amountOut {
		return nil, fmt.Errorf("%w: requested %d of reserve %d", ErrInsufficientReserves, amountOut, dir.ReserveOut)
	}
	out := uint256.NewInt(amountOut)
	reserveIn := uint256.NewInt(dir.ReserveIn)
	reserveOut := uint256.NewInt(dir.ReserveOut)

	if !dir.Stable {
		// ceil(out * reserveIn / (reserveOut - out))
		numerator := new(uint256.Int).Mul(out, reserveIn)
		denominator := new(uint256.Int).Sub(reserveOut, out)
		return RoundingUpDivision(numerator, denominator)
	}

	powIn, err := PowDecimals(dir.DecimalsIn)
	if err != nil {
		return nil, err
	}
	powOut, err := PowDecimals(dir.DecimalsOut)
	if err != nil {
		return nil, err
	}
	xy, err := K(true, reserveIn, reserveOut, powIn, powOut)
	if err != nil {
		return nil, err
	}
	outAdj, err := Adjust(out, powOut)
	if err != nil {
		return nil, err
	}
	reserveInAdj, err := Adjust(reserveIn, powIn)
	if err != nil {
		return nil, err
	}
	reserveOutAdj, err := Adjust(reserveOut, powOut)
	if err != nil {
		return nil, err
	}
	x0 := new(uint256.Int).Sub(reserveOutAdj, outAdj)
	y, err := GetY(x0, xy, reserveInAdj)
	if err != nil {
		return nil, err
	}
	if y.Lt(reserveInAdj) {
		return nil, fmt.Errorf("%w: solution below current reserve", ErrGetYFailed)
	}
	y.Sub(y, reserveInAdj)
	scaled, err := mul(y, powIn)
	if err != nil {
		return nil, err
	}
	return RoundingUpDivision(scaled, oneE18)
}

// CalculateFeeToSubtract returns ceil(amount*fee/10000).
func CalculateFeeToSubtract(amount, feeBP uint64) (uint64, error) {
	if feeBP > 10_000 {
		return 0, fmt.Errorf("%w: %d bp", ErrInvalidFee, feeBP)
	}
	n := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(feeBP))
	fee, err := RoundingUpDivision(n, basisPoints)
	if err != nil {
		return 0, err
	}
	return fee.Uint64(), nil
}

// CalculateFeeToAdd returns ceil(amount*fee/(10000-fee)), the fee that grosses
// amount up so that subtracting the fee again leaves at least amount.
func CalculateFeeToAdd(amount, feeBP uint64) (uint64, error) {
	if feeBP >= 10_000 {
		return 0, fmt.Errorf("%w: %d bp", ErrInvalidFee, feeBP)
	}
	n := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(feeBP))
	fee, err := RoundingUpDivision(n, uint256.NewInt(10_000-feeBP))
	if err != nil {
		return 0, err
	}
	if !fee.IsUint64() {
		return 0, ErrMathOverflow
	}
	return fee.Uint64(), nil
}

// SubtractFee returns amount less its ceiling-rounded fee.
func SubtractFee(amount, feeBP uint64) (uint64, error) {
	fee, err := CalculateFeeToSubtract(amount, feeBP)
	if err != nil {
		return 0, err
	}
	return amount - fee, nil
}

// AddFee returns amount plus the ceiling-rounded fee on top.
func AddFee(amount, feeBP uint64) (uint64, error) {
	fee, err := CalculateFeeToAdd(amount, feeBP)
	if err != nil {
		return 0, err
	}
	total := amount + fee
	if total < amount {
		return 0, ErrMathOverflow
	}
	return total, nil
}

// MulDiv64 returns floor(a*b/d) for uint64 operands.
func MulDiv64(a, b, d uint64) (uint64, error) {
	z, err := mulDiv(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(d))
	if err != nil {
		return 0, err
	}
	if !z.IsUint64() {
		return 0, ErrMathOverflow
	}
	return z.Uint64(), nil
}

// SqrtProduct returns floor(sqrt(a*b)) without losing precision on the product.
func SqrtProduct(a, b uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return new(uint256.Int).Sqrt(product).Uint64()
}
