package calculator

import (
	"fmt"
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestGetAmountOut(t *testing.T) {
	testCases := []struct {
		name     string
		dir      Direction
		amountIn uint64
		expected uint64
	}{
		{
			name:     "Volatile",
			dir:      Direction{ReserveIn: 1_000_000, ReserveOut: 2_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountIn: 10_000,
			expected: 19_801,
		},
		{
			name:     "Stable Balanced 9 Decimals",
			dir:      Direction{Stable: true, ReserveIn: 1_000_000_000, ReserveOut: 1_000_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountIn: 1_000_000,
			expected: 999_999,
		},
		{
			name:     "Stable Balanced 6 Decimals",
			dir:      Direction{Stable: true, ReserveIn: 1_000_000_000_000, ReserveOut: 1_000_000_000_000, DecimalsIn: 6, DecimalsOut: 6},
			amountIn: 1_000_000_000,
			expected: 999_999_999,
		},
		{
			name:     "Stable Imbalanced Mixed Decimals",
			dir:      Direction{Stable: true, ReserveIn: 5_000_000_000_000, ReserveOut: 1_000_000_000_000, DecimalsIn: 6, DecimalsOut: 9},
			amountIn: 1_000_000_000,
			expected: 599_760_016,
		},
		{
			name:     "Stable Far From Parity",
			dir:      Direction{Stable: true, ReserveIn: 1_000_000_000_000_000_000, ReserveOut: 1_000_000_000_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountIn: 1_000_000_000_000,
			expected: 2_999_986_000,
		},
		{
			name:     "Stable 6 To 9 Decimals",
			dir:      Direction{Stable: true, ReserveIn: 100_000_000, ReserveOut: 100_000_000_000, DecimalsIn: 6, DecimalsOut: 9},
			amountIn: 1_000_000,
			expected: 999_999_500,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := GetAmountOut(tc.dir, tc.amountIn)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, out.Uint64())
		})
	}

	t.Run("Zero Input", func(t *testing.T) {
		_, err := GetAmountOut(Direction{ReserveIn: 1, ReserveOut: 1}, 0)
		assert.ErrorIs(t, err, ErrZeroInputAmount)
	})

	t.Run("Stable Overflow Is Reported", func(t *testing.T) {
		_, err := GetAmountOut(Direction{Stable: true, ReserveIn: 1, ReserveOut: 100_000_000_000_000}, 1)
		assert.ErrorIs(t, err, ErrMathOverflow)
	})
}

func TestGetAmountIn(t *testing.T) {
	testCases := []struct {
		name      string
		dir       Direction
		amountOut uint64
		expected  uint64
	}{
		{
			name:      "Volatile Rounds Up",
			dir:       Direction{ReserveIn: 1_000_000, ReserveOut: 2_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountOut: 19_802,
			expected:  10_001,
		},
		{
			name:      "Volatile",
			dir:       Direction{ReserveIn: 1_000_000, ReserveOut: 2_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountOut: 10_000,
			expected:  5_026,
		},
		{
			name:      "Stable Balanced",
			dir:       Direction{Stable: true, ReserveIn: 1_000_000_000, ReserveOut: 1_000_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountOut: 999_999,
			expected:  1_000_000,
		},
		{
			name:      "Stable Imbalanced Mixed Decimals",
			dir:       Direction{Stable: true, ReserveIn: 5_000_000_000_000, ReserveOut: 1_000_000_000_000, DecimalsIn: 6, DecimalsOut: 9},
			amountOut: 599_760_016,
			expected:  1_000_000_000,
		},
		{
			name:      "Stable Far From Parity",
			dir:       Direction{Stable: true, ReserveIn: 1_000_000_000_000_000_000, ReserveOut: 1_000_000_000_000_000, DecimalsIn: 9, DecimalsOut: 9},
			amountOut: 2_999_986_000,
			expected:  999_999_999_969,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in, err := GetAmountIn(tc.dir, tc.amountOut)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, in.Uint64())
		})
	}

	t.Run("Zero Output", func(t *testing.T) {
		_, err := GetAmountIn(Direction{ReserveIn: 10, ReserveOut: 10}, 0)
		assert.ErrorIs(t, err, ErrZeroOutputAmount)
	})

	t.Run("Output Drains Reserve", func(t *testing.T) {
		_, err := GetAmountIn(Direction{ReserveIn: 10, ReserveOut: 10}, 10)
		assert.ErrorIs(t, err, ErrInsufficientReserves)
	})
}

func TestGetY(t *testing.T) {
	oneToken := u(1_000_000_000_000_000_000)

	t.Run("Converges", func(t *testing.T) {
		pow9, err := PowDecimals(9)
		require.NoError(t, err)
		xy, err := K(true, u(1_000_000_000), u(1_000_000_000), pow9, pow9)
		require.NoError(t, err)
		assert.Equal(t, "2000000000000000000000000000000000000", xy.Dec())

		x0 := new(uint256.Int).Mul(oneToken, u(2))
		y, err := GetY(x0, xy, oneToken)
		require.NoError(t, err)
		assert.Equal(t, uint64(246_266_172_167_722_733), y.Uint64())
	})

	t.Run("Zero Derivative Fails", func(t *testing.T) {
		_, err := GetY(new(uint256.Int), u(1), new(uint256.Int))
		assert.ErrorIs(t, err, ErrGetYFailed)
	})

	t.Run("Already Solved", func(t *testing.T) {
		k, err := F(oneToken, oneToken)
		require.NoError(t, err)
		y, err := GetY(oneToken, k, oneToken)
		require.NoError(t, err)
		assert.True(t, y.Eq(oneToken))
	})
}

func TestFees(t *testing.T) {
	t.Run("Subtract Rounds Fee Up", func(t *testing.T) {
		fee, err := CalculateFeeToSubtract(1000, 30)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), fee)

		fee, err = CalculateFeeToSubtract(1, 30)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), fee)

		net, err := SubtractFee(1000, 30)
		require.NoError(t, err)
		assert.Equal(t, uint64(997), net)
	})

	t.Run("Add Rounds Fee Up", func(t *testing.T) {
		fee, err := CalculateFeeToAdd(1000, 30)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), fee)

		gross, err := AddFee(970, 30)
		require.NoError(t, err)
		assert.Equal(t, uint64(973), gross)
	})

	t.Run("Zero Fee", func(t *testing.T) {
		net, err := SubtractFee(12345, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(12345), net)
		gross, err := AddFee(12345, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(12345), gross)
	})

	t.Run("Invalid Fee", func(t *testing.T) {
		_, err := AddFee(1, 10_000)
		assert.ErrorIs(t, err, ErrInvalidFee)
		_, err = SubtractFee(1, 10_001)
		assert.ErrorIs(t, err, ErrInvalidFee)
	})

	t.Run("Add Fee Overflow", func(t *testing.T) {
		_, err := AddFee(math.MaxUint64, 30)
		assert.ErrorIs(t, err, ErrMathOverflow)
	})
}

func TestIntegerHelpers(t *testing.T) {
	t.Run("Rounding Up Division", func(t *testing.T) {
		q, err := RoundingUpDivision(u(10), u(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), q.Uint64())

		q, err = RoundingUpDivision(u(9), u(3))
		require.NoError(t, err)
		assert.Equal(t, uint64(3), q.Uint64())

		_, err = RoundingUpDivision(u(1), u(0))
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("Sqrt Product", func(t *testing.T) {
		assert.Equal(t, uint64(101_000), SqrtProduct(1_020_100, 10_000))
		assert.Equal(t, uint64(1_010), SqrtProduct(10_201, 100))
		assert.Equal(t, uint64(math.MaxUint64), SqrtProduct(math.MaxUint64, math.MaxUint64))
		assert.Equal(t, uint64(0), SqrtProduct(0, 5))
	})

	t.Run("MulDiv64", func(t *testing.T) {
		v, err := MulDiv64(60_000, 1_020_100, 101_000)
		require.NoError(t, err)
		assert.Equal(t, uint64(606_000), v)

		_, err = MulDiv64(math.MaxUint64, 2, 1)
		assert.ErrorIs(t, err, ErrMathOverflow)

		_, err = MulDiv64(1, 1, 0)
		assert.ErrorIs(t, err, ErrDivisionByZero)
	})

	t.Run("Pow Decimals", func(t *testing.T) {
		p, err := PowDecimals(18)
		require.NoError(t, err)
		assert.Equal(t, "1000000000000000000", p.Dec())

		p, err = PowDecimals(24)
		require.NoError(t, err)
		assert.Equal(t, "1000000000000000000000000", p.Dec())

		_, err = PowDecimals(78)
		assert.ErrorIs(t, err, ErrInvalidDecimals)
	})
}

// TestStableCurveSweep sweeps reserve ratios, decimals combinations and trade
// sizes, checking that the solver converges and that every forward quote keeps
// the stable invariant from decreasing.
func TestStableCurveSweep(t *testing.T) {
	tokens := []uint64{1, 1_000, 1_000_000, 1_000_000_000}
	decimals := []uint8{0, 6, 9, 18}
	fractions := []struct{ num, den uint64 }{{1, 10_000}, {1, 100}, {1, 2}, {1, 1}, {3, 1}}

	for _, tokensIn := range tokens {
		for _, tokensOut := range tokens {
			for _, decIn := range decimals {
				for _, decOut := range decimals {
					powIn, _ := PowDecimals(decIn)
					powOut, _ := PowDecimals(decOut)
					reserveIn, overflowIn := new(uint256.Int).MulOverflow(u(tokensIn), powIn)
					reserveOut, overflowOut := new(uint256.Int).MulOverflow(u(tokensOut), powOut)
					if overflowIn || overflowOut || !reserveIn.IsUint64() || !reserveOut.IsUint64() {
						continue
					}
					dir := Direction{
						Stable:      true,
						ReserveIn:   reserveIn.Uint64(),
						ReserveOut:  reserveOut.Uint64(),
						DecimalsIn:  decIn,
						DecimalsOut: decOut,
					}
					before, err := K(true, reserveIn, reserveOut, powIn, powOut)
					require.NoError(t, err)

					for _, frac := range fractions {
						amountIn, err := MulDiv64(dir.ReserveIn, frac.num, frac.den)
						if err != nil || amountIn == 0 {
							continue
						}
						name := fmt.Sprintf("%d@%d->%d@%d/%d:%d", tokensIn, decIn, tokensOut, decOut, frac.num, frac.den)

						out, err := GetAmountOut(dir, amountIn)
						require.NoError(t, err, name)
						require.True(t, out.IsUint64(), name)
						require.LessOrEqual(t, out.Uint64(), dir.ReserveOut, name)
						if out.IsZero() {
							continue
						}

						after, err := K(true,
							new(uint256.Int).Add(reserveIn, u(amountIn)),
							new(uint256.Int).Sub(reserveOut, out),
							powIn, powOut)
						require.NoError(t, err, name)
						assert.False(t, after.Lt(before), "invariant decreased for %s", name)
					}
				}
			}
		}
	}
}
