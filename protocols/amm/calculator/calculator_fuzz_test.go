package calculator

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func FuzzVolatileQuote(f *testing.F) {
	f.Add(uint64(1_000_000), uint64(2_000_000), uint64(10_000))
	f.Add(uint64(1), uint64(1), uint64(1))
	f.Add(uint64(1<<63), uint64(3), uint64(1<<62))

	f.Fuzz(func(t *testing.T, reserveIn, reserveOut, amountIn uint64) {
		if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
			t.Skip()
		}
		dir := Direction{ReserveIn: reserveIn, ReserveOut: reserveOut}
		out, err := GetAmountOut(dir, amountIn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Uint64() >= reserveOut {
			t.Fatalf("quote %d drains reserve %d", out.Uint64(), reserveOut)
		}

		before := new(uint256.Int).Mul(uint256.NewInt(reserveIn), uint256.NewInt(reserveOut))
		after := new(uint256.Int).Mul(
			new(uint256.Int).Add(uint256.NewInt(reserveIn), uint256.NewInt(amountIn)),
			new(uint256.Int).Sub(uint256.NewInt(reserveOut), out),
		)
		if after.Lt(before) {
			t.Fatalf("k decreased: %s < %s", after.Dec(), before.Dec())
		}

		if out.IsZero() {
			return
		}
		in, err := GetAmountIn(dir, out.Uint64())
		if err != nil {
			t.Fatalf("reverse quote: %v", err)
		}
		if in.Gt(uint256.NewInt(amountIn)) {
			t.Fatalf("reverse quote %s exceeds original input %d", in.Dec(), amountIn)
		}
	})
}

func FuzzFeeRounding(f *testing.F) {
	f.Add(uint64(1000), uint64(30))
	f.Add(uint64(1), uint64(9_999))
	f.Add(uint64(0), uint64(0))

	f.Fuzz(func(t *testing.T, amount, feeBP uint64) {
		feeBP %= 10_000
		amount >>= 16

		gross, err := AddFee(amount, feeBP)
		if err != nil {
			t.Fatalf("add fee: %v", err)
		}
		net, err := SubtractFee(gross, feeBP)
		if err != nil {
			t.Fatalf("subtract fee: %v", err)
		}
		if net < amount {
			t.Fatalf("subtract(add(%d)) = %d", amount, net)
		}

		net, err = SubtractFee(amount, feeBP)
		if err != nil {
			t.Fatalf("subtract fee: %v", err)
		}
		back, err := AddFee(net, feeBP)
		if err != nil {
			t.Fatalf("add fee: %v", err)
		}
		if back > amount {
			t.Fatalf("add(subtract(%d)) = %d", amount, back)
		}
	})
}

func FuzzStableQuote(f *testing.F) {
	f.Add(uint64(1_000_000_000), uint64(1_000_000_000), uint8(9), uint8(9), uint64(1_000_000))
	f.Add(uint64(5_000_000_000_000), uint64(1_000_000_000_000), uint8(6), uint8(9), uint64(1_000_000_000))

	f.Fuzz(func(t *testing.T, reserveIn, reserveOut uint64, decimalsIn, decimalsOut uint8, amountIn uint64) {
		if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
			t.Skip()
		}
		dir := Direction{
			Stable:      true,
			ReserveIn:   reserveIn,
			ReserveOut:  reserveOut,
			DecimalsIn:  decimalsIn % 19,
			DecimalsOut: decimalsOut % 19,
		}
		out, err := GetAmountOut(dir, amountIn)
		if err != nil {
			if errors.Is(err, ErrGetYFailed) || errors.Is(err, ErrMathOverflow) {
				return
			}
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Gt(uint256.NewInt(reserveOut)) {
			t.Fatalf("quote %s exceeds reserve %d", out.Dec(), reserveOut)
		}
	})
}
