package engine

import (
	"math/big"
	"testing"

	ethmath "github.com/ethereum/go-ethereum/common/math"
)

func TestHealthFactorNoDebtIsMax(t *testing.T) {
	hf := HealthFactor(big.NewInt(0), big.NewInt(0))
	if hf.Cmp(ethmath.MaxBig256) != 0 {
		t.Fatalf("debt-free account should be infinitely healthy, got %s", hf)
	}
	hf = HealthFactor(nil, wad(1_000_000))
	if hf.Cmp(ethmath.MaxBig256) != 0 {
		t.Fatalf("nil debt should read as infinitely healthy, got %s", hf)
	}
}

func TestHealthFactorBoundary(t *testing.T) {
	// $100,000 of collateral, half counted, against 50,000 debt: 1.0.
	hf := HealthFactor(wad(50_000), wad(100_000))
	if hf.Cmp(wad(1)) != 0 {
		t.Fatalf("expected exactly 1e18, got %s", hf)
	}
}

func TestHealthFactorDivisionFloors(t *testing.T) {
	// 1 wei of collateral value halves to zero before scaling.
	hf := HealthFactor(big.NewInt(3), big.NewInt(1))
	if hf.Sign() != 0 {
		t.Fatalf("adjusted collateral should floor to zero, got %s", hf)
	}

	// 7 / 2 style case: adjusted value floors, then the ratio floors.
	got := HealthFactor(big.NewInt(2), big.NewInt(7))
	want := new(big.Int).Quo(new(big.Int).Mul(big.NewInt(3), precision), big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}

	// One extra wei of debt pushes the boundary ratio under 1e18.
	debt := new(big.Int).Add(wad(50_000), big.NewInt(1))
	hf = HealthFactor(debt, wad(100_000))
	if hf.Cmp(wad(1)) >= 0 {
		t.Fatalf("ratio should floor below 1e18, got %s", hf)
	}
}

func TestUsdValueAndBack(t *testing.T) {
	price := big.NewInt(2000_00000000)

	// 50 units at $2000 is $100,000.
	if got := usdValue(price, wad(50)); got.Cmp(wad(100_000)) != 0 {
		t.Fatalf("expected $100000, got %s", got)
	}

	// $100 at $2000/unit is 0.05 units.
	want := new(big.Int).Quo(wad(5), big.NewInt(100))
	if got := tokenAmountFromUsd(price, wad(100)); got.Cmp(want) != 0 {
		t.Fatalf("expected 0.05 units, got %s", got)
	}

	// Conversion floors: $1 at $3/unit.
	price3 := big.NewInt(3_00000000)
	got := tokenAmountFromUsd(price3, wad(1))
	want = new(big.Int).Quo(new(big.Int).Mul(wad(1), precision), new(big.Int).Mul(price3, additionalFeedPrecision))
	if got.Cmp(want) != 0 {
		t.Fatalf("expected floored quotient %s, got %s", want, got)
	}
	back := usdValue(price3, got)
	if back.Cmp(wad(1)) > 0 {
		t.Fatalf("round trip must not exceed the original amount: %s", back)
	}
}

func TestConstantGetters(t *testing.T) {
	if MinHealthFactor().Cmp(wad(1)) != 0 {
		t.Fatalf("minimum health factor should be 1e18, got %s", MinHealthFactor())
	}
	if LiquidationThreshold().Cmp(big.NewInt(50)) != 0 {
		t.Fatal("liquidation threshold should be 50")
	}
	if LiquidationBonus().Cmp(big.NewInt(10)) != 0 {
		t.Fatal("liquidation bonus should be 10")
	}
	if LiquidationPrecision().Cmp(big.NewInt(100)) != 0 {
		t.Fatal("liquidation precision should be 100")
	}
	// Getters hand out copies; mutating one must not corrupt the engine.
	MinHealthFactor().SetInt64(7)
	if MinHealthFactor().Cmp(wad(1)) != 0 {
		t.Fatal("constant getters must return defensive copies")
	}
}
