package engine

import (
	"math/big"

	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// Fixed-point parameters. LiquidationThreshold/LiquidationPrecision
// means only half of collateral value counts toward debt coverage,
// encoding a 200% overcollateralization requirement. All divisions
// truncate toward zero.
var (
	precision               = big.NewInt(1_000_000_000_000_000_000) // 1e18
	additionalFeedPrecision = big.NewInt(10_000_000_000)            // 1e10, lifts 8-decimal feeds to 18
	liquidationThreshold    = big.NewInt(50)
	liquidationPrecision    = big.NewInt(100)
	liquidationBonus        = big.NewInt(10)
	minHealthFactor         = big.NewInt(1_000_000_000_000_000_000) // ratio 1.0
)

// HealthFactor maps outstanding debt and risk-adjusted collateral value
// to a solvency ratio in 1e18 fixed point. A debt-free account is
// infinitely healthy regardless of collateral.
func HealthFactor(debtMinted, collateralValueUsd *big.Int) *big.Int {
	if debtMinted == nil || debtMinted.Sign() == 0 {
		return new(big.Int).Set(ethmath.MaxBig256)
	}
	adjusted := new(big.Int).Mul(collateralValueUsd, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	ratio := adjusted.Mul(adjusted, precision)
	return ratio.Quo(ratio, debtMinted)
}

// MinHealthFactor is the liquidation boundary: a position strictly below
// it is undercollateralized.
func MinHealthFactor() *big.Int {
	return new(big.Int).Set(minHealthFactor)
}

// LiquidationThreshold returns the percentage of collateral value that
// counts toward debt coverage.
func LiquidationThreshold() *big.Int {
	return new(big.Int).Set(liquidationThreshold)
}

// LiquidationBonus returns the liquidator incentive percentage.
func LiquidationBonus() *big.Int {
	return new(big.Int).Set(liquidationBonus)
}

// LiquidationPrecision returns the divisor shared by the threshold and
// bonus percentages.
func LiquidationPrecision() *big.Int {
	return new(big.Int).Set(liquidationPrecision)
}

// Precision returns the 1e18 fixed-point scale.
func Precision() *big.Int {
	return new(big.Int).Set(precision)
}

// usdValue converts a token amount (18 decimals) to USD (18 decimals)
// at an 8-decimal feed price.
func usdValue(price, amount *big.Int) *big.Int {
	scaled := new(big.Int).Mul(price, additionalFeedPrecision)
	scaled.Mul(scaled, amount)
	return scaled.Quo(scaled, precision)
}

// tokenAmountFromUsd converts a USD amount (18 decimals) to a token
// quantity at an 8-decimal feed price, flooring.
func tokenAmountFromUsd(price, usd *big.Int) *big.Int {
	scaledPrice := new(big.Int).Mul(price, additionalFeedPrecision)
	amount := new(big.Int).Mul(usd, precision)
	return amount.Quo(amount, scaledPrice)
}
