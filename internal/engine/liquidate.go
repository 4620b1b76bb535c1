package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// LiquidationReceipt reports the outcome of a completed liquidation.
type LiquidationReceipt struct {
	Liquidator        common.Address
	Target            common.Address
	Asset             common.Address
	DebtCovered       *big.Int
	CollateralSeized  *big.Int
	StartHealthFactor *big.Int
	EndHealthFactor   *big.Int
}

// Liquidate lets a third party repay debtToCover of the target's debt
// in exchange for equivalent collateral plus a 10% bonus. It is only
// permitted against positions already below the minimum health factor,
// must leave the target strictly healthier, and must not push the
// liquidator's own position underwater. The debt-to-collateral
// conversion uses the staleness-guarded read, the same as every other
// valuation path.
func (e *Engine) Liquidate(ctx context.Context, liquidator, asset, target common.Address, debtToCover *big.Int) (*LiquidationReceipt, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return nil, ErrAssetNotAllowed
	}

	startHF, err := e.healthFactorOf(ctx, target)
	if err != nil {
		return nil, err
	}
	if startHF.Cmp(minHealthFactor) >= 0 {
		return nil, ErrHealthFactorOk
	}

	quote, err := e.guard.GuardedRead(ctx, e.feeds[asset])
	if err != nil {
		return nil, err
	}
	base := tokenAmountFromUsd(quote.Price, debtToCover)
	bonus := new(big.Int).Mul(base, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seized := new(big.Int).Add(base, bonus)

	// Seizure is deliberately not capped at the target's holdings of
	// the chosen asset; an oversized request fails here untouched.
	if err := e.subCollateral(target, asset, seized); err != nil {
		return nil, err
	}
	if err := e.subDebt(target, debtToCover); err != nil {
		e.addCollateral(target, asset, seized)
		return nil, err
	}

	rollback := func() {
		e.addCollateral(target, asset, seized)
		e.addDebt(target, debtToCover)
	}

	endHF, err := e.healthFactorOf(ctx, target)
	if err != nil {
		rollback()
		return nil, err
	}
	if endHF.Cmp(startHF) <= 0 {
		rollback()
		return nil, ErrHealthFactorNotImproved
	}
	if err := e.requireHealthy(ctx, liquidator); err != nil {
		rollback()
		return nil, err
	}

	// Interactions: pull the liquidator's debt tokens, burn them, then
	// hand over the seized collateral. Each failure compensates the
	// steps already taken.
	if !e.debtToken.TransferFrom(e.addr, liquidator, e.addr, debtToCover) {
		rollback()
		return nil, fmt.Errorf("%w: debt token transfer-in", ErrTransferFailed)
	}
	if err := e.debtToken.Burn(e.addr, debtToCover); err != nil {
		if !e.debtToken.TransferFrom(e.addr, e.addr, liquidator, debtToCover) {
			e.logger.Error().Msg("liquidation compensation transfer failed")
		}
		rollback()
		return nil, fmt.Errorf("engine: debt token burn: %w", err)
	}
	if !tok.Transfer(e.addr, liquidator, seized) {
		if !e.debtToken.Mint(e.addr, liquidator, debtToCover) {
			e.logger.Error().Msg("liquidation compensation mint failed")
		}
		rollback()
		return nil, fmt.Errorf("%w: collateral payout", ErrTransferFailed)
	}

	receipt := &LiquidationReceipt{
		Liquidator:        liquidator,
		Target:            target,
		Asset:             asset,
		DebtCovered:       new(big.Int).Set(debtToCover),
		CollateralSeized:  seized,
		StartHealthFactor: startHF,
		EndHealthFactor:   endHF,
	}

	e.logger.Info().
		Str("liquidator", liquidator.Hex()).
		Str("target", target.Hex()).
		Str("asset", asset.Hex()).
		Str("debt_covered", debtToCover.String()).
		Str("collateral_seized", seized.String()).
		Msg("position liquidated")
	return receipt, nil
}
