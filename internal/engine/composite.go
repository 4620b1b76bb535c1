package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DepositAndMint composes a collateral deposit and a debt mint as one
// logical unit. If the mint fails the deposit is unwound, so no other
// operation can observe the half-applied state.
func (e *Engine) DepositAndMint(ctx context.Context, account, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.deposit(ctx, account, asset, collateralAmount); err != nil {
		return err
	}
	if err := e.mint(ctx, account, debtAmount); err != nil {
		e.unwindDeposit(account, asset, collateralAmount)
		return err
	}
	return nil
}

// RedeemForDebt composes a debt burn and a collateral withdrawal with
// the same all-or-nothing guarantee.
func (e *Engine) RedeemForDebt(ctx context.Context, account, asset common.Address, collateralAmount, debtAmount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if err := e.burnFor(account, account, debtAmount); err != nil {
		return err
	}
	if err := e.withdraw(ctx, account, account, asset, collateralAmount); err != nil {
		e.unwindBurn(account, debtAmount)
		return err
	}
	return nil
}

// unwindDeposit reverses a completed deposit: ledger decrement plus a
// compensating transfer back to the depositor.
func (e *Engine) unwindDeposit(account, asset common.Address, amount *big.Int) {
	if err := e.subCollateral(account, asset, amount); err != nil {
		e.logger.Error().Err(err).Msg("deposit unwind failed")
		return
	}
	if !e.tokens[asset].Transfer(e.addr, account, amount) {
		e.logger.Error().
			Str("account", account.Hex()).
			Str("asset", asset.Hex()).
			Msg("deposit unwind transfer failed")
	}
}

// unwindBurn reverses a completed burn: the debt is restored and the
// tokens are re-minted to the payer.
func (e *Engine) unwindBurn(account common.Address, amount *big.Int) {
	e.addDebt(account, amount)
	if !e.debtToken.Mint(e.addr, account, amount) {
		e.logger.Error().
			Str("account", account.Hex()).
			Msg("burn unwind mint failed")
	}
}
