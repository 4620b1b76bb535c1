package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Mint issues synthetic debt against the account's collateral. The
// debt increment is rolled back if the resulting position would be
// unhealthy or the external mint is refused.
func (e *Engine) Mint(ctx context.Context, account common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	return e.mint(ctx, account, amount)
}

func (e *Engine) mint(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	e.addDebt(account, amount)

	if err := e.requireHealthy(ctx, account); err != nil {
		if rbErr := e.subDebt(account, amount); rbErr != nil {
			e.logger.Error().Err(rbErr).Msg("mint rollback failed")
		}
		return err
	}

	if !e.debtToken.Mint(e.addr, account, amount) {
		if rbErr := e.subDebt(account, amount); rbErr != nil {
			e.logger.Error().Err(rbErr).Msg("mint rollback failed")
		}
		return ErrMintFailed
	}

	e.logger.Info().
		Str("account", account.Hex()).
		Str("amount", amount.String()).
		Msg("debt minted")
	return nil
}

// Burn retires synthetic debt. The caller must have granted the engine
// an allowance covering amount; the tokens are pulled in and destroyed.
// Unlike the other mutating operations, Burn deliberately runs no
// health post-check: burning is health-monotone, and checking would
// make repayment depend on a live oracle after the external burn has
// already completed. Do not reintroduce the check.
func (e *Engine) Burn(ctx context.Context, account common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	// Burning can only improve health, so no post-condition check runs
	// and a stale feed cannot block debt repayment.
	return e.burnFor(account, account, amount)
}

// burnFor retires debt booked against account, paid for with payer's
// tokens. During liquidation the payer is the liquidator.
func (e *Engine) burnFor(account, payer common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}

	if err := e.subDebt(account, amount); err != nil {
		return err
	}

	if !e.debtToken.TransferFrom(e.addr, payer, e.addr, amount) {
		e.addDebt(account, amount)
		return fmt.Errorf("%w: debt token transfer-in", ErrTransferFailed)
	}
	if err := e.debtToken.Burn(e.addr, amount); err != nil {
		// Compensate the transfer-in before restoring the ledger.
		if !e.debtToken.TransferFrom(e.addr, e.addr, payer, amount) {
			e.logger.Error().Msg("burn compensation transfer failed")
		}
		e.addDebt(account, amount)
		return fmt.Errorf("engine: debt token burn: %w", err)
	}

	e.logger.Info().
		Str("account", account.Hex()).
		Str("payer", payer.Hex()).
		Str("amount", amount.String()).
		Msg("debt burned")
	return nil
}
