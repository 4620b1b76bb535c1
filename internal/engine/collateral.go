package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Deposit locks collateral for the account. The transfer-in is atomic
// with the ledger update: a refused transfer rolls the balance back.
func (e *Engine) Deposit(ctx context.Context, account, asset common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	return e.deposit(ctx, account, asset, amount)
}

func (e *Engine) deposit(ctx context.Context, account, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return ErrAssetNotAllowed
	}

	e.addCollateral(account, asset, amount)

	if !tok.TransferFrom(e.addr, account, e.addr, amount) {
		if err := e.subCollateral(account, asset, amount); err != nil {
			e.logger.Error().Err(err).Msg("deposit rollback failed")
		}
		return fmt.Errorf("%w: deposit of %s", ErrTransferFailed, asset.Hex())
	}

	e.logger.Info().
		Str("account", account.Hex()).
		Str("asset", asset.Hex()).
		Str("amount", amount.String()).
		Msg("collateral deposited")
	return nil
}

// Withdraw releases collateral back to the account, refusing any exit
// that would leave the position below the minimum health factor.
func (e *Engine) Withdraw(ctx context.Context, account, asset common.Address, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	return e.withdraw(ctx, account, account, asset, amount)
}

// withdraw moves collateral from one account's ledger balance out to a
// recipient, enforcing "no exit leaves you insolvent" on the account
// the collateral leaves. Liquidation seizure has its own flow with
// different pre/post conditions.
func (e *Engine) withdraw(ctx context.Context, from, to, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	tok, ok := e.tokens[asset]
	if !ok {
		return ErrAssetNotAllowed
	}

	if err := e.subCollateral(from, asset, amount); err != nil {
		return err
	}

	if err := e.requireHealthy(ctx, from); err != nil {
		e.addCollateral(from, asset, amount)
		return err
	}

	if !tok.Transfer(e.addr, to, amount) {
		e.addCollateral(from, asset, amount)
		return fmt.Errorf("%w: withdrawal of %s", ErrTransferFailed, asset.Hex())
	}

	e.logger.Info().
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("asset", asset.Hex()).
		Str("amount", amount.String()).
		Msg("collateral redeemed")
	return nil
}
