package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"stablemint/internal/oracle"
)

// AccountSnapshot is a read-only view of one position.
type AccountSnapshot struct {
	Account            common.Address
	DebtMinted         *big.Int
	Collateral         map[common.Address]*big.Int
	CollateralValueUsd *big.Int
	HealthFactor       *big.Int
}

// HealthFactor returns the account's current solvency ratio at live
// prices. Two reads without an intervening mutation return identical
// values.
func (e *Engine) HealthFactor(ctx context.Context, account common.Address) (*big.Int, error) {
	return e.healthFactorOf(ctx, account)
}

// AccountInfo assembles the account's full snapshot: debt, per-asset
// collateral, USD valuation, and health factor.
func (e *Engine) AccountInfo(ctx context.Context, account common.Address) (AccountSnapshot, error) {
	debt, held := e.snapshot(account)
	value, err := e.collateralValueUsd(ctx, held)
	if err != nil {
		return AccountSnapshot{}, err
	}
	return AccountSnapshot{
		Account:            account,
		DebtMinted:         debt,
		Collateral:         held,
		CollateralValueUsd: value,
		HealthFactor:       HealthFactor(debt, value),
	}, nil
}

// CollateralValueUsd values the account's entire collateral at guarded
// prices, iterating the full registry.
func (e *Engine) CollateralValueUsd(ctx context.Context, account common.Address) (*big.Int, error) {
	_, held := e.snapshot(account)
	return e.collateralValueUsd(ctx, held)
}

// CollateralBalance returns the account's deposited amount of one asset.
func (e *Engine) CollateralBalance(account, asset common.Address) *big.Int {
	e.state.RLock()
	defer e.state.RUnlock()
	if held := e.collateral[account]; held != nil && held[asset] != nil {
		return new(big.Int).Set(held[asset])
	}
	return big.NewInt(0)
}

// DebtMinted returns the account's outstanding synthetic debt.
func (e *Engine) DebtMinted(account common.Address) *big.Int {
	e.state.RLock()
	defer e.state.RUnlock()
	if d := e.debt[account]; d != nil {
		return new(big.Int).Set(d)
	}
	return big.NewInt(0)
}

// UsdValue prices an arbitrary amount of a registered asset.
func (e *Engine) UsdValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	feed, ok := e.feeds[asset]
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	quote, err := e.guard.GuardedRead(ctx, feed)
	if err != nil {
		return nil, err
	}
	return usdValue(quote.Price, amount), nil
}

// TokenAmountFromUsd converts a USD amount into a quantity of the asset
// at the current guarded price.
func (e *Engine) TokenAmountFromUsd(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	feed, ok := e.feeds[asset]
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	quote, err := e.guard.GuardedRead(ctx, feed)
	if err != nil {
		return nil, err
	}
	return tokenAmountFromUsd(quote.Price, usd), nil
}

// Assets returns the accepted collateral assets in registration order.
func (e *Engine) Assets() []common.Address {
	return append([]common.Address(nil), e.assets...)
}

// Feed returns the price feed registered for the asset.
func (e *Engine) Feed(asset common.Address) (oracle.Feed, bool) {
	f, ok := e.feeds[asset]
	return f, ok
}

// Accounts lists every account that has ever touched the engine, in
// first-touch order.
func (e *Engine) Accounts() []common.Address {
	e.state.RLock()
	defer e.state.RUnlock()
	return append([]common.Address(nil), e.accounts...)
}
