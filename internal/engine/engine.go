package engine

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"stablemint/internal/oracle"
)

// DebtToken is the synthetic token ledger the engine exclusively
// controls. Mint and transfer report success as booleans, matching the
// external contract surface.
type DebtToken interface {
	Mint(caller, to common.Address, amount *big.Int) bool
	Burn(caller common.Address, amount *big.Int) error
	TransferFrom(caller, from, to common.Address, amount *big.Int) bool
	BalanceOf(holder common.Address) *big.Int
	TotalSupply() *big.Int
}

// AssetToken is a standard transferable collateral token.
type AssetToken interface {
	Transfer(caller, to common.Address, amount *big.Int) bool
	TransferFrom(caller, from, to common.Address, amount *big.Int) bool
	BalanceOf(holder common.Address) *big.Int
}

// Config wires the engine to its collaborators. Assets and Feeds are
// parallel lists; the allow list they define is immutable after New.
type Config struct {
	Address   common.Address
	Assets    []common.Address
	Feeds     []oracle.Feed
	Tokens    map[common.Address]AssetToken
	DebtToken DebtToken
	Guard     *oracle.Guard
}

// Engine keeps per-account collateral and debt ledgers and funnels
// every mutation through solvency checks. External transfers and mints
// happen after ledger effects; a refused interaction rolls the ledger
// back so no partial state is ever observable.
type Engine struct {
	addr      common.Address
	assets    []common.Address
	feeds     map[common.Address]oracle.Feed
	tokens    map[common.Address]AssetToken
	debtToken DebtToken
	guard     *oracle.Guard
	logger    zerolog.Logger

	// gate is the reentrancy guard: held for the whole of each mutating
	// entry point, acquired with a compare-and-swap so a re-entrant call
	// fails fast instead of deadlocking.
	gate atomic.Bool

	state      sync.RWMutex
	collateral map[common.Address]map[common.Address]*big.Int
	debt       map[common.Address]*big.Int
	accounts   []common.Address
}

// New validates the configuration and constructs an engine. The asset
// registry preserves insertion order and cannot change afterward.
func New(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if len(cfg.Assets) != len(cfg.Feeds) {
		return nil, ErrLengthMismatch
	}
	if cfg.DebtToken == nil || cfg.Guard == nil {
		return nil, ErrNilCollaborator
	}

	feeds := make(map[common.Address]oracle.Feed, len(cfg.Assets))
	tokens := make(map[common.Address]AssetToken, len(cfg.Assets))
	for i, asset := range cfg.Assets {
		if _, exists := feeds[asset]; exists {
			return nil, ErrDuplicateAsset
		}
		tok, ok := cfg.Tokens[asset]
		if !ok || tok == nil {
			return nil, ErrMissingToken
		}
		feeds[asset] = cfg.Feeds[i]
		tokens[asset] = tok
	}

	return &Engine{
		addr:       cfg.Address,
		assets:     append([]common.Address(nil), cfg.Assets...),
		feeds:      feeds,
		tokens:     tokens,
		debtToken:  cfg.DebtToken,
		guard:      cfg.Guard,
		logger:     logger.With().Str("component", "engine").Logger(),
		collateral: make(map[common.Address]map[common.Address]*big.Int),
		debt:       make(map[common.Address]*big.Int),
	}, nil
}

// Address returns the engine's own identity, used as the caller on
// delegated token operations.
func (e *Engine) Address() common.Address {
	return e.addr
}

func (e *Engine) enter() error {
	if !e.gate.CompareAndSwap(false, true) {
		return ErrReentrancyDetected
	}
	return nil
}

func (e *Engine) exit() {
	e.gate.Store(false)
}

func (e *Engine) touchAccount(account common.Address) {
	if _, ok := e.collateral[account]; ok {
		return
	}
	if _, ok := e.debt[account]; ok {
		return
	}
	e.accounts = append(e.accounts, account)
}

func (e *Engine) addCollateral(account, asset common.Address, amount *big.Int) {
	e.state.Lock()
	defer e.state.Unlock()
	e.touchAccount(account)
	held := e.collateral[account]
	if held == nil {
		held = make(map[common.Address]*big.Int)
		e.collateral[account] = held
	}
	if held[asset] == nil {
		held[asset] = big.NewInt(0)
	}
	held[asset] = new(big.Int).Add(held[asset], amount)
}

// subCollateral decreases the balance, refusing underflow.
func (e *Engine) subCollateral(account, asset common.Address, amount *big.Int) error {
	e.state.Lock()
	defer e.state.Unlock()
	held := e.collateral[account]
	if held == nil || held[asset] == nil || held[asset].Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	held[asset] = new(big.Int).Sub(held[asset], amount)
	return nil
}

func (e *Engine) addDebt(account common.Address, amount *big.Int) {
	e.state.Lock()
	defer e.state.Unlock()
	e.touchAccount(account)
	if e.debt[account] == nil {
		e.debt[account] = big.NewInt(0)
	}
	e.debt[account] = new(big.Int).Add(e.debt[account], amount)
}

func (e *Engine) subDebt(account common.Address, amount *big.Int) error {
	e.state.Lock()
	defer e.state.Unlock()
	if e.debt[account] == nil || e.debt[account].Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	e.debt[account] = new(big.Int).Sub(e.debt[account], amount)
	return nil
}

// snapshot copies an account's ledger entries under the read lock.
func (e *Engine) snapshot(account common.Address) (*big.Int, map[common.Address]*big.Int) {
	e.state.RLock()
	defer e.state.RUnlock()
	debt := big.NewInt(0)
	if d := e.debt[account]; d != nil {
		debt = new(big.Int).Set(d)
	}
	held := make(map[common.Address]*big.Int, len(e.assets))
	for asset, amount := range e.collateral[account] {
		held[asset] = new(big.Int).Set(amount)
	}
	return debt, held
}

// collateralValueUsd sums the guarded-read value of every registered
// asset for the account. Zero balances contribute zero, so cost is
// linear in the registry size, not the account's holdings.
func (e *Engine) collateralValueUsd(ctx context.Context, held map[common.Address]*big.Int) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.assets {
		amount := held[asset]
		if amount == nil || amount.Sign() == 0 {
			continue
		}
		quote, err := e.guard.GuardedRead(ctx, e.feeds[asset])
		if err != nil {
			return nil, err
		}
		total.Add(total, usdValue(quote.Price, amount))
	}
	return total, nil
}

// healthFactorOf computes the account's current solvency ratio from
// live prices.
func (e *Engine) healthFactorOf(ctx context.Context, account common.Address) (*big.Int, error) {
	debt, held := e.snapshot(account)
	value, err := e.collateralValueUsd(ctx, held)
	if err != nil {
		return nil, err
	}
	return HealthFactor(debt, value), nil
}

// requireHealthy fails with BreaksHealthFactorError when the account
// sits below the minimum ratio.
func (e *Engine) requireHealthy(ctx context.Context, account common.Address) error {
	hf, err := e.healthFactorOf(ctx, account)
	if err != nil {
		return err
	}
	if hf.Cmp(minHealthFactor) < 0 {
		return &BreaksHealthFactorError{HealthFactor: hf}
	}
	return nil
}
