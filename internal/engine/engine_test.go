package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"stablemint/internal/oracle"
	"stablemint/internal/token"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	weth       = common.HexToAddress("0x0000000000000000000000000000000000000ee7")
	wbtc       = common.HexToAddress("0x0000000000000000000000000000000000000bbc")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	eng      *Engine
	wethFeed *oracle.StaticFeed
	wbtcFeed *oracle.StaticFeed
	wethTok  *token.Ledger
	wbtcTok  *token.Ledger
	debtTok  *token.Ledger
	now      time.Time
}

// newFixture stands up an engine over two collateral assets with static
// feeds (WETH at $2000, WBTC at $30000) and funds alice and bob with
// 1000 units of each, approvals included.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	wethFeed := oracle.NewStaticFeed(big.NewInt(2000_00000000), now)
	wbtcFeed := oracle.NewStaticFeed(big.NewInt(30000_00000000), now)
	guard := oracle.NewGuardWithClock(oracle.FeedTimeout, func() time.Time { return now })

	wethTok := token.NewLedger("WETH")
	wbtcTok := token.NewLedger("WBTC")
	debtTok := token.NewLedger("SUSD")

	for _, user := range []common.Address{alice, bob} {
		wethTok.Mint(engineAddr, user, wad(1000))
		wbtcTok.Mint(engineAddr, user, wad(1000))
		wethTok.Approve(user, engineAddr, wad(1000))
		wbtcTok.Approve(user, engineAddr, wad(1000))
		debtTok.Approve(user, engineAddr, wad(1_000_000))
	}
	if err := debtTok.Bind(engineAddr); err != nil {
		t.Fatal(err)
	}

	eng, err := New(Config{
		Address:   engineAddr,
		Assets:    []common.Address{weth, wbtc},
		Feeds:     []oracle.Feed{wethFeed, wbtcFeed},
		Tokens:    map[common.Address]AssetToken{weth: wethTok, wbtc: wbtcTok},
		DebtToken: debtTok,
		Guard:     guard,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}

	return &fixture{eng: eng, wethFeed: wethFeed, wbtcFeed: wbtcFeed, wethTok: wethTok, wbtcTok: wbtcTok, debtTok: debtTok, now: now}
}

func TestNewRejectsMismatchedLists(t *testing.T) {
	_, err := New(Config{
		Assets:    []common.Address{weth},
		Feeds:     nil,
		DebtToken: token.NewLedger("SUSD"),
		Guard:     oracle.NewGuard(),
	}, zerolog.Nop())
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestNewRejectsMissingToken(t *testing.T) {
	now := time.Now().UTC()
	_, err := New(Config{
		Assets:    []common.Address{weth},
		Feeds:     []oracle.Feed{oracle.NewStaticFeed(big.NewInt(1_00000000), now)},
		DebtToken: token.NewLedger("SUSD"),
		Guard:     oracle.NewGuard(),
	}, zerolog.Nop())
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Deposit(ctx, alice, weth, big.NewInt(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero deposit should fail, got %v", err)
	}
	unknown := common.HexToAddress("0xdead")
	if err := f.eng.Deposit(ctx, alice, unknown, wad(1)); !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("unknown asset should fail, got %v", err)
	}
}

func TestDepositWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.wethTok.BalanceOf(alice)

	if err := f.eng.Deposit(ctx, alice, weth, wad(5)); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if got := f.eng.CollateralBalance(alice, weth); got.Cmp(wad(5)) != 0 {
		t.Fatalf("ledger should hold 5, got %s", got)
	}
	if err := f.eng.Withdraw(ctx, alice, weth, wad(5)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if got := f.eng.CollateralBalance(alice, weth); got.Sign() != 0 {
		t.Fatalf("ledger should be empty, got %s", got)
	}
	if got := f.wethTok.BalanceOf(alice); got.Cmp(before) != 0 {
		t.Fatalf("token balance should round-trip exactly: before %s after %s", before, got)
	}
}

func TestWithdrawRefusesUnderflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Deposit(ctx, alice, weth, wad(1)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.Withdraw(ctx, alice, weth, wad(2)); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("over-withdraw should fail, got %v", err)
	}
}

func TestMintAtBoundaryThenOneMoreFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 50 WETH at $2000 values at $100,000; half counts toward coverage,
	// so 50,000 debt sits exactly at the minimum health factor.
	if err := f.eng.Deposit(ctx, alice, weth, wad(50)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.Mint(ctx, alice, wad(50_000)); err != nil {
		t.Fatalf("boundary mint should succeed: %v", err)
	}

	hf, err := f.eng.HealthFactor(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if hf.Cmp(wad(1)) != 0 {
		t.Fatalf("health factor should be exactly 1e18, got %s", hf)
	}

	err = f.eng.Mint(ctx, alice, big.NewInt(1))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("one more unit should break the health factor, got %v", err)
	}
	if breaks.HealthFactor.Cmp(wad(1)) >= 0 {
		t.Fatalf("reported ratio should be below 1e18, got %s", breaks.HealthFactor)
	}
	// Rolled back: debt unchanged, token supply unchanged.
	if got := f.eng.DebtMinted(alice); got.Cmp(wad(50_000)) != 0 {
		t.Fatalf("debt should be unchanged, got %s", got)
	}
	if got := f.debtTok.TotalSupply(); got.Cmp(wad(50_000)) != 0 {
		t.Fatalf("supply should be unchanged, got %s", got)
	}
}

func TestMintMonotonicallyLowersHealth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.DepositAndMint(ctx, alice, weth, wad(50), wad(10_000)); err != nil {
		t.Fatal(err)
	}
	before, _ := f.eng.HealthFactor(ctx, alice)
	if err := f.eng.Mint(ctx, alice, wad(1_000)); err != nil {
		t.Fatal(err)
	}
	after, _ := f.eng.HealthFactor(ctx, alice)
	if after.Cmp(before) >= 0 {
		t.Fatalf("mint should strictly lower health: %s -> %s", before, after)
	}

	if err := f.eng.Burn(ctx, alice, wad(1_000)); err != nil {
		t.Fatal(err)
	}
	restored, _ := f.eng.HealthFactor(ctx, alice)
	if restored.Cmp(after) <= 0 {
		t.Fatalf("burn should strictly raise health: %s -> %s", after, restored)
	}
}

func TestHealthFactorReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.DepositAndMint(ctx, alice, weth, wad(10), wad(7_777)); err != nil {
		t.Fatal(err)
	}
	first, err := f.eng.HealthFactor(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.eng.HealthFactor(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cmp(second) != 0 {
		t.Fatalf("reads without mutation should match: %s vs %s", first, second)
	}
}

func TestBurnRequiresOutstandingDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Burn(ctx, alice, wad(1)); !errors.Is(err, ErrInsufficientDebt) {
		t.Fatalf("burning with no debt should fail, got %v", err)
	}
}

func TestMintFailsClosedOnStaleFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Deposit(ctx, alice, weth, wad(10)); err != nil {
		t.Fatal(err)
	}
	f.wethFeed.SetPrice(big.NewInt(2000_00000000), f.now.Add(-oracle.FeedTimeout-time.Second))

	err := f.eng.Mint(ctx, alice, wad(1))
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
	if got := f.eng.DebtMinted(alice); got.Sign() != 0 {
		t.Fatalf("debt should be rolled back, got %s", got)
	}
}

func TestZeroPriceFeedFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Deposit(ctx, alice, weth, wad(10)); err != nil {
		t.Fatal(err)
	}
	f.wethFeed.SetPrice(big.NewInt(0), f.now)

	err := f.eng.Mint(ctx, alice, wad(1))
	if !errors.Is(err, oracle.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if got := f.eng.DebtMinted(alice); got.Sign() != 0 {
		t.Fatalf("debt should be rolled back, got %s", got)
	}

	// The conversion query errors instead of dividing by zero.
	if _, err := f.eng.TokenAmountFromUsd(ctx, weth, wad(100)); !errors.Is(err, oracle.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice from conversion, got %v", err)
	}
}

func TestTotalValueIteratesFullRegistry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.Deposit(ctx, alice, weth, wad(2)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.Deposit(ctx, alice, wbtc, wad(1)); err != nil {
		t.Fatal(err)
	}
	value, err := f.eng.CollateralValueUsd(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	// 2 * $2000 + 1 * $30000
	if value.Cmp(wad(34_000)) != 0 {
		t.Fatalf("expected $34000, got %s", value)
	}
}

// failingToken refuses transfers, standing in for an external token
// that reports failure.
type failingToken struct{}

func (failingToken) Transfer(common.Address, common.Address, *big.Int) bool {
	return false
}
func (failingToken) TransferFrom(common.Address, common.Address, common.Address, *big.Int) bool {
	return false
}
func (failingToken) BalanceOf(common.Address) *big.Int { return big.NewInt(0) }

func TestDepositRollsBackOnTransferFailure(t *testing.T) {
	now := time.Now().UTC()
	eng, err := New(Config{
		Address:   engineAddr,
		Assets:    []common.Address{weth},
		Feeds:     []oracle.Feed{oracle.NewStaticFeed(big.NewInt(2000_00000000), now)},
		Tokens:    map[common.Address]AssetToken{weth: failingToken{}},
		DebtToken: token.NewLedger("SUSD"),
		Guard:     oracle.NewGuard(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Deposit(context.Background(), alice, weth, wad(1)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if got := eng.CollateralBalance(alice, weth); got.Sign() != 0 {
		t.Fatalf("ledger should be rolled back, got %s", got)
	}
}

// reentrantToken calls back into the engine from inside a transfer,
// the shape of a token-hook reentrancy attempt.
type reentrantToken struct {
	eng     *Engine
	sawErr  error
	backing *token.Ledger
}

func (r *reentrantToken) TransferFrom(caller, from, to common.Address, amount *big.Int) bool {
	r.sawErr = r.eng.Mint(context.Background(), from, big.NewInt(1))
	return r.backing.TransferFrom(caller, from, to, amount)
}

func (r *reentrantToken) Transfer(caller, to common.Address, amount *big.Int) bool {
	return r.backing.Transfer(caller, to, amount)
}

func (r *reentrantToken) BalanceOf(holder common.Address) *big.Int {
	return r.backing.BalanceOf(holder)
}

func TestReentrantCallRejected(t *testing.T) {
	now := time.Now().UTC()
	backing := token.NewLedger("WETH")
	backing.Mint(engineAddr, alice, wad(10))
	backing.Approve(alice, engineAddr, wad(10))

	hook := &reentrantToken{backing: backing}
	debtTok := token.NewLedger("SUSD")
	if err := debtTok.Bind(engineAddr); err != nil {
		t.Fatal(err)
	}

	eng, err := New(Config{
		Address:   engineAddr,
		Assets:    []common.Address{weth},
		Feeds:     []oracle.Feed{oracle.NewStaticFeed(big.NewInt(2000_00000000), now)},
		Tokens:    map[common.Address]AssetToken{weth: hook},
		DebtToken: debtTok,
		Guard:     oracle.NewGuard(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	hook.eng = eng

	if err := eng.Deposit(context.Background(), alice, weth, wad(1)); err != nil {
		t.Fatalf("outer deposit should succeed: %v", err)
	}
	if !errors.Is(hook.sawErr, ErrReentrancyDetected) {
		t.Fatalf("inner call should see ErrReentrancyDetected, got %v", hook.sawErr)
	}
}

func TestDepositAndMintUnwindsOnMintFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.wethTok.BalanceOf(alice)

	// $2000 of collateral cannot carry $2000 of debt.
	err := f.eng.DepositAndMint(ctx, alice, weth, wad(1), wad(2_000))
	var breaks *BreaksHealthFactorError
	if !errors.As(err, &breaks) {
		t.Fatalf("expected BreaksHealthFactorError, got %v", err)
	}
	if got := f.eng.CollateralBalance(alice, weth); got.Sign() != 0 {
		t.Fatalf("deposit should be unwound, got %s", got)
	}
	if got := f.wethTok.BalanceOf(alice); got.Cmp(before) != 0 {
		t.Fatalf("tokens should be returned: before %s after %s", before, got)
	}
}

func TestRedeemForDebtComposes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.eng.DepositAndMint(ctx, alice, weth, wad(10), wad(5_000)); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.RedeemForDebt(ctx, alice, weth, wad(10), wad(5_000)); err != nil {
		t.Fatalf("full exit should succeed: %v", err)
	}
	if f.eng.DebtMinted(alice).Sign() != 0 || f.eng.CollateralBalance(alice, weth).Sign() != 0 {
		t.Fatal("position should be fully closed")
	}
	if f.debtTok.TotalSupply().Sign() != 0 {
		t.Fatalf("debt supply should be zero, got %s", f.debtTok.TotalSupply())
	}
}
