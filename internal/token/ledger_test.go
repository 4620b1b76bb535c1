package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	engineAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func TestBindIsOneShot(t *testing.T) {
	l := NewLedger("SUSD")
	if err := l.Bind(engineAddr); err != nil {
		t.Fatalf("first bind should succeed: %v", err)
	}
	if err := l.Bind(alice); !errors.Is(err, ErrAlreadyBound) {
		t.Fatalf("rebind should fail with ErrAlreadyBound, got %v", err)
	}
}

func TestMintRequiresControllerOnceBound(t *testing.T) {
	l := NewLedger("SUSD")
	if err := l.Bind(engineAddr); err != nil {
		t.Fatal(err)
	}

	if l.Mint(alice, alice, big.NewInt(100)) {
		t.Fatal("non-controller mint should be refused")
	}
	if !l.Mint(engineAddr, alice, big.NewInt(100)) {
		t.Fatal("controller mint should succeed")
	}
	if l.TotalSupply().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total supply should be 100, got %s", l.TotalSupply())
	}
}

func TestBurnChecksBalance(t *testing.T) {
	l := NewLedger("SUSD")
	l.Mint(engineAddr, alice, big.NewInt(50))

	if err := l.Burn(alice, big.NewInt(60)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("overburn should fail, got %v", err)
	}
	if err := l.Burn(alice, big.NewInt(50)); err != nil {
		t.Fatalf("burn within balance should succeed: %v", err)
	}
	if l.BalanceOf(alice).Sign() != 0 {
		t.Fatalf("balance should be zero, got %s", l.BalanceOf(alice))
	}
	if l.TotalSupply().Sign() != 0 {
		t.Fatalf("supply should be zero, got %s", l.TotalSupply())
	}
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger("WETH")
	l.Mint(engineAddr, alice, big.NewInt(10))

	if l.TransferFrom(bob, alice, bob, big.NewInt(5)) {
		t.Fatal("transferFrom without allowance should be refused")
	}

	l.Approve(alice, bob, big.NewInt(5))
	if !l.TransferFrom(bob, alice, bob, big.NewInt(5)) {
		t.Fatal("transferFrom within allowance should succeed")
	}
	if l.TransferFrom(bob, alice, bob, big.NewInt(1)) {
		t.Fatal("allowance should be exhausted")
	}
	if l.BalanceOf(bob).Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("bob should hold 5, got %s", l.BalanceOf(bob))
	}
}

func TestTransferFromFailureLeavesAllowanceIntact(t *testing.T) {
	l := NewLedger("WETH")
	l.Mint(engineAddr, alice, big.NewInt(1))
	l.Approve(alice, bob, big.NewInt(10))

	if l.TransferFrom(bob, alice, bob, big.NewInt(5)) {
		t.Fatal("transferFrom beyond balance should be refused")
	}
	if got := l.Allowance(alice, bob); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer must not consume allowance, got %s", got)
	}
	if got := l.BalanceOf(alice); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("failed transfer must not move balance, got %s", got)
	}

	// With the balance topped up the full standing approval still works.
	l.Mint(engineAddr, alice, big.NewInt(9))
	if !l.TransferFrom(bob, alice, bob, big.NewInt(10)) {
		t.Fatal("full allowance should remain spendable")
	}
	if got := l.Allowance(alice, bob); got.Sign() != 0 {
		t.Fatalf("allowance should now be exhausted, got %s", got)
	}
}

func TestTransferChecksBalance(t *testing.T) {
	l := NewLedger("WETH")
	l.Mint(engineAddr, alice, big.NewInt(3))

	if l.Transfer(alice, bob, big.NewInt(4)) {
		t.Fatal("transfer beyond balance should be refused")
	}
	if !l.Transfer(alice, bob, big.NewInt(3)) {
		t.Fatal("transfer within balance should succeed")
	}
}

func TestZeroAmountRefused(t *testing.T) {
	l := NewLedger("WETH")
	if l.Mint(engineAddr, alice, big.NewInt(0)) {
		t.Fatal("zero mint should be refused")
	}
	if l.Transfer(alice, bob, nil) {
		t.Fatal("nil transfer should be refused")
	}
}
