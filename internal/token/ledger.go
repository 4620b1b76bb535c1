package token

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyBound indicates a second controller handoff attempt.
	ErrAlreadyBound = errors.New("token: controller already bound")
	// ErrInsufficientBalance indicates a burn exceeding the holder's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
)

// Ledger is an in-process fungible token: balances, allowances, and a
// total supply, all tracked as big integers. Minting authority is held
// by a single controller bound once at setup; the same type backs both
// the synthetic debt token and plain collateral asset tokens (the
// latter are never bound, so test fixtures can faucet balances freely).
type Ledger struct {
	mu          sync.Mutex
	symbol      string
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int
	controller  common.Address
	bound       bool
}

// NewLedger constructs an empty ledger.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:      symbol,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// Bind hands minting authority to a single controller. The handoff is
// one-shot; rebinding fails.
func (l *Ledger) Bind(controller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bound {
		return ErrAlreadyBound
	}
	l.controller = controller
	l.bound = true
	return nil
}

// Mint credits amount to the recipient. Once bound, only the controller
// may mint. Returns false on refusal, mirroring the external contract
// surface.
func (l *Ledger) Mint(caller, to common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bound && caller != l.controller {
		return false
	}
	l.credit(to, amount)
	l.totalSupply = new(big.Int).Add(l.totalSupply, amount)
	return true
}

// Burn destroys amount from the caller's own balance.
func (l *Ledger) Burn(caller common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInsufficientBalance
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(caller)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[caller] = new(big.Int).Sub(bal, amount)
	l.totalSupply = new(big.Int).Sub(l.totalSupply, amount)
	return nil
}

// Transfer moves amount from the caller to the recipient.
func (l *Ledger) Transfer(caller, to common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(caller)
	if bal.Cmp(amount) < 0 {
		return false
	}
	l.balances[caller] = new(big.Int).Sub(bal, amount)
	l.credit(to, amount)
	return true
}

// TransferFrom moves amount from one holder to another on the strength
// of a prior allowance. All checks run before any write, so a false
// return means neither the balance nor the allowance changed.
func (l *Ledger) TransferFrom(caller, from, to common.Address, amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balanceLocked(from)
	if bal.Cmp(amount) < 0 {
		return false
	}

	if caller != from {
		allowed := l.allowanceLocked(from, caller)
		if allowed.Cmp(amount) < 0 {
			return false
		}
		l.allowances[from][caller] = new(big.Int).Sub(allowed, amount)
	}

	l.balances[from] = new(big.Int).Sub(bal, amount)
	l.credit(to, amount)
	return true
}

// Approve sets the spender's allowance over the owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[common.Address]*big.Int)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
}

// Allowance returns what the spender may still move from the owner.
func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowanceLocked(owner, spender))
}

// BalanceOf returns the holder's balance.
func (l *Ledger) BalanceOf(holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(holder))
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
}

func (l *Ledger) balanceLocked(holder common.Address) *big.Int {
	if bal, ok := l.balances[holder]; ok {
		return bal
	}
	return big.NewInt(0)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *big.Int {
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return big.NewInt(0)
}
