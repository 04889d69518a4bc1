package sponsorship

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
)

// TokenBackend is the external token system the deposit and withdrawal paths
// depend on. The sponsor never mints or burns; it pulls pre-approved balances
// in via TransferFrom and pays them back out of its own holding via Transfer.
type TokenBackend interface {
	BalanceOf(tokenID string, addr []byte) (*big.Int, error)
	Allowance(tokenID string, owner, spender []byte) (*big.Int, error)
	TransferFrom(tokenID string, from, to []byte, amount *big.Int) error
	Transfer(tokenID string, from, to []byte, amount *big.Int) error
}

// LedgerBackend is an in-process TokenBackend backed by plain maps. It serves
// deployments that have no external token system attached and doubles as the
// token fixture in tests. Keys are hex-encoded addresses; the zero value is not
// usable, construct it with NewLedgerBackend.
type LedgerBackend struct {
	mu         sync.Mutex
	balances   map[string]map[string]*big.Int
	allowances map[string]map[string]*big.Int
}

func NewLedgerBackend() *LedgerBackend {
	return &LedgerBackend{
		balances:   make(map[string]map[string]*big.Int),
		allowances: make(map[string]map[string]*big.Int),
	}
}

func ledgerKey(addr []byte) string { return hex.EncodeToString(addr) }

func allowanceKey(owner, spender []byte) string {
	return hex.EncodeToString(owner) + "/" + hex.EncodeToString(spender)
}

// Mint credits amount of tokenID to addr out of thin air. Test and bootstrap
// helper; a real token system never exposes this to the sponsor.
func (l *LedgerBackend) Mint(tokenID string, addr []byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(tokenID, addr, amount)
}

// Approve records that spender may pull up to amount of owner's tokenID.
func (l *LedgerBackend) Approve(tokenID string, owner, spender []byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byToken, ok := l.allowances[tokenID]
	if !ok {
		byToken = make(map[string]*big.Int)
		l.allowances[tokenID] = byToken
	}
	byToken[allowanceKey(owner, spender)] = new(big.Int).Set(amount)
}

func (l *LedgerBackend) BalanceOf(tokenID string, addr []byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(tokenID, addr)), nil
}

func (l *LedgerBackend) Allowance(tokenID string, owner, spender []byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if byToken, ok := l.allowances[tokenID]; ok {
		if allowance, ok := byToken[allowanceKey(owner, spender)]; ok {
			return new(big.Int).Set(allowance), nil
		}
	}
	return big.NewInt(0), nil
}

// TransferFrom treats the recipient as the approved spender. The sponsor only
// ever pulls funds to itself, so the two coincide here.
func (l *LedgerBackend) TransferFrom(tokenID string, from, to []byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	byToken, ok := l.allowances[tokenID]
	if !ok {
		return ErrInsufficientAllowance
	}
	key := allowanceKey(from, to)
	allowance, ok := byToken[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(tokenID, from, to, amount); err != nil {
		return err
	}
	byToken[key] = new(big.Int).Sub(allowance, amount)
	return nil
}

// Transfer spends from's own holding; no allowance is involved.
func (l *LedgerBackend) Transfer(tokenID string, from, to []byte, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(tokenID, from, to, amount)
}

func (l *LedgerBackend) balance(tokenID string, addr []byte) *big.Int {
	if byToken, ok := l.balances[tokenID]; ok {
		if balance, ok := byToken[ledgerKey(addr)]; ok {
			return balance
		}
	}
	return big.NewInt(0)
}

func (l *LedgerBackend) credit(tokenID string, addr []byte, amount *big.Int) {
	byToken, ok := l.balances[tokenID]
	if !ok {
		byToken = make(map[string]*big.Int)
		l.balances[tokenID] = byToken
	}
	key := ledgerKey(addr)
	current, ok := byToken[key]
	if !ok {
		current = big.NewInt(0)
	}
	byToken[key] = new(big.Int).Add(current, amount)
}

func (l *LedgerBackend) move(tokenID string, from, to []byte, amount *big.Int) error {
	balance := l.balance(tokenID, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("sponsorship: token balance too low")
	}
	byToken := l.balances[tokenID]
	byToken[ledgerKey(from)] = new(big.Int).Sub(balance, amount)
	l.credit(tokenID, to, amount)
	return nil
}
