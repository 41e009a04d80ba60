package ledger

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync"

	"github.com/defistate/synthamm/amm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrSameAccount         = errors.New("cannot transfer to the same account")
)

type key struct {
	account amm.Account
	mint    amm.Mint
}

// Ledger is an in-memory token ledger safe for concurrent use.
type Ledger struct {
	mu       sync.RWMutex
	balances map[key]uint64
	supply   map[amm.Mint]uint64
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[key]uint64),
		supply:   make(map[amm.Mint]uint64),
	}
}

// Transfer moves amount of mint from one account to another.
func (l *Ledger) Transfer(from, to amm.Account, mint amm.Mint, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSameAccount, from)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src, dst := key{from, mint}, key{to, mint}
	if l.balances[src] < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientBalance, from, l.balances[src], mint, amount)
	}
	sum, carry := bits.Add64(l.balances[dst], amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, to, mint)
	}
	l.balances[src] -= amount
	l.balances[dst] = sum
	return nil
}

// Mint creates amount of mint in account.
func (l *Ledger) Mint(to amm.Account, mint amm.Mint, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, carry := bits.Add64(l.supply[mint], amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: supply of %s", ErrBalanceOverflow, mint)
	}
	l.supply[mint] = supply
	l.balances[key{to, mint}] += amount
	return nil
}

// Burn destroys amount of mint held by account.
func (l *Ledger) Burn(from amm.Account, mint amm.Mint, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{from, mint}
	if l.balances[k] < amount {
		return fmt.Errorf("%w: %s holds %d %s, burning %d", ErrInsufficientBalance, from, l.balances[k], mint, amount)
	}
	l.balances[k] -= amount
	l.supply[mint] -= amount
	if l.balances[k] == 0 {
		delete(l.balances, k)
	}
	return nil
}

func (l *Ledger) Balance(account amm.Account, mint amm.Mint) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[key{account, mint}]
}

// Supply returns the total minted and not burned amount of mint.
func (l *Ledger) Supply(mint amm.Mint) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[mint]
}

// Entry is one non-zero balance.
type Entry struct {
	Account amm.Account `json:"account"`
	Mint    amm.Mint    `json:"mint"`
	Amount  uint64      `json:"amount"`
}

// Entries returns every non-zero balance ordered by account then mint.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	entries := make([]Entry, 0, len(l.balances))
	for k, amount := range l.balances {
		if amount > 0 {
			entries = append(entries, Entry{Account: k.account, Mint: k.mint, Amount: amount})
		}
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Account != entries[j].Account {
			return entries[i].Account < entries[j].Account
		}
		return entries[i].Mint < entries[j].Mint
	})
	return entries
}
