package ledger

import (
	"fmt"
	"math"
	"sync"

	"github.com/cloudx-io/boxauction/core"
)

// Inventory is an in-memory multi-token ledger for box tokens.
// Units of one token id are fungible; different ids are distinct box types.
type Inventory struct {
	mu       sync.Mutex
	balances map[core.TokenID]map[core.Address]uint64
	supply   map[core.TokenID]uint64
}

var _ core.InventoryLedger = (*Inventory)(nil)

// NewInventory creates an empty inventory ledger.
func NewInventory() *Inventory {
	return &Inventory{
		balances: make(map[core.TokenID]map[core.Address]uint64),
		supply:   make(map[core.TokenID]uint64),
	}
}

// Mint creates amount units of tokenID for an account.
func (l *Inventory) Mint(to core.Address, tokenID core.TokenID, amount uint64) error {
	if to == "" {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.supply[tokenID] > math.MaxUint64-amount {
		return fmt.Errorf("mint overflow: supply=%d + amount=%d wraps", l.supply[tokenID], amount)
	}

	l.holdersLocked(tokenID)[to] += amount
	l.supply[tokenID] += amount
	return nil
}

// BalanceOf returns how many units of tokenID owner holds.
func (l *Inventory) BalanceOf(owner core.Address, tokenID core.TokenID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[tokenID][owner]
}

// Supply returns the total units of tokenID in existence.
func (l *Inventory) Supply(tokenID core.TokenID) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.supply[tokenID]
}

// Transfer moves amount units of tokenID between accounts.
func (l *Inventory) Transfer(from, to core.Address, tokenID core.TokenID, amount uint64) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	holders := l.holdersLocked(tokenID)
	if holders[from] < amount {
		return fmt.Errorf("%w: %s holds %d of token %d, need %d",
			core.ErrInsufficientBalance, from, holders[from], tokenID, amount)
	}

	holders[from] -= amount
	holders[to] += amount
	return nil
}

func (l *Inventory) holdersLocked(tokenID core.TokenID) map[core.Address]uint64 {
	holders, ok := l.balances[tokenID]
	if !ok {
		holders = make(map[core.Address]uint64)
		l.balances[tokenID] = holders
	}
	return holders
}
