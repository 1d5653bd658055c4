package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/boxauction/core"
)

var (
	// ErrInvalidAmount is returned for negative or fractional amounts.
	ErrInvalidAmount = errors.New("amount must be a non-negative integer")
	// ErrZeroAddress is returned when an account address is empty.
	ErrZeroAddress = errors.New("address must not be empty")
)

// Settlement is an in-memory fungible token ledger with an allowance model.
// Every method is atomic; transfers conserve total supply.
type Settlement struct {
	mu          sync.Mutex
	balances    map[core.Address]decimal.Decimal
	allowances  map[core.Address]map[core.Address]decimal.Decimal
	totalSupply decimal.Decimal
}

var _ core.SettlementLedger = (*Settlement)(nil)

// NewSettlement creates an empty settlement ledger.
func NewSettlement() *Settlement {
	return &Settlement{
		balances:    make(map[core.Address]decimal.Decimal),
		allowances:  make(map[core.Address]map[core.Address]decimal.Decimal),
		totalSupply: decimal.Zero,
	}
}

func validAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Truncate(0)) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

// Mint credits amount to an account. Used to seed balances at deployment.
func (l *Settlement) Mint(to core.Address, amount decimal.Decimal) error {
	if to == "" {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[to] = l.balanceLocked(to).Add(amount)
	l.totalSupply = l.totalSupply.Add(amount)
	return nil
}

// Approve sets the allowance spender may pull from owner, replacing any
// previous value.
func (l *Settlement) Approve(owner, spender core.Address, amount decimal.Decimal) error {
	if owner == "" || spender == "" {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.setAllowanceLocked(owner, spender, amount)
	return nil
}

// Allowance returns the remaining allowance of spender over owner's funds.
func (l *Settlement) Allowance(owner, spender core.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowanceLocked(owner, spender)
}

// BalanceOf returns owner's balance.
func (l *Settlement) BalanceOf(owner core.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(owner)
}

// TotalSupply returns the sum of all balances.
func (l *Settlement) TotalSupply() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalSupply
}

// Transfer moves amount from one account to another without an allowance.
func (l *Settlement) Transfer(from, to core.Address, amount decimal.Decimal) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.moveLocked(from, to, amount)
}

// TransferFrom moves amount from owner to recipient on behalf of spender.
// Checks allowance first, then balance; on either shortfall nothing changes.
func (l *Settlement) TransferFrom(owner, spender, recipient core.Address, amount decimal.Decimal) error {
	if owner == "" || spender == "" || recipient == "" {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(owner, spender)
	if allowance.LessThan(amount) {
		return fmt.Errorf("%w: %s approved %s for %s, need %s",
			core.ErrInsufficientAllowance, owner, spender, allowance, amount)
	}

	if err := l.moveLocked(owner, recipient, amount); err != nil {
		return err
	}

	l.setAllowanceLocked(owner, spender, allowance.Sub(amount))
	return nil
}

// RevertTransferFrom undoes a completed TransferFrom: the recipient pays
// amount back to owner and spender's allowance is restored.
func (l *Settlement) RevertTransferFrom(owner, spender, recipient core.Address, amount decimal.Decimal) error {
	if owner == "" || spender == "" || recipient == "" {
		return ErrZeroAddress
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.moveLocked(recipient, owner, amount); err != nil {
		return fmt.Errorf("revert transfer: %w", err)
	}

	l.setAllowanceLocked(owner, spender, l.allowanceLocked(owner, spender).Add(amount))
	return nil
}

func (l *Settlement) moveLocked(from, to core.Address, amount decimal.Decimal) error {
	balance := l.balanceLocked(from)
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", core.ErrInsufficientBalance, from, balance, amount)
	}

	l.balances[from] = balance.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

func (l *Settlement) balanceLocked(owner core.Address) decimal.Decimal {
	if balance, ok := l.balances[owner]; ok {
		return balance
	}
	return decimal.Zero
}

func (l *Settlement) allowanceLocked(owner, spender core.Address) decimal.Decimal {
	if spenders, ok := l.allowances[owner]; ok {
		if allowance, ok := spenders[spender]; ok {
			return allowance
		}
	}
	return decimal.Zero
}

func (l *Settlement) setAllowanceLocked(owner, spender core.Address, amount decimal.Decimal) {
	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[core.Address]decimal.Decimal)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amount
}
