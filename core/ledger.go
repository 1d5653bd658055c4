package core

import "github.com/shopspring/decimal"

// SettlementLedger is the fungible settlement token with an allowance model.
// The engine is always the spender; it never mints or burns.
type SettlementLedger interface {
	// Allowance returns how much spender may still pull from owner.
	Allowance(owner, spender Address) decimal.Decimal

	// TransferFrom moves amount from owner to recipient, consuming spender's
	// allowance. It is atomic: on error nothing moved. Returns
	// ErrInsufficientAllowance or ErrInsufficientBalance on shortfall.
	TransferFrom(owner, spender, recipient Address, amount decimal.Decimal) error

	// RevertTransferFrom undoes a TransferFrom that succeeded, restoring both
	// the owner's balance and the spender's allowance. Called only when the
	// inventory leg of a bid fails after the settlement leg succeeded.
	RevertTransferFrom(owner, spender, recipient Address, amount decimal.Decimal) error
}

// InventoryLedger is the multi-token ledger holding box-token balances.
type InventoryLedger interface {
	BalanceOf(owner Address, tokenID TokenID) uint64

	// Transfer moves amount units of tokenID. Atomic; returns
	// ErrInsufficientBalance when from holds fewer than amount.
	Transfer(from, to Address, tokenID TokenID, amount uint64) error
}
