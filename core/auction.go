package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Clock provides the current time for price policies.
// This interface enables dependency injection for deterministic testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// slotState is one auction slot. The config is immutable after construction;
// remaining is guarded by mu.
type slotState struct {
	index     int
	config    SlotConfig
	mu        sync.Mutex
	remaining uint64
}

func (s *slotState) snapshot(remaining uint64) AuctionSlot {
	return AuctionSlot{
		Index:           s.index,
		BoxTokenID:      s.config.BoxTokenID,
		TotalSupply:     s.config.Quantity,
		RemainingSupply: remaining,
		AuctionStart:    s.config.AuctionStart,
		AuctionDuration: s.config.AuctionDuration,
		InitialPrice:    s.config.InitialPrice,
	}
}

// AuctionBook sells a fixed supply of box tokens per slot in exchange for the
// settlement token. MakeBid is the only mutator.
//
// Each slot carries its own lock spanning the supply check through the
// decrement, so concurrent bids can never oversell a slot. Bids against
// different slots proceed in parallel; the event log is ordered by a
// separate lock taken at commit.
type AuctionBook struct {
	slots      []*slotState
	settlement SettlementLedger
	inventory  InventoryLedger
	treasury   Address // receives settlement tokens
	holding    Address // holds box tokens for sale
	price      PriceFunc
	clock      Clock
	receiptID  func() uuid.UUID

	eventsMu    sync.Mutex
	events      []BidEvent
	lastHash    string
	commitHooks []func(BidEvent) error
}

// Option configures an AuctionBook.
type Option func(*AuctionBook) error

// WithHoldingAccount sets the inventory account box tokens are sold from.
// Defaults to the engine account.
func WithHoldingAccount(holding Address) Option {
	return func(b *AuctionBook) error {
		if holding == "" {
			return errors.New("holding account must not be empty")
		}
		b.holding = holding
		return nil
	}
}

// WithPriceFunc sets the price policy. Defaults to NoFloor.
func WithPriceFunc(price PriceFunc) Option {
	return func(b *AuctionBook) error {
		if price == nil {
			return errors.New("price func must not be nil")
		}
		b.price = price
		return nil
	}
}

// WithClock sets the time source passed to the price policy.
func WithClock(clock Clock) Option {
	return func(b *AuctionBook) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		b.clock = clock
		return nil
	}
}

// WithReceiptIDs sets the receipt ID generator. Defaults to uuid.New.
func WithReceiptIDs(gen func() uuid.UUID) Option {
	return func(b *AuctionBook) error {
		if gen == nil {
			return errors.New("receipt id generator must not be nil")
		}
		b.receiptID = gen
		return nil
	}
}

// WithCommitHook registers fn to run under the event log lock before each
// event is committed, in emission order. fn must not call back into the book.
// A non-nil error aborts the bid: its transfers are undone, no event is
// recorded, and MakeBid returns the error wrapped in ErrUnavailable.
func WithCommitHook(fn func(BidEvent) error) Option {
	return func(b *AuctionBook) error {
		if fn == nil {
			return errors.New("commit hook must not be nil")
		}
		b.commitHooks = append(b.commitHooks, fn)
		return nil
	}
}

// WithEvents replays a previously emitted event log. Remaining supply is
// rebuilt from the log, and new events continue its sequence and hash chain.
// The log must verify, reference existing slots with matching box tokens,
// and never exceed a slot's total supply.
func WithEvents(events []BidEvent) Option {
	return func(b *AuctionBook) error {
		if err := VerifyEventChain(events); err != nil {
			return fmt.Errorf("replay events: %w", err)
		}

		for _, event := range events {
			if event.AuctionIndex < 0 || event.AuctionIndex >= len(b.slots) {
				return fmt.Errorf("replay event %d: %w: index %d", event.Sequence, ErrUnknownAuction, event.AuctionIndex)
			}
			slot := b.slots[event.AuctionIndex]
			if event.BoxTokenID != slot.config.BoxTokenID {
				return fmt.Errorf("replay event %d: %w", event.Sequence, ErrTokenAuctionMismatch)
			}
			if slot.remaining == 0 {
				return fmt.Errorf("replay event %d: %w: slot %d oversold", event.Sequence, ErrSoldOut, event.AuctionIndex)
			}
			slot.remaining--
		}

		b.events = slices.Clone(events)
		if len(events) > 0 {
			b.lastHash = events[len(events)-1].Hash
		}
		return nil
	}
}

// NewAuctionBook creates a book over the given slot seeds. Slot i in the
// returned book is slots[i]. The engine account receives settlement tokens
// and, unless WithHoldingAccount is given, is the inventory holding account.
func NewAuctionBook(
	slots []SlotConfig,
	settlement SettlementLedger,
	inventory InventoryLedger,
	engine Address,
	opts ...Option,
) (*AuctionBook, error) {
	if engine == "" {
		return nil, errors.New("engine account must not be empty")
	}
	if settlement == nil {
		return nil, errors.New("settlement ledger is nil")
	}
	if inventory == nil {
		return nil, errors.New("inventory ledger is nil")
	}

	b := &AuctionBook{
		slots:      make([]*slotState, len(slots)),
		settlement: settlement,
		inventory:  inventory,
		treasury:   engine,
		holding:    engine,
		price:      NoFloor,
		clock:      realClock{},
		receiptID:  uuid.New,
		lastHash:   GenesisHash,
	}

	for i, cfg := range slots {
		if cfg.Quantity == 0 {
			return nil, fmt.Errorf("slot %d: quantity must be positive", i)
		}
		if cfg.AuctionDuration < 0 {
			return nil, fmt.Errorf("slot %d: negative auction duration", i)
		}
		if cfg.InitialPrice.IsNegative() {
			return nil, fmt.Errorf("slot %d: negative initial price", i)
		}
		b.slots[i] = &slotState{
			index:     i,
			config:    cfg,
			remaining: cfg.Quantity,
		}
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Len returns the number of configured slots.
func (b *AuctionBook) Len() int {
	return len(b.slots)
}

// EngineAccount returns the settlement recipient account.
func (b *AuctionBook) EngineAccount() Address {
	return b.treasury
}

// HoldingAccount returns the inventory account box tokens are sold from.
func (b *AuctionBook) HoldingAccount() Address {
	return b.holding
}

// GetAuctionData returns a snapshot of every slot in reverse declaration
// order (last configured slot first). The ordering is part of the contract.
func (b *AuctionBook) GetAuctionData() []AuctionSlot {
	result := make([]AuctionSlot, 0, len(b.slots))
	for i := len(b.slots) - 1; i >= 0; i-- {
		result = append(result, b.readSlot(b.slots[i]))
	}
	return result
}

// Slot returns a snapshot of the slot at index.
func (b *AuctionBook) Slot(index int) (AuctionSlot, error) {
	if index < 0 || index >= len(b.slots) {
		return AuctionSlot{}, fmt.Errorf("%w: index %d", ErrUnknownAuction, index)
	}
	return b.readSlot(b.slots[index]), nil
}

func (b *AuctionBook) readSlot(s *slotState) AuctionSlot {
	s.mu.Lock()
	remaining := s.remaining
	s.mu.Unlock()
	return s.snapshot(remaining)
}

// CurrentPrice returns the price policy's value for a slot right now.
func (b *AuctionBook) CurrentPrice(index int) (decimal.Decimal, error) {
	slot, err := b.Slot(index)
	if err != nil {
		return decimal.Zero, err
	}
	return b.price(slot, b.clock.Now()), nil
}

// Events returns the committed events with sequence >= from.
func (b *AuctionBook) Events(from uint64) []BidEvent {
	b.eventsMu.Lock()
	defer b.eventsMu.Unlock()

	if from >= uint64(len(b.events)) {
		return []BidEvent{}
	}
	return slices.Clone(b.events[from:])
}

// Head returns the number of committed events and the hash of the last one
// (GenesisHash for an empty log).
func (b *AuctionBook) Head() (uint64, string) {
	b.eventsMu.Lock()
	defer b.eventsMu.Unlock()
	return uint64(len(b.events)), b.lastHash
}

// MakeBid validates a bid and, if it passes, exchanges bid.BidAmount of the
// settlement token for one unit of the slot's box token.
//
// Validation order:
//  1. auction index exists (ErrUnknownAuction)
//  2. box token matches the slot (ErrTokenAuctionMismatch)
//  3. amount is positive (ErrZeroBid) and whole (ErrFractionalBid)
//  4. amount meets the price policy (ErrBelowPrice, never with NoFloor)
//  5. allowance covers the amount (ErrAllowanceExceeded)
//  6. slot has remaining supply (ErrSoldOut)
//
// All checks run before any ledger call. On any failure, including a rejected
// commit hook, no balance, counter, or event changes.
func (b *AuctionBook) MakeBid(ctx context.Context, bid Bid) (*BidReceipt, error) {
	if bid.AuctionIndex < 0 || bid.AuctionIndex >= len(b.slots) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownAuction, bid.AuctionIndex)
	}
	slot := b.slots[bid.AuctionIndex]

	if bid.BoxTokenID != slot.config.BoxTokenID {
		return nil, fmt.Errorf("%w: slot %d sells token %d, bid names %d",
			ErrTokenAuctionMismatch, slot.index, slot.config.BoxTokenID, bid.BoxTokenID)
	}

	if !bid.BidAmount.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", ErrZeroBid, bid.BidAmount)
	}
	if !bid.BidAmount.Equal(bid.BidAmount.Truncate(0)) {
		return nil, fmt.Errorf("%w: got %s", ErrFractionalBid, bid.BidAmount)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	price := b.price(slot.snapshot(slot.remaining), b.clock.Now())
	if !BidMeetsPrice(bid.BidAmount, price) {
		return nil, fmt.Errorf("%w: bid %s, price %s", ErrBelowPrice, bid.BidAmount, price)
	}

	allowance := b.settlement.Allowance(bid.Bidder, b.treasury)
	if allowance.LessThan(bid.BidAmount) {
		return nil, fmt.Errorf("%w: bid %s, allowance %s", ErrAllowanceExceeded, bid.BidAmount, allowance)
	}

	if slot.remaining == 0 {
		return nil, fmt.Errorf("%w: slot %d", ErrSoldOut, slot.index)
	}

	if held := b.inventory.BalanceOf(b.holding, slot.config.BoxTokenID); held < 1 {
		return nil, fmt.Errorf("inventory for token %d held by %s: %w", slot.config.BoxTokenID, b.holding, ErrInsufficientBalance)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := b.settlement.TransferFrom(bid.Bidder, b.treasury, b.treasury, bid.BidAmount); err != nil {
		if errors.Is(err, ErrInsufficientAllowance) || errors.Is(err, ErrInsufficientBalance) {
			return nil, fmt.Errorf("%w: %w", ErrAllowanceExceeded, err)
		}
		return nil, fmt.Errorf("settlement transfer: %w", err)
	}

	if err := b.inventory.Transfer(b.holding, bid.Bidder, slot.config.BoxTokenID, 1); err != nil {
		if revertErr := b.settlement.RevertTransferFrom(bid.Bidder, b.treasury, b.treasury, bid.BidAmount); revertErr != nil {
			return nil, fmt.Errorf("inventory transfer: %w (settlement revert failed: %w)", err, revertErr)
		}
		return nil, fmt.Errorf("inventory transfer: %w", err)
	}

	event, err := b.commit(slot.index, bid)
	if err != nil {
		if revertErr := b.revertTransfers(slot, bid); revertErr != nil {
			return nil, fmt.Errorf("%w (revert failed: %w)", err, revertErr)
		}
		return nil, err
	}
	slot.remaining--

	return &BidReceipt{
		ID:              b.receiptID(),
		Event:           event,
		RemainingSupply: slot.remaining,
		Price:           price,
	}, nil
}

// revertTransfers undoes both legs of a settled bid.
func (b *AuctionBook) revertTransfers(slot *slotState, bid Bid) error {
	return errors.Join(
		b.inventory.Transfer(bid.Bidder, b.holding, slot.config.BoxTokenID, 1),
		b.settlement.RevertTransferFrom(bid.Bidder, b.treasury, b.treasury, bid.BidAmount),
	)
}

// commit runs the commit hooks and, if they all pass, appends the event.
func (b *AuctionBook) commit(index int, bid Bid) (BidEvent, error) {
	b.eventsMu.Lock()
	defer b.eventsMu.Unlock()

	event := BidEvent{
		Sequence:     uint64(len(b.events)),
		AuctionIndex: index,
		Bidder:       bid.Bidder,
		BoxTokenID:   bid.BoxTokenID,
		BidAmount:    bid.BidAmount,
		PrevHash:     b.lastHash,
	}
	event.Hash = ComputeEventHash(event.PrevHash, event)

	for _, hook := range b.commitHooks {
		if err := hook(event); err != nil {
			return BidEvent{}, fmt.Errorf("%w: event %d: %w", ErrUnavailable, event.Sequence, err)
		}
	}

	b.events = append(b.events, event)
	b.lastHash = event.Hash

	return event, nil
}
