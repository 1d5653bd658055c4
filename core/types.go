package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Address identifies an account on either ledger (bidder, engine, holding account).
type Address string

// TokenID identifies a box type on the inventory ledger.
type TokenID uint64

// SlotConfig is the deployment-time seed record for one auction slot.
// Slots are indexed by their position in the configured list.
type SlotConfig struct {
	BoxTokenID      TokenID
	Quantity        uint64
	AuctionStart    time.Time
	AuctionDuration time.Duration
	InitialPrice    decimal.Decimal
}

// AuctionSlot is a read-only snapshot of one auction slot.
type AuctionSlot struct {
	Index           int             `json:"index"`
	BoxTokenID      TokenID         `json:"box_token_id"`
	TotalSupply     uint64          `json:"total_supply"`
	RemainingSupply uint64          `json:"remaining_supply"`
	AuctionStart    time.Time       `json:"auction_start"`
	AuctionDuration time.Duration   `json:"auction_duration"`
	InitialPrice    decimal.Decimal `json:"initial_price"`
}

// End returns the exclusive end of the slot's scheduling window.
func (s AuctionSlot) End() time.Time {
	return s.AuctionStart.Add(s.AuctionDuration)
}

// Active reports whether now falls inside [AuctionStart, AuctionStart+AuctionDuration).
func (s AuctionSlot) Active(now time.Time) bool {
	return !now.Before(s.AuctionStart) && now.Before(s.End())
}

// SoldOut reports whether the slot has no remaining units.
func (s AuctionSlot) SoldOut() bool {
	return s.RemainingSupply == 0
}

// Bid is a transient request to buy one unit from a slot.
type Bid struct {
	Bidder       Address         `json:"bidder"`
	AuctionIndex int             `json:"auction_index"`
	BoxTokenID   TokenID         `json:"box_token_id"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
}

// BidEvent is the append-only record emitted for every accepted bid.
// Sequence is the 0-based emission order across all slots.
type BidEvent struct {
	Sequence     uint64          `json:"sequence"`
	AuctionIndex int             `json:"auction_index"`
	Bidder       Address         `json:"bidder"`
	BoxTokenID   TokenID         `json:"box_token_id"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
	PrevHash     string          `json:"prev_hash"`
	Hash         string          `json:"hash"`
}

// BidReceipt is returned to the caller of MakeBid on acceptance.
type BidReceipt struct {
	ID              uuid.UUID       `json:"id"`
	Event           BidEvent        `json:"event"`
	RemainingSupply uint64          `json:"remaining_supply"`
	Price           decimal.Decimal `json:"price"`
}
