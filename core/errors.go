package core

import "errors"

// Bid rejection kinds. Wording is informational; match with errors.Is.
var (
	ErrUnknownAuction       = errors.New("unknown auction")
	ErrTokenAuctionMismatch = errors.New("box_token_id does not match auction_index")
	ErrZeroBid              = errors.New("bid must be greater than 0")
	ErrFractionalBid        = errors.New("bid must be a whole number of tokens")
	ErrBelowPrice           = errors.New("bid below current price")
	ErrAllowanceExceeded    = errors.New("bid greater than allowance")
	ErrSoldOut              = errors.New("auction sold out")
)

// Ledger failures. Ledger implementations return these (possibly wrapped).
var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
)

// ErrUnavailable is returned when a settled bid could not be committed to the
// event log. The bid's transfers are undone before it is returned.
var ErrUnavailable = errors.New("bid engine unavailable")

// Error codes are stable identifiers for rejection kinds, used on the wire.
const (
	CodeUnknownAuction        = "unknown_auction"
	CodeTokenAuctionMismatch  = "token_auction_mismatch"
	CodeZeroBid               = "zero_bid"
	CodeFractionalBid         = "fractional_bid"
	CodeBelowPrice            = "below_price"
	CodeAllowanceExceeded     = "allowance_exceeded"
	CodeSoldOut               = "sold_out"
	CodeInsufficientInventory = "insufficient_inventory"
	CodeUnavailable           = "unavailable"
	CodeInternal              = "internal"
)

// ErrorCode maps an error returned by MakeBid to its stable code.
// Returns "" for a nil error.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownAuction):
		return CodeUnknownAuction
	case errors.Is(err, ErrTokenAuctionMismatch):
		return CodeTokenAuctionMismatch
	case errors.Is(err, ErrZeroBid):
		return CodeZeroBid
	case errors.Is(err, ErrFractionalBid):
		return CodeFractionalBid
	case errors.Is(err, ErrBelowPrice):
		return CodeBelowPrice
	case errors.Is(err, ErrAllowanceExceeded):
		return CodeAllowanceExceeded
	case errors.Is(err, ErrSoldOut):
		return CodeSoldOut
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientInventory
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
