// Package bidapi defines the JSON messages exchanged with the bid engine over
// its socket and HTTP transports.
package bidapi

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/boxauction/core"
)

// Request and response type tags.
const (
	TypePing            = "ping"
	TypePong            = "pong"
	TypeAuctionData     = "auction_data"
	TypeBidRequest      = "bid_request"
	TypeBidResponse     = "bid_response"
	TypeEventsRequest   = "events"
	TypeEventsResponse  = "events_response"
	TypeCatalogRequest  = "catalog_request"
	TypeCatalogResponse = "catalog_response"
	TypeError           = "error"
)

// BaseRequest is decoded first to route a request by its type.
type BaseRequest struct {
	Type string `json:"type"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// AuctionDataResponse lists every slot, last configured slot first.
type AuctionDataResponse struct {
	Type     string             `json:"type"`
	Auctions []core.AuctionSlot `json:"auctions"`
}

// BidRequest asks the engine to sell one unit of a slot to Bidder.
type BidRequest struct {
	Type         string          `json:"type"`
	Bidder       core.Address    `json:"bidder" binding:"required"`
	AuctionIndex int             `json:"auction_index"`
	BoxTokenID   core.TokenID    `json:"box_token_id"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
}

// ErrMissingBidder is returned by BidRequest.Validate when Bidder is empty.
var ErrMissingBidder = errors.New("bidder is required")

// Validate checks the request fields the engine cannot check itself.
func (r BidRequest) Validate() error {
	if r.Bidder == "" {
		return ErrMissingBidder
	}
	return nil
}

// Bid converts the request to the engine's bid type.
func (r BidRequest) Bid() core.Bid {
	return core.Bid{
		Bidder:       r.Bidder,
		AuctionIndex: r.AuctionIndex,
		BoxTokenID:   r.BoxTokenID,
		BidAmount:    r.BidAmount,
	}
}

// BidResponse reports the outcome of a BidRequest. Code is one of the
// core.Code* values when Success is false.
type BidResponse struct {
	Type           string           `json:"type"`
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	Code           string           `json:"code,omitempty"`
	Receipt        *core.BidReceipt `json:"receipt,omitempty"`
	ProcessingTime int64            `json:"processing_time_ms"`
}

// NewBidResponse builds the response for a MakeBid outcome.
func NewBidResponse(receipt *core.BidReceipt, err error, elapsed time.Duration) BidResponse {
	resp := BidResponse{
		Type:           TypeBidResponse,
		ProcessingTime: elapsed.Milliseconds(),
	}
	if err != nil {
		resp.Message = err.Error()
		resp.Code = core.ErrorCode(err)
		return resp
	}
	resp.Success = true
	resp.Message = "bid accepted"
	resp.Receipt = receipt
	return resp
}

// EventsRequest asks for committed events with sequence >= From.
type EventsRequest struct {
	Type string `json:"type"`
	From uint64 `json:"from"`
}

// EventsResponse carries a slice of the event log. Head is the hash of the
// last event in the whole log, or the genesis hash if it is empty.
type EventsResponse struct {
	Type   string          `json:"type"`
	Events []core.BidEvent `json:"events"`
	Head   string          `json:"head"`
}

// NewEventsResponse builds an EventsResponse. A nil slice is sent as [].
func NewEventsResponse(events []core.BidEvent, head string) EventsResponse {
	if events == nil {
		events = []core.BidEvent{}
	}
	return EventsResponse{
		Type:   TypeEventsResponse,
		Events: events,
		Head:   head,
	}
}

// SlotResponse describes one slot together with its current price.
type SlotResponse struct {
	core.AuctionSlot
	CurrentPrice decimal.Decimal `json:"current_price"`
	Active       bool            `json:"active"`
}

// CatalogEntryResponse describes one box type of the catalog.
type CatalogEntryResponse struct {
	Index   int               `json:"index"`
	Shape   string            `json:"shape"`
	Weights map[string]uint64 `json:"weights"`
}

// ApproveRequest sets the engine's allowance over Owner's settlement tokens.
// Only served by deployments running the in-memory ledgers.
type ApproveRequest struct {
	Owner  core.Address    `json:"owner" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

// BalanceResponse reports an account's settlement position.
type BalanceResponse struct {
	Owner     core.Address    `json:"owner"`
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"`
}

// InventoryResponse reports an account's holding of one box token.
type InventoryResponse struct {
	Owner      core.Address `json:"owner"`
	BoxTokenID core.TokenID `json:"box_token_id"`
	Balance    uint64       `json:"balance"`
}

// CatalogResponse distributes the sealed box catalog.
type CatalogResponse struct {
	Type             string                 `json:"type"`
	Entries          int                    `json:"entries"`
	SealedCatalog    SealedCatalogBase64    `json:"sealed_catalog,omitempty"`
	SealedCatalogURL SealedCatalogURLBase64 `json:"sealed_catalog_url,omitempty"`
}

// ErrorResponse is returned for malformed or unknown requests.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorResponse builds an ErrorResponse.
func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Type: TypeError, Message: message}
}
