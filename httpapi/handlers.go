package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/core"
	"github.com/cloudx-io/boxauction/ledger"
	"github.com/cloudx-io/boxauction/service"
)

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrStoreUnavailable),
		errors.Is(err, core.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrUnknownAuction),
		errors.Is(err, service.ErrNoCatalog),
		errors.Is(err, service.ErrUnknownBoxType):
		return http.StatusNotFound
	case errors.Is(err, core.ErrSoldOut),
		errors.Is(err, core.ErrInsufficientBalance):
		return http.StatusConflict
	case errors.Is(err, core.ErrAllowanceExceeded):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrTokenAuctionMismatch),
		errors.Is(err, core.ErrZeroBid),
		errors.Is(err, core.ErrFractionalBid),
		errors.Is(err, core.ErrBelowPrice),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrZeroAddress):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, bidapi.NewErrorResponse(err.Error()))
}

func intParam(c *gin.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, c.Param(name))
	}
	return v, nil
}

// HealthHandler answers liveness probes.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, bidapi.PongResponse{
			Type:      bidapi.TypePong,
			Message:   "bid engine is healthy",
			Timestamp: time.Now().Unix(),
		})
	}
}

// AuctionListHandler returns every slot, last configured slot first.
func AuctionListHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, bidapi.AuctionDataResponse{
			Type:     bidapi.TypeAuctionData,
			Auctions: svc.AuctionData(),
		})
	}
}

// AuctionSlotHandler returns one slot with its current price.
func AuctionSlotHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := intParam(c, "index")
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		slot, err := svc.Slot(index)
		if err != nil {
			abortWithError(c, statusFor(err), err)
			return
		}
		price, err := svc.CurrentPrice(index)
		if err != nil {
			abortWithError(c, statusFor(err), err)
			return
		}
		c.JSON(http.StatusOK, bidapi.SlotResponse{
			AuctionSlot:  slot,
			CurrentPrice: price,
			Active:       slot.Active(time.Now()),
		})
	}
}

// BidHandler submits a bid. Rejections carry a BidResponse with a code.
func BidHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bidapi.BidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("failed to decode bid request: %w", err))
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		start := time.Now()
		receipt, err := svc.MakeBid(c.Request.Context(), req.Bid())
		resp := bidapi.NewBidResponse(receipt, err, time.Since(start))
		if err != nil {
			_ = c.Error(err)
			c.JSON(statusFor(err), resp)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// EventsHandler returns committed events from the "from" query sequence.
func EventsHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid from %q", c.Query("from")))
			return
		}
		events, head := svc.Events(from)
		c.JSON(http.StatusOK, bidapi.NewEventsResponse(events, head))
	}
}

// CatalogEntryHandler returns one box type by 1-based catalog index.
func CatalogEntryHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := intParam(c, "index")
		if err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		entry, err := svc.CatalogEntry(index)
		if err != nil {
			abortWithError(c, statusFor(err), err)
			return
		}

		weights := make(map[string]uint64, catalog.NumAttributes)
		for i, id := range catalog.AttributeIDs {
			weights[fmt.Sprintf("%#x", uint64(id))] = entry.Weights[i]
		}
		c.JSON(http.StatusOK, bidapi.CatalogEntryResponse{
			Index:   entry.Index,
			Shape:   entry.Shape,
			Weights: weights,
		})
	}
}

// SealedCatalogHandler serves the COSE-sealed catalog as standard base64, or
// as unpadded URL-safe base64 with ?encoding=base64url.
func SealedCatalogHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sealed := svc.SealedCatalog()
		if len(sealed) == 0 {
			abortWithError(c, http.StatusNotFound, errors.New("no sealed catalog available"))
			return
		}

		resp := bidapi.CatalogResponse{Type: bidapi.TypeCatalogResponse}
		switch encoding := c.DefaultQuery("encoding", "base64"); encoding {
		case "base64":
			resp.SealedCatalog = sealed.EncodeBase64()
		case "base64url":
			resp.SealedCatalogURL = sealed.EncodeURLSafe()
		default:
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid encoding %q", encoding))
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// ApproveHandler sets the engine's allowance over an owner's settlement tokens.
// It performs no authentication and is only mounted when http.enable_approvals
// is set, for development deployments seeded from genesis.
func ApproveHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bidapi.ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("failed to decode approve request: %w", err))
			return
		}
		if err := svc.Approve(req.Owner, req.Amount); err != nil {
			abortWithError(c, statusFor(err), err)
			return
		}
		balance, allowance := svc.Balance(req.Owner)
		c.JSON(http.StatusOK, bidapi.BalanceResponse{Owner: req.Owner, Balance: balance, Allowance: allowance})
	}
}

// BalanceHandler reports an owner's settlement balance and allowance.
func BalanceHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := core.Address(c.Param("owner"))
		balance, allowance := svc.Balance(owner)
		c.JSON(http.StatusOK, bidapi.BalanceResponse{Owner: owner, Balance: balance, Allowance: allowance})
	}
}

// InventoryHandler reports an owner's holding of one box token.
func InventoryHandler(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := core.Address(c.Param("owner"))
		token, err := strconv.ParseUint(c.Param("token"), 10, 64)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, fmt.Errorf("invalid token %q", c.Param("token")))
			return
		}
		tokenID := core.TokenID(token)
		c.JSON(http.StatusOK, bidapi.InventoryResponse{
			Owner:      owner,
			BoxTokenID: tokenID,
			Balance:    svc.InventoryBalance(owner, tokenID),
		})
	}
}
