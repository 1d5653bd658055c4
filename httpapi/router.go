// Package httpapi exposes the bid engine over HTTP with gin.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/core"
)

// Service is the engine surface served over HTTP.
type Service interface {
	AuctionData() []core.AuctionSlot
	Slot(index int) (core.AuctionSlot, error)
	CurrentPrice(index int) (decimal.Decimal, error)
	MakeBid(ctx context.Context, bid core.Bid) (*core.BidReceipt, error)
	Events(from uint64) ([]core.BidEvent, string)
	CatalogEntry(index int) (catalog.Entry, error)
	SealedCatalog() bidapi.SealedCatalog
	Approve(owner core.Address, amount decimal.Decimal) error
	Balance(owner core.Address) (balance, allowance decimal.Decimal)
	InventoryBalance(owner core.Address, tokenID core.TokenID) uint64
}

// NewRouter builds the gin engine serving svc.
func NewRouter(conf config.HTTPConf, svc Service, logger *zap.Logger) *gin.Engine {
	if conf.Mode != "" {
		gin.SetMode(conf.Mode)
	}
	r := gin.New()
	r.Use(RecoverMiddleware(logger))
	r.Use(RequestLog(logger))

	if len(conf.AllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  conf.AllowOrigins,
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
			ExposeHeaders: []string{"Content-Length", "Content-Type"},
			MaxAge:        1 * time.Hour,
		}))
	}

	r.GET("/health", HealthHandler())
	loadV1(r, conf, svc)

	return r
}

func loadV1(r *gin.Engine, conf config.HTTPConf, svc Service) {
	apiV1 := r.Group("/v1")

	auctions := apiV1.Group("/auctions")
	{
		auctions.GET("", AuctionListHandler(svc))
		auctions.GET("/:index", AuctionSlotHandler(svc))
	}

	apiV1.POST("/bids", BidHandler(svc))
	apiV1.GET("/events", EventsHandler(svc))

	cat := apiV1.Group("/catalog")
	{
		cat.GET("/sealed", SealedCatalogHandler(svc))
		cat.GET("/:index", CatalogEntryHandler(svc))
	}

	settlement := apiV1.Group("/settlement")
	{
		if conf.EnableApprovals {
			settlement.POST("/approvals", ApproveHandler(svc))
		}
		settlement.GET("/:owner", BalanceHandler(svc))
	}

	apiV1.GET("/inventory/:owner/:token", InventoryHandler(svc))
}
