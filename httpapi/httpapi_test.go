package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/gin-gonic/gin"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/core"
	"github.com/cloudx-io/boxauction/service"
	"github.com/cloudx-io/boxauction/store"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newTestRouter(t, testConfig(), config.HTTPConf{Mode: gin.TestMode, EnableApprovals: true})
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConf{Account: "0xe9"},
		Auctions: []config.AuctionConf{
			{BoxTokenID: 5, Quantity: 1, AuctionStart: "1970-01-01T00:02:14Z", AuctionDuration: 24 * time.Hour, InitialPrice: "2000"},
			{BoxTokenID: 2, Quantity: 2, AuctionStart: "1970-01-01T00:03:18Z", AuctionDuration: 24 * time.Hour, InitialPrice: "2000"},
		},
		Pricing: config.PricingConf{Policy: config.PolicyNone},
		Catalog: config.CatalogConf{Path: filepath.Join("..", "catalog", "testdata", "boxes.yaml")},
		Store:   config.StoreConf{Path: "events"},
		Genesis: config.GenesisConf{
			Balances:  []config.BalanceConf{{Account: "0xcafe", Amount: "1000"}},
			Approvals: []config.ApprovalConf{{Owner: "0xcafe", Amount: "500"}},
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, conf config.HTTPConf) *gin.Engine {
	t.Helper()
	svc, err := service.New(cfg, zap.NewNop(), service.WithStoreOptions(store.WithFS(vfs.NewMem())))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	return NewRouter(conf, svc, zap.NewNop())
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	r := testRouter(t)
	rec := do(t, r, http.MethodGet, "/health", nil)
	check.Equal(t, http.StatusOK, rec.Code)

	var resp bidapi.PongResponse
	decode(t, rec, &resp)
	check.Equal(t, bidapi.TypePong, resp.Type)
}

func TestAuctions(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, http.MethodGet, "/v1/auctions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var list bidapi.AuctionDataResponse
	decode(t, rec, &list)
	assert.Equal(t, 2, len(list.Auctions))
	check.Equal(t, 1, list.Auctions[0].Index)
	check.Equal(t, core.TokenID(2), list.Auctions[0].BoxTokenID)

	rec = do(t, r, http.MethodGet, "/v1/auctions/0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var slot bidapi.SlotResponse
	decode(t, rec, &slot)
	check.Equal(t, core.TokenID(5), slot.BoxTokenID)
	check.Equal(t, uint64(1), slot.RemainingSupply)
	check.Equal(t, "0", slot.CurrentPrice.String())
	check.False(t, slot.Active)

	check.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v1/auctions/7", nil).Code)
	check.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/auctions/x", nil).Code)
}

func TestBids(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown auction",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 9, "box_token_id": 2, "bid_amount": "1"},
			wantStatus: http.StatusNotFound,
			wantCode:   core.CodeUnknownAuction,
		},
		{
			name:       "token mismatch",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 5, "bid_amount": "1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   core.CodeTokenAuctionMismatch,
		},
		{
			name:       "zero bid",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "0"},
			wantStatus: http.StatusBadRequest,
			wantCode:   core.CodeZeroBid,
		},
		{
			name:       "allowance exceeded",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "501"},
			wantStatus: http.StatusPaymentRequired,
			wantCode:   core.CodeAllowanceExceeded,
		},
		{
			name:       "fractional amount",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "1.5"},
			wantStatus: http.StatusBadRequest,
			wantCode:   core.CodeFractionalBid,
		},
		{
			name:       "accepted",
			body:       map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "100"},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRouter(t)
			rec := do(t, r, http.MethodPost, "/v1/bids", tt.body)
			check.Equal(t, tt.wantStatus, rec.Code)

			var resp bidapi.BidResponse
			decode(t, rec, &resp)
			check.Equal(t, tt.wantCode, resp.Code)
			check.Equal(t, tt.wantCode == "", resp.Success)
		})
	}
}

func TestBids_SoldOut(t *testing.T) {
	r := testRouter(t)
	body := map[string]any{"bidder": "0xcafe", "auction_index": 0, "box_token_id": 5, "bid_amount": "100"}

	check.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/bids", body).Code)

	rec := do(t, r, http.MethodPost, "/v1/bids", body)
	check.Equal(t, http.StatusConflict, rec.Code)
	var resp bidapi.BidResponse
	decode(t, rec, &resp)
	check.Equal(t, core.CodeSoldOut, resp.Code)
}

func TestBids_MalformedBody(t *testing.T) {
	r := testRouter(t)

	for _, body := range []map[string]any{
		{"auction_index": 1, "box_token_id": 2, "bid_amount": "1"},
		{"bidder": "", "auction_index": 1, "box_token_id": 2, "bid_amount": "1"},
	} {
		rec := do(t, r, http.MethodPost, "/v1/bids", body)
		check.Equal(t, http.StatusBadRequest, rec.Code)
		var resp bidapi.ErrorResponse
		decode(t, rec, &resp)
		check.Equal(t, bidapi.TypeError, resp.Type)
	}

	rec := do(t, r, http.MethodGet, "/v1/settlement/0xcafe", nil)
	var balance bidapi.BalanceResponse
	decode(t, rec, &balance)
	check.Equal(t, "1000", balance.Balance.String())
}

func TestEvents(t *testing.T) {
	r := testRouter(t)
	body := map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "100"}
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/bids", body).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/bids", body).Code)

	rec := do(t, r, http.MethodGet, "/v1/events?from=1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp bidapi.EventsResponse
	decode(t, rec, &resp)
	assert.Equal(t, 1, len(resp.Events))
	check.Equal(t, uint64(1), resp.Events[0].Sequence)
	check.Equal(t, resp.Events[0].Hash, resp.Head)

	check.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/events?from=-1", nil).Code)
}

func TestCatalog(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, http.MethodGet, "/v1/catalog/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var entry bidapi.CatalogEntryResponse
	decode(t, rec, &entry)
	check.Equal(t, "cube", entry.Shape)
	check.Equal(t, map[string]uint64{"0x1": 10, "0x3": 20, "0x4": 0, "0x5": 0, "0x6": 0}, entry.Weights)

	check.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v1/catalog/6", nil).Code)
	check.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/v1/catalog/sealed", nil).Code)
}

func TestSealedCatalogEncodings(t *testing.T) {
	key, err := catalog.GenerateSealingKey()
	assert.NoError(t, err)
	keyPEM, err := catalog.MarshalPrivateKeyPEM(key)
	assert.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "seal.pem")
	assert.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))

	cfg := testConfig()
	cfg.Catalog.SigningKey = keyPath
	r := newTestRouter(t, cfg, config.HTTPConf{Mode: gin.TestMode})

	rec := do(t, r, http.MethodGet, "/v1/catalog/sealed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var std bidapi.CatalogResponse
	decode(t, rec, &std)
	check.Equal(t, "", std.SealedCatalogURL.String())
	stdRaw, err := std.SealedCatalog.Decode()
	assert.NoError(t, err)

	rec = do(t, r, http.MethodGet, "/v1/catalog/sealed?encoding=base64url", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var url bidapi.CatalogResponse
	decode(t, rec, &url)
	check.Equal(t, "", url.SealedCatalog.String())
	urlRaw, err := url.SealedCatalogURL.Decode()
	assert.NoError(t, err)
	check.Equal(t, stdRaw, urlRaw)

	opened, err := catalog.OpenSealed(urlRaw, &key.PublicKey)
	assert.NoError(t, err)
	check.Equal(t, 5, opened.Len())

	check.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/catalog/sealed?encoding=hex", nil).Code)
}

func TestApprovalsDisabledByDefault(t *testing.T) {
	r := newTestRouter(t, testConfig(), config.HTTPConf{Mode: gin.TestMode})

	rec := do(t, r, http.MethodPost, "/v1/settlement/approvals", map[string]any{"owner": "0xcafe", "amount": "50"})
	check.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/v1/settlement/0xcafe", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var balance bidapi.BalanceResponse
	decode(t, rec, &balance)
	check.Equal(t, "500", balance.Allowance.String())
}

func TestSettlementAndInventory(t *testing.T) {
	r := testRouter(t)

	rec := do(t, r, http.MethodPost, "/v1/settlement/approvals", map[string]any{"owner": "0xcafe", "amount": "50"})
	assert.Equal(t, http.StatusOK, rec.Code)
	var balance bidapi.BalanceResponse
	decode(t, rec, &balance)
	check.Equal(t, "1000", balance.Balance.String())
	check.Equal(t, "50", balance.Allowance.String())

	check.Equal(t, http.StatusBadRequest,
		do(t, r, http.MethodPost, "/v1/settlement/approvals", map[string]any{"owner": "0xcafe", "amount": "-1"}).Code)

	bid := map[string]any{"bidder": "0xcafe", "auction_index": 1, "box_token_id": 2, "bid_amount": "50"}
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/v1/bids", bid).Code)

	rec = do(t, r, http.MethodGet, "/v1/settlement/0xe9", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &balance)
	check.Equal(t, "50", balance.Balance.String())

	rec = do(t, r, http.MethodGet, "/v1/inventory/0xcafe/2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var inv bidapi.InventoryResponse
	decode(t, rec, &inv)
	check.Equal(t, uint64(1), inv.Balance)

	check.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/v1/inventory/0xcafe/x", nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{core.ErrUnknownAuction, http.StatusNotFound},
		{core.ErrSoldOut, http.StatusConflict},
		{core.ErrAllowanceExceeded, http.StatusPaymentRequired},
		{core.ErrZeroBid, http.StatusBadRequest},
		{core.ErrFractionalBid, http.StatusBadRequest},
		{fmt.Errorf("%w: event 0: %w", core.ErrUnavailable, errors.New("disk full")), http.StatusServiceUnavailable},
		{core.ErrInsufficientBalance, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			check.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
