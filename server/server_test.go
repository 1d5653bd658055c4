package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/core"
)

type fakeEngine struct {
	slots  []core.AuctionSlot
	bids   []core.Bid
	bidErr error
	events []core.BidEvent
	head   string
	cat    *catalog.Catalog
	sealed bidapi.SealedCatalog
}

func (f *fakeEngine) AuctionData() []core.AuctionSlot { return f.slots }

func (f *fakeEngine) MakeBid(_ context.Context, bid core.Bid) (*core.BidReceipt, error) {
	f.bids = append(f.bids, bid)
	if f.bidErr != nil {
		return nil, f.bidErr
	}
	return &core.BidReceipt{RemainingSupply: 1, Price: bid.BidAmount}, nil
}

func (f *fakeEngine) Events(from uint64) ([]core.BidEvent, string) {
	var out []core.BidEvent
	for _, e := range f.events {
		if e.Sequence >= from {
			out = append(out, e)
		}
	}
	return out, f.head
}

func (f *fakeEngine) Catalog() *catalog.Catalog { return f.cat }

func (f *fakeEngine) SealedCatalog() bidapi.SealedCatalog { return f.sealed }

func testServer(engine Engine) *Server {
	return New(config.ServerConf{
		Network:     "tcp",
		Address:     "127.0.0.1:0",
		MaxWorkers:  4,
		ReadTimeout: 5 * time.Second,
	}, engine, zap.NewNop())
}

// roundTrip encodes the handler's response and decodes it into out.
func roundTrip(t *testing.T, s *Server, request string, out any) {
	t.Helper()
	raw, err := json.Marshal(s.Handle(context.Background(), []byte(request)))
	assert.NoError(t, err)
	assert.NoError(t, json.Unmarshal(raw, out))
}

func TestHandle_Ping(t *testing.T) {
	var resp bidapi.PongResponse
	roundTrip(t, testServer(&fakeEngine{}), `{"type":"ping"}`, &resp)

	check.Equal(t, bidapi.TypePong, resp.Type)
	check.True(t, resp.Timestamp > 0)
}

func TestHandle_AuctionData(t *testing.T) {
	engine := &fakeEngine{slots: []core.AuctionSlot{
		{Index: 1, BoxTokenID: 2, TotalSupply: 2, RemainingSupply: 2},
		{Index: 0, BoxTokenID: 5, TotalSupply: 1, RemainingSupply: 1},
	}}

	var resp bidapi.AuctionDataResponse
	roundTrip(t, testServer(engine), `{"type":"auction_data"}`, &resp)

	assert.Equal(t, 2, len(resp.Auctions))
	check.Equal(t, 1, resp.Auctions[0].Index)
	check.Equal(t, core.TokenID(5), resp.Auctions[1].BoxTokenID)
}

func TestHandle_BidRequest(t *testing.T) {
	tests := []struct {
		name        string
		request     string
		bidErr      error
		wantSuccess bool
		wantCode    string
		wantBids    int
	}{
		{
			name:        "accepted",
			request:     `{"type":"bid_request","bidder":"0xcafe","auction_index":1,"box_token_id":2,"bid_amount":"500"}`,
			wantSuccess: true,
			wantBids:    1,
		},
		{
			name:     "rejected by engine",
			request:  `{"type":"bid_request","bidder":"0xcafe","auction_index":0,"box_token_id":5,"bid_amount":"1"}`,
			bidErr:   core.ErrSoldOut,
			wantCode: core.CodeSoldOut,
			wantBids: 1,
		},
		{
			name:     "missing bidder",
			request:  `{"type":"bid_request","auction_index":0,"box_token_id":5,"bid_amount":"1"}`,
			wantBids: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{bidErr: tt.bidErr}

			var resp bidapi.BidResponse
			roundTrip(t, testServer(engine), tt.request, &resp)

			check.Equal(t, tt.wantSuccess, resp.Success)
			check.Equal(t, tt.wantCode, resp.Code)
			check.Equal(t, tt.wantBids, len(engine.bids))
		})
	}
}

func TestHandle_BidRequestDecodesAmount(t *testing.T) {
	engine := &fakeEngine{}
	var resp bidapi.BidResponse
	roundTrip(t, testServer(engine),
		`{"type":"bid_request","bidder":"0xcafe","auction_index":1,"box_token_id":2,"bid_amount":"18446744073709551616"}`,
		&resp)

	assert.Equal(t, 1, len(engine.bids))
	check.Equal(t, "18446744073709551616", engine.bids[0].BidAmount.String())
	check.Equal(t, core.Address("0xcafe"), engine.bids[0].Bidder)
	assert.NotNil(t, resp.Receipt)
	check.True(t, decimal.RequireFromString("18446744073709551616").Equal(resp.Receipt.Price))
}

func TestHandle_Events(t *testing.T) {
	engine := &fakeEngine{
		events: []core.BidEvent{{Sequence: 0, Hash: "a"}, {Sequence: 1, Hash: "b"}},
		head:   "b",
	}

	var resp bidapi.EventsResponse
	roundTrip(t, testServer(engine), `{"type":"events","from":1}`, &resp)

	check.Equal(t, bidapi.TypeEventsResponse, resp.Type)
	assert.Equal(t, 1, len(resp.Events))
	check.Equal(t, uint64(1), resp.Events[0].Sequence)
	check.Equal(t, "b", resp.Head)
}

func TestHandle_Catalog(t *testing.T) {
	cat, err := catalog.Build(catalog.Source{
		Attributes: []catalog.AttributeRow{{Index: 1}},
		Shapes:     []catalog.ShapeRow{{Index: 1, Shape: "cube"}},
	})
	assert.NoError(t, err)
	engine := &fakeEngine{cat: cat, sealed: bidapi.SealedCatalog{0x01, 0x02}}

	var resp bidapi.CatalogResponse
	roundTrip(t, testServer(engine), `{"type":"catalog_request"}`, &resp)

	check.Equal(t, 1, resp.Entries)
	decoded, err := resp.SealedCatalog.Decode()
	assert.NoError(t, err)
	check.Equal(t, engine.sealed, decoded)
}

func TestHandle_Errors(t *testing.T) {
	tests := []struct {
		name    string
		request string
	}{
		{name: "not json", request: `nope`},
		{name: "unknown type", request: `{"type":"shutdown"}`},
		{name: "malformed bid", request: `{"type":"bid_request","auction_index":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp bidapi.ErrorResponse
			roundTrip(t, testServer(&fakeEngine{}), tt.request, &resp)
			check.Equal(t, bidapi.TypeError, resp.Type)
			check.True(t, resp.Message != "")
		})
	}
}

func TestServe_TCPRoundTrip(t *testing.T) {
	s := testServer(&fakeEngine{head: core.GenesisHash})
	l, err := s.Listen()
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	conn, err := net.Dial("tcp", l.Addr().String())
	assert.NoError(t, err)
	_, err = conn.Write([]byte(`{"type":"events","from":0}`))
	assert.NoError(t, err)
	assert.NoError(t, conn.(*net.TCPConn).CloseWrite())

	raw, err := io.ReadAll(conn)
	assert.NoError(t, err)
	assert.NoError(t, conn.Close())

	var resp bidapi.EventsResponse
	assert.NoError(t, json.Unmarshal(raw, &resp))
	check.Equal(t, core.GenesisHash, resp.Head)
	check.Equal(t, 0, len(resp.Events))

	cancel()
	select {
	case err := <-done:
		check.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestListen_UnsupportedNetwork(t *testing.T) {
	s := New(config.ServerConf{Network: "udp"}, &fakeEngine{}, zap.NewNop())
	_, err := s.Listen()
	check.Error(t, err)
}
