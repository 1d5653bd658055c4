// Package server serves the bid engine over a stream socket (TCP or vsock).
//
// Each connection carries one JSON request: the client writes it, closes its
// write side, and reads one JSON response. Requests are routed by their
// "type" field.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mdlayher/vsock"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/core"
)

// maxRequestSize bounds a single request body.
const maxRequestSize = 1 << 20

// Engine is the part of the service the socket transport needs.
type Engine interface {
	AuctionData() []core.AuctionSlot
	MakeBid(ctx context.Context, bid core.Bid) (*core.BidReceipt, error)
	Events(from uint64) ([]core.BidEvent, string)
	Catalog() *catalog.Catalog
	SealedCatalog() bidapi.SealedCatalog
}

// Server accepts connections and dispatches them to a bounded worker pool.
type Server struct {
	engine      Engine
	logger      *zap.Logger
	network     string
	address     string
	port        uint32
	maxWorkers  int
	readTimeout time.Duration
}

// New creates a server for conf.
func New(conf config.ServerConf, engine Engine, logger *zap.Logger) *Server {
	return &Server{
		engine:      engine,
		logger:      logger,
		network:     conf.Network,
		address:     conf.Address,
		port:        conf.Port,
		maxWorkers:  conf.MaxWorkers,
		readTimeout: conf.ReadTimeout,
	}
}

// Listen opens the configured listener.
func (s *Server) Listen() (net.Listener, error) {
	switch s.network {
	case "vsock":
		l, err := vsock.Listen(s.port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return l, nil
	case "tcp", "":
		l, err := net.Listen("tcp", s.address)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", s.network)
	}
}

// Serve accepts connections on l until ctx is done. In-flight connections are
// allowed to finish before Serve returns.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		if err := l.Close(); err != nil {
			s.logger.Error("failed to close listener", zap.Error(err))
		}
	})
	defer stop()

	s.logger.Info("socket server listening",
		zap.String("network", s.network),
		zap.String("address", l.Addr().String()),
		zap.Int("max_workers", s.maxWorkers))

	semaphore := make(chan struct{}, s.maxWorkers)

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("failed to accept connection", zap.Error(err))
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			wg.Add(1)
			go func(c net.Conn) {
				defer wg.Done()
				defer func() { <-semaphore }()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.logger.Warn("no workers available, rejecting connection")
			if err := conn.Close(); err != nil {
				s.logger.Error("failed to close rejected connection", zap.Error(err))
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	requestID := uuid.NewString()
	logger := s.logger.With(zap.String("request_id", requestID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered in connection handler", zap.Any("panic", r))
		}
		if err := conn.Close(); err != nil {
			logger.Debug("failed to close connection", zap.Error(err))
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestSize)); err != nil {
		logger.Error("failed to read request", zap.Error(err))
		return
	}

	response := s.Handle(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// Handle decodes one request and returns the response to send.
func (s *Server) Handle(ctx context.Context, raw []byte) any {
	var base bidapi.BaseRequest
	if err := json.Unmarshal(raw, &base); err != nil {
		s.logger.Warn("failed to decode base request", zap.Error(err))
		return bidapi.NewErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
	}

	s.logger.Debug("received request", zap.String("type", base.Type))

	switch base.Type {
	case bidapi.TypePing:
		return bidapi.PongResponse{
			Type:      bidapi.TypePong,
			Message:   "bid engine is healthy",
			Timestamp: time.Now().Unix(),
		}

	case bidapi.TypeAuctionData:
		return bidapi.AuctionDataResponse{
			Type:     bidapi.TypeAuctionData,
			Auctions: s.engine.AuctionData(),
		}

	case bidapi.TypeBidRequest:
		var req bidapi.BidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return bidapi.NewErrorResponse(fmt.Sprintf("failed to decode bid request: %v", err))
		}
		if err := req.Validate(); err != nil {
			return bidapi.NewErrorResponse(err.Error())
		}
		start := time.Now()
		receipt, err := s.engine.MakeBid(ctx, req.Bid())
		return bidapi.NewBidResponse(receipt, err, time.Since(start))

	case bidapi.TypeEventsRequest:
		var req bidapi.EventsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return bidapi.NewErrorResponse(fmt.Sprintf("failed to decode events request: %v", err))
		}
		events, head := s.engine.Events(req.From)
		return bidapi.NewEventsResponse(events, head)

	case bidapi.TypeCatalogRequest:
		resp := bidapi.CatalogResponse{Type: bidapi.TypeCatalogResponse}
		if cat := s.engine.Catalog(); cat != nil {
			resp.Entries = cat.Len()
		}
		if sealed := s.engine.SealedCatalog(); len(sealed) > 0 {
			resp.SealedCatalog = sealed.EncodeBase64()
		}
		return resp

	default:
		return bidapi.NewErrorResponse(fmt.Sprintf("unknown request type: %s", base.Type))
	}
}
