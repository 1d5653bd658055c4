// Package service wires configuration, ledgers, catalog, event store, and the
// auction book into a running engine.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cloudx-io/boxauction/bidapi"
	"github.com/cloudx-io/boxauction/catalog"
	"github.com/cloudx-io/boxauction/config"
	"github.com/cloudx-io/boxauction/core"
	"github.com/cloudx-io/boxauction/ledger"
	"github.com/cloudx-io/boxauction/store"
)

const auctionsMetaKey = "auctions"

var (
	// ErrStoreUnavailable is returned by MakeBid when its event failed to
	// persist, and for every bid after that.
	ErrStoreUnavailable = fmt.Errorf("event store unavailable: %w", core.ErrUnavailable)
	// ErrConfigDrift is returned when the configured auctions differ from the
	// ones the stored event log was written against.
	ErrConfigDrift = errors.New("configured auctions do not match event log")
	// ErrNoCatalog is returned by catalog queries when no catalog is loaded.
	ErrNoCatalog = errors.New("no catalog loaded")
	// ErrUnknownBoxType is returned for a catalog index outside 1..N.
	ErrUnknownBoxType = errors.New("unknown box type")
)

// Option configures a Service.
type Option func(*options)

type options struct {
	storeOpts []store.Option
	clock     core.Clock
}

// WithStoreOptions passes extra options to the event store, e.g. an in-memory FS.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithClock sets the time source for the price policy.
func WithClock(clock core.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// Service is a running engine. All methods are safe for concurrent use.
type Service struct {
	logger     *zap.Logger
	book       *core.AuctionBook
	settlement *ledger.Settlement
	inventory  *ledger.Inventory
	catalog    *catalog.Catalog
	sealed     bidapi.SealedCatalog
	store      *store.Store

	degraded atomic.Bool
}

// New builds the engine described by cfg: it seeds the in-memory ledgers from
// the genesis section, loads the catalog, opens the event store, and replays
// the stored log so remaining supply and ledger balances survive restarts.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	slots, err := cfg.SlotConfigs()
	if err != nil {
		return nil, err
	}
	price, err := cfg.PriceFunc()
	if err != nil {
		return nil, err
	}

	s := &Service{logger: logger}

	if err := s.loadCatalog(cfg.Catalog); err != nil {
		return nil, err
	}
	if s.catalog != nil {
		for i, slot := range slots {
			if _, ok := s.catalog.Entry(int(slot.BoxTokenID)); !ok {
				return nil, fmt.Errorf("auctions[%d]: box token %d is not in the catalog (%d entries)", i, slot.BoxTokenID, s.catalog.Len())
			}
		}
	}

	engine := core.Address(cfg.Engine.Account)
	holding := cfg.HoldingAccount()
	if err := s.seedLedgers(cfg.Genesis, slots, engine, holding); err != nil {
		return nil, err
	}

	storeOpts := append([]store.Option{}, o.storeOpts...)
	if cfg.Store.CacheSize > 0 {
		storeOpts = append(storeOpts, store.WithCacheSize(cfg.Store.CacheSize))
	}
	s.store, err = store.Open(cfg.Store.Path, storeOpts...)
	if err != nil {
		return nil, err
	}

	book, err := s.restore(cfg.Auctions, slots, engine, holding, price, o.clock)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	s.book = book

	count, head := book.Head()
	logger.Info("auction book ready",
		zap.Int("slots", book.Len()),
		zap.Uint64("replayed_events", count),
		zap.String("head", head),
		zap.String("engine", string(engine)),
		zap.String("holding", string(holding)))

	return s, nil
}

func (s *Service) loadCatalog(conf config.CatalogConf) error {
	switch {
	case conf.Path != "":
		cat, err := catalog.Load(conf.Path)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		s.catalog = cat
	case conf.SealedPath != "":
		sealed, err := os.ReadFile(conf.SealedPath)
		if err != nil {
			return fmt.Errorf("read sealed catalog: %w", err)
		}
		pemData, err := os.ReadFile(conf.VerifyKey)
		if err != nil {
			return fmt.Errorf("read catalog verify key: %w", err)
		}
		pub, err := catalog.ParsePublicKeyPEM(pemData)
		if err != nil {
			return err
		}
		cat, err := catalog.OpenSealed(sealed, pub)
		if err != nil {
			return fmt.Errorf("open sealed catalog: %w", err)
		}
		s.catalog = cat
		s.sealed = sealed
	default:
		s.logger.Warn("no catalog configured")
		return nil
	}

	if conf.SigningKey != "" && s.sealed == nil {
		pemData, err := os.ReadFile(conf.SigningKey)
		if err != nil {
			return fmt.Errorf("read catalog signing key: %w", err)
		}
		key, err := catalog.ParsePrivateKeyPEM(pemData)
		if err != nil {
			return err
		}
		s.sealed, err = s.catalog.Seal(key)
		if err != nil {
			return err
		}
	}

	s.logger.Info("catalog loaded",
		zap.Int("entries", s.catalog.Len()),
		zap.String("registry", s.catalog.RegistryAddress()),
		zap.String("material", s.catalog.MaterialAddress()),
		zap.Bool("sealed", s.sealed != nil))
	return nil
}

func (s *Service) seedLedgers(genesis config.GenesisConf, slots []core.SlotConfig, engine, holding core.Address) error {
	s.settlement = ledger.NewSettlement()
	s.inventory = ledger.NewInventory()

	for _, b := range genesis.Balances {
		if err := s.settlement.Mint(core.Address(b.Account), decimal.RequireFromString(b.Amount)); err != nil {
			return fmt.Errorf("genesis balance for %s: %w", b.Account, err)
		}
	}
	for _, a := range genesis.Approvals {
		if err := s.settlement.Approve(core.Address(a.Owner), engine, decimal.RequireFromString(a.Amount)); err != nil {
			return fmt.Errorf("genesis approval for %s: %w", a.Owner, err)
		}
	}
	for i, slot := range slots {
		if err := s.inventory.Mint(holding, slot.BoxTokenID, slot.Quantity); err != nil {
			return fmt.Errorf("genesis inventory for auctions[%d]: %w", i, err)
		}
	}
	return nil
}

// restore checks the stored log was written against the configured auctions,
// applies it to the ledgers, and builds the book on top of it.
func (s *Service) restore(
	auctions []config.AuctionConf,
	slots []core.SlotConfig,
	engine, holding core.Address,
	price core.PriceFunc,
	clock core.Clock,
) (*core.AuctionBook, error) {
	fingerprint, err := cbor.Marshal(auctions)
	if err != nil {
		return nil, fmt.Errorf("encode auctions fingerprint: %w", err)
	}
	stored, err := s.store.Meta(auctionsMetaKey)
	if err != nil {
		return nil, fmt.Errorf("read auctions fingerprint: %w", err)
	}
	if s.store.Len() > 0 && stored != nil && !bytes.Equal(stored, fingerprint) {
		return nil, ErrConfigDrift
	}
	if err := s.store.SetMeta(auctionsMetaKey, fingerprint); err != nil {
		return nil, fmt.Errorf("write auctions fingerprint: %w", err)
	}

	events, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load event log: %w", err)
	}
	for _, event := range events {
		if err := s.applyEvent(event, engine, holding); err != nil {
			return nil, fmt.Errorf("replay event %d: %w", event.Sequence, err)
		}
	}

	bookOpts := []core.Option{
		core.WithHoldingAccount(holding),
		core.WithPriceFunc(price),
		core.WithEvents(events),
		core.WithCommitHook(s.persist),
	}
	if clock != nil {
		bookOpts = append(bookOpts, core.WithClock(clock))
	}
	return core.NewAuctionBook(slots, s.settlement, s.inventory, engine, bookOpts...)
}

// applyEvent moves the tokens of an already settled bid on the in-memory
// ledgers and consumes what it can of the genesis allowance.
func (s *Service) applyEvent(event core.BidEvent, engine, holding core.Address) error {
	if err := s.settlement.Transfer(event.Bidder, engine, event.BidAmount); err != nil {
		return err
	}
	remaining := s.settlement.Allowance(event.Bidder, engine).Sub(event.BidAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	if err := s.settlement.Approve(event.Bidder, engine, remaining); err != nil {
		return err
	}
	return s.inventory.Transfer(holding, event.Bidder, event.BoxTokenID, 1)
}

// persist appends an event to the store before the book commits it. It runs
// under the book's event lock, so appends arrive in sequence order. Once an
// append fails every later event is refused, including bids already past the
// check in MakeBid.
func (s *Service) persist(event core.BidEvent) error {
	if s.degraded.Load() {
		return ErrStoreUnavailable
	}
	if err := s.store.Append(event); err != nil {
		s.degraded.Store(true)
		s.logger.Error("failed to persist bid event, refusing further bids",
			zap.Uint64("sequence", event.Sequence),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// MakeBid runs a bid through the book and logs the outcome.
func (s *Service) MakeBid(ctx context.Context, bid core.Bid) (*core.BidReceipt, error) {
	if s.degraded.Load() {
		return nil, ErrStoreUnavailable
	}

	start := time.Now()
	receipt, err := s.book.MakeBid(ctx, bid)
	if err != nil {
		s.logger.Info("bid rejected",
			zap.String("bidder", string(bid.Bidder)),
			zap.Int("auction_index", bid.AuctionIndex),
			zap.Uint64("box_token_id", uint64(bid.BoxTokenID)),
			zap.String("amount", bid.BidAmount.String()),
			zap.String("code", core.ErrorCode(err)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("bid accepted",
		zap.Uint64("sequence", receipt.Event.Sequence),
		zap.String("bidder", string(bid.Bidder)),
		zap.Int("auction_index", bid.AuctionIndex),
		zap.String("amount", bid.BidAmount.String()),
		zap.Uint64("remaining", receipt.RemainingSupply),
		zap.String("receipt_id", receipt.ID.String()),
		zap.Duration("elapsed", time.Since(start)))
	return receipt, nil
}

// AuctionData returns every slot, last configured slot first.
func (s *Service) AuctionData() []core.AuctionSlot {
	return s.book.GetAuctionData()
}

// Slot returns one slot by index.
func (s *Service) Slot(index int) (core.AuctionSlot, error) {
	return s.book.Slot(index)
}

// CurrentPrice returns the price policy's current value for a slot.
func (s *Service) CurrentPrice(index int) (decimal.Decimal, error) {
	return s.book.CurrentPrice(index)
}

// Events returns committed events from sequence from, and the log head hash.
func (s *Service) Events(from uint64) ([]core.BidEvent, string) {
	_, head := s.book.Head()
	return s.book.Events(from), head
}

// CatalogEntry returns the box type at a 1-based catalog index.
func (s *Service) CatalogEntry(index int) (catalog.Entry, error) {
	if s.catalog == nil {
		return catalog.Entry{}, ErrNoCatalog
	}
	entry, ok := s.catalog.Entry(index)
	if !ok {
		return catalog.Entry{}, fmt.Errorf("%w: catalog index %d out of range 1..%d", ErrUnknownBoxType, index, s.catalog.Len())
	}
	return entry, nil
}

// Catalog returns the loaded catalog, or nil.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// SealedCatalog returns the COSE-sealed catalog, or nil if none is available.
func (s *Service) SealedCatalog() bidapi.SealedCatalog {
	return s.sealed
}

// Approve sets the engine's allowance over owner's settlement tokens.
func (s *Service) Approve(owner core.Address, amount decimal.Decimal) error {
	if err := s.settlement.Approve(owner, s.book.EngineAccount(), amount); err != nil {
		return err
	}
	s.logger.Info("allowance set",
		zap.String("owner", string(owner)),
		zap.String("amount", amount.String()))
	return nil
}

// Balance returns owner's settlement balance and the engine's allowance over it.
func (s *Service) Balance(owner core.Address) (balance, allowance decimal.Decimal) {
	return s.settlement.BalanceOf(owner), s.settlement.Allowance(owner, s.book.EngineAccount())
}

// InventoryBalance returns how many units of tokenID owner holds.
func (s *Service) InventoryBalance(owner core.Address, tokenID core.TokenID) uint64 {
	return s.inventory.BalanceOf(owner, tokenID)
}

// Close closes the event store.
func (s *Service) Close() error {
	return s.store.Close()
}
