// Package store persists the bid event log in Pebble.
//
// Events are keyed by big-endian sequence under the "evt/" prefix so that
// iteration order is emission order. The log is append-only: Append accepts
// only the next sequence number.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/boxauction/core"
)

var (
	eventPrefix = []byte("evt/")
	metaPrefix  = []byte("meta/")
)

// ErrOutOfOrder is returned when Append is given a sequence other than the next one.
var ErrOutOfOrder = errors.New("event out of order")

// record is the stored form of a core.BidEvent. The amount is kept as its
// canonical decimal string so it survives without precision loss.
type record struct {
	Sequence     uint64 `cbor:"1,keyasint"`
	AuctionIndex int    `cbor:"2,keyasint"`
	Bidder       string `cbor:"3,keyasint"`
	BoxTokenID   uint64 `cbor:"4,keyasint"`
	BidAmount    string `cbor:"5,keyasint"`
	PrevHash     string `cbor:"6,keyasint"`
	Hash         string `cbor:"7,keyasint"`
}

// Option configures a Store.
type Option func(*pebble.Options)

// WithFS runs the store on a custom filesystem, e.g. vfs.NewMem() in tests.
func WithFS(fs vfs.FS) Option {
	return func(o *pebble.Options) {
		o.FS = fs
	}
}

// WithCacheSize sets the block cache size in bytes.
func WithCacheSize(size int64) Option {
	return func(o *pebble.Options) {
		o.Cache = pebble.NewCache(size)
	}
}

// Store is a Pebble-backed append-only event log.
type Store struct {
	db *pebble.DB

	mu   sync.Mutex // serializes appends
	next uint64
}

// Open opens (or creates) the event store at path.
func Open(path string, opts ...Option) (*Store, error) {
	pebbleOpts := &pebble.Options{
		MemTableSize:                16 << 20, // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}
	for _, opt := range opts {
		opt(pebbleOpts)
	}

	db, err := pebble.Open(path, pebbleOpts)
	if pebbleOpts.Cache != nil {
		// pebble holds its own reference once open
		pebbleOpts.Cache.Unref()
	}
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	s := &Store{db: db}
	next, err := s.lastSequence()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.next = next
	return s, nil
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

// lastSequence returns the sequence the next appended event must carry.
func (s *Store) lastSequence() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventPrefix,
		UpperBound: prefixUpperBound(eventPrefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(eventPrefix)+8 {
		return 0, fmt.Errorf("malformed event key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(eventPrefix):]) + 1, nil
}

// Len returns the number of stored events.
func (s *Store) Len() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Append durably writes event. event.Sequence must equal Len().
func (s *Store) Append(event core.BidEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Sequence != s.next {
		return fmt.Errorf("%w: got sequence %d, want %d", ErrOutOfOrder, event.Sequence, s.next)
	}

	value, err := cbor.Marshal(toRecord(event))
	if err != nil {
		return fmt.Errorf("encode event %d: %w", event.Sequence, err)
	}
	if err := s.db.Set(eventKey(event.Sequence), value, pebble.Sync); err != nil {
		return fmt.Errorf("write event %d: %w", event.Sequence, err)
	}

	s.next++
	return nil
}

// Range calls fn for each event with sequence >= from, in order.
// If fn returns an error, iteration stops and the error is returned.
func (s *Store) Range(from uint64, fn func(core.BidEvent) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: prefixUpperBound(eventPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		var rec record
		if err := cbor.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode event at key %x: %w", iter.Key(), err)
		}
		event, err := rec.toEvent()
		if err != nil {
			return err
		}

		if err := fn(event); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Load returns the whole event log in sequence order.
func (s *Store) Load() ([]core.BidEvent, error) {
	return s.Events(0)
}

// Events returns the stored events with sequence >= from.
func (s *Store) Events(from uint64) ([]core.BidEvent, error) {
	var events []core.BidEvent
	err := s.Range(from, func(event core.BidEvent) error {
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// SetMeta stores a small metadata value under name.
func (s *Store) SetMeta(name string, value []byte) error {
	return s.db.Set(append(append([]byte{}, metaPrefix...), name...), value, pebble.Sync)
}

// Meta returns the metadata value stored under name, or nil if absent.
func (s *Store) Meta(name string) ([]byte, error) {
	value, closer, err := s.db.Get(append(append([]byte{}, metaPrefix...), name...))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func toRecord(event core.BidEvent) record {
	return record{
		Sequence:     event.Sequence,
		AuctionIndex: event.AuctionIndex,
		Bidder:       string(event.Bidder),
		BoxTokenID:   uint64(event.BoxTokenID),
		BidAmount:    event.BidAmount.String(),
		PrevHash:     event.PrevHash,
		Hash:         event.Hash,
	}
}

func (r record) toEvent() (core.BidEvent, error) {
	amount, err := decimal.NewFromString(r.BidAmount)
	if err != nil {
		return core.BidEvent{}, fmt.Errorf("event %d: bad amount %q: %w", r.Sequence, r.BidAmount, err)
	}
	return core.BidEvent{
		Sequence:     r.Sequence,
		AuctionIndex: r.AuctionIndex,
		Bidder:       core.Address(r.Bidder),
		BoxTokenID:   core.TokenID(r.BoxTokenID),
		BidAmount:    amount,
		PrevHash:     r.PrevHash,
		Hash:         r.Hash,
	}, nil
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}

	return nil
}
