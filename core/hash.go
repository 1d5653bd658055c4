package core

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// GenesisHash is the PrevHash of the first event in a log.
var GenesisHash = strings.Repeat("0", 64)

// ComputeEventHash computes the chained hash of a bid event.
//
// Formula: BLAKE3(prev_hash + "|" + sequence + "|" + auction_index + "|" + bidder + "|" + box_token_id + "|" + amount)
//
// The amount uses its canonical decimal string so that equal amounts hash
// identically regardless of how they were parsed.
func ComputeEventHash(prevHash string, event BidEvent) string {
	data := fmt.Sprintf("%s|%d|%d|%s|%d|%s",
		prevHash,
		event.Sequence,
		event.AuctionIndex,
		event.Bidder,
		event.BoxTokenID,
		event.BidAmount.String(),
	)
	sum := blake3.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// VerifyEventChain checks that events form a contiguous, correctly chained
// log starting at sequence 0 from GenesisHash.
func VerifyEventChain(events []BidEvent) error {
	prev := GenesisHash
	for i, event := range events {
		if event.Sequence != uint64(i) {
			return fmt.Errorf("event %d: sequence %d out of order", i, event.Sequence)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("event %d: prev hash %s does not match %s", i, event.PrevHash, prev)
		}
		if want := ComputeEventHash(prev, event); event.Hash != want {
			return fmt.Errorf("event %d: hash %s does not match computed %s", i, event.Hash, want)
		}
		prev = event.Hash
	}
	return nil
}
