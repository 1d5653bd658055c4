package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/boxauction/core"
)

func testSlots() []core.SlotConfig {
	start := time.Unix(134, 0).UTC()
	return []core.SlotConfig{
		{BoxTokenID: 5, Quantity: 1, AuctionStart: start, AuctionDuration: 24 * time.Hour, InitialPrice: decimal.NewFromInt(2000)},
		{BoxTokenID: 2, Quantity: 2, AuctionStart: start, AuctionDuration: 24 * time.Hour, InitialPrice: decimal.NewFromInt(2000)},
	}
}

type sale struct {
	index int
	token core.TokenID
}

// chainOf builds a correctly hashed log for the given sales.
func chainOf(sales ...sale) []core.BidEvent {
	prev := core.GenesisHash
	events := make([]core.BidEvent, 0, len(sales))
	for i, s := range sales {
		event := core.BidEvent{
			Sequence:     uint64(i),
			AuctionIndex: s.index,
			Bidder:       "0xcafe",
			BoxTokenID:   s.token,
			BidAmount:    decimal.NewFromInt(100),
			PrevHash:     prev,
		}
		event.Hash = core.ComputeEventHash(prev, event)
		prev = event.Hash
		events = append(events, event)
	}
	return events
}

func hasDetail(result *EventLogValidationResult, substr string) bool {
	for _, d := range result.ValidationDetails {
		if strings.Contains(d, substr) {
			return true
		}
	}
	return false
}

func TestValidateEventLog_Valid(t *testing.T) {
	events := chainOf(sale{1, 2}, sale{0, 5}, sale{1, 2})

	result, err := ValidateEventLog(&EventLogValidationInput{
		Events:       events,
		Slots:        testSlots(),
		ExpectedHead: events[2].Hash,
	})
	assert.NoError(t, err)

	check.True(t, result.IsValid())
	check.Equal(t, 3, result.Events)
	check.Equal(t, events[2].Hash, result.Head)
	check.Equal(t, map[int]uint64{0: 1, 1: 2}, result.Sold)
}

func TestValidateEventLog_Empty(t *testing.T) {
	result, err := ValidateEventLog(&EventLogValidationInput{
		Slots:        testSlots(),
		ExpectedHead: core.GenesisHash,
	})
	assert.NoError(t, err)

	check.True(t, result.IsValid())
	check.Equal(t, core.GenesisHash, result.Head)
}

func TestValidateEventLog_Failures(t *testing.T) {
	tests := []struct {
		name       string
		events     func() []core.BidEvent
		head       string
		wantChain  bool
		wantSlots  bool
		wantSupply bool
		wantHead   bool
		detail     string
	}{
		{
			name: "oversold",
			events: func() []core.BidEvent {
				return chainOf(sale{0, 5}, sale{0, 5})
			},
			wantChain: true, wantSlots: true, wantSupply: false, wantHead: true,
			detail: "Auction 0 oversold",
		},
		{
			name: "unknown auction",
			events: func() []core.BidEvent {
				return chainOf(sale{7, 5})
			},
			wantChain: true, wantSlots: false, wantSupply: true, wantHead: true,
			detail: "unknown auction 7",
		},
		{
			name: "token mismatch",
			events: func() []core.BidEvent {
				return chainOf(sale{1, 5})
			},
			wantChain: true, wantSlots: false, wantSupply: true, wantHead: true,
			detail: "which offers 2",
		},
		{
			name: "tampered amount",
			events: func() []core.BidEvent {
				events := chainOf(sale{1, 2}, sale{1, 2})
				events[0].BidAmount = decimal.NewFromInt(1)
				return events
			},
			wantChain: false, wantSlots: true, wantSupply: true, wantHead: true,
			detail: "Hash chain invalid",
		},
		{
			name: "head mismatch",
			events: func() []core.BidEvent {
				return chainOf(sale{1, 2})
			},
			head:      core.GenesisHash,
			wantChain: true, wantSlots: true, wantSupply: true, wantHead: false,
			detail: "Head mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateEventLog(&EventLogValidationInput{
				Events:       tt.events(),
				Slots:        testSlots(),
				ExpectedHead: tt.head,
			})
			assert.NoError(t, err)

			check.False(t, result.IsValid())
			check.Equal(t, tt.wantChain, result.ChainValid)
			check.Equal(t, tt.wantSlots, result.SlotsValid)
			check.Equal(t, tt.wantSupply, result.SupplyValid)
			check.Equal(t, tt.wantHead, result.HeadValid)
			check.True(t, hasDetail(result, tt.detail))
		})
	}
}

func TestValidateEventLog_NilInput(t *testing.T) {
	result, err := ValidateEventLog(nil)
	check.Error(t, err)
	check.Nil(t, result)
}
