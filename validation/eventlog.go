package validation

import (
	"errors"
	"fmt"

	"github.com/cloudx-io/boxauction/core"
)

// EventLogValidationInput contains everything needed to audit an event log
type EventLogValidationInput struct {
	Events       []core.BidEvent
	Slots        []core.SlotConfig // configured slots, in declaration order
	ExpectedHead string            // empty = don't check
}

// ValidateEventLog audits a bid event log independently of the engine that
// wrote it and verifies:
// - Sequences are contiguous from 0 and every hash links to its predecessor
// - Each event names a configured slot and that slot's box token
// - No slot sold more units than its configured quantity
// - The last hash matches ExpectedHead, when given
//
// Returns:
//   - EventLogValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed
func ValidateEventLog(input *EventLogValidationInput) (*EventLogValidationResult, error) {
	if input == nil {
		return nil, errors.New("validation input is nil")
	}

	result := &EventLogValidationResult{
		Events: len(input.Events),
		Head:   core.GenesisHash,
		Sold:   make(map[int]uint64),
	}
	if n := len(input.Events); n > 0 {
		result.Head = input.Events[n-1].Hash
	}

	result.ChainValid = validateChain(input, result)
	result.SlotsValid = validateSlots(input, result)
	result.SupplyValid = validateSupply(input, result)
	result.HeadValid = validateHead(input, result)

	return result, nil
}

func validateChain(input *EventLogValidationInput, result *EventLogValidationResult) bool {
	if err := core.VerifyEventChain(input.Events); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Hash chain invalid: %v", err))
		return false
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Hash chain valid across %d events", len(input.Events)))
	return true
}

func validateSlots(input *EventLogValidationInput, result *EventLogValidationResult) bool {
	valid := true
	for _, event := range input.Events {
		if event.AuctionIndex < 0 || event.AuctionIndex >= len(input.Slots) {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Event %d references unknown auction %d", event.Sequence, event.AuctionIndex))
			valid = false
			continue
		}
		slot := input.Slots[event.AuctionIndex]
		if event.BoxTokenID != slot.BoxTokenID {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Event %d sells box token %d from auction %d, which offers %d",
					event.Sequence, event.BoxTokenID, event.AuctionIndex, slot.BoxTokenID))
			valid = false
		}
		if !event.BidAmount.IsPositive() {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Event %d has non-positive amount %s", event.Sequence, event.BidAmount))
			valid = false
		}
		result.Sold[event.AuctionIndex]++
	}
	if valid {
		result.ValidationDetails = append(result.ValidationDetails, "Every event matches a configured auction")
	}
	return valid
}

func validateSupply(input *EventLogValidationInput, result *EventLogValidationResult) bool {
	valid := true
	for index, slot := range input.Slots {
		sold := result.Sold[index]
		if sold > slot.Quantity {
			result.ValidationDetails = append(result.ValidationDetails,
				fmt.Sprintf("Auction %d oversold: %d sold, quantity %d", index, sold, slot.Quantity))
			valid = false
			continue
		}
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Auction %d: %d of %d sold", index, sold, slot.Quantity))
	}
	return valid
}

func validateHead(input *EventLogValidationInput, result *EventLogValidationResult) bool {
	if input.ExpectedHead == "" {
		return true
	}
	if input.ExpectedHead == result.Head {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Head matches: %s", result.Head))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails,
		fmt.Sprintf("Head mismatch: expected %s, log ends at %s", input.ExpectedHead, result.Head))
	return false
}
