package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 4

// PriceFunc computes the minimum acceptable bid for a slot at a point in time.
// A zero or negative result means no floor is enforced.
type PriceFunc func(slot AuctionSlot, now time.Time) decimal.Decimal

// NoFloor is the default price policy: bids are accepted at the
// bidder-declared amount, subject only to the positivity and allowance checks.
func NoFloor(AuctionSlot, time.Time) decimal.Decimal {
	return decimal.Zero
}

// DescendingPrice returns a policy that decays linearly from the slot's
// InitialPrice at AuctionStart down to floor at the end of the window.
// Before the window opens the price is InitialPrice; after it closes, floor.
//
// This is an extension point. Deployments that want the observed
// first-come-first-served behavior keep NoFloor.
func DescendingPrice(floor decimal.Decimal) PriceFunc {
	return func(slot AuctionSlot, now time.Time) decimal.Decimal {
		if !now.After(slot.AuctionStart) {
			return slot.InitialPrice
		}
		if slot.AuctionDuration <= 0 || !now.Before(slot.End()) {
			return floor
		}
		if slot.InitialPrice.LessThanOrEqual(floor) {
			return floor
		}

		elapsed := decimal.NewFromInt(int64(now.Sub(slot.AuctionStart)))
		window := decimal.NewFromInt(int64(slot.AuctionDuration))
		drop := slot.InitialPrice.Sub(floor).Mul(elapsed).Div(window)

		return slot.InitialPrice.Sub(drop).Round(monetaryPrecision)
	}
}

// BidMeetsPrice returns true if the bid amount meets or exceeds the price.
// A non-positive price always passes.
func BidMeetsPrice(amount, price decimal.Decimal) bool {
	if !price.IsPositive() {
		return true
	}
	return amount.Round(monetaryPrecision).GreaterThanOrEqual(price.Round(monetaryPrecision))
}
