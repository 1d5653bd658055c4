package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestBidMeetsPrice(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		price    string
		expected bool
	}{
		{"no floor", "1", "0", true},
		{"negative price", "1", "-5", true},
		{"above price", "2.5", "2", true},
		{"at price", "2", "2", true},
		{"below price", "1.9999", "2", false},
		{"rounds to price", "1.99996", "2", true},
		{"sub precision shortfall", "1.99994", "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			price := decimal.RequireFromString(tt.price)
			check.Equal(t, tt.expected, BidMeetsPrice(amount, price))
		})
	}
}

func TestNoFloor(t *testing.T) {
	slot := AuctionSlot{InitialPrice: decimal.NewFromInt(1000)}
	check.True(t, NoFloor(slot, time.Now()).IsZero())
}

func TestDescendingPrice(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	slot := AuctionSlot{
		AuctionStart:    start,
		AuctionDuration: time.Hour,
		InitialPrice:    decimal.NewFromInt(2000),
	}
	price := DescendingPrice(decimal.NewFromInt(1000))

	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{"before start", start.Add(-time.Minute), "2000"},
		{"at start", start, "2000"},
		{"quarter", start.Add(15 * time.Minute), "1750"},
		{"halfway", start.Add(30 * time.Minute), "1500"},
		{"at end", start.Add(time.Hour), "1000"},
		{"after end", start.Add(2 * time.Hour), "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, price(slot, tt.now).String())
		})
	}
}

func TestDescendingPrice_Degenerate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	floor := decimal.NewFromInt(1000)
	price := DescendingPrice(floor)

	t.Run("zero duration", func(t *testing.T) {
		slot := AuctionSlot{AuctionStart: start, InitialPrice: decimal.NewFromInt(2000)}
		check.Equal(t, "1000", price(slot, start.Add(time.Second)).String())
	})

	t.Run("initial below floor", func(t *testing.T) {
		slot := AuctionSlot{AuctionStart: start, AuctionDuration: time.Hour, InitialPrice: decimal.NewFromInt(500)}
		check.Equal(t, "1000", price(slot, start.Add(time.Minute)).String())
	})
}
