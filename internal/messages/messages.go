// Package messages defines the immutable DTOs the core hands to
// internal/events for fan-out: fills, cancels, current-market snapshots, and
// market-state broadcasts. These supersede the teacher's wire-format
// internal/net/messages.go Report struct now that framing is out of scope
// (spec §6): same fields, no serialization, a String() display form in the
// register of common/trade.go.
package messages

import (
	"fmt"

	"ironbook/internal/tradable"
)

// Fill is the receipt generated when two tradables trade against each
// other. One Fill is emitted per side of a trade.
type Fill struct {
	User    string
	Product string
	Price   string // pre-rendered via price.Price.String()
	Volume  uint64
	Details string
	Side    tradable.Side
	ID      string
}

func (f Fill) String() string {
	return fmt.Sprintf("FILL %s %s %s@%s x%d %s (%s)", f.Side, f.Product, f.ID, f.Price, f.Volume, f.Details, f.User)
}

// Cancel reports that a resting entry's remaining volume has been removed
// from the book, either by explicit request, by the "too late" diagnosis, or
// by an unfilled market-order remainder.
type Cancel struct {
	User    string
	Product string
	Price   string
	Volume  uint64
	Details string
	Side    tradable.Side
	ID      string
}

func (c Cancel) String() string {
	return fmt.Sprintf("CANCEL %s %s %s@%s x%d %s (%s)", c.Side, c.Product, c.ID, c.Price, c.Volume, c.Details, c.User)
}

// Snapshot is the current-market DTO: best buy/sell price and volume for a
// product. Null prices are coerced to $0.00 before this is constructed
// (spec §4.6: "mandatory... a well-defined 'no side' price").
type Snapshot struct {
	Product   string
	BuyPrice  string
	BuyVolume uint64
	SellPrice string
	SellVolume uint64
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s %d@%s x %d@%s", s.Product, s.BuyVolume, s.BuyPrice, s.SellVolume, s.SellPrice)
}

// Fingerprint is the dedup key spec §4.4 requires: current-market events for
// a product are never published twice consecutively with the same tuple.
func (s Snapshot) Fingerprint() string {
	return fmt.Sprintf("%s|%d|%s|%d", s.BuyPrice, s.BuyVolume, s.SellPrice, s.SellVolume)
}

// LastSale reports a trade's clearing price/quantity for the ticker and
// last-sale streams. Cents carries the raw integer-cent value alongside the
// rendered Price string so the ticker can compare two sales numerically
// without reparsing a currency string (spec §1 scopes price-string parsing
// out of the core entirely).
type LastSale struct {
	Product string
	Price   string
	Cents   int64
	Volume  uint64
}

// MarketStateMsg is the textual market-state broadcast: "CLOSED" | "PREOPEN"
// | "OPEN".
type MarketStateMsg struct {
	State string
}

func (m MarketStateMsg) String() string {
	return m.State
}

// Ticker is the per-product tick the ticker stream fans out alongside every
// last-sale publication (spec §4.6): same price, plus the up/down/flat/first
// arrow computed against the product's previously ticked price.
type Ticker struct {
	Product string
	Price   string
	Arrow   rune
}

func (t Ticker) String() string {
	return fmt.Sprintf("%s %s%c", t.Product, t.Price, t.Arrow)
}

// Ticker arrow runes, spec §4.6.
const (
	ArrowUp    rune = '↑'
	ArrowDown  rune = '↓'
	ArrowFlat  rune = '='
	ArrowFirst rune = ' '
)
