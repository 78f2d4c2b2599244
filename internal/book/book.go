// Package book implements one side (BUY or SELL) of one product's book: a
// price-keyed FIFO matcher, generalized from the teacher's
// internal/engine/orderbook.go OrderBook (which kept one btree.BTreeG
// per side of a single asset-type book). Here each product gets its own
// BUY Side and SELL Side, keyed by the interned *price.Price instead of a
// bare float64, per spec §4.3.
package book

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"ironbook/internal/messages"
	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

// Parent is the back-reference a Side uses to archive consumed/cancelled
// entries and to resolve the opening-cross MARKET-vs-MARKET fallback price.
// Per spec §9 ("represent as an index or handle, not a cyclic owning
// pointer"), Side only ever calls these two methods; it never reaches back
// into the product's own book sides.
type Parent interface {
	Archive(e *tradable.Entry)
	LastSalePrice() *price.Price
}

type level struct {
	price   *price.Price
	entries []*tradable.Entry
}

// Side is one BUY or SELL book for one product.
type Side struct {
	mu      sync.Mutex
	product string
	side    tradable.Side
	parent  Parent
	tree    *btree.BTreeG[*level]
}

// New constructs a Side. side is Buy or Sell; it fixes the price ordering
// (descending for Buy, ascending for Sell, MARKET always best on either
// side), per spec §4.3.
func New(product string, side tradable.Side, parent Parent) *Side {
	less := func(a, b *level) bool {
		return priceLess(side, a.price, b.price)
	}
	return &Side{
		product: product,
		side:    side,
		parent:  parent,
		tree:    btree.NewBTreeG(less),
	}
}

func priceLess(side tradable.Side, a, b *price.Price) bool {
	if a.IsMarket() && b.IsMarket() {
		return false
	}
	if a.IsMarket() {
		return true
	}
	if b.IsMarket() {
		return false
	}
	cmp, _ := a.CompareTo(b)
	if side == tradable.Buy {
		return cmp > 0
	}
	return cmp < 0
}

func (s *Side) levelAt(p *price.Price) (*level, bool) {
	return s.tree.Get(&level{price: p})
}

// AddToBook appends entry to the queue at entry.Price(), creating an empty
// queue if absent. No trading is attempted here.
func (s *Side) AddToBook(entry *tradable.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(entry)
}

func (s *Side) addLocked(entry *tradable.Entry) {
	lvl, ok := s.levelAt(entry.Price())
	if !ok {
		lvl = &level{price: entry.Price()}
		s.tree.Set(lvl)
	}
	lvl.entries = append(lvl.entries, entry)
}

// marketable reports whether the opposite top price is crossable against
// aggressor, per spec §4.3's four-way OR.
func marketable(aggressor *tradable.Entry, oppositeTop *price.Price) bool {
	if aggressor.Price().IsMarket() || oppositeTop.IsMarket() {
		return true
	}
	if aggressor.Side() == tradable.Buy {
		return aggressor.Price().Ge(oppositeTop)
	}
	return aggressor.Price().Le(oppositeTop)
}

// effectivePrice resolves spec §4.3's effective-price rule for one trade
// between resting entry r and aggressor.
func effectivePrice(r, aggressor *tradable.Entry, lastSale *price.Price) *price.Price {
	if !r.Price().IsMarket() {
		return r.Price()
	}
	if !aggressor.Price().IsMarket() {
		return aggressor.Price()
	}
	if lastSale != nil {
		return lastSale
	}
	return price.Zero()
}

func remainderDetails(side tradable.Side, remaining uint64) string {
	return fmt.Sprintf("%v leaving %d", side, remaining)
}

// Fill is the raw fill record produced by TryTrade, carrying the effective
// *price.Price (not yet rendered) so callers can compare/aggregate prices
// numerically (e.g. the opening-cross min-price/max-volume rule in spec
// §4.4) before converting to the wire-facing messages.Fill.
type Fill struct {
	User    string
	Product string
	ID      string
	Side    tradable.Side
	Price   *price.Price
	Volume  uint64
	Details string
}

// ToMessage renders f as the publishable messages.Fill DTO.
func (f *Fill) ToMessage() messages.Fill {
	return messages.Fill{
		User:    f.User,
		Product: f.Product,
		Price:   f.Price.String(),
		Volume:  f.Volume,
		Details: f.Details,
		Side:    f.Side,
		ID:      f.ID,
	}
}

func mergeFill(fills map[tradable.FillKey]*Fill, e *tradable.Entry, qty uint64, eff *price.Price, details string) {
	key := e.Key(eff)
	if existing, ok := fills[key]; ok {
		existing.Volume += qty
		existing.Details = details
		return
	}
	fills[key] = &Fill{
		User:    e.User(),
		Product: e.Product(),
		ID:      e.ID(),
		Side:    e.Side(),
		Price:   eff,
		Volume:  qty,
		Details: details,
	}
}

// TryTrade attempts to cross aggressor against this side's resting queue,
// walking price-time priority: best opposite price first, FIFO within a
// price. It mutates both aggressor and whatever resting entries it
// consumes, archiving fully-consumed entries via Parent, and returns the
// merged fill set (spec §4.3's fill-merge-by-counterparty rule) alongside
// the effective price of the very first trade executed — "the price of the
// first fill in natural order" that spec §4.4 wants for last-sale
// reporting, which a map keyed by counterparty can't recover on its own.
func (s *Side) TryTrade(aggressor *tradable.Entry) (fills map[tradable.FillKey]*Fill, firstPrice *price.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fills = make(map[tradable.FillKey]*Fill)

	for aggressor.RemainingVolume() > 0 {
		lvl, ok := s.tree.Min()
		if !ok {
			break
		}
		if !marketable(aggressor, lvl.price) {
			break
		}

		var i int
		var resting *tradable.Entry
		for i, resting = range lvl.entries {
			eff := effectivePrice(resting, aggressor, s.parent.LastSalePrice())
			if firstPrice == nil {
				firstPrice = eff
			}

			if aggressor.RemainingVolume() >= resting.RemainingVolume() {
				qty := resting.RemainingVolume()
				aggressor.SetRemaining(aggressor.RemainingVolume() - qty)
				resting.SetRemaining(0)
				s.parent.Archive(resting)
				mergeFill(fills, resting, qty, eff, remainderDetails(resting.Side(), 0))
				mergeFill(fills, aggressor, qty, eff, remainderDetails(aggressor.Side(), aggressor.RemainingVolume()))
			} else {
				qty := aggressor.RemainingVolume()
				resting.SetRemaining(resting.RemainingVolume() - qty)
				aggressor.SetRemaining(0)
				s.parent.Archive(aggressor)
				mergeFill(fills, resting, qty, eff, remainderDetails(resting.Side(), resting.RemainingVolume()))
				mergeFill(fills, aggressor, qty, eff, remainderDetails(aggressor.Side(), 0))
			}

			if aggressor.RemainingVolume() == 0 {
				break
			}
		}

		if resting.RemainingVolume() == 0 {
			if i == len(lvl.entries)-1 {
				s.tree.Delete(lvl)
			} else {
				lvl.entries = lvl.entries[i+1:]
			}
		} else {
			lvl.entries = lvl.entries[i:]
		}
	}

	return fills, firstPrice
}

// CancelByID scans all prices for a non-quote entry with the given id,
// archives it, and returns a cancel message with details "<Side> Order
// Cancelled". Returns ok=false if no match (caller falls back to the
// too-late-to-cancel diagnosis against the product's old-entries archive).
func (s *Side) CancelByID(id string) (*messages.Cancel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelByIDLocked(id)
}

// CancelQuoteByUser removes the first (at most one) quote-side entry owned
// by user, and returns a cancel message with details "Quote <Side>-Side Cancelled".
// Silent no-op (ok=false) if none.
func (s *Side) CancelQuoteByUser(user string) (*messages.Cancel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelQuoteByUserLocked(user)
}

func (s *Side) cancelQuoteByUserLocked(user string) (*messages.Cancel, bool) {
	var victimLevel *level
	var victimIdx = -1
	var victim *tradable.Entry

	s.tree.Scan(func(lvl *level) bool {
		for idx, e := range lvl.entries {
			if e.IsQuoteSide() && e.User() == user {
				victimLevel, victimIdx, victim = lvl, idx, e
				return false
			}
		}
		return true
	})

	if victim == nil {
		return nil, false
	}

	remaining := victim.RemainingVolume()
	victim.SetRemaining(0)
	if err := victim.AddCancelled(remaining); err != nil {
		log.Error().Err(err).Str("id", victim.ID()).Msg("failed recording cancelled volume")
	}
	s.parent.Archive(victim)

	victimLevel.entries = append(victimLevel.entries[:victimIdx], victimLevel.entries[victimIdx+1:]...)
	if len(victimLevel.entries) == 0 {
		s.tree.Delete(victimLevel)
	}

	return &messages.Cancel{
		User:    victim.User(),
		Product: victim.Product(),
		Price:   victim.Price().String(),
		Volume:  remaining,
		Details: fmt.Sprintf("Quote %v-Side Cancelled", victim.Side()),
		Side:    victim.Side(),
		ID:      victim.ID(),
	}, true
}

// CancelAll removes every entry from the side (used by market close): quote
// sides are removed by user, plain orders by id. Two-phase collect-then-
// apply avoids mutating the tree while scanning it.
func (s *Side) CancelAll() []*messages.Cancel {
	s.mu.Lock()
	defer s.mu.Unlock()

	var victims []*tradable.Entry
	s.tree.Scan(func(lvl *level) bool {
		victims = append(victims, lvl.entries...)
		return true
	})

	var out []*messages.Cancel
	for _, v := range victims {
		if v.IsQuoteSide() {
			if c, ok := s.cancelQuoteByUserLocked(v.User()); ok {
				out = append(out, c)
			}
		} else {
			if c, ok := s.cancelByIDLocked(v.ID()); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func (s *Side) cancelByIDLocked(id string) (*messages.Cancel, bool) {
	var victimLevel *level
	var victimIdx = -1
	var victim *tradable.Entry

	s.tree.Scan(func(lvl *level) bool {
		for idx, e := range lvl.entries {
			if !e.IsQuoteSide() && e.ID() == id {
				victimLevel, victimIdx, victim = lvl, idx, e
				return false
			}
		}
		return true
	})
	if victim == nil {
		return nil, false
	}
	remaining := victim.RemainingVolume()
	victim.SetRemaining(0)
	if err := victim.AddCancelled(remaining); err != nil {
		log.Error().Err(err).Str("id", victim.ID()).Msg("failed recording cancelled volume")
	}
	s.parent.Archive(victim)
	victimLevel.entries = append(victimLevel.entries[:victimIdx], victimLevel.entries[victimIdx+1:]...)
	if len(victimLevel.entries) == 0 {
		s.tree.Delete(victimLevel)
	}
	return &messages.Cancel{
		User:    victim.User(),
		Product: victim.Product(),
		Price:   victim.Price().String(),
		Volume:  remaining,
		Details: fmt.Sprintf("%v Order Cancelled", victim.Side()),
		Side:    victim.Side(),
		ID:      victim.ID(),
	}, true
}

// Depth renders "<price> x <sum-remaining>" per level in the side's natural
// (best-first) order, or ["<Empty>"] if the side holds nothing.
func (s *Side) Depth() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	s.tree.Scan(func(lvl *level) bool {
		var sum uint64
		for _, e := range lvl.entries {
			sum += e.RemainingVolume()
		}
		out = append(out, fmt.Sprintf("%s x %d", lvl.price, sum))
		return true
	})
	if len(out) == 0 {
		return []string{"<Empty>"}
	}
	return out
}

// OrdersWithRemaining returns every non-zero-remaining entry belonging to
// user, scanned in the side's natural price order.
func (s *Side) OrdersWithRemaining(user string) []*tradable.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*tradable.Entry
	s.tree.Scan(func(lvl *level) bool {
		for _, e := range lvl.entries {
			if e.User() == user && e.RemainingVolume() > 0 {
				out = append(out, e)
			}
		}
		return true
	})
	return out
}

// Top returns the best price and its summed remaining volume, or ok=false
// if the side is empty.
func (s *Side) Top() (p *price.Price, volume uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl, found := s.tree.Min()
	if !found {
		return nil, 0, false
	}
	var sum uint64
	for _, e := range lvl.entries {
		sum += e.RemainingVolume()
	}
	return lvl.price, sum, true
}

// IsEmpty reports whether the side holds no entries.
func (s *Side) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Len() == 0
}

// OrdersAtTop returns a snapshot copy of the entries resting at the current
// top price level, for the opening cross's batch-matching pass (spec §4.4:
// "for each entry in the BUY top queue"). A copy, not the live slice, per
// the teacher's iterator-mid-mutation note (spec §9): the caller uses these
// as aggressors against the opposite side while this side's own queue may
// be pruned afterward by PruneZeroRemaining.
func (s *Side) OrdersAtTop() []*tradable.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	lvl, ok := s.tree.Min()
	if !ok {
		return nil
	}
	out := make([]*tradable.Entry, len(lvl.entries))
	copy(out, lvl.entries)
	return out
}

// PruneZeroRemaining removes any resting entries whose remaining volume has
// been driven to zero by acting as an aggressor elsewhere (the opening
// cross uses this side's own resting orders as aggressors against the
// opposite side; TryTrade only maintains the side it was called on, so the
// aggressor side needs this explicit sweep), archiving each via Parent and
// dropping emptied price levels.
func (s *Side) PruneZeroRemaining() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var emptied []*level
	s.tree.Scan(func(lvl *level) bool {
		kept := lvl.entries[:0]
		for _, e := range lvl.entries {
			if e.RemainingVolume() == 0 {
				s.parent.Archive(e)
			} else {
				kept = append(kept, e)
			}
		}
		lvl.entries = kept
		if len(lvl.entries) == 0 {
			emptied = append(emptied, lvl)
		}
		return true
	})
	for _, lvl := range emptied {
		s.tree.Delete(lvl)
	}
}

