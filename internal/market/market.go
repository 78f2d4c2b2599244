// Package market implements the product book: the BUY/SELL pair of
// book.Sides for one product, quote replacement, the opening auction,
// close, and current-market derivation — spec §4.4. Grounded on the
// teacher's two-sided ProductBook shape (internal/book/order_book.go,
// internal/order_book.go, both pre-engine drafts) generalized to the
// interned Price model and the opening-cross batch-matching structure the
// teacher's Match loop (internal/engine/orderbook.go) already walks.
package market

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"ironbook/internal/book"
	"ironbook/internal/errs"
	"ironbook/internal/messages"
	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

// EventSink is the fan-out surface a Product publishes to. It is
// implemented by internal/events' publishers; Product never holds
// subscriber state itself.
type EventSink interface {
	PublishSnapshot(s messages.Snapshot)
	PublishLastSale(ls messages.LastSale)
	PublishFill(f messages.Fill)
	PublishCancel(c messages.Cancel)
}

// Product is one symbol's order book.
type Product struct {
	mu           sync.Mutex
	symbol       string
	buy          *book.Side
	sell         *book.Side
	sink         EventSink
	userHasQuote map[string]bool
	oldEntries   map[string][]*tradable.Entry // keyed by final price string
	archivedIDs  map[string]bool              // guards against double-archiving an id

	lastFingerprint string
	lastSalePrice   *price.Price

	// EmitReplaceCancels resolves spec §7/§9's open question: when true,
	// quote replacement publishes explicit "Quote replaced" cancels for the
	// outgoing sides before installing the new ones. Default false matches
	// the historical silent-atomic-replace behavior.
	EmitReplaceCancels bool
}

// New constructs an empty product book for symbol, wired to sink for
// event fan-out.
func New(symbol string, sink EventSink) *Product {
	p := &Product{
		symbol:       symbol,
		sink:         sink,
		userHasQuote: make(map[string]bool),
		oldEntries:   make(map[string][]*tradable.Entry),
		archivedIDs:  make(map[string]bool),
	}
	p.buy = book.New(symbol, tradable.Buy, p)
	p.sell = book.New(symbol, tradable.Sell, p)
	return p
}

// Symbol returns the product's ticker.
func (p *Product) Symbol() string { return p.symbol }

// Archive implements book.Parent: receives every fully-consumed or
// fully-cancelled tradable, keyed by its final price. Idempotent per id: an
// aggressor that TryTrade already archived (spec §4.3's "archive aggressor"
// step) and that is also swept up afterward by PruneZeroRemaining (because
// it was resting in its own side during the opening cross) is recorded
// once.
func (p *Product) Archive(e *tradable.Entry) {
	if p.archivedIDs[e.ID()] {
		return
	}
	p.archivedIDs[e.ID()] = true
	key := e.Price().String()
	p.oldEntries[key] = append(p.oldEntries[key], e)
}

// LastSalePrice implements book.Parent: resolves the opening-cross
// MARKET-vs-MARKET fallback (spec §4.3's parenthetical).
func (p *Product) LastSalePrice() *price.Price {
	return p.lastSalePrice
}

func (p *Product) sideFor(side tradable.Side) *book.Side {
	if side == tradable.Buy {
		return p.buy
	}
	return p.sell
}

func (p *Product) oppositeOf(side tradable.Side) *book.Side {
	if side == tradable.Buy {
		return p.sell
	}
	return p.buy
}

// AddOrder implements spec §4.4's add_to_book for a plain order. inPreopen
// selects passive-only behavior; the caller (internal/exchange) is
// responsible for admission control per its market-state table.
func (p *Product) AddOrder(order *tradable.Entry, inPreopen bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if inPreopen {
		p.sideFor(order.Side()).AddToBook(order)
		p.refreshCurrentMarketLocked()
		return
	}

	fills, firstPrice := p.oppositeOf(order.Side()).TryTrade(order)
	if len(fills) > 0 {
		// spec §4.4 order: fills, then current-market, then last-sale.
		p.publishFillsLocked(fills)
		p.refreshCurrentMarketLocked()
		p.publishLastSaleLocked(order, firstPrice)
	}

	if order.RemainingVolume() > 0 {
		p.settleUnfilledRemainderLocked(order)
	}
	p.refreshCurrentMarketLocked()
}

func (p *Product) publishFillsLocked(fills map[tradable.FillKey]*book.Fill) {
	for _, f := range fills {
		p.sink.PublishFill(f.ToMessage())
	}
}

// publishLastSaleLocked publishes a continuous-trading last-sale: the price
// of the first fill in natural (execution) order, and traded = original -
// remaining on the aggressor entry itself, per spec §4.4. firstPrice comes
// from TryTrade's own chronological bookkeeping; a map keyed by counterparty
// has no execution order left to reconstruct it from.
func (p *Product) publishLastSaleLocked(aggressor *tradable.Entry, firstPrice *price.Price) {
	traded := aggressor.OriginalVolume() - aggressor.RemainingVolume()
	p.lastSalePrice = firstPrice
	p.sink.PublishLastSale(messages.LastSale{
		Product: p.symbol,
		Price:   firstPrice.String(),
		Cents:   firstPrice.Cents(),
		Volume:  traded,
	})
}

// settleUnfilledRemainderLocked handles what's left of an aggressor entry
// after crossing: a MARKET remainder is cancelled outright (spec §4.4:
// "Cancelled"); a LIMIT remainder rests on the entry's own side.
func (p *Product) settleUnfilledRemainderLocked(order *tradable.Entry) {
	if order.Price().IsMarket() {
		remaining := order.RemainingVolume()
		order.SetRemaining(0)
		if err := order.AddCancelled(remaining); err != nil {
			log.Error().Err(err).Str("id", order.ID()).Msg("failed recording cancelled volume")
		}
		p.Archive(order)
		p.sink.PublishCancel(messages.Cancel{
			User:    order.User(),
			Product: p.symbol,
			Price:   order.Price().String(),
			Volume:  remaining,
			Details: "Cancelled",
			Side:    order.Side(),
			ID:      order.ID(),
		})
		return
	}
	p.sideFor(order.Side()).AddToBook(order)
}

// AddQuote implements spec §4.4's add_to_book for a two-sided quote. buyLeg
// and sellLeg are the two already-constructed tradable.Entry legs sharing
// the same user.
func (p *Product) AddQuote(user string, buyLeg, sellLeg *tradable.Entry, inPreopen bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userHasQuote[user] {
		p.replaceQuoteLocked(user)
	}

	p.quoteLegLocked(buyLeg, inPreopen)
	p.quoteLegLocked(sellLeg, inPreopen)

	p.userHasQuote[user] = true
	p.refreshCurrentMarketLocked()
}

func (p *Product) quoteLegLocked(leg *tradable.Entry, inPreopen bool) {
	if inPreopen {
		p.sideFor(leg.Side()).AddToBook(leg)
		return
	}
	fills, firstPrice := p.oppositeOf(leg.Side()).TryTrade(leg)
	if len(fills) > 0 {
		p.publishFillsLocked(fills)
		p.publishLastSaleLocked(leg, firstPrice)
	}
	if leg.RemainingVolume() > 0 {
		p.settleUnfilledRemainderLocked(leg)
	}
}

// replaceQuoteLocked removes both existing quote sides for user without
// cycling through the ordinary cancel-publish path, per spec §4.4 ("remove
// both existing sides first... without cancel-on-a-canceled-quote
// cycling"). If EmitReplaceCancels is set, it publishes "Quote replaced"
// cancels for each outgoing side first (spec §7/§9 open question).
func (p *Product) replaceQuoteLocked(user string) {
	if p.EmitReplaceCancels {
		if c, ok := p.describeQuoteLocked(p.buy, user); ok {
			c.Details = "Quote replaced"
			p.sink.PublishCancel(*c)
		}
		if c, ok := p.describeQuoteLocked(p.sell, user); ok {
			c.Details = "Quote replaced"
			p.sink.PublishCancel(*c)
		}
	}
	p.buy.CancelQuoteByUser(user)
	p.sell.CancelQuoteByUser(user)
	delete(p.userHasQuote, user)
}

// describeQuoteLocked peeks at user's resting quote leg on side without
// removing it, for the EmitReplaceCancels audit path.
func (p *Product) describeQuoteLocked(side *book.Side, user string) (*messages.Cancel, bool) {
	for _, e := range side.OrdersWithRemaining(user) {
		if e.IsQuoteSide() {
			return &messages.Cancel{
				User:    e.User(),
				Product: p.symbol,
				Price:   e.Price().String(),
				Volume:  e.RemainingVolume(),
				Side:    e.Side(),
				ID:      e.ID(),
			}, true
		}
	}
	return nil, false
}

// OpenMarket runs the opening cross (spec §4.4): while BUY top and SELL top
// are both present and either MARKET-priced or buy>=sell, sweep every
// resting order in the BUY top queue against SELL as an aggressor, then
// publish current-market and last-sale for the pass before re-reading tops.
func (p *Product) OpenMarket() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		buyTop, _, buyOK := p.buy.Top()
		sellTop, _, sellOK := p.sell.Top()
		if !buyOK || !sellOK {
			break
		}
		if !buyTop.IsMarket() && !sellTop.IsMarket() && !buyTop.Ge(sellTop) {
			break
		}

		passFills := make(map[tradable.FillKey]*book.Fill)
		for _, order := range p.buy.OrdersAtTop() {
			if order.RemainingVolume() == 0 {
				continue
			}
			legFills, _ := p.sell.TryTrade(order)
			for k, f := range legFills {
				if existing, ok := passFills[k]; ok {
					existing.Volume += f.Volume
					existing.Details = f.Details
				} else {
					passFills[k] = f
				}
			}
		}
		p.buy.PruneZeroRemaining()

		if len(passFills) == 0 {
			break
		}

		for _, f := range passFills {
			p.sink.PublishFill(f.ToMessage())
		}
		p.refreshCurrentMarketLocked()
		p.publishOpeningLastSaleLocked(passFills)
	}
}

// publishOpeningLastSaleLocked implements spec §4.4's intentional reporting
// convention: last-sale price is the MIN of this pass's fill prices,
// last-sale quantity is the MAX of this pass's fill volumes.
func (p *Product) publishOpeningLastSaleLocked(fills map[tradable.FillKey]*book.Fill) {
	var minPrice *price.Price
	var maxVolume uint64
	for _, f := range fills {
		if minPrice == nil || f.Price.Lt(minPrice) {
			minPrice = f.Price
		}
		if f.Volume > maxVolume {
			maxVolume = f.Volume
		}
	}
	p.lastSalePrice = minPrice
	p.sink.PublishLastSale(messages.LastSale{
		Product: p.symbol,
		Price:   minPrice.String(),
		Cents:   minPrice.Cents(),
		Volume:  maxVolume,
	})
}

// CloseMarket cancels everything resting on both sides and refreshes
// current-market, per spec §4.4.
func (p *Product) CloseMarket() []*messages.Cancel {
	p.mu.Lock()
	defer p.mu.Unlock()

	var cancels []*messages.Cancel
	cancels = append(cancels, p.buy.CancelAll()...)
	cancels = append(cancels, p.sell.CancelAll()...)
	for _, c := range cancels {
		p.sink.PublishCancel(*c)
	}
	p.refreshCurrentMarketLocked()
	return cancels
}

// CancelOrder routes by side to the side's cancel-by-id, falling back to
// the too-late-to-cancel diagnosis, per spec §4.4.
func (p *Product) CancelOrder(side tradable.Side, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.sideFor(side).CancelByID(id)
	if ok {
		p.sink.PublishCancel(*c)
		p.refreshCurrentMarketLocked()
		return nil
	}
	return p.checkTooLateToCancelLocked(id)
}

// checkTooLateToCancelLocked searches the old-entries archive: a match
// publishes a cancel with details "Too Late to Cancel"; a miss fails with
// ErrOrderNotFound.
func (p *Product) checkTooLateToCancelLocked(id string) error {
	for _, entries := range p.oldEntries {
		for _, e := range entries {
			if e.ID() == id {
				p.sink.PublishCancel(messages.Cancel{
					User:    e.User(),
					Product: p.symbol,
					Price:   e.Price().String(),
					Volume:  0,
					Details: "Too Late to Cancel",
					Side:    e.Side(),
					ID:      e.ID(),
				})
				return nil
			}
		}
	}
	return fmt.Errorf("%w: id %s", errs.ErrOrderNotFound, id)
}

// CancelQuote cancels both sides of user's active quote, refreshing
// current-market once.
func (p *Product) CancelQuote(user string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.buy.CancelQuoteByUser(user); ok {
		p.sink.PublishCancel(*c)
	}
	if c, ok := p.sell.CancelQuoteByUser(user); ok {
		p.sink.PublishCancel(*c)
	}
	delete(p.userHasQuote, user)
	p.refreshCurrentMarketLocked()
}

// Depth returns (buy levels, sell levels), per spec §6's get_book_depth.
func (p *Product) Depth() ([]string, []string) {
	return p.buy.Depth(), p.sell.Depth()
}

// OrdersWithRemaining returns user's unfilled entries across both sides.
func (p *Product) OrdersWithRemaining(user string) []*tradable.Entry {
	out := p.buy.OrdersWithRemaining(user)
	out = append(out, p.sell.OrdersWithRemaining(user)...)
	return out
}

// refreshCurrentMarketLocked forms the current-market fingerprint and
// publishes a snapshot only if it differs from the last one published,
// per spec §4.4.
func (p *Product) refreshCurrentMarketLocked() {
	buyPrice, buyVolume, buyOK := p.buy.Top()
	sellPrice, sellVolume, sellOK := p.sell.Top()

	if !buyOK {
		buyPrice, buyVolume = price.Zero(), 0
	}
	if !sellOK {
		sellPrice, sellVolume = price.Zero(), 0
	}

	snap := messages.Snapshot{
		Product:    p.symbol,
		BuyPrice:   buyPrice.String(),
		BuyVolume:  buyVolume,
		SellPrice:  sellPrice.String(),
		SellVolume: sellVolume,
	}
	fp := snap.Fingerprint()
	if fp == p.lastFingerprint {
		return
	}
	p.lastFingerprint = fp
	log.Debug().Str("product", p.symbol).Str("snapshot", snap.String()).Msg("current market changed")
	p.sink.PublishSnapshot(snap)
}
