// Package exchange is the process-wide singleton spec §9 calls for: the
// product registry and the CLOSED/PREOPEN/OPEN market-state machine,
// generalized from the teacher's internal/engine/engine.go Engine{Books
// map[AssetType]OrderBook} to a per-symbol market.Product registry with an
// explicit state machine the teacher never had.
package exchange

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"ironbook/internal/errs"
	"ironbook/internal/market"
	"ironbook/internal/messages"
	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

// State is one of the three market-wide lifecycle states, spec §4.5.
type State int

const (
	Closed State = iota
	Preopen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Preopen:
		return "PREOPEN"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// MessageSink is the broadcast surface set_market_state uses to notify
// every subscriber, regardless of product, per spec §4.5/§4.6.
type MessageSink interface {
	BroadcastMarketState(messages.MarketStateMsg)
}

// Exchange is the registry→product_book→(buy,sell) lock root, per spec §5's
// fixed acquisition order. Built lazily by the caller and held for the
// process lifetime, the way the teacher's cmd/main.go holds its single
// engine.New(...) value.
type Exchange struct {
	mu       sync.Mutex
	state    State
	products map[string]*market.Product
	sink     market.EventSink
	msgSink  MessageSink
}

// New constructs an empty, CLOSED exchange wired to sink for per-product
// event fan-out and msgSink for market-state broadcasts.
func New(sink market.EventSink, msgSink MessageSink) *Exchange {
	return &Exchange{
		state:    Closed,
		products: make(map[string]*market.Product),
		sink:     sink,
		msgSink:  msgSink,
	}
}

// CreateProduct registers symbol, legal in any market state per spec §4.5's
// admission table.
func (x *Exchange) CreateProduct(symbol string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if symbol == "" {
		return fmt.Errorf("%w: symbol required", errs.ErrInvalidData)
	}
	if _, ok := x.products[symbol]; ok {
		return fmt.Errorf("%w: %s", errs.ErrProductAlreadyExists, symbol)
	}
	x.products[symbol] = market.New(symbol, x.sink)
	log.Info().Str("product", symbol).Msg("product created")
	return nil
}

// Products returns every registered symbol, sorted, per spec §6's
// get_products.
func (x *Exchange) Products() []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make([]string, 0, len(x.products))
	for symbol := range x.products {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// State returns the current market-wide lifecycle state.
func (x *Exchange) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}

// product looks up symbol under the registry lock, which callers release
// before descending into the product's own lock (spec §5's fixed ordering:
// registry is acquired and released, then the product's own mutex is taken
// by the market.Product methods themselves).
func (x *Exchange) product(symbol string) (*market.Product, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	p, ok := x.products[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrNoSuchProduct, symbol)
	}
	return p, nil
}

// validTransition enforces the CLOSED -> PREOPEN -> OPEN -> CLOSED matrix.
func validTransition(from, to State) bool {
	switch from {
	case Closed:
		return to == Preopen
	case Preopen:
		return to == Open
	case Open:
		return to == Closed
	default:
		return false
	}
}

// SetMarketState transitions the market, running each product's opening
// cross on entry to OPEN and cancelling every resting entry on entry to
// CLOSED, then broadcasting the new state to every subscriber, per spec
// §4.5.
func (x *Exchange) SetMarketState(next State) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !validTransition(x.state, next) {
		return fmt.Errorf("%w: %s -> %s", errs.ErrInvalidMarketStateTransition, x.state, next)
	}

	x.state = next
	log.Info().Str("state", next.String()).Msg("market state changed")

	switch next {
	case Open:
		for _, p := range x.products {
			p.OpenMarket()
		}
	case Closed:
		for _, p := range x.products {
			p.CloseMarket()
		}
	}

	x.msgSink.BroadcastMarketState(messages.MarketStateMsg{State: next.String()})
	return nil
}

// admit enforces spec §4.5's per-command table for non-query, non-
// create-product commands.
func (x *Exchange) admit(requireLimit, isMarketOrder bool) error {
	switch x.State() {
	case Closed:
		return fmt.Errorf("%w: market is CLOSED", errs.ErrInvalidMarketState)
	case Preopen:
		if isMarketOrder {
			return fmt.Errorf("%w: MARKET orders rejected in PREOPEN", errs.ErrInvalidMarketState)
		}
		return nil
	case Open:
		return nil
	default:
		return fmt.Errorf("%w: unknown state", errs.ErrInvalidMarketState)
	}
}

// SubmitOrder validates admission, synthesizes the tradable.Entry, and
// routes it to the product's AddOrder, per spec §6's submit_order.
func (x *Exchange) SubmitOrder(user, symbol string, p *price.Price, volume uint64, side tradable.Side) (string, error) {
	if err := x.admit(true, p.IsMarket()); err != nil {
		return "", err
	}
	prod, err := x.product(symbol)
	if err != nil {
		return "", err
	}
	order, err := tradable.New(user, symbol, side, tradable.KindOrder, p, volume)
	if err != nil {
		return "", err
	}
	prod.AddOrder(order, x.State() == Preopen)
	return order.ID(), nil
}

// SubmitOrderCancel routes to the product's CancelOrder, per spec §6.
func (x *Exchange) SubmitOrderCancel(symbol string, side tradable.Side, orderID string) error {
	if err := x.admit(false, false); err != nil {
		return err
	}
	prod, err := x.product(symbol)
	if err != nil {
		return err
	}
	return prod.CancelOrder(side, orderID)
}

// SubmitQuote validates the spec §6 constraints (sell > buy, both prices
// and volumes strictly positive) before constructing the two quote-side
// legs and handing them to the product atomically.
func (x *Exchange) SubmitQuote(user, symbol string, buyPrice *price.Price, buyVolume uint64, sellPrice *price.Price, sellVolume uint64) error {
	if err := x.admit(true, false); err != nil {
		return err
	}
	if buyPrice.IsMarket() || sellPrice.IsMarket() {
		return fmt.Errorf("%w: quote prices must be LIMIT", errs.ErrDataValidation)
	}
	if !sellPrice.Gt(buyPrice) {
		return fmt.Errorf("%w: sell price must exceed buy price", errs.ErrDataValidation)
	}
	if !buyPrice.Gt(price.Zero()) {
		return fmt.Errorf("%w: buy price must be > $0.00", errs.ErrDataValidation)
	}
	if buyVolume == 0 || sellVolume == 0 {
		return fmt.Errorf("%w: volumes must be > 0", errs.ErrDataValidation)
	}

	prod, err := x.product(symbol)
	if err != nil {
		return err
	}
	buyLeg, err := tradable.New(user, symbol, tradable.Buy, tradable.KindQuoteSide, buyPrice, buyVolume)
	if err != nil {
		return err
	}
	sellLeg, err := tradable.New(user, symbol, tradable.Sell, tradable.KindQuoteSide, sellPrice, sellVolume)
	if err != nil {
		return err
	}
	prod.AddQuote(user, buyLeg, sellLeg, x.State() == Preopen)
	return nil
}

// SubmitQuoteCancel routes to the product's CancelQuote, per spec §6.
func (x *Exchange) SubmitQuoteCancel(user, symbol string) error {
	if err := x.admit(false, false); err != nil {
		return err
	}
	prod, err := x.product(symbol)
	if err != nil {
		return err
	}
	prod.CancelQuote(user)
	return nil
}

// GetBookDepth returns (buy levels, sell levels), per spec §6.
func (x *Exchange) GetBookDepth(symbol string) ([]string, []string, error) {
	prod, err := x.product(symbol)
	if err != nil {
		return nil, nil, err
	}
	buy, sell := prod.Depth()
	return buy, sell, nil
}

// GetOrdersWithRemainingQty returns user's unfilled entries on symbol, per
// spec §6.
func (x *Exchange) GetOrdersWithRemainingQty(user, symbol string) ([]*tradable.Entry, error) {
	prod, err := x.product(symbol)
	if err != nil {
		return nil, err
	}
	return prod.OrdersWithRemaining(user), nil
}
