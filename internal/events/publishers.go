package events

import (
	"sync"

	"ironbook/internal/errs"
	"ironbook/internal/messages"
)

// CurrentMarketPublisher fans out snapshot changes per product, spec §4.6.
type CurrentMarketPublisher struct {
	reg *registry[messages.Snapshot]
}

func NewCurrentMarketPublisher() *CurrentMarketPublisher {
	return &CurrentMarketPublisher{reg: newRegistry[messages.Snapshot]()}
}

func (p *CurrentMarketPublisher) Subscribe(product, subscriberID string, handler func(messages.Snapshot)) error {
	return p.reg.Subscribe(product, subscriberID, handler)
}

func (p *CurrentMarketPublisher) Unsubscribe(product, subscriberID string) error {
	return p.reg.Unsubscribe(product, subscriberID)
}

func (p *CurrentMarketPublisher) Publish(s messages.Snapshot) {
	p.reg.Publish(s.Product, s)
}

// TickerPublisher maintains a per-product last-known price (as raw cents,
// never a reparsed currency string) and computes the up/down/flat/first
// arrow on every tick, spec §4.6.
type TickerPublisher struct {
	reg *registry[messages.Ticker]

	mu        sync.Mutex
	lastKnown map[string]int64
}

func NewTickerPublisher() *TickerPublisher {
	return &TickerPublisher{
		reg:       newRegistry[messages.Ticker](),
		lastKnown: make(map[string]int64),
	}
}

func (p *TickerPublisher) Subscribe(product, subscriberID string, handler func(messages.Ticker)) error {
	return p.reg.Subscribe(product, subscriberID, handler)
}

func (p *TickerPublisher) Unsubscribe(product, subscriberID string) error {
	return p.reg.Unsubscribe(product, subscriberID)
}

// Tick records product's latest clearing price (in cents) and publishes the
// resulting arrow-annotated update.
func (p *TickerPublisher) Tick(product, priceStr string, cents int64) {
	p.mu.Lock()
	last, wasSeen := p.lastKnown[product]
	arrow := messages.ArrowFirst
	switch {
	case !wasSeen:
		arrow = messages.ArrowFirst
	case cents > last:
		arrow = messages.ArrowUp
	case cents < last:
		arrow = messages.ArrowDown
	default:
		arrow = messages.ArrowFlat
	}
	p.lastKnown[product] = cents
	p.mu.Unlock()

	p.reg.Publish(product, messages.Ticker{Product: product, Price: priceStr, Arrow: arrow})
}

// LastSalePublisher fans out last-sale events and, per spec §4.6, triggers
// a ticker tick with the same price on every publish.
type LastSalePublisher struct {
	reg    *registry[messages.LastSale]
	ticker *TickerPublisher
}

func NewLastSalePublisher(ticker *TickerPublisher) *LastSalePublisher {
	return &LastSalePublisher{reg: newRegistry[messages.LastSale](), ticker: ticker}
}

func (p *LastSalePublisher) Subscribe(product, subscriberID string, handler func(messages.LastSale)) error {
	return p.reg.Subscribe(product, subscriberID, handler)
}

func (p *LastSalePublisher) Unsubscribe(product, subscriberID string) error {
	return p.reg.Unsubscribe(product, subscriberID)
}

func (p *LastSalePublisher) Publish(ls messages.LastSale) {
	p.reg.Publish(ls.Product, ls)
	p.ticker.Tick(ls.Product, ls.Price, ls.Cents)
}

// MessageSubscriber receives a user's own fills and cancels, plus the
// broadcast market-state message every subscriber to any product topic
// implicitly receives, per spec §4.6.
type MessageSubscriber interface {
	OnFill(messages.Fill)
	OnCancel(messages.Cancel)
	OnMarketState(messages.MarketStateMsg)
}

// MessagePublisher is the fill/cancel/market-state stream: a per-product
// subscriber set keyed by user (fills and cancels are delivered only to the
// user named on the message), plus an implicit all-subscribers set used for
// market-state broadcasts. Grounded directly on the teacher's
// clientSessions map[string]ClientSession + clientSessionsLock pattern,
// generalized to a product-keyed map of per-user subscribers.
type MessagePublisher struct {
	mu       sync.Mutex
	bySymbol map[string]map[string]MessageSubscriber
	refcount map[string]int
	all      map[string]MessageSubscriber
}

func NewMessagePublisher() *MessagePublisher {
	return &MessagePublisher{
		bySymbol: make(map[string]map[string]MessageSubscriber),
		refcount: make(map[string]int),
		all:      make(map[string]MessageSubscriber),
	}
}

// Subscribe registers sub to receive user's fills and cancels on product,
// and (implicitly) market-state broadcasts for as long as user holds any
// subscription on any product.
func (p *MessagePublisher) Subscribe(product, user string, sub MessageSubscriber) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs, ok := p.bySymbol[product]
	if !ok {
		subs = make(map[string]MessageSubscriber)
		p.bySymbol[product] = subs
	}
	if _, exists := subs[user]; exists {
		return errs.ErrAlreadySubscribed
	}
	subs[user] = sub
	p.refcount[user]++
	p.all[user] = sub
	return nil
}

func (p *MessagePublisher) Unsubscribe(product, user string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs, ok := p.bySymbol[product]
	if !ok {
		return errs.ErrInvalidStock
	}
	if _, exists := subs[user]; !exists {
		return errs.ErrNotSubscribed
	}
	delete(subs, user)
	p.refcount[user]--
	if p.refcount[user] <= 0 {
		delete(p.refcount, user)
		delete(p.all, user)
	}
	return nil
}

// PublishFill delivers f only to f.User, and only if f.User is currently
// subscribed to f.Product's message topic.
func (p *MessagePublisher) PublishFill(f messages.Fill) {
	if sub, ok := p.subscriberFor(f.Product, f.User); ok {
		dispatch(func(messages.Fill) { sub.OnFill(f) }, f)
	}
}

// PublishCancel delivers c only to c.User, symmetric with PublishFill.
func (p *MessagePublisher) PublishCancel(c messages.Cancel) {
	if sub, ok := p.subscriberFor(c.Product, c.User); ok {
		dispatch(func(messages.Cancel) { sub.OnCancel(c) }, c)
	}
}

// BroadcastMarketState delivers msg to every subscriber of any product
// topic, per spec §4.5/§4.6.
func (p *MessagePublisher) BroadcastMarketState(msg messages.MarketStateMsg) {
	p.mu.Lock()
	snapshot := make([]MessageSubscriber, 0, len(p.all))
	for _, sub := range p.all {
		snapshot = append(snapshot, sub)
	}
	p.mu.Unlock()

	for _, sub := range snapshot {
		dispatch(func(messages.MarketStateMsg) { sub.OnMarketState(msg) }, msg)
	}
}

func (p *MessagePublisher) subscriberFor(product, user string) (MessageSubscriber, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	subs, ok := p.bySymbol[product]
	if !ok {
		return nil, false
	}
	sub, ok := subs[user]
	return sub, ok
}
