package events

import "ironbook/internal/messages"

// Bus wires the four publishers together as the single fan-out surface
// internal/market.Product and internal/exchange.Exchange depend on, so
// callers construct it once and hand it to both (market.EventSink and
// exchange.MessageSink are both satisfied by *Bus).
type Bus struct {
	CurrentMarket *CurrentMarketPublisher
	LastSale      *LastSalePublisher
	Ticker        *TickerPublisher
	Message       *MessagePublisher
}

// NewBus constructs the four publishers with the ticker wired underneath
// last-sale, per spec §4.6.
func NewBus() *Bus {
	ticker := NewTickerPublisher()
	return &Bus{
		CurrentMarket: NewCurrentMarketPublisher(),
		LastSale:      NewLastSalePublisher(ticker),
		Ticker:        ticker,
		Message:       NewMessagePublisher(),
	}
}

func (b *Bus) PublishSnapshot(s messages.Snapshot)   { b.CurrentMarket.Publish(s) }
func (b *Bus) PublishLastSale(ls messages.LastSale)  { b.LastSale.Publish(ls) }
func (b *Bus) PublishFill(f messages.Fill)           { b.Message.PublishFill(f) }
func (b *Bus) PublishCancel(c messages.Cancel)       { b.Message.PublishCancel(c) }
func (b *Bus) BroadcastMarketState(m messages.MarketStateMsg) {
	b.Message.BroadcastMarketState(m)
}
