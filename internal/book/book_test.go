package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

// fakeParent is a minimal Parent for exercising a Side in isolation.
type fakeParent struct {
	archived []*tradable.Entry
	lastSale *price.Price
}

func (f *fakeParent) Archive(e *tradable.Entry) { f.archived = append(f.archived, e) }
func (f *fakeParent) LastSalePrice() *price.Price { return f.lastSale }

func mustEntry(t *testing.T, user string, side tradable.Side, p *price.Price, vol uint64) *tradable.Entry {
	t.Helper()
	e, err := tradable.New(user, "AAPL", side, tradable.KindOrder, p, vol)
	assert.NoError(t, err)
	return e
}

func TestAddToBook_OrdersByPriceTimePriority(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)

	buy.AddToBook(mustEntry(t, "a", tradable.Buy, price.Limit(9900), 10))
	buy.AddToBook(mustEntry(t, "b", tradable.Buy, price.Limit(10000), 5))
	buy.AddToBook(mustEntry(t, "c", tradable.Buy, price.Limit(9900), 20))

	top, vol, ok := buy.Top()
	assert.True(t, ok)
	assert.Equal(t, price.Limit(10000), top)
	assert.Equal(t, uint64(5), vol)

	assert.Equal(t, []string{"$100.00 x 5", "$99.00 x 30"}, buy.Depth())
}

func TestTryTrade_FullMatch(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Limit(10000), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Limit(10000), 10)
	fills, firstPrice := sell.TryTrade(aggressor)

	assert.Equal(t, price.Limit(10000), firstPrice)
	assert.Equal(t, uint64(0), aggressor.RemainingVolume())
	assert.Len(t, fills, 2)
	assert.True(t, sell.IsEmpty())
	assert.Len(t, sellParent.archived, 1)
}

func TestTryTrade_PartialMatch_LeavesRestingRemainder(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Limit(10000), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Limit(10000), 4)
	fills, _ := sell.TryTrade(aggressor)

	assert.Equal(t, uint64(0), aggressor.RemainingVolume())
	assert.False(t, sell.IsEmpty())
	_, vol, ok := sell.Top()
	assert.True(t, ok)
	assert.Equal(t, uint64(6), vol)
	assert.Len(t, fills, 2)
}

func TestTryTrade_SweepsMultipleLevels_FillsKeyedPerPrice(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker1", tradable.Sell, price.Limit(10000), 5))
	sell.AddToBook(mustEntry(t, "maker1", tradable.Sell, price.Limit(10100), 5))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Limit(10100), 10)
	fills, firstPrice := sell.TryTrade(aggressor)

	assert.Equal(t, uint64(0), aggressor.RemainingVolume())
	assert.Equal(t, price.Limit(10000), firstPrice)
	assert.True(t, sell.IsEmpty())

	// Fills merge only when the (user, id, price) key matches; here the two
	// resting entries have distinct ids and the two trades happen at
	// different prices, so maker1 ends up with two fill records and the
	// aggressor with two more, one per price.
	assert.Len(t, fills, 4)
	var makerVolume uint64
	for k, f := range fills {
		if k.User == "maker1" {
			makerVolume += f.Volume
		}
	}
	assert.Equal(t, uint64(10), makerVolume)
}

func TestTryTrade_NotMarketable_NoTrade(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Limit(10000), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Limit(9900), 10)
	fills, firstPrice := sell.TryTrade(aggressor)

	assert.Empty(t, fills)
	assert.Nil(t, firstPrice)
	assert.Equal(t, uint64(10), aggressor.RemainingVolume())
}

func TestTryTrade_MarketAggressor_AlwaysCrosses(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Limit(10000), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Market(), 10)
	fills, firstPrice := sell.TryTrade(aggressor)

	assert.Equal(t, price.Limit(10000), firstPrice, "resting LIMIT price wins when aggressor is MARKET")
	assert.NotEmpty(t, fills)
}

func TestTryTrade_BothMarket_FallsBackToLastSale(t *testing.T) {
	lastSale := price.Limit(9950)
	sellParent := &fakeParent{lastSale: lastSale}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Market(), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Market(), 10)
	_, firstPrice := sell.TryTrade(aggressor)

	assert.Equal(t, lastSale, firstPrice)
}

func TestTryTrade_BothMarket_NoLastSale_FallsBackToZero(t *testing.T) {
	sellParent := &fakeParent{}
	sell := New("AAPL", tradable.Sell, sellParent)
	sell.AddToBook(mustEntry(t, "maker", tradable.Sell, price.Market(), 10))

	aggressor := mustEntry(t, "taker", tradable.Buy, price.Market(), 10)
	_, firstPrice := sell.TryTrade(aggressor)

	assert.Equal(t, price.Zero(), firstPrice)
}

func TestCancelByID(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	e := mustEntry(t, "a", tradable.Buy, price.Limit(10000), 10)
	buy.AddToBook(e)

	c, ok := buy.CancelByID(e.ID())
	assert.True(t, ok)
	assert.Equal(t, uint64(10), c.Volume)
	assert.True(t, buy.IsEmpty())
	assert.Len(t, parent.archived, 1)
	assert.Equal(t, uint64(0), e.RemainingVolume())
	assert.Equal(t, uint64(10), e.CancelledVolume())
	assert.Equal(t, uint64(0), e.TradedVolume())

	_, ok = buy.CancelByID(e.ID())
	assert.False(t, ok, "cancelling an already-cancelled id is a no-op")
}

func TestCancelQuoteByUser(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	q, err := tradable.New("a", "AAPL", tradable.Buy, tradable.KindQuoteSide, price.Limit(10000), 10)
	assert.NoError(t, err)
	buy.AddToBook(q)

	c, ok := buy.CancelQuoteByUser("a")
	assert.True(t, ok)
	assert.Contains(t, c.Details, "Quote")
	assert.True(t, buy.IsEmpty())
	assert.Equal(t, uint64(10), q.CancelledVolume())
	assert.Equal(t, uint64(0), q.TradedVolume())

	_, ok = buy.CancelQuoteByUser("a")
	assert.False(t, ok)
}

func TestCancelAll(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	buy.AddToBook(mustEntry(t, "a", tradable.Buy, price.Limit(10000), 10))
	q, err := tradable.New("b", "AAPL", tradable.Buy, tradable.KindQuoteSide, price.Limit(9900), 5)
	assert.NoError(t, err)
	buy.AddToBook(q)

	cancels := buy.CancelAll()
	assert.Len(t, cancels, 2)
	assert.True(t, buy.IsEmpty())
}

func TestOrdersWithRemaining(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	buy.AddToBook(mustEntry(t, "a", tradable.Buy, price.Limit(10000), 10))
	buy.AddToBook(mustEntry(t, "b", tradable.Buy, price.Limit(9900), 5))

	out := buy.OrdersWithRemaining("a")
	assert.Len(t, out, 1)
	assert.Equal(t, "a", out[0].User())
}

func TestDepth_EmptySide(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	assert.Equal(t, []string{"<Empty>"}, buy.Depth())
}

func TestOrdersAtTop_And_PruneZeroRemaining(t *testing.T) {
	parent := &fakeParent{}
	buy := New("AAPL", tradable.Buy, parent)
	e1 := mustEntry(t, "a", tradable.Buy, price.Limit(10000), 10)
	e2 := mustEntry(t, "b", tradable.Buy, price.Limit(10000), 5)
	buy.AddToBook(e1)
	buy.AddToBook(e2)

	top := buy.OrdersAtTop()
	assert.Len(t, top, 2)

	assert.NoError(t, e1.SetRemaining(0))
	buy.PruneZeroRemaining()

	remaining := buy.OrdersWithRemaining("a")
	assert.Empty(t, remaining)
	assert.Len(t, parent.archived, 1)
	_, vol, ok := buy.Top()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), vol)
}
