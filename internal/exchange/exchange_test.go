package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ironbook/internal/messages"
	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

type recordingSink struct {
	snapshots []messages.Snapshot
	lastSales []messages.LastSale
	fills     []messages.Fill
	cancels   []messages.Cancel
	states    []messages.MarketStateMsg
}

func (r *recordingSink) PublishSnapshot(s messages.Snapshot)      { r.snapshots = append(r.snapshots, s) }
func (r *recordingSink) PublishLastSale(ls messages.LastSale)     { r.lastSales = append(r.lastSales, ls) }
func (r *recordingSink) PublishFill(f messages.Fill)              { r.fills = append(r.fills, f) }
func (r *recordingSink) PublishCancel(c messages.Cancel)          { r.cancels = append(r.cancels, c) }
func (r *recordingSink) BroadcastMarketState(m messages.MarketStateMsg) {
	r.states = append(r.states, m)
}

func newExchange() (*Exchange, *recordingSink) {
	sink := &recordingSink{}
	return New(sink, sink), sink
}

func TestCreateProduct(t *testing.T) {
	x, _ := newExchange()

	assert.NoError(t, x.CreateProduct("AAPL"))
	assert.Error(t, x.CreateProduct("AAPL"), "duplicate product is rejected")
	assert.Error(t, x.CreateProduct(""), "empty symbol is rejected")
	assert.Equal(t, []string{"AAPL"}, x.Products())
}

func TestSetMarketState_EnforcesTransitionOrder(t *testing.T) {
	x, sink := newExchange()

	assert.Error(t, x.SetMarketState(Open), "cannot jump straight to OPEN from CLOSED")
	assert.NoError(t, x.SetMarketState(Preopen))
	assert.NoError(t, x.SetMarketState(Open))
	assert.Error(t, x.SetMarketState(Preopen), "cannot go back to PREOPEN from OPEN")
	assert.NoError(t, x.SetMarketState(Closed))
	assert.Len(t, sink.states, 3)
}

func TestSubmitOrder_AdmissionByMarketState(t *testing.T) {
	x, _ := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))

	_, err := x.SubmitOrder("a", "AAPL", price.Limit(10000), 10, tradable.Buy)
	assert.Error(t, err, "CLOSED rejects everything")

	assert.NoError(t, x.SetMarketState(Preopen))
	_, err = x.SubmitOrder("a", "AAPL", price.Market(), 10, tradable.Buy)
	assert.Error(t, err, "PREOPEN rejects MARKET orders")

	id, err := x.SubmitOrder("a", "AAPL", price.Limit(10000), 10, tradable.Buy)
	assert.NoError(t, err, "PREOPEN accepts LIMIT orders")
	assert.NotEmpty(t, id)

	assert.NoError(t, x.SetMarketState(Open))
	_, err = x.SubmitOrder("a", "AAPL", price.Market(), 5, tradable.Buy)
	assert.NoError(t, err, "OPEN accepts MARKET orders")
}

func TestSubmitOrder_UnknownProduct(t *testing.T) {
	x, _ := newExchange()
	assert.NoError(t, x.SetMarketState(Preopen))
	assert.NoError(t, x.SetMarketState(Open))

	_, err := x.SubmitOrder("a", "NOPE", price.Limit(10000), 10, tradable.Buy)
	assert.Error(t, err)
}

func TestSubmitOrderCancel(t *testing.T) {
	x, sink := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))
	assert.NoError(t, x.SetMarketState(Preopen))

	id, err := x.SubmitOrder("a", "AAPL", price.Limit(10000), 10, tradable.Buy)
	assert.NoError(t, err)

	assert.NoError(t, x.SubmitOrderCancel("AAPL", tradable.Buy, id))
	assert.NoError(t, x.SubmitOrderCancel("AAPL", tradable.Buy, id), "already-cancelled id is found in the archive")
	assert.Equal(t, "Too Late to Cancel", sink.cancels[len(sink.cancels)-1].Details)
}

func TestSubmitQuote_Validation(t *testing.T) {
	x, _ := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))
	assert.NoError(t, x.SetMarketState(Preopen))

	err := x.SubmitQuote("q", "AAPL", price.Market(), 10, price.Limit(10100), 10)
	assert.Error(t, err, "MARKET quote legs rejected")

	err = x.SubmitQuote("q", "AAPL", price.Limit(10100), 10, price.Limit(9900), 10)
	assert.Error(t, err, "sell must exceed buy")

	err = x.SubmitQuote("q", "AAPL", price.Limit(0), 10, price.Limit(100), 10)
	assert.Error(t, err, "buy price must be > $0.00")

	err = x.SubmitQuote("q", "AAPL", price.Limit(9900), 0, price.Limit(10100), 10)
	assert.Error(t, err, "volumes must be > 0")

	err = x.SubmitQuote("q", "AAPL", price.Limit(9900), 10, price.Limit(10100), 10)
	assert.NoError(t, err)
}

func TestSubmitQuoteCancel(t *testing.T) {
	x, _ := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))
	assert.NoError(t, x.SetMarketState(Preopen))
	assert.NoError(t, x.SubmitQuote("q", "AAPL", price.Limit(9900), 10, price.Limit(10100), 10))

	assert.NoError(t, x.SubmitQuoteCancel("q", "AAPL"))

	buy, sell, err := x.GetBookDepth("AAPL")
	assert.NoError(t, err)
	assert.Equal(t, []string{"<Empty>"}, buy)
	assert.Equal(t, []string{"<Empty>"}, sell)
}

func TestQueries_BypassAdmission(t *testing.T) {
	x, _ := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))
	// Market never opened; queries must still succeed (spec §4.5: queries
	// are always allowed regardless of market state).
	_, _, err := x.GetBookDepth("AAPL")
	assert.NoError(t, err)
	_, err = x.GetOrdersWithRemainingQty("a", "AAPL")
	assert.NoError(t, err)
}

func TestOpeningTransitionRunsOpeningCross(t *testing.T) {
	x, sink := newExchange()
	assert.NoError(t, x.CreateProduct("AAPL"))
	assert.NoError(t, x.SetMarketState(Preopen))

	_, err := x.SubmitOrder("buyer", "AAPL", price.Limit(10000), 10, tradable.Buy)
	assert.NoError(t, err)
	_, err = x.SubmitOrder("seller", "AAPL", price.Limit(9900), 10, tradable.Sell)
	assert.NoError(t, err)

	assert.NoError(t, x.SetMarketState(Open))
	assert.NotEmpty(t, sink.lastSales, "opening transition must run the opening cross")
}
