package adapter

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"ironbook/internal/events"
	"ironbook/internal/exchange"
)

func newTestServer() (*Server, *exchange.Exchange) {
	bus := events.NewBus()
	xchg := exchange.New(bus, bus)
	return New("127.0.0.1", 0, xchg, bus), xchg
}

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newSession("alice", server), client
}

func TestHandleCommand_CreateProductAndSetMarketState(t *testing.T) {
	srv, xchg := newTestServer()
	sess, _ := newTestSession(t)

	resp := srv.handleCommand(sess, Command{Type: "create_product", Product: "AAPL"})
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"AAPL"}, xchg.Products())

	resp = srv.handleCommand(sess, Command{Type: "set_market_state", State: "PREOPEN"})
	assert.True(t, resp.OK)
	assert.Equal(t, exchange.Preopen, xchg.State())

	resp = srv.handleCommand(sess, Command{Type: "set_market_state", State: "BOGUS"})
	assert.False(t, resp.OK)
	assert.NotEmpty(t, resp.Error)
}

func TestHandleCommand_SubmitOrderRoundTrip(t *testing.T) {
	srv, _ := newTestServer()
	sess, _ := newTestSession(t)

	srv.handleCommand(sess, Command{Type: "create_product", Product: "AAPL"})
	srv.handleCommand(sess, Command{Type: "set_market_state", State: "PREOPEN"})
	srv.handleCommand(sess, Command{Type: "set_market_state", State: "OPEN"})

	resp := srv.handleCommand(sess, Command{
		Type:       "submit_order",
		User:       "alice",
		Product:    "AAPL",
		Side:       "BUY",
		PriceCents: 10000,
		Volume:     10,
	})
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.OrderID)

	resp = srv.handleCommand(sess, Command{Type: "get_book_depth", Product: "AAPL"})
	assert.True(t, resp.OK)
}

func TestHandleCommand_UnknownCommand(t *testing.T) {
	srv, _ := newTestServer()
	sess, _ := newTestSession(t)

	resp := srv.handleCommand(sess, Command{Type: "not_a_real_command"})
	assert.False(t, resp.OK)
	assert.Equal(t, errUnknownCommand.Error(), resp.Error)
}

func TestHandleCommand_SubscribeUnsubscribeCurrentMarket(t *testing.T) {
	srv, _ := newTestServer()
	sess, _ := newTestSession(t)

	srv.handleCommand(sess, Command{Type: "create_product", Product: "AAPL"})

	resp := srv.handleCommand(sess, Command{Type: "subscribe_current_market", Product: "AAPL"})
	assert.True(t, resp.OK)

	resp = srv.handleCommand(sess, Command{Type: "subscribe_current_market", Product: "AAPL"})
	assert.False(t, resp.OK, "double subscribe on the same connection must fail")

	resp = srv.handleCommand(sess, Command{Type: "unsubscribe_current_market", Product: "AAPL"})
	assert.True(t, resp.OK)
}
