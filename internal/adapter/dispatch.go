package adapter

import (
	"errors"

	"ironbook/internal/exchange"
	"ironbook/internal/messages"
)

var (
	errUnknownCommand = errors.New("unknown command type")
	errUnknownState   = errors.New("unknown market state")
)

// handleCommand runs one already-connected client's command against the
// exchange and/or event bus and returns the response to write back. This
// is the single place that translates the wire Command shape into calls on
// internal/exchange and internal/events — everything upstream of here is
// transport plumbing, everything downstream is core.
func (s *Server) handleCommand(sess *Session, cmd Command) Response {
	switch cmd.Type {
	case "disconnect":
		if err := s.sessions.Disconnect(cmd.User, sess.connectionID); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "create_product":
		if err := s.xchg.CreateProduct(cmd.Product); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "set_market_state":
		next, err := stateFromWire(cmd.State)
		if err != nil {
			return errResponse(cmd.Type, err)
		}
		if err := s.xchg.SetMarketState(next); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "submit_order":
		p := priceFromWire(cmd.PriceCents, cmd.IsMarket)
		id, err := s.xchg.SubmitOrder(cmd.User, cmd.Product, p, cmd.Volume, sideFromWire(cmd.Side))
		if err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type, OrderID: id}

	case "submit_order_cancel":
		if err := s.xchg.SubmitOrderCancel(cmd.Product, sideFromWire(cmd.Side), cmd.OrderID); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "submit_quote":
		buy := priceFromWire(cmd.BuyPriceCents, false)
		sell := priceFromWire(cmd.SellPriceCents, false)
		if err := s.xchg.SubmitQuote(cmd.User, cmd.Product, buy, cmd.BuyVolume, sell, cmd.SellVolume); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "submit_quote_cancel":
		if err := s.xchg.SubmitQuoteCancel(cmd.User, cmd.Product); err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type}

	case "get_market_state":
		return Response{OK: true, Command: cmd.Type, Payload: s.xchg.State().String()}

	case "get_products":
		return Response{OK: true, Command: cmd.Type, Payload: s.xchg.Products()}

	case "get_book_depth":
		buy, sell, err := s.xchg.GetBookDepth(cmd.Product)
		if err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type, Payload: map[string][]string{"buy": buy, "sell": sell}}

	case "get_orders_with_remaining_qty":
		orders, err := s.xchg.GetOrdersWithRemainingQty(cmd.User, cmd.Product)
		if err != nil {
			return errResponse(cmd.Type, err)
		}
		return Response{OK: true, Command: cmd.Type, Payload: orders}

	case "subscribe_current_market":
		err := s.bus.CurrentMarket.Subscribe(cmd.Product, sess.connectionID, func(snap messages.Snapshot) {
			sess.writeResponse(Response{OK: true, Topic: "current_market", Payload: snap})
		})
		return ackOrErr(cmd.Type, err)

	case "unsubscribe_current_market":
		return ackOrErr(cmd.Type, s.bus.CurrentMarket.Unsubscribe(cmd.Product, sess.connectionID))

	case "subscribe_last_sale":
		err := s.bus.LastSale.Subscribe(cmd.Product, sess.connectionID, func(ls messages.LastSale) {
			sess.writeResponse(Response{OK: true, Topic: "last_sale", Payload: ls})
		})
		return ackOrErr(cmd.Type, err)

	case "unsubscribe_last_sale":
		return ackOrErr(cmd.Type, s.bus.LastSale.Unsubscribe(cmd.Product, sess.connectionID))

	case "subscribe_ticker":
		err := s.bus.Ticker.Subscribe(cmd.Product, sess.connectionID, func(tk messages.Ticker) {
			sess.writeResponse(Response{OK: true, Topic: "ticker", Payload: tk})
		})
		return ackOrErr(cmd.Type, err)

	case "unsubscribe_ticker":
		return ackOrErr(cmd.Type, s.bus.Ticker.Unsubscribe(cmd.Product, sess.connectionID))

	case "subscribe_message":
		return ackOrErr(cmd.Type, s.bus.Message.Subscribe(cmd.Product, cmd.User, sess))

	case "unsubscribe_message":
		return ackOrErr(cmd.Type, s.bus.Message.Unsubscribe(cmd.Product, cmd.User))

	default:
		return errResponse(cmd.Type, errUnknownCommand)
	}
}

func ackOrErr(cmdType string, err error) Response {
	if err != nil {
		return errResponse(cmdType, err)
	}
	return Response{OK: true, Command: cmdType}
}

func errResponse(cmdType string, err error) Response {
	return Response{OK: false, Command: cmdType, Error: err.Error()}
}

func stateFromWire(s string) (exchange.State, error) {
	switch s {
	case "CLOSED":
		return exchange.Closed, nil
	case "PREOPEN":
		return exchange.Preopen, nil
	case "OPEN":
		return exchange.Open, nil
	default:
		return exchange.Closed, errUnknownState
	}
}
