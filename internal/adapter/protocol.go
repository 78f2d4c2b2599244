package adapter

import (
	"ironbook/internal/price"
	"ironbook/internal/tradable"
)

// Command is one JSON-lines request from a connected client. Fields are
// reused across command types; a given Type only reads the fields it
// needs. Prices travel as cents/IsMarket rather than a currency string: the
// core explicitly treats string parsing as an external collaborator's job
// (spec §1), and this adapter — being that collaborator — takes the
// simplest wire shape that avoids writing one.
type Command struct {
	Type    string `json:"type"`
	User    string `json:"user"`
	Product string `json:"product,omitempty"`
	Side    string `json:"side,omitempty"`

	PriceCents int64  `json:"price_cents,omitempty"`
	IsMarket   bool   `json:"is_market,omitempty"`
	Volume     uint64 `json:"volume,omitempty"`

	BuyPriceCents  int64  `json:"buy_price_cents,omitempty"`
	BuyVolume      uint64 `json:"buy_volume,omitempty"`
	SellPriceCents int64  `json:"sell_price_cents,omitempty"`
	SellVolume     uint64 `json:"sell_volume,omitempty"`

	OrderID string `json:"order_id,omitempty"`
	State   string `json:"state,omitempty"`
}

// Response is one JSON-lines reply: either the synchronous result of a
// command, or an asynchronously pushed event (Topic set, Command empty).
type Response struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Command string `json:"command,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func priceFromWire(cents int64, isMarket bool) *price.Price {
	if isMarket {
		return price.Market()
	}
	return price.Limit(cents)
}

func sideFromWire(s string) tradable.Side {
	if s == "SELL" {
		return tradable.Sell
	}
	return tradable.Buy
}
