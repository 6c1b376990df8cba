package market

import "time"

// Side is the taker direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Ticker is an immutable 24h price snapshot for one symbol.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Change24h float64   `json:"change_24h"` // percent
	Time      time.Time `json:"time"`
}

// Level is one price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is an immutable depth snapshot. Bids descend, asks ascend.
type OrderBook struct {
	Bids []Level   `json:"bids"`
	Asks []Level   `json:"asks"`
	Time time.Time `json:"time"`
}

// Candle is one OHLCV bar. Series are always ordered oldest-first.
type Candle struct {
	OpenTime int64   `json:"open_time"` // unix millis
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Balance is one currency's funds on a venue.
type Balance struct {
	Currency  string  `json:"currency"`
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
}

// Total returns available plus locked funds.
func (b Balance) Total() float64 {
	return b.Available + b.Locked
}

// Order mirrors a venue order. ID stays empty until the venue acknowledges
// the placement; only connector responses mutate it afterwards.
type Order struct {
	ID        string      `json:"order_id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Type      OrderType   `json:"type"`
	Price     float64     `json:"price"`
	Qty       float64     `json:"qty"`
	FilledQty float64     `json:"filled_qty"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// FundingRate is the periodic funding of a perpetual contract.
// Spot venues have none.
type FundingRate struct {
	Symbol      string    `json:"symbol"`
	Rate        float64   `json:"rate"`
	NextFunding time.Time `json:"next_funding"`
}
