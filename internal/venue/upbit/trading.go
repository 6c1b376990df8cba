package upbit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"kimp/internal/market"
	"kimp/internal/venue"
)

func (c *Client) Balances(ctx context.Context) ([]market.Balance, error) {
	res, err := c.do(ctx, http.MethodGet, "/accounts", nil, true, "balances")
	if err != nil {
		return nil, err
	}
	var out []market.Balance
	res.ForEach(func(_, d gjson.Result) bool {
		out = append(out, market.Balance{
			Currency:  d.Get("currency").String(),
			Available: d.Get("balance").Float(),
			Locked:    d.Get("locked").Float(),
		})
		return true
	})
	return out, nil
}

// KRWBalance returns the available KRW funds, zero when absent.
func (c *Client) KRWBalance(ctx context.Context) (float64, error) {
	balances, err := c.Balances(ctx)
	if err != nil {
		return 0, err
	}
	for _, b := range balances {
		if b.Currency == "KRW" {
			return b.Available, nil
		}
	}
	return 0, nil
}

// PlaceOrder submits an order. Upbit market buys are quoted in KRW
// notional (ord_type "price"); market sells in volume.
func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (market.Order, error) {
	query := url.Values{
		"market": {req.Symbol},
		"side":   {sideParam(req.Side)},
	}
	switch {
	case req.Type == market.OrderMarket && req.Side == market.SideBuy:
		notional := req.QuoteAmount
		if notional <= 0 {
			notional = req.Qty * req.Price
		}
		query.Set("ord_type", "price")
		query.Set("price", formatFloat(notional))
	case req.Type == market.OrderMarket:
		query.Set("ord_type", "market")
		query.Set("volume", formatFloat(req.Qty))
	default:
		query.Set("ord_type", "limit")
		query.Set("price", formatFloat(req.Price))
		query.Set("volume", formatFloat(req.Qty))
	}

	res, err := c.do(ctx, http.MethodPost, "/orders", query, true, "place order")
	if err != nil {
		return market.Order{}, err
	}
	return parseOrder(res), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	query := url.Values{"uuid": {orderID}}
	if _, err := c.do(ctx, http.MethodDelete, "/order", query, true, "cancel order"); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Order(ctx context.Context, symbol, orderID string) (market.Order, error) {
	query := url.Values{"uuid": {orderID}}
	res, err := c.do(ctx, http.MethodGet, "/order", query, true, "get order")
	if err != nil {
		return market.Order{}, err
	}
	return parseOrder(res), nil
}

// FundingRate always returns nil: Upbit is a spot-only venue.
func (c *Client) FundingRate(ctx context.Context, symbol string) (*market.FundingRate, error) {
	return nil, nil
}

func sideParam(s market.Side) string {
	if s == market.SideBuy {
		return "bid"
	}
	return "ask"
}

func parseOrder(d gjson.Result) market.Order {
	side := market.SideSell
	if d.Get("side").String() == "bid" {
		side = market.SideBuy
	}
	typ := market.OrderLimit
	switch d.Get("ord_type").String() {
	case "price", "market":
		typ = market.OrderMarket
	}
	return market.Order{
		ID:        d.Get("uuid").String(),
		Symbol:    d.Get("market").String(),
		Side:      side,
		Type:      typ,
		Price:     d.Get("price").Float(),
		Qty:       d.Get("volume").Float(),
		FilledQty: d.Get("executed_volume").Float(),
		Status:    orderStatus(d.Get("state").String()),
	}
}

func orderStatus(state string) market.OrderStatus {
	switch state {
	case "done":
		return market.StatusFilled
	case "cancel":
		return market.StatusCancelled
	case "wait", "watch":
		return market.StatusOpen
	default:
		return market.OrderStatus(state)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ venue.Exchange = (*Client)(nil)
