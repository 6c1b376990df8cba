package bybit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"kimp/internal/market"
	"kimp/internal/venue"
)

func (c *Client) Balances(ctx context.Context) ([]market.Balance, error) {
	res, err := c.get(ctx, "/v5/account/wallet-balance", map[string]string{
		"accountType": "UNIFIED",
	}, true, "balances")
	if err != nil {
		return nil, err
	}
	var out []market.Balance
	for _, acct := range res.Get("list").Array() {
		for _, coin := range acct.Get("coin").Array() {
			available := coin.Get("availableToWithdraw").Float()
			if available == 0 {
				available = coin.Get("free").Float()
			}
			out = append(out, market.Balance{
				Currency:  coin.Get("coin").String(),
				Available: available,
				Locked:    coin.Get("locked").Float(),
			})
		}
	}
	return out, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req venue.OrderRequest) (market.Order, error) {
	body := map[string]any{
		"category":  string(c.category),
		"symbol":    req.Symbol,
		"side":      capitalize(string(req.Side)),
		"orderType": capitalize(string(req.Type)),
		"qty":       formatFloat(req.Qty),
	}
	if req.Type == market.OrderLimit && req.Price > 0 {
		body["price"] = formatFloat(req.Price)
	}
	res, err := c.post(ctx, "/v5/order/create", body, "place order")
	if err != nil {
		return market.Order{}, err
	}
	return market.Order{
		ID:        res.Get("orderId").String(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Price:     req.Price,
		Qty:       req.Qty,
		Status:    market.StatusOpen,
		CreatedAt: c.now(),
	}, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) (bool, error) {
	_, err := c.post(ctx, "/v5/order/cancel", map[string]any{
		"category": string(c.category),
		"symbol":   symbol,
		"orderId":  orderID,
	}, "cancel order")
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) Order(ctx context.Context, symbol, orderID string) (market.Order, error) {
	res, err := c.get(ctx, "/v5/order/realtime", map[string]string{
		"category": string(c.category),
		"symbol":   symbol,
		"orderId":  orderID,
	}, true, "get order")
	if err != nil {
		return market.Order{}, err
	}
	d := res.Get("list.0")
	return market.Order{
		ID:        d.Get("orderId").String(),
		Symbol:    d.Get("symbol").String(),
		Side:      market.Side(strings.ToLower(d.Get("side").String())),
		Type:      market.OrderType(strings.ToLower(d.Get("orderType").String())),
		Price:     d.Get("price").Float(),
		Qty:       d.Get("qty").Float(),
		FilledQty: d.Get("cumExecQty").Float(),
		Status:    orderStatus(d.Get("orderStatus").String()),
		CreatedAt: time.UnixMilli(d.Get("createdTime").Int()),
	}, nil
}

// Positions lists open linear positions, optionally filtered by symbol.
func (c *Client) Positions(ctx context.Context, symbol string) ([]gjson.Result, error) {
	params := map[string]string{
		"category":   string(CategoryLinear),
		"settleCoin": "USDT",
	}
	if symbol != "" {
		params["symbol"] = symbol
	}
	res, err := c.get(ctx, "/v5/position/list", params, true, "positions")
	if err != nil {
		return nil, err
	}
	return res.Get("list").Array(), nil
}

// SetLeverage adjusts both-side leverage for a linear symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) (bool, error) {
	_, err := c.post(ctx, "/v5/position/set-leverage", map[string]any{
		"category":     string(CategoryLinear),
		"symbol":       symbol,
		"buyLeverage":  strconv.Itoa(leverage),
		"sellLeverage": strconv.Itoa(leverage),
	}, "set leverage")
	if err != nil {
		return false, err
	}
	return true, nil
}

func orderStatus(s string) market.OrderStatus {
	switch s {
	case "New", "PartiallyFilled", "Untriggered", "Created":
		return market.StatusOpen
	case "Filled":
		return market.StatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return market.StatusCancelled
	case "Rejected":
		return market.StatusRejected
	default:
		return market.OrderStatus(strings.ToLower(s))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ venue.Exchange = (*Client)(nil)
