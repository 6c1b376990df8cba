package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"kimp/internal/market"
)

// candlePaths maps the shared interval notation onto Upbit candle routes.
var candlePaths = map[string]string{
	"1m":  "minutes/1",
	"3m":  "minutes/3",
	"5m":  "minutes/5",
	"15m": "minutes/15",
	"30m": "minutes/30",
	"1h":  "minutes/60",
	"4h":  "minutes/240",
	"1d":  "days",
	"1w":  "weeks",
}

func (c *Client) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	query := url.Values{"markets": {symbol}}
	res, err := c.do(ctx, http.MethodGet, "/ticker", query, false, "ticker")
	if err != nil {
		return market.Ticker{}, err
	}
	d := res.Get("0")
	if !d.Exists() {
		return market.Ticker{}, fmt.Errorf("upbit ticker: empty response for %s", symbol)
	}
	return market.Ticker{
		Symbol:    symbol,
		Price:     d.Get("trade_price").Float(),
		Volume24h: d.Get("acc_trade_volume_24h").Float(),
		Change24h: d.Get("signed_change_rate").Float() * 100,
		Time:      time.UnixMilli(d.Get("timestamp").Int()),
	}, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBook, error) {
	query := url.Values{"markets": {symbol}}
	res, err := c.do(ctx, http.MethodGet, "/orderbook", query, false, "orderbook")
	if err != nil {
		return market.OrderBook{}, err
	}
	ob := res.Get("0")
	if !ob.Exists() {
		return market.OrderBook{}, fmt.Errorf("upbit orderbook: empty response for %s", symbol)
	}
	book := market.OrderBook{Time: time.UnixMilli(ob.Get("timestamp").Int())}
	units := ob.Get("orderbook_units").Array()
	if depth > 0 && len(units) > depth {
		units = units[:depth]
	}
	for _, u := range units {
		book.Bids = append(book.Bids, market.Level{Price: u.Get("bid_price").Float(), Qty: u.Get("bid_size").Float()})
		book.Asks = append(book.Asks, market.Level{Price: u.Get("ask_price").Float(), Qty: u.Get("ask_size").Float()})
	}
	return book, nil
}

// Candles returns up to 200 bars oldest-first. Upbit answers newest-first,
// so the response is reversed before mapping.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	path, ok := candlePaths[interval]
	if !ok {
		path = candlePaths["1m"]
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	query := url.Values{
		"market": {symbol},
		"count":  {strconv.Itoa(limit)},
	}
	res, err := c.do(ctx, http.MethodGet, "/candles/"+path, query, false, "candles")
	if err != nil {
		return nil, err
	}
	rows := res.Array()
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i]
		candles = append(candles, market.Candle{
			OpenTime: parseCandleTime(d.Get("candle_date_time_utc").String()),
			Open:     d.Get("opening_price").Float(),
			High:     d.Get("high_price").Float(),
			Low:      d.Get("low_price").Float(),
			Close:    d.Get("trade_price").Float(),
			Volume:   d.Get("candle_acc_trade_volume").Float(),
		})
	}
	return candles, nil
}

func parseCandleTime(s string) int64 {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

// Markets lists every KRW-quoted market code.
func (c *Client) Markets(ctx context.Context) ([]string, error) {
	query := url.Values{"isDetails": {"false"}}
	res, err := c.do(ctx, http.MethodGet, "/market/all", query, false, "markets")
	if err != nil {
		return nil, err
	}
	var out []string
	res.ForEach(func(_, m gjson.Result) bool {
		code := m.Get("market").String()
		if len(code) > 4 && code[:4] == "KRW-" {
			out = append(out, code)
		}
		return true
	})
	return out, nil
}
