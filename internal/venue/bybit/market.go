package bybit

import (
	"context"
	"fmt"
	"time"

	"kimp/internal/market"
)

// intervalParams maps the shared interval notation onto Bybit V5 codes.
var intervalParams = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
	"1w":  "W",
}

func (c *Client) Ticker(ctx context.Context, symbol string) (market.Ticker, error) {
	res, err := c.get(ctx, "/v5/market/tickers", map[string]string{
		"category": string(c.category),
		"symbol":   symbol,
	}, false, "ticker")
	if err != nil {
		return market.Ticker{}, err
	}
	d := res.Get("list.0")
	if !d.Exists() {
		return market.Ticker{}, fmt.Errorf("bybit ticker: empty response for %s", symbol)
	}
	volume := d.Get("volume24h").Float()
	if volume == 0 {
		volume = d.Get("turnover24h").Float()
	}
	return market.Ticker{
		Symbol:    symbol,
		Price:     d.Get("lastPrice").Float(),
		Volume24h: volume,
		Change24h: d.Get("price24hPcnt").Float() * 100,
		Time:      c.now(),
	}, nil
}

func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBook, error) {
	if depth <= 0 {
		depth = 10
	}
	res, err := c.get(ctx, "/v5/market/orderbook", map[string]string{
		"category": string(c.category),
		"symbol":   symbol,
		"limit":    fmt.Sprintf("%d", depth),
	}, false, "orderbook")
	if err != nil {
		return market.OrderBook{}, err
	}
	book := market.OrderBook{Time: c.now()}
	for _, lvl := range res.Get("b").Array() {
		book.Bids = append(book.Bids, market.Level{Price: lvl.Get("0").Float(), Qty: lvl.Get("1").Float()})
	}
	for _, lvl := range res.Get("a").Array() {
		book.Asks = append(book.Asks, market.Level{Price: lvl.Get("0").Float(), Qty: lvl.Get("1").Float()})
	}
	return book, nil
}

// Candles returns up to limit bars oldest-first. Bybit answers newest-first,
// so the kline list is reversed before mapping.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	iv, ok := intervalParams[interval]
	if !ok {
		iv = interval
	}
	if limit <= 0 {
		limit = 200
	}
	res, err := c.get(ctx, "/v5/market/kline", map[string]string{
		"category": string(c.category),
		"symbol":   symbol,
		"interval": iv,
		"limit":    fmt.Sprintf("%d", limit),
	}, false, "candles")
	if err != nil {
		return nil, err
	}
	rows := res.Get("list").Array()
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i]
		candles = append(candles, market.Candle{
			OpenTime: d.Get("0").Int(),
			Open:     d.Get("1").Float(),
			High:     d.Get("2").Float(),
			Low:      d.Get("3").Float(),
			Close:    d.Get("4").Float(),
			Volume:   d.Get("5").Float(),
		})
	}
	return candles, nil
}

// FundingRate reads the perpetual funding fields off the linear ticker.
// Spot clients always return nil.
func (c *Client) FundingRate(ctx context.Context, symbol string) (*market.FundingRate, error) {
	if c.category != CategoryLinear {
		return nil, nil
	}
	res, err := c.get(ctx, "/v5/market/tickers", map[string]string{
		"category": string(CategoryLinear),
		"symbol":   symbol,
	}, false, "funding rate")
	if err != nil {
		return nil, err
	}
	d := res.Get("list.0")
	if !d.Exists() {
		return nil, nil
	}
	return &market.FundingRate{
		Symbol:      symbol,
		Rate:        d.Get("fundingRate").Float(),
		NextFunding: time.UnixMilli(d.Get("nextFundingTime").Int()),
	}, nil
}

// FundingHistory returns recent settled funding rates for a linear symbol.
func (c *Client) FundingHistory(ctx context.Context, symbol string, limit int) ([]market.FundingRate, error) {
	if limit <= 0 {
		limit = 10
	}
	res, err := c.get(ctx, "/v5/market/funding/history", map[string]string{
		"category": string(CategoryLinear),
		"symbol":   symbol,
		"limit":    fmt.Sprintf("%d", limit),
	}, false, "funding history")
	if err != nil {
		return nil, err
	}
	var out []market.FundingRate
	for _, d := range res.Get("list").Array() {
		out = append(out, market.FundingRate{
			Symbol:      d.Get("symbol").String(),
			Rate:        d.Get("fundingRate").Float(),
			NextFunding: time.UnixMilli(d.Get("fundingRateTimestamp").Int()),
		})
	}
	return out, nil
}
