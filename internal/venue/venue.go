package venue

import (
	"context"

	"kimp/internal/market"
)

// OrderRequest carries everything a connector needs to place an order.
// Market buys on KRW venues are quoted by notional (QuoteAmount); every
// other combination uses Qty, with Price set for limit orders only.
type OrderRequest struct {
	Symbol      string
	Side        market.Side
	Type        market.OrderType
	Qty         float64
	Price       float64
	QuoteAmount float64
}

// Exchange is the capability set shared by every venue connector.
// Implementations never retry on their own; transient failures surface
// to the caller so risk-critical paths see them.
type Exchange interface {
	Name() string
	TakerFee() float64
	MakerFee() float64

	Ticker(ctx context.Context, symbol string) (market.Ticker, error)
	OrderBook(ctx context.Context, symbol string, depth int) (market.OrderBook, error)
	// Candles returns up to limit bars ordered oldest-first; venues that
	// answer newest-first are reversed inside the connector.
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)

	Balances(ctx context.Context) ([]market.Balance, error)

	PlaceOrder(ctx context.Context, req OrderRequest) (market.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (bool, error)
	Order(ctx context.Context, symbol, orderID string) (market.Order, error)

	// FundingRate returns nil for symbols/venues without perpetual funding.
	FundingRate(ctx context.Context, symbol string) (*market.FundingRate, error)
}
