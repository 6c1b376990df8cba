package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimp/internal/arbitrage"
	"kimp/internal/engine"
	"kimp/internal/hub"
	"kimp/internal/market"
	"kimp/internal/store"
	"kimp/internal/strategy/auto"
	"kimp/internal/venue"
)

type fakeExchange struct {
	price float64
}

func (f *fakeExchange) Name() string      { return "fake" }
func (f *fakeExchange) TakerFee() float64 { return 0.0005 }
func (f *fakeExchange) MakerFee() float64 { return 0.0005 }

func (f *fakeExchange) Ticker(context.Context, string) (market.Ticker, error) {
	return market.Ticker{Symbol: "KRW-BTC", Price: f.price}, nil
}

func (f *fakeExchange) OrderBook(context.Context, string, int) (market.OrderBook, error) {
	return market.OrderBook{Bids: []market.Level{{Price: f.price, Qty: 1}}}, nil
}

func (f *fakeExchange) Candles(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}

func (f *fakeExchange) Balances(context.Context) ([]market.Balance, error) { return nil, nil }

func (f *fakeExchange) PlaceOrder(context.Context, venue.OrderRequest) (market.Order, error) {
	return market.Order{}, nil
}

func (f *fakeExchange) CancelOrder(context.Context, string, string) (bool, error) {
	return true, nil
}

func (f *fakeExchange) Order(context.Context, string, string) (market.Order, error) {
	return market.Order{}, nil
}

func (f *fakeExchange) FundingRate(context.Context, string) (*market.FundingRate, error) {
	return nil, nil
}

type fixedFX struct{}

func (fixedFX) USDKRW(context.Context) (float64, error) { return 1400, nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	journal, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	domestic := &fakeExchange{price: 100_000_000}
	foreign := &fakeExchange{price: 70_000}
	strat := auto.New(domestic, auto.DefaultConfig())
	mon := arbitrage.NewMonitor(domestic, foreign, fixedFX{}, arbitrage.DefaultConfig())
	events := hub.New()
	eng := engine.New(strat, mon, journal, events, engine.DefaultConfig())
	return NewServer(":0", eng, strat, mon, journal, events, domestic, foreign)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["running"])
}

func TestTickerEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/ticker?symbol=KRW-BTC", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var ticker market.Ticker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticker))
	assert.Equal(t, 100_000_000.0, ticker.Price)
}

func TestKimchiEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/kimchi", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var opp arbitrage.Opportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &opp))
	assert.InDelta(t, 2.0408, opp.PremiumPct, 1e-4)
	assert.Equal(t, arbitrage.DirBuyForeignSellDomestic, opp.Direction)
}

func TestUserConfigValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/config/user",
		`{"use_rsi":true,"buy_rsi_below":150,"sell_rsi_above":70,"buy_score_min":40,"sell_score_max":-40,"base_invest_ratio":0.2,"max_total_ratio":0.8}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "out-of-range threshold rejected")

	rec = doRequest(s, http.MethodPost, "/api/config/user",
		`{"use_rsi":true,"buy_rsi_below":30,"sell_rsi_above":70,"buy_score_min":40,"sell_score_max":-40,"base_invest_ratio":0.2,"max_total_ratio":0.8}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBotStartStop(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/bot/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/api/trades", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFundingRateNilBody(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/funding-rate?symbol=BTCUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"funding":null}`, rec.Body.String())
}
