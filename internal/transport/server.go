package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kimp/internal/arbitrage"
	"kimp/internal/engine"
	"kimp/internal/hub"
	"kimp/internal/logger"
	"kimp/internal/store"
	"kimp/internal/strategy/auto"
	"kimp/internal/strategy/user"
	"kimp/internal/venue"
)

// Server exposes the trading engine over HTTP and WebSocket. It consumes
// the engine, hub and journal; the core never depends on it.
type Server struct {
	engine   *engine.Engine
	strategy *auto.Strategy
	monitor  *arbitrage.Monitor
	journal  *store.Journal
	events   *hub.Hub
	domestic venue.Exchange
	foreign  venue.Exchange

	httpServer *http.Server
}

func NewServer(listen string, eng *engine.Engine, strat *auto.Strategy, mon *arbitrage.Monitor,
	journal *store.Journal, events *hub.Hub, domestic, foreign venue.Exchange) *Server {

	s := &Server{
		engine:   eng,
		strategy: strat,
		monitor:  mon,
		journal:  journal,
		events:   events,
		domestic: domestic,
		foreign:  foreign,
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.routes(router)
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/ticker", s.handleTicker)
	api.GET("/orderbook", s.handleOrderBook)
	api.GET("/analysis", s.handleAnalysis)
	api.GET("/funding-rate", s.handleFundingRate)
	api.GET("/kimchi", s.handleKimchi)
	api.GET("/kimchi/stats", s.handleKimchiStats)
	api.GET("/trades", s.handleTrades)
	api.GET("/pnl", s.handlePnL)
	api.POST("/bot/start", s.handleStart)
	api.POST("/bot/stop", s.handleStop)
	api.POST("/config/user", s.handleUserConfig)
	r.GET("/ws", s.handleWS)
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutCtx)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"running":     s.engine.Running(),
		"subscribers": s.events.Count(),
		"position":    s.strategy.Position(),
		"stats":       s.strategy.Stats(),
	})
}

func (s *Server) handleTicker(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.strategy.Config().Symbol)
	ticker, err := s.domestic.Ticker(c.Request.Context(), symbol)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, ticker)
}

func (s *Server) handleOrderBook(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.strategy.Config().Symbol)
	book, err := s.domestic.OrderBook(c.Request.Context(), symbol, 10)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) handleAnalysis(c *gin.Context) {
	analysis, err := s.strategy.Analyze(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleFundingRate(c *gin.Context) {
	symbol := c.DefaultQuery("symbol", s.monitor.Config().ForeignSymbol)
	rate, err := s.foreign.FundingRate(c.Request.Context(), symbol)
	if err != nil {
		abortWith(c, err)
		return
	}
	if rate == nil {
		c.JSON(http.StatusOK, gin.H{"funding": nil})
		return
	}
	c.JSON(http.StatusOK, rate)
}

func (s *Server) handleKimchi(c *gin.Context) {
	opp, _, err := s.monitor.Check(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, opp)
}

func (s *Server) handleKimchiStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Stats())
}

func (s *Server) handleTrades(c *gin.Context) {
	rows, err := s.journal.RecentTrades(c.Request.Context(), 50)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) handlePnL(c *gin.Context) {
	summary, err := s.journal.PnL(c.Request.Context())
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleStart(c *gin.Context) {
	s.engine.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) handleStop(c *gin.Context) {
	s.engine.Stop()
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// handleUserConfig validates and persists a user-strategy rule set under
// the "user_strategy" key.
func (s *Server) handleUserConfig(c *gin.Context) {
	var cfg user.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.journal.SaveConfig(c.Request.Context(), "user_strategy", cfg); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func abortWith(c *gin.Context, err error) {
	var authErr *venue.AuthError
	if errors.As(err, &authErr) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
