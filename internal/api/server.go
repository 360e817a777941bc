package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"SpotTradeBot/internal/handlers"
	"SpotTradeBot/internal/models"
)

// BotController is satisfied by *handlers.BotManager.
type BotController interface {
	Start(symbols ...string) handlers.StartResult
	Stop(symbols ...string) []string
	Status() handlers.Status
	Positions() []models.Position
}

type TradeHistory interface {
	History(ctx context.Context, symbol string, limit int) ([]models.TradeLog, error)
}

type MarketLister interface {
	Markets(ctx context.Context) ([]models.Market, error)
}

type CandleReader interface {
	Latest(ctx context.Context, symbol, timeFrame string, count int) ([]models.Candle, error)
}

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ProductionMode bool
	// TimeFrame is the candle interval served by /api/candles.
	TimeFrame string
}

// Server exposes the bot control surface over HTTP.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	bot        BotController
	history    TradeHistory
	markets    MarketLister
	candles    CandleReader
	metrics    http.Handler
	log        zerolog.Logger
}

// NewServer wires the routes. history, markets, candles and metrics may be
// nil; their endpoints then answer 503.
func NewServer(
	config ServerConfig,
	bot BotController,
	history TradeHistory,
	markets MarketLister,
	candles CandleReader,
	metrics http.Handler,
	log zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:  router,
		config:  config,
		bot:     bot,
		history: history,
		markets: markets,
		candles: candles,
		metrics: metrics,
		log:     log.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.POST("/start", s.handleStart)
		api.POST("/stop", s.handleStop)
		api.GET("/positions", s.handlePositions)
		api.GET("/markets", s.handleMarkets)
		api.GET("/trades", s.handleTrades)
		api.GET("/candles/:symbol", s.handleCandles)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.config.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	l := log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := l.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = l.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
