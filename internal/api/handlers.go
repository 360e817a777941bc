package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"SpotTradeBot/internal/repositories"
)

const (
	defaultCandleCount = 200
	maxCandleCount     = 1000
	maxTradeLimit      = 1000
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.bot.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	successResponse(c, s.bot.Positions())
}

func (s *Server) handleStart(c *gin.Context) {
	symbols, err := bindSymbols(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	res := s.bot.Start(symbols...)
	s.log.Info().Strs("started", res.Started).Strs("already_running", res.AlreadyRunning).Msg("start requested")
	successResponse(c, res)
}

func (s *Server) handleStop(c *gin.Context) {
	symbols, err := bindSymbols(c)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	stopped := s.bot.Stop(symbols...)
	s.log.Info().Strs("stopped", stopped).Msg("stop requested")
	successResponse(c, gin.H{"stopped": stopped})
}

func (s *Server) handleMarkets(c *gin.Context) {
	if s.markets == nil {
		errorResponse(c, http.StatusServiceUnavailable, "market listing unavailable")
		return
	}
	markets, err := s.markets.Markets(c.Request.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("market listing failed")
		errorResponse(c, http.StatusBadGateway, "failed to list markets")
		return
	}
	successResponse(c, markets)
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.history == nil {
		errorResponse(c, http.StatusServiceUnavailable, "trade history unavailable")
		return
	}
	limit, err := intQuery(c, "limit", repositories.DefaultHistoryLimit, maxTradeLimit)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))

	trades, err := s.history.History(c.Request.Context(), symbol, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("trade history query failed")
		errorResponse(c, http.StatusInternalServerError, "failed to load trades")
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		errorResponse(c, http.StatusServiceUnavailable, "candle store unavailable")
		return
	}
	count, err := intQuery(c, "count", defaultCandleCount, maxCandleCount)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))

	candles, err := s.candles.Latest(c.Request.Context(), symbol, s.config.TimeFrame, count)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("candle query failed")
		errorResponse(c, http.StatusInternalServerError, "failed to load candles")
		return
	}
	successResponse(c, candles)
}

type symbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// bindSymbols accepts {"symbols": [...]} or a bare JSON array.
func bindSymbols(c *gin.Context) ([]string, error) {
	body, err := c.GetRawData()
	if err != nil {
		return nil, err
	}

	var symbols []string
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &symbols); err != nil {
			return nil, errInvalidBody
		}
	} else {
		var req symbolsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errInvalidBody
		}
		symbols = req.Symbols
	}

	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errNoSymbols
	}
	return out, nil
}

func intQuery(c *gin.Context, key string, def, max int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, &queryError{key: key}
	}
	if n > max {
		n = max
	}
	return n, nil
}
