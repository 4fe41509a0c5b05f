// Package api exposes the engine's read surface: latest decisions,
// performance records, risk metrics and a live event feed. It never
// accepts commands; the engine is driven only by its own cycle.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"futures-decision-engine/internal/engine"
	"futures-decision-engine/internal/events"
	"futures-decision-engine/internal/storage"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Server serves the engine's state over HTTP and WebSocket.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	eng        *engine.Engine
	repo       *storage.Repository
	hub        *Hub
	logger     zerolog.Logger
}

// NewServer wires routes and subscribes the WebSocket hub to the bus.
func NewServer(config ServerConfig, eng *engine.Engine, repo *storage.Repository, bus *events.Bus, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router: router,
		eng:    eng,
		repo:   repo,
		hub:    NewHub(logger),
		logger: logger.With().Str("component", "APIServer").Logger(),
	}

	bus.SubscribeAll(s.hub.BroadcastEvent)

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebSocket)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/symbols", s.handleSymbols)
		v1.GET("/decisions/:symbol", s.handleDecision)
		v1.GET("/decisions/:symbol/history", s.handleDecisionHistory)
		v1.GET("/performance/:symbol", s.handlePerformance)
		v1.GET("/risk/:symbol", s.handleRiskMetrics)
		v1.GET("/breaker", s.handleBreaker)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the hub and the HTTP listener. Blocks until the listener
// stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleSymbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"symbols": s.eng.Symbols()})
}

func (s *Server) handleDecision(c *gin.Context) {
	symbol := c.Param("symbol")
	decision, ok := s.eng.LatestDecision(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no decision yet for " + symbol})
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleDecisionHistory(c *gin.Context) {
	if s.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision history requires database persistence"})
		return
	}

	symbol := c.Param("symbol")
	decisions, err := s.repo.RecentDecisions(c.Request.Context(), symbol, 100)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to load decision history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load decision history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "decisions": decisions})
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.PerformanceRecord(c.Param("symbol")))
}

func (s *Server) handleRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.RiskMetrics(c.Param("symbol")))
}

func (s *Server) handleBreaker(c *gin.Context) {
	c.JSON(http.StatusOK, s.eng.BreakerStats())
}
