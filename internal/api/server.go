// Package api provides the HTTP surface of the payout ledger: member
// management, split validation, distribution, payout status updates, the
// payment-processor webhook, and a websocket stream of ledger events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"payout-ledger/config"
	"payout-ledger/internal/auth"
	"payout-ledger/internal/cache"
	"payout-ledger/internal/database"
	"payout-ledger/internal/events"
	"payout-ledger/internal/ledger"
	"payout-ledger/internal/vault"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	repo        *database.Repository
	service     *ledger.Service
	engine      *ledger.DistributionEngine
	reconciler  *ledger.Reconciler
	eventBus    *events.EventBus
	cache       *cache.Service
	authService *auth.Service
	jwtManager  *auth.JWTManager
	vaultClient *vault.Client
	wsHub       *WSHub
	config      config.ServerConfig
	authEnabled bool
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// Deps bundles the server's collaborators.
type Deps struct {
	Repo        *database.Repository
	Service     *ledger.Service
	Engine      *ledger.DistributionEngine
	Reconciler  *ledger.Reconciler
	EventBus    *events.EventBus
	Cache       *cache.Service
	AuthService *auth.Service
	JWTManager  *auth.JWTManager
	VaultClient *vault.Client
	AuthEnabled bool
}

// NewServer creates the API server and registers all routes.
func NewServer(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		repo:        deps.Repo,
		service:     deps.Service,
		engine:      deps.Engine,
		reconciler:  deps.Reconciler,
		eventBus:    deps.EventBus,
		cache:       deps.Cache,
		authService: deps.AuthService,
		jwtManager:  deps.JWTManager,
		vaultClient: deps.VaultClient,
		wsHub:       NewWSHub(),
		config:      cfg,
		authEnabled: deps.AuthEnabled,
		rateLimiter: NewRateLimiter(cfg.RateLimitPerMin, time.Minute),
		logger:      logger.With().Str("component", "api").Logger(),
	}

	s.registerRoutes()
	s.wireEventStream()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.authEnabled {
		s.router.POST("/api/auth/login", s.handleLogin)
	}

	// Webhook authenticates by HMAC signature, not staff token.
	s.router.POST("/api/webhooks/payout-events", s.rateLimit("webhook"), s.handlePayoutWebhook)

	api := s.router.Group("/api")
	if s.authEnabled {
		api.Use(auth.Middleware(s.jwtManager))
	}
	{
		opportunities := api.Group("/opportunities/:id")
		{
			opportunities.GET("", s.handleGetOpportunity)
			opportunities.GET("/members", s.handleListMembers)
			opportunities.POST("/members", s.handleAddMember)
			opportunities.PUT("/members/:clientId", s.handleUpdateMember)
			opportunities.DELETE("/members/:clientId", s.adminRequired(), s.handleRemoveMember)
			opportunities.GET("/splits/validate", s.handleValidateSplits)
			opportunities.POST("/distribute", s.rateLimit("distribute"), s.handleDistribute)
			opportunities.PUT("/payment-status", s.handleUpdatePaymentStatus)
			opportunities.PUT("/payout-status", s.handleUpdatePayoutStatus)
			opportunities.GET("/payouts", s.handleListOpportunityPayouts)
		}
		api.GET("/members/:clientId/payouts", s.handleListMemberPayouts)
		api.GET("/members/:clientId/summary", s.handleMemberSummary)
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// wireEventStream forwards every ledger event onto the websocket hub.
func (s *Server) wireEventStream() {
	s.eventBus.SubscribeAll(func(ev events.Event) {
		s.wsHub.BroadcastEvent(ev)
	})
}

// adminRequired gates a route behind the admin role when auth is enabled.
func (s *Server) adminRequired() gin.HandlerFunc {
	if !s.authEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	return auth.AdminOnly()
}

// rateLimit applies the per-endpoint rate limiter.
func (s *Server) rateLimit(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(key + ":" + c.ClientIP()) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Start starts the HTTP server and the websocket hub.
func (s *Server) Start() error {
	go s.wsHub.Run()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"success": false, "error": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
