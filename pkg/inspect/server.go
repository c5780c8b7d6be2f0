// Package inspect provides an HTTP API for decoding and building ICBM frames
// and for looking at the state fed by them.
package inspect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-oscar/pkg/im"
	"github.com/ZentaChain/zentalk-oscar/pkg/rendezvous"
	"github.com/ZentaChain/zentalk-oscar/pkg/roster"
)

// Server represents the HTTP API server
type Server struct {
	dispatcher *im.Dispatcher
	encoder    *im.Encoder
	tracker    *rendezvous.Tracker
	offline    *im.OfflineRetriever
	roster     *roster.Store
	gatherer   prometheus.Gatherer
	log        *zap.Logger

	config     *Config
	router     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

// Config holds server configuration
type Config struct {
	Listen       string
	EnableCORS   bool
	RateLimit    int // Requests per minute
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:       ":8080",
		EnableCORS:   true,
		RateLimit:    600,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithTracker exposes the rendezvous negotiations under /api/v1/rendezvous.
func WithTracker(t *rendezvous.Tracker) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

// WithOffline exposes backlog retrieval under /api/v1/offline.
func WithOffline(o *im.OfflineRetriever) Option {
	return func(s *Server) {
		s.offline = o
	}
}

// WithRoster exposes the contact cache under /api/v1/roster.
func WithRoster(store *roster.Store) Option {
	return func(s *Server) {
		s.roster = store
	}
}

// WithGatherer serves g on /metrics. The default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// NewServer creates a new HTTP API server around d and enc.
func NewServer(d *im.Dispatcher, enc *im.Encoder, config *Config, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		dispatcher: d,
		encoder:    enc,
		gatherer:   prometheus.DefaultGatherer,
		log:        zap.NewNop(),
		config:     config,
		router:     gin.New(),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("inspect")

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	if s.config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}
	if s.config.RateLimit > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimit)))
	}
	s.router.Use(LoggingMiddleware(s.log))
	s.router.Use(gin.Recovery())
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/frames/decode", s.handleDecode)
		v1.POST("/messages/encode", s.handleEncode)

		if s.tracker != nil {
			v1.GET("/rendezvous", s.handleNegotiations)
			v1.GET("/rendezvous/:cookie", s.handleNegotiation)
		}

		if s.offline != nil {
			v1.POST("/offline/request", s.handleOfflineRequest)
			v1.POST("/offline/reply", s.handleOfflineReply)
		}

		if s.roster != nil {
			contacts := v1.Group("/roster")
			{
				contacts.GET("", s.handleContacts)
				contacts.PUT("", s.handlePutContact)
				contacts.DELETE("/:groupID/:itemID", s.handleDeleteContact)
			}
		}
	}

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API server starting", zap.String("listen", s.config.Listen))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
