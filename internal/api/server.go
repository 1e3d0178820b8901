// Package api provides the sorter's HTTP surface: the Postmark inbound
// webhook, ranking queries and a WebSocket feed of state changes.
package api

import (
	"fmt"
	"net/http"

	"github.com/sortersocial/sorter/internal/logging"
	"github.com/sortersocial/sorter/internal/server"
)

// Version is reported by the root and health endpoints.
const Version = "0.3.0"

// Server is the HTTP API over a Pipeline.
type Server struct {
	cfg      Config
	pipeline *Pipeline
	hub      *Hub
}

// NewServer wires a server around the pipeline. The hub is created but not
// running; Start launches it.
func NewServer(cfg Config, pipeline *Pipeline) *Server {
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		hub:      NewHub(),
	}
	pipeline.SetHub(s.hub)
	return s
}

// Handler builds the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/webhook/inbound", s.handleInbound)
	mux.HandleFunc("/rankings", s.handleRankings)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/ws", s.handleWebSocket)

	var handler http.Handler = server.SecurityHeadersWithCSP(server.APICSPConfig(), mux)

	if s.cfg.WebhookToken != "" {
		handler = WebhookAuthMiddleware(s.cfg.WebhookToken, handler)
		logging.SecurityEvent("webhook_auth_configured", "api", "enabled", true)
	} else {
		logging.SecurityEvent("webhook_auth_configured", "api",
			"enabled", false,
			"note", "inbound webhook accepts unauthenticated posts")
	}

	if s.cfg.RateLimitRequests > 0 {
		burst := s.cfg.RateLimitBurst
		if burst == 0 {
			burst = 10
		}
		limiter := NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: s.cfg.RateLimitRequests,
			BurstSize:         burst,
		})
		handler = limiter.Middleware(handler)
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.RateLimitRequests, "burst_size", burst)
	}

	handler = server.CORSMiddleware(server.CORSConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
	}, handler)

	return logging.CombinedMiddleware(handler)
}

// Start runs the hub and serves HTTP until the listener fails.
func (s *Server) Start() error {
	go s.hub.Run()

	logging.ServerStartup("sorter_api", "http", s.cfg.Port,
		"websocket_protocol", "ws")

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	return http.ListenAndServe(addr, s.Handler())
}
