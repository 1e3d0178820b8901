package api

// Config holds server configuration.
type Config struct {
	Port              int
	WebhookToken      string   // shared secret for the inbound webhook (empty = open)
	RateLimitRequests int      // requests per minute per client (0 = disabled)
	RateLimitBurst    int      // burst size
	AllowedOrigins    []string // CORS allowed origins (empty = allow all)
	MaxBodyBytes      int64    // inbound request body limit
}

// DefaultMaxBodyBytes caps webhook payloads. Postmark truncates inbound
// messages well below this.
const DefaultMaxBodyBytes = 5 << 20
