package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sortersocial/sorter/core/errors"
	"github.com/sortersocial/sorter/internal/logging"
	"github.com/sortersocial/sorter/internal/mailbox"
	"github.com/sortersocial/sorter/internal/server"
)

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Messages int    `json:"messages"`
	Items    int    `json:"items"`
	Clients  int    `json:"ws_clients"`
}

// WebhookResult is the inbound webhook response body.
type WebhookResult struct {
	MessageID string `json:"message_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"name":    "Sorter API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"POST /webhook/inbound",
			"GET /rankings?section=...&attribute=...",
			"GET /state",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	messages, items, err := s.pipeline.Counts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to read message log")
		return
	}

	respond(w, http.StatusOK, HealthInfo{
		Status:   "healthy",
		Version:  Version,
		Uptime:   time.Since(startTime).String(),
		Messages: messages,
		Items:    items,
		Clients:  s.hub.ClientCount(),
	})
}

// handleInbound is the Postmark inbound webhook. Malformed DSL is an
// application outcome, not a transport failure: the message gets an error
// reply and the webhook still returns 200 so Postmark does not retry.
func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}
	if !server.ValidateContentType(r.Header.Get("Content-Type"), []string{"application/json"}) {
		respondError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "Expected application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var in mailbox.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed webhook payload")
		return
	}
	if in.From == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing sender address")
		return
	}

	logging.WebhookEvent(in.MessageID, in.From, len(in.TextBody)+len(in.HTMLBody))

	result, err := s.pipeline.Process(r.Context(), &in)
	if errors.Is(err, errors.ErrInvalidInput) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err != nil {
		logging.ErrorContext(r.Context(), "webhook processing failed",
			"from", in.From, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to process message")
		return
	}

	out := WebhookResult{
		MessageID: result.MessageID,
		Duplicate: result.Duplicate,
		Accepted:  result.ParseErr == nil && !result.Duplicate,
	}
	if result.ParseErr != nil {
		out.Error = result.ParseErr.Error()
	}
	respond(w, http.StatusOK, out)
}

// RankingEntry is one row of the rankings response.
type RankingEntry struct {
	Item      string  `json:"item"`
	Score     float64 `json:"score"`
	Rank      int     `json:"rank"`
	Component int     `json:"component"`
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}

	section := r.URL.Query().Get("section")
	attribute := r.URL.Query().Get("attribute")
	if !server.ValidateIdentifier(section) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing or invalid section")
		return
	}
	if !server.ValidateIdentifier(attribute) {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Missing or invalid attribute")
		return
	}

	rankings, err := s.pipeline.Rankings(section, attribute)
	if err != nil {
		logging.ErrorContext(r.Context(), "ranking computation failed",
			"section", section, "attribute", attribute, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL", "Failed to compute rankings")
		return
	}

	entries := make([]RankingEntry, len(rankings))
	for i, rk := range rankings {
		entries[i] = RankingEntry{Item: rk.Item, Score: rk.Score, Rank: rk.Rank, Component: rk.Component}
	}
	respondWithTotal(w, http.StatusOK, entries, len(entries))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only GET is allowed")
		return
	}
	respond(w, http.StatusOK, map[string]string{"overview": s.pipeline.Overview()})
}

func respond(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondWithTotal(w http.ResponseWriter, status int, data any, total int) {
	writeResponse(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

func writeResponse(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
