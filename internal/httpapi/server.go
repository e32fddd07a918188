// ABOUTME: Read-only HTTP surface: health, node identity, and the SSE event stream
// ABOUTME: The event stream bridges broker subscriptions onto server-sent events

package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coevo/coevo-node/internal/bus"
	"github.com/coevo/coevo-node/internal/signer"
)

// Server exposes the node's public read-only endpoints. Forum CRUD and
// account surfaces live elsewhere; this server only answers questions any
// peer may ask.
type Server struct {
	httpServer *http.Server
	broker     *bus.Broker
	signer     *signer.Signer
	logger     *slog.Logger
}

// New creates the HTTP server listening on addr
func New(addr string, broker *bus.Broker, sg *signer.Signer, logger *slog.Logger) *Server {
	s := &Server{
		broker: broker,
		signer: sg,
		logger: logger.With("component", "httpapi"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /node", s.handleNode)
	mux.HandleFunc("GET /events", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the server stops
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNode publishes the node's verification identity: the public key in
// PEM form and its OpenSSH-style fingerprint.
func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	pemKey, err := s.signer.PublicKeyPEM()
	if err != nil {
		s.logger.Error("exporting public key", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	fingerprint, err := s.signer.Fingerprint()
	if err != nil {
		s.logger.Error("computing fingerprint", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"public_key_pem": pemKey,
		"fingerprint":    fingerprint,
	})
}

// handleEvents streams broker events as server-sent events. The first
// frame is the broker's keepalive; the stream ends when the client
// disconnects or the subscription is evicted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, subID := s.broker.Subscribe(r.Context())
	defer s.broker.Unsubscribe(subID)

	s.logger.Debug("event stream opened", "sub_id", subID)
	for msg := range ch {
		if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
			s.logger.Debug("event stream write failed", "sub_id", subID, "error", err)
			return
		}
		flusher.Flush()
	}
	s.logger.Debug("event stream closed", "sub_id", subID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
