// Package gateway accepts websocket connections and binds each one to a
// session state machine.
package gateway

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-voice-gateway/internal/observability/logging"
	"ai-voice-gateway/internal/service/capture"
	"ai-voice-gateway/internal/service/registry"
	"ai-voice-gateway/internal/service/session"
)

// Sessions is the registry surface the gateway needs.
type Sessions interface {
	Open(id string, device capture.Device) (*session.Machine, error)
	Close(id string, cause error)
}

// Config controls connection lifecycle.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	WriteTimeout      time.Duration
	CloseTimeout      time.Duration
	MaxMessageBytes   int64
	// AllowedOrigins lists accepted Origin hosts. Empty accepts any origin.
	AllowedOrigins []string
	// ClientAudio gives every connection its own capture device fed by
	// binary frames. When false sessions use the shared device.
	ClientAudio bool
	Capture     capture.ClientConfig
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 3 * c.HeartbeatInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 10 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 16 * 1024 * 1024
	}
	return c
}

// Server is the websocket endpoint. It implements http.Handler.
type Server struct {
	cfg      Config
	sessions Sessions
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	wg sync.WaitGroup
}

// NewServer creates a Server bound to sessions.
func NewServer(cfg Config, sessions Sessions) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   logging.WithComponent("gateway"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, u.Host) || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := session.NewID()

	var stream *capture.ClientStream
	var device capture.Device
	if s.cfg.ClientAudio {
		stream = capture.NewClientStream(s.cfg.Capture)
		device = stream
	}

	m, err := s.sessions.Open(id, device)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrTooManySessions) || errors.Is(err, registry.ErrShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn().Err(err).Str("ip", r.RemoteAddr).Msg("Connection refused")
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("sessionId", id).Msg("Failed to upgrade connection")
		s.sessions.Close(id, session.ErrConnectionLost)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	c := &conn{
		cfg:     s.cfg,
		ws:      ws,
		machine: m,
		stream:  stream,
		closeFn: func(cause error) { s.sessions.Close(id, cause) },
		logger:  logging.WithConnection(id, r.RemoteAddr),
	}
	c.serve()
}

// Wait blocks until every connection served so far has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}
