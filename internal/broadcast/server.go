package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/theblitlabs/parity-monitor/internal/core/ports"
	"github.com/theblitlabs/parity-monitor/internal/telemetry"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const DefaultCycleInterval = 2 * time.Second

type Config struct {
	CycleInterval  time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	Endpoint       string
}

type Option func(*Server)

// WithTickerFunc replaces the ticker factory used for new sessions.
func WithTickerFunc(f TickerFunc) Option {
	return func(s *Server) {
		s.newTicker = f
	}
}

// Server accepts stream clients and runs one Session per connection.
type Server struct {
	cfg       Config
	collector ports.MetricsCollector
	newTicker TickerFunc
	upgrader  websocket.Upgrader
	registry  *registry
	errCh     chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewServer(cfg Config, collector ports.MetricsCollector, opts ...Option) *Server {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = DefaultCycleInterval
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/"
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		collector: collector,
		newTicker: newTimeTicker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		registry: newRegistry(),
		errCh:    make(chan error, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accept registers conn and starts streaming to it.
func (s *Server) Accept(conn Conn) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}

	sess := newSession(s.ctx, conn, s.collector, s.newTicker(s.cfg.CycleInterval), s.release, s.reportFatal)
	s.registry.add(sess)
	telemetry.RecordSessionOpened()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.run()
	}()

	log := logger.WithComponent("broadcast")
	log.Info().
		Str("session_id", conn.ID()).
		Str("remote_addr", conn.RemoteAddr()).
		Int("sessions", s.registry.count()).
		Msg("Client connected")
	return sess, nil
}

// HandleWebSocket upgrades the request and accepts the connection.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("broadcast")

	if s.isClosed() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	conn := newWSConn(ws, s.cfg.WriteWait, s.cfg.MaxMessageSize)
	if _, err := s.Accept(conn); err != nil {
		log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Connection rejected")
		conn.Close()
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc(s.cfg.Endpoint, s.HandleWebSocket)
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.Sessions()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	}); err != nil {
		log := logger.WithComponent("broadcast")
		log.Error().Err(err).Msg("Failed to encode sessions")
	}
}

// Count returns the number of live sessions.
func (s *Server) Count() int {
	return s.registry.count()
}

func (s *Server) Sessions() []SessionInfo {
	live := s.registry.list()
	infos := make([]SessionInfo, 0, len(live))
	for _, sess := range live {
		infos = append(infos, sess.Info())
	}
	return infos
}

// Errors reports host-metrics failures that should stop the process.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown stops accepting clients, ends every session and waits for their
// goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	log := logger.WithComponent("broadcast")
	log.Info().Int("sessions", s.registry.count()).Msg("Closing sessions")

	for _, sess := range s.registry.list() {
		sess.terminate(ReasonShutdown)
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("timed out waiting for sessions"), ctx.Err())
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) release(sess *Session, reason string) {
	if !s.registry.remove(sess.ID()) {
		return
	}
	telemetry.RecordSessionClosed(reason)
	if err := sess.conn.Close(); err != nil {
		log := logger.WithComponent("broadcast")
		log.Debug().Err(err).Str("session_id", sess.ID()).Msg("Connection close failed")
	}
}

func (s *Server) reportFatal(err error) {
	select {
	case s.errCh <- err:
	default:
	}
}
