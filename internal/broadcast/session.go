package broadcast

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/theblitlabs/parity-monitor/internal/core/models"
	"github.com/theblitlabs/parity-monitor/internal/core/ports"
	"github.com/theblitlabs/parity-monitor/internal/monitoring/metrics"
	"github.com/theblitlabs/parity-monitor/internal/telemetry"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

type State int32

const (
	StateActive State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Close reasons, also used as metric labels.
const (
	ReasonClientClosed = "client_closed"
	ReasonSendFailed   = "send_failed"
	ReasonShutdown     = "shutdown"
	ReasonFatal        = "fatal"
)

// Skip reasons for cycles that produced no frame.
const (
	skipDegenerate = "degenerate_interval"
	skipCollect    = "collect_error"
	skipEncode     = "encode_error"
	skipFatal      = "fatal"
)

// SessionInfo is the introspection view of a session.
type SessionInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	State       string    `json:"state"`
}

// Session streams one StatsFrame per tick to a single client. Cycles run on
// one goroutine, so they never overlap; ticks that fire mid-cycle are dropped.
type Session struct {
	conn        Conn
	collector   ports.MetricsCollector
	ticker      Ticker
	connectedAt time.Time
	state       atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	onClosed func(s *Session, reason string)
	onFatal  func(err error)

	log zerolog.Logger
}

func newSession(parent context.Context, conn Conn, collector ports.MetricsCollector, ticker Ticker,
	onClosed func(*Session, string), onFatal func(error)) *Session {
	ctx, cancel := context.WithCancel(parent)
	log := logger.WithComponent("broadcast")
	return &Session{
		conn:        conn,
		collector:   collector,
		ticker:      ticker,
		connectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		onClosed:    onClosed,
		onFatal:     onFatal,
		log:         log.With().Str("session_id", conn.ID()).Logger(),
	}
}

func (s *Session) ID() string { return s.conn.ID() }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.conn.ID(),
		RemoteAddr:  s.conn.RemoteAddr(),
		ConnectedAt: s.connectedAt,
		State:       s.State().String(),
	}
}

// Close ends the session as if the server were shutting down.
func (s *Session) Close() {
	s.terminate(ReasonShutdown)
}

// Done is closed once the session has left the Active state.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			s.terminate(ReasonShutdown)
			return
		case <-s.conn.Closed():
			s.terminate(ReasonClientClosed)
			return
		case <-s.ticker.C():
			s.cycle()
		}
	}
}

func (s *Session) cycle() {
	start := time.Now()
	sample, err := s.collector.Collect(s.ctx)

	// closed while waiting on the measurement window
	if s.State() != StateActive {
		return
	}
	if err != nil {
		s.handleCollectError(err)
		return
	}
	telemetry.ObserveCycleDuration(s.ctx, time.Since(start))

	if !s.conn.IsOpen() {
		s.terminate(ReasonClientClosed)
		return
	}

	payload, err := models.NewStatsFrame(sample).Marshal()
	if err != nil {
		s.log.Error().Err(err).Msg("Frame encode failed")
		telemetry.RecordCycleSkipped(skipEncode)
		return
	}

	if err := s.conn.Send(payload); err != nil {
		s.log.Debug().Err(err).Msg("Frame send failed")
		s.terminate(ReasonSendFailed)
		return
	}
	telemetry.RecordFrameSent()
}

func (s *Session) handleCollectError(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, metrics.ErrDegenerateInterval):
		s.log.Warn().Err(err).Msg("Cycle skipped")
		telemetry.RecordCycleSkipped(skipDegenerate)
	case errors.Is(err, metrics.ErrCoreCountMismatch), errors.Is(err, metrics.ErrHostMetricsUnavailable):
		s.log.Error().Err(err).Msg("Host metrics failed")
		telemetry.RecordCycleSkipped(skipFatal)
		s.terminate(ReasonFatal)
		if s.onFatal != nil {
			s.onFatal(err)
		}
	default:
		s.log.Warn().Err(err).Msg("Cycle skipped")
		telemetry.RecordCycleSkipped(skipCollect)
	}
}

// terminate moves the session to Closed exactly once. The ticker is stopped
// before any in-flight measurement is cancelled.
func (s *Session) terminate(reason string) {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateClosing)) {
		return
	}
	s.ticker.Stop()
	s.cancel()
	s.state.Store(int32(StateClosed))

	s.log.Info().Str("reason", reason).Msg("Session closed")
	if s.onClosed != nil {
		s.onClosed(s, reason)
	}
}
