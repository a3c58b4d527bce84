package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theblitlabs/parity-monitor/internal/config"
	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

type boundListener struct {
	name string
	ln   net.Listener
}

// Server serves one handler on every configured listener.
type Server struct {
	httpServer *http.Server
	specs      []config.ListenerSpec

	mu        sync.Mutex
	listeners []boundListener
}

func NewServer(handler http.Handler, specs []config.ListenerSpec) *Server {
	return &Server{
		httpServer: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		specs: specs,
	}
}

// Listen binds every listener. Either all are bound or none are.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.listeners) > 0 {
		return errors.New("server already listening")
	}
	if len(s.specs) == 0 {
		return errors.New("no listeners configured")
	}

	bound := make([]boundListener, 0, len(s.specs))
	for _, spec := range s.specs {
		ln, err := spec.Listen()
		if err != nil {
			for _, b := range bound {
				b.ln.Close()
			}
			return err
		}
		bound = append(bound, boundListener{name: spec.Name, ln: ln})
	}
	s.listeners = bound
	return nil
}

// Addrs returns the bound address of each listener by name.
func (s *Server) Addrs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make(map[string]string, len(s.listeners))
	for _, b := range s.listeners {
		addrs[b.name] = b.ln.Addr().String()
	}
	return addrs
}

// Serve blocks until every listener has stopped. A failing listener or a
// cancelled ctx shuts the others down.
func (s *Server) Serve(ctx context.Context) error {
	log := logger.WithComponent("server")

	s.mu.Lock()
	listeners := append([]boundListener(nil), s.listeners...)
	s.mu.Unlock()

	if len(listeners) == 0 {
		return errors.New("server is not listening")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range listeners {
		b := b
		g.Go(func() error {
			log.Info().Str("listener", b.name).Str("addr", b.ln.Addr().String()).Msg("Starting HTTP server")
			if err := s.httpServer.Serve(b.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s listener: %w", b.name, err)
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("HTTP server shutdown failed")
			}
		case <-done:
		}
	}()

	err := g.Wait()
	close(done)
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Msg("Shutting down HTTP server...")

	return s.httpServer.Shutdown(ctx)
}
