package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/theblitlabs/parity-monitor/pkg/logger"
)

// Status represents the health status of a component
type Status string

const (
	// StatusOK indicates the component is healthy
	StatusOK Status = "OK"
	// StatusWarning indicates the component has issues but is still functional
	StatusWarning Status = "WARNING"
	// StatusError indicates the component is not functioning
	StatusError Status = "ERROR"
)

const (
	ComponentHostMetrics = "host_metrics"
	ComponentSessions    = "sessions"
)

const probeTimeout = 5 * time.Second

// ComponentHealth represents the health status of a system component
type ComponentHealth struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	LastChecked time.Time `json:"last_checked"`
}

// Prober reads the host metric sources once.
type Prober interface {
	Probe(ctx context.Context) error
}

// SessionCounter reports the number of connected stream clients.
type SessionCounter interface {
	Count() int
}

// HealthChecker monitors the health of system components
type HealthChecker struct {
	components map[string]*ComponentHealth
	mu         sync.RWMutex
	checkFreq  time.Duration
	prober     Prober
	sessions   SessionCounter
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(checkFreq time.Duration, prober Prober, sessions SessionCounter) *HealthChecker {
	if checkFreq == 0 {
		checkFreq = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &HealthChecker{
		components: make(map[string]*ComponentHealth),
		checkFreq:  checkFreq,
		prober:     prober,
		sessions:   sessions,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins periodic health checks
func (hc *HealthChecker) Start() {
	log := logger.WithComponent("health_checker")
	log.Info().Dur("frequency", hc.checkFreq).Msg("Starting health checker")

	ticker := time.NewTicker(hc.checkFreq)
	go func() {
		defer ticker.Stop()

		hc.CheckAll()

		for {
			select {
			case <-ticker.C:
				hc.CheckAll()
			case <-hc.ctx.Done():
				log.Info().Msg("Health checker stopped")
				return
			}
		}
	}()
}

// Stop halts the health checker
func (hc *HealthChecker) Stop() {
	if hc.cancel != nil {
		hc.cancel()
	}
}

// CheckAll runs all health checks
func (hc *HealthChecker) CheckAll() {
	hc.CheckHostMetrics()
	hc.CheckSessions()
}

// CheckHostMetrics probes the CPU, memory and load sources.
func (hc *HealthChecker) CheckHostMetrics() {
	log := logger.WithComponent("health_checker.host_metrics")

	health := &ComponentHealth{
		Name:        ComponentHostMetrics,
		LastChecked: time.Now(),
	}

	if hc.prober == nil {
		health.Status = StatusError
		health.Message = "Host metrics source not initialized"
		log.Error().Msg(health.Message)
	} else {
		ctx, cancel := context.WithTimeout(hc.ctx, probeTimeout)
		defer cancel()

		if err := hc.prober.Probe(ctx); err != nil {
			health.Status = StatusError
			health.Message = fmt.Sprintf("Host metrics unavailable: %v", err)
			log.Error().Err(err).Msg("Host metrics unavailable")
		} else {
			health.Status = StatusOK
			health.Message = "CPU, memory and load readable"
			log.Debug().Msg("Host metrics healthy")
		}
	}

	hc.set(health)
}

func (hc *HealthChecker) CheckSessions() {
	health := &ComponentHealth{
		Name:        ComponentSessions,
		Status:      StatusOK,
		LastChecked: time.Now(),
	}

	if hc.sessions == nil {
		health.Status = StatusWarning
		health.Message = "Session registry not attached"
	} else {
		health.Message = fmt.Sprintf("%d connected", hc.sessions.Count())
	}

	hc.set(health)
}

func (hc *HealthChecker) set(health *ComponentHealth) {
	hc.mu.Lock()
	hc.components[health.Name] = health
	hc.mu.Unlock()
}

// GetAllHealth returns the health status of all components
func (hc *HealthChecker) GetAllHealth() map[string]*ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	result := make(map[string]*ComponentHealth, len(hc.components))
	for k, v := range hc.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// GetComponentHealth returns the health status of a specific component
func (hc *HealthChecker) GetComponentHealth(name string) *ComponentHealth {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	if component, exists := hc.components[name]; exists {
		componentCopy := *component
		return &componentCopy
	}

	return nil
}

// Overall folds the component statuses into one, worst wins.
func (hc *HealthChecker) Overall() Status {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	overall := StatusOK
	for _, c := range hc.components {
		switch c.Status {
		case StatusError:
			return StatusError
		case StatusWarning:
			overall = StatusWarning
		}
	}
	return overall
}

func (hc *HealthChecker) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", hc.handleHealth).Methods(http.MethodGet)
}

func (hc *HealthChecker) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := hc.Overall()

	code := http.StatusOK
	if status == StatusError {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     status,
		"components": hc.GetAllHealth(),
	}); err != nil {
		log := logger.WithComponent("health_checker")
		log.Error().Err(err).Msg("Failed to encode health response")
	}
}
