package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/cache"
	"github.com/kjstillabower/weather-cache-gateway/internal/models"
	"github.com/kjstillabower/weather-cache-gateway/internal/observability"
)

// DefaultProbeTimeout bounds a single probe when none is configured.
const DefaultProbeTimeout = 10 * time.Second

// Monitor owns the process-wide connectivity status of the cache store.
// Only Probe writes it; readers get copies.
type Monitor struct {
	store   cache.Store
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	status models.ConnectivityStatus
}

// New returns a Monitor in the default disconnected state.
func New(store cache.Store, probeTimeout time.Duration, logger *zap.Logger) *Monitor {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:   store,
		timeout: probeTimeout,
		logger:  logger,
		now:     time.Now,
		status:  models.ConnectivityStatus{Backend: store.Backend()},
	}
}

// Probe tests the store, records the outcome and returns the new status.
// Failures are recorded, never returned.
func (m *Monitor) Probe(ctx context.Context) models.ConnectivityStatus {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	version, err := m.store.Probe(ctx)
	tested := m.now().UTC()

	next := models.ConnectivityStatus{
		Connected: err == nil,
		LastTest:  &tested,
		Backend:   m.store.Backend(),
	}
	if err != nil {
		next.Error = &models.StatusError{Code: cache.ErrorCode(err), Message: err.Error()}
		observability.StoreProbesTotal.WithLabelValues("failure").Inc()
	} else {
		next.ServerVersion = version
		observability.StoreProbesTotal.WithLabelValues("success").Inc()
	}
	observability.SetStoreConnected(next.Connected)

	m.mu.Lock()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	m.logTransition(prev, next)
	return next
}

func (m *Monitor) logTransition(prev, next models.ConnectivityStatus) {
	switch {
	case next.Connected && !prev.Connected:
		m.logger.Info("cache store connected",
			zap.String("backend", next.Backend),
			zap.String("version", next.ServerVersion),
		)
	case !next.Connected && (prev.Connected || prev.LastTest == nil):
		m.logger.Warn("cache store unavailable",
			zap.String("backend", next.Backend),
			zap.String("code", next.Error.Code),
			zap.String("error", next.Error.Message),
		)
	case !next.Connected:
		m.logger.Debug("cache store still unavailable",
			zap.String("backend", next.Backend),
			zap.String("code", next.Error.Code),
		)
	}
}

// Start runs the first probe in the background and returns immediately.
// The returned channel is closed once that probe has finished.
func (m *Monitor) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Probe(ctx)
	}()
	return done
}

// Status returns a copy of the current status.
func (m *Monitor) Status() models.ConnectivityStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.status
	if s.Error != nil {
		e := *s.Error
		s.Error = &e
	}
	if s.LastTest != nil {
		t := *s.LastTest
		s.LastTest = &t
	}
	return s
}

// Connected reports whether the last probe succeeded.
func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Connected
}
