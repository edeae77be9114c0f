package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-cache-gateway/internal/models"
)

// jobTimeout bounds a single background run.
const jobTimeout = 30 * time.Second

// Prober refreshes the cache store connectivity status.
type Prober interface {
	Probe(ctx context.Context) models.ConnectivityStatus
	Connected() bool
}

// Warmer requests a set of cities so their entries are fresh.
type Warmer interface {
	Warm(ctx context.Context, cities []string) error
}

// Scheduler runs the periodic connectivity probe and cache warming. Jobs never overlap themselves.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// New creates an idle Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{cron: s, logger: logger}
}

// AddProbe re-probes the store every interval. The first run waits one interval,
// since startup already probes. interval <= 0 adds nothing.
func (s *Scheduler) AddProbe(interval time.Duration, prober Prober) error {
	if interval <= 0 {
		return nil
	}
	_, err := s.cron.Every(interval).WaitForSchedule().Tag("probe").Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		status := prober.Probe(ctx)
		s.logger.Debug("scheduled probe", zap.Bool("connected", status.Connected))
	})
	return err
}

// AddWarming warms cities when the scheduler starts and then every interval.
// interval <= 0 warms once. Runs are skipped while the store is not connected.
func (s *Scheduler) AddWarming(interval time.Duration, warmer Warmer, prober Prober, cities []string) error {
	if len(cities) == 0 {
		return nil
	}
	job := func() {
		if !prober.Connected() {
			s.logger.Info("skipping cache warming, store not connected")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := warmer.Warm(ctx, cities); err != nil {
			s.logger.Warn("cache warming failed", zap.Error(err))
		}
	}
	if interval <= 0 {
		_, err := s.cron.Every(time.Hour).LimitRunsTo(1).Tag("warm").Do(job)
		return err
	}
	_, err := s.cron.Every(interval).Tag("warm").Do(job)
	return err
}

// Start runs scheduled jobs in the background. A no-op once Stop has been called
// or when no jobs are registered.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.cron.Len() == 0 || s.cron.IsRunning() {
		return
	}
	s.logger.Info("scheduler started", zap.Int("jobs", s.cron.Len()))
	s.cron.StartAsync()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cron.IsRunning() {
		s.cron.Stop()
	}
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return s.cron.Len()
}
