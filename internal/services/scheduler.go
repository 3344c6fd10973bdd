package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irfndi/celebrum-arbwatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// CycleFunc runs one pass over the monitored set. A returned error makes the
// scheduler sleep the error backoff instead of the regular interval.
type CycleFunc func(ctx context.Context) error

// SchedulerConfig holds the timing of a monitoring loop
type SchedulerConfig struct {
	Name         string
	Interval     time.Duration
	ErrorBackoff time.Duration
	StopTimeout  time.Duration
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
}

// Scheduler owns a single background loop repeatedly invoking a cycle until
// stopped. It moves between Stopped and Running only.
type Scheduler struct {
	config  SchedulerConfig
	cycle   CycleFunc
	metrics *metrics.Collector
	logger  *logrus.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time

	activeUnits atomic.Int32
	cycles      atomic.Int64
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(config SchedulerConfig, cycle CycleFunc, collector *metrics.Collector, logger *logrus.Logger) *Scheduler {
	config.applyDefaults()
	return &Scheduler{
		config:  config,
		cycle:   cycle,
		metrics: collector,
		logger:  logger,
	}
}

// Start launches the loop. It returns false without side effects when the
// scheduler is already running or a loop abandoned by a timed-out Stop has
// not exited yet.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.WithField("service", s.config.Name).Warn("Monitoring already running, refusing second start")
		return false
	}
	if units := s.activeUnits.Load(); units > 0 {
		s.logger.WithFields(logrus.Fields{
			"service":      s.config.Name,
			"active_units": units,
		}).Warn("Previous monitoring loop still draining, refusing start")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.startedAt = time.Now().UTC()

	s.activeUnits.Add(1)
	go s.loop(ctx, done)

	s.metrics.SetMonitorRunning(s.config.Name, true)
	s.logger.WithFields(logrus.Fields{
		"service":       s.config.Name,
		"interval":      s.config.Interval.String(),
		"error_backoff": s.config.ErrorBackoff.String(),
	}).Info("Monitoring started")
	return true
}

// Stop signals the loop and waits up to the stop timeout for it to exit. The
// scheduler is Stopped afterwards either way; the return value reports
// whether the loop exited in time.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	s.metrics.SetMonitorRunning(s.config.Name, false)

	timer := time.NewTimer(s.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.WithField("service", s.config.Name).Info("Monitoring stopped")
		return true
	case <-timer.C:
		s.logger.WithFields(logrus.Fields{
			"service": s.config.Name,
			"timeout": s.config.StopTimeout.String(),
		}).Warn("Monitoring loop did not exit before stop timeout")
		return false
	}
}

// IsRunning reports whether the scheduler is in the Running state.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StartedAt returns the time of the last successful Start.
func (s *Scheduler) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// ActiveUnits is the number of background loops that have not yet exited.
func (s *Scheduler) ActiveUnits() int {
	return int(s.activeUnits.Load())
}

// Cycles is the number of cycles executed since construction.
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.activeUnits.Add(-1)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := s.config.Interval
		if err := s.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.metrics.RecordCycle(s.config.Name, "error")
			s.logger.WithError(err).WithFields(logrus.Fields{
				"service": s.config.Name,
				"backoff": s.config.ErrorBackoff.String(),
			}).Error("Monitoring cycle failed")
			wait = s.config.ErrorBackoff
		} else {
			s.metrics.RecordCycle(s.config.Name, "ok")
		}
		timer.Reset(wait)
	}
}

// runCycle converts a panic in the cycle into an error so the loop survives.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitoring cycle panicked: %v", r)
		}
	}()
	s.cycles.Add(1)
	return s.cycle(ctx)
}
