package bot

import (
	"context"
	"sync"
	"time"

	"proxy-bot/model"
	"proxy-bot/proxy"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"
)

const (
	maxSweepInterval = 10 * time.Minute
	retentionTimeout = 5 * time.Minute
	cronRetryDelay   = 30 * time.Second
)

// Scheduler runs the periodic maintenance tasks.
type Scheduler struct {
	registry   *proxy.MessageRegistry
	autoproxy  *proxy.AutoproxyResolver
	retention  model.RetentionConfig
	sweepEvery time.Duration
	logger     *zap.Logger
	now        func() time.Time

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Retention runs only with a positive
// max age, and latch sweeping only with a latch timeout.
func NewScheduler(registry *proxy.MessageRegistry, autoproxy *proxy.AutoproxyResolver, cfg *model.Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		registry:   registry,
		autoproxy:  autoproxy,
		retention:  cfg.Retention,
		sweepEvery: min(cfg.LatchTimeout, maxSweepInterval),
		logger:     logger.Named("scheduler"),
		now:        time.Now,
		done:       make(chan struct{}),
	}
}

// Start begins all scheduled tasks.
func (s *Scheduler) Start() {
	if s.retention.MaxAge > 0 {
		s.wg.Add(1)
		go s.startRetention()
	}
	if s.sweepEvery > 0 {
		s.wg.Add(1)
		go s.startLatchSweep()
	}
}

// Stop terminates all scheduled tasks and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.logger.Debug("Scheduler stopped")
}

func (s *Scheduler) startRetention() {
	defer s.wg.Done()
	s.logger.Info("Retention enabled", zap.String("cron", s.retention.Cron), zap.Duration("max_age", s.retention.MaxAge))
	for {
		wait := cronRetryDelay
		next, err := gronx.NextTickAfter(s.retention.Cron, s.now().UTC(), false)
		if err != nil {
			s.logger.Error("Computing next retention run failed", zap.String("cron", s.retention.Cron), zap.Error(err))
		} else {
			wait = time.Until(next)
		}

		select {
		case <-time.After(wait):
			if err == nil {
				s.runRetention()
			}
		case <-s.done:
			return
		}
	}
}

// runRetention forgets relayed-message records older than the max age.
func (s *Scheduler) runRetention() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), retentionTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.retention.MaxAge)
	n, err := s.registry.ForgetBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention run failed", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	return n
}

func (s *Scheduler) startLatchSweep() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.autoproxy.Sweep(); n > 0 {
				s.logger.Debug("Expired autoproxy latches", zap.Int("count", n))
			}
		case <-s.done:
			return
		}
	}
}
