package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"taskmaster/internal/engine"
)

// Scheduler runs the enrichment pass on a fixed interval until its context
// is cancelled. Each cycle is fault-isolated: an error or panic is logged
// and the next cycle proceeds on schedule. The same engine operation may be
// triggered concurrently through the API; the claim step in
// Engine.ProcessCaptured keeps the two from double-processing a task.
type Scheduler struct {
	Engine   engine.Engine
	Interval time.Duration
	Logger   *zap.Logger
}

const defaultInterval = 120 * time.Second

func New(e engine.Engine, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{Engine: e, Interval: interval, Logger: logger}
}

// Run blocks until ctx is cancelled. The first cycle starts immediately;
// subsequent cycles wait the full interval regardless of outcome.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.Info("worker started", zap.Duration("interval", s.Interval))
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			s.Logger.Info("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("cycle panic", zap.Any("panic", r))
		}
	}()
	count, err := s.Engine.ProcessCaptured(ctx)
	if err != nil {
		s.Logger.Error("cycle failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.Logger.Info("processed captured tasks", zap.Int("count", count))
	}
}
