package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"galvan_backend/pkg/lock"
)

// Job is a recurring task. Each run holds the lock "cron:<Name>" so only one
// instance executes it. With KeepLock the lock is left to expire after TTL
// instead of being released, which stops other instances from repeating a
// daily job.
type Job struct {
	Name     string
	Spec     string
	TTL      time.Duration
	KeepLock bool
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	locker  lock.Locker
	logger  *zap.Logger
	timeout time.Duration
}

func NewScheduler(locker lock.Locker, log *zap.Logger) *Scheduler {
	adapter := zapLogger{log}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(adapter), cron.WithChain(cron.Recover(adapter))),
		locker:  locker,
		logger:  log,
		timeout: 30 * time.Minute,
	}
}

func (s *Scheduler) Add(job Job) error {
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	s.logger.Info("Cron job registered", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

func (s *Scheduler) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	l := s.locker.NewLock("cron:"+job.Name, job.TTL)
	acquired, err := l.Acquire(ctx)
	if err != nil {
		s.logger.Error("Could not acquire cron lock", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if !acquired {
		s.logger.Debug("Cron job already running elsewhere, skipping", zap.String("job", job.Name))
		return
	}
	if !job.KeepLock {
		defer func() {
			if err := l.Release(context.Background()); err != nil {
				s.logger.Warn("Could not release cron lock", zap.String("job", job.Name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Cron job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Debug("Cron job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Cron scheduler started")
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Cron jobs still running at shutdown")
	}
}

type zapLogger struct {
	log *zap.Logger
}

func (z zapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.log.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (z zapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.log.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
