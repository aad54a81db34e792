// Package jobs runs periodic maintenance next to the HTTP server.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StagingSweeper is implemented by the moderation service.
type StagingSweeper interface {
	SweepStaging(ctx context.Context, maxAge time.Duration) (int, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

func NewScheduler(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  log,
	}
}

// AddStagingSweep schedules sweeper on spec. An empty spec disables the job.
func (s *Scheduler) AddStagingSweep(spec string, sweeper StagingSweeper, maxAge time.Duration) error {
	if spec == "" {
		s.log.Info("staging sweep disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		RunStagingSweep(context.Background(), s.log, sweeper, maxAge)
	})
	if err != nil {
		return fmt.Errorf("schedule staging sweep %q: %w", spec, err)
	}
	s.log.Info("staging sweep scheduled", zap.String("schedule", spec), zap.Duration("max_age", maxAge))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

// RunStagingSweep performs one sweep, bounded to five minutes.
func RunStagingSweep(ctx context.Context, log *zap.Logger, sweeper StagingSweeper, maxAge time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	start := time.Now()
	swept, err := sweeper.SweepStaging(ctx, maxAge)
	if err != nil {
		log.Error("staging sweep failed", zap.Int("swept", swept), zap.Error(err))
		return
	}
	log.Info("staging sweep complete", zap.Int("swept", swept), zap.Duration("took", time.Since(start)))
}
