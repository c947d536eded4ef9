package cleanup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule は既定の実行間隔。
const DefaultSchedule = "@every 1h"

// Runner は定期実行されるジョブ。
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler はcron式に従ってジョブを定期実行する。
// ジョブの実行が重なった場合は後続をスキップする。
type Scheduler struct {
	cron   *cron.Cron
	job    Runner
	spec   string
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。specが空の場合はDefaultSchedule。
func NewScheduler(job Runner, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultSchedule
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		job:    job,
		spec:   spec,
		logger: logger,
	}
}

// Start はジョブを登録してスケジューラを起動する。
// 起動直後にも1回実行する。
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("cleanup scheduler started", slog.String("spec", s.spec))

	go s.runOnce(ctx)
	return nil
}

// Stop はスケジューラを停止し、実行中のジョブの完了を待つ。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cleanup scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job.Run(ctx); err != nil {
		s.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
