package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule は掃除ジョブの既定の実行スケジュール。
const DefaultSchedule = "@daily"

// Runner はスケジュール実行されるジョブ。
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
}

// Scheduler はcron式に従って掃除ジョブを実行する。
// 前回の実行が終わっていない場合、その回はスキップする。
type Scheduler struct {
	job    Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(job Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{job: job, logger: logger}
}

// Start はcron式scheduleでジョブを登録し、ctxがキャンセルされるまでブロックする。
// 停止時は実行中のジョブの完了を待つ。
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("スケジュールの登録に失敗しました (%s): %w", schedule, err)
	}

	s.logger.Info("孤立blob掃除スケジューラを開始しました", slog.String("schedule", schedule))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("孤立blob掃除スケジューラを停止しました")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("孤立blob掃除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// ValidateSchedule はcron式を検証する。設定の読み込み時に使う。
func ValidateSchedule(schedule string) error {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("無効なスケジュールです (%s): %w", schedule, err)
	}
	return nil
}
