// Package cleanup は保持期間を過ぎたデータの定期削除ジョブを提供する。
// ドメインイベントはEventRetentionDays日、セッションは有効期限切れで削除する。
// 求人と応募はこのジョブの対象外。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はイベントの既定保持日数。
const DefaultRetentionDays = 90

// EventPurger は古いイベントを削除するインターフェース。
type EventPurger interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SessionPurger は期限切れセッションを削除するインターフェース。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したデータの削除ジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	events        EventPurger
	sessions      SessionPurger
	logger        *slog.Logger
	RetentionDays int // イベントの保持日数（デフォルト: 90）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(events EventPurger, sessions SessionPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		events:        events,
		sessions:      sessions,
		logger:        logger,
		RetentionDays: DefaultRetentionDays,
		now:           time.Now,
	}
}

// Run は古いイベントと期限切れセッションを削除する。
// 片方が失敗してももう片方は実行し、エラーはまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	now := j.now().UTC()
	retention := j.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	var errs []error

	events, err := j.events.DeleteOlderThan(ctx, now.AddDate(0, 0, -retention))
	if err != nil {
		j.logger.ErrorContext(ctx, "イベントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", retention),
		)
		errs = append(errs, fmt.Errorf("イベントの削除に失敗: %w", err))
	}

	sessions, err := j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		j.logger.ErrorContext(ctx, "期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("セッションの削除に失敗: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.logger.InfoContext(ctx, "クリーンアップジョブが完了しました",
		slog.Int64("deleted_events", events),
		slog.Int64("deleted_sessions", sessions),
		slog.Int("retention_days", retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
