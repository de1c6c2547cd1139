// Package cleanup は古い記事を削除する保持期間ジョブを提供する。
// スター付きの記事は保持期間を過ぎても削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays は記事の既定の保持日数。
const DefaultRetentionDays = 180

// Pruner は古い記事を削除するストレージのインターフェース。
type Pruner interface {
	PruneArticles(ctx context.Context, before time.Time) (int64, error)
}

// Job は保持期間を超過した記事を削除するジョブ。
// 削除対象がなくてもエラーにならないため、何度実行してもよい。
type Job struct {
	store         Pruner
	logger        *slog.Logger
	RetentionDays int
	now           func() time.Time
}

// NewJob はJobを生成する。retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewJob(store Pruner, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Job{
		store:         store,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run は取り込みから保持日数を超えた記事を削除し、削除件数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	before := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.store.PruneArticles(ctx, before)
	if err != nil {
		j.logger.Error("記事クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("記事クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("記事クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Duration("duration", time.Since(start)),
	)
	return deleted, nil
}

// Start はintervalごとにRunを実行する。コンテキストがキャンセルされるまで戻らない。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// エラーはRun内でログ出力済み
			_, _ = j.Run(ctx)
		}
	}
}
