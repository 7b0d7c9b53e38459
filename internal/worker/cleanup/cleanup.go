// Package cleanup は期限切れワンタイムトークンの自動削除ジョブを提供する。
// 期限（expires_at）から猶予期間（デフォルト7日）を過ぎたトークンを
// 日次バッチで削除する。PostgreSQLバックエンドでのみ動作する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TokenCleanupJob は期限切れワンタイムトークンの削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type TokenCleanupJob struct {
	db     Executor
	logger *slog.Logger
	now    func() time.Time
	Grace  time.Duration // 期限切れから削除までの猶予（デフォルト: 7日）
}

// NewTokenCleanupJob は新しいTokenCleanupJobを生成する。
func NewTokenCleanupJob(db Executor, logger *slog.Logger) *TokenCleanupJob {
	return &TokenCleanupJob{
		db:     db,
		logger: logger,
		now:    time.Now,
		Grace:  7 * 24 * time.Hour,
	}
}

// Run はexpires_atが猶予期間より前のトークンを削除する。
func (j *TokenCleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := j.now().Add(-j.Grace).Unix()

	query := `DELETE FROM one_time_tokens WHERE expires_at < $1`
	result, err := j.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int64("cutoff", cutoff),
		)
		return fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("cutoff", cutoff),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
