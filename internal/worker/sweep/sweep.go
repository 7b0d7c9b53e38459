// Package sweep は孤立blobの掃除ジョブを提供する。
// カスケード削除とアップロードが競合すると、アルバム行も写真行もない
// "{album_id}/" 配下にblobが残ることがある。日次バッチでそれらを削除する。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/photolib/internal/blob"
	"github.com/hitoshi/photolib/internal/cascade"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/repository"
)

// Job は孤立blobの掃除ジョブ。冪等で、何度実行してもよい。
type Job struct {
	albums  repository.AlbumRepository
	photos  repository.PhotoRepository
	blobs   blob.Store
	deleter *cascade.Deleter
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// Summary は1回の掃除の結果。
type Summary struct {
	PrefixesScanned int
	PrefixesSwept   int
	KeysDeleted     int
	KeysFailed      int
}

// NewJob は新しいJobを生成する。blobの削除はdeleterのバッチ経路を使う。
func NewJob(
	repos *repository.Store,
	blobs blob.Store,
	deleter *cascade.Deleter,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Job {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		albums:  repos.Albums,
		photos:  repos.Photos,
		blobs:   blobs,
		deleter: deleter,
		metrics: mc,
		logger:  logger,
	}
}

// Run はトップレベルのアルバムプレフィックスを列挙し、アルバム行も写真行も
// 存在しないプレフィックス配下のblobを削除する。予約プレフィックスは対象外。
// プレフィックス単位のストア障害はログに記録して次に進む。
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	prefixes, err := j.blobs.ListPrefixes(ctx)
	if err != nil {
		j.logger.Error("孤立blob掃除のプレフィックス列挙に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("プレフィックスの列挙に失敗: %w", err)
	}

	summary := &Summary{}
	for _, prefix := range prefixes {
		albumID, ok := blob.AlbumIDFromPrefix(prefix)
		if !ok {
			continue
		}
		summary.PrefixesScanned++

		if err := j.sweepPrefix(ctx, albumID, summary); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			j.logger.Error("プレフィックスの掃除に失敗しました",
				slog.String("album_id", albumID),
				slog.String("error", err.Error()),
			)
		}
	}

	j.metrics.RecordOrphanSweep(summary.PrefixesSwept, summary.KeysDeleted)

	duration := time.Since(start)
	j.logger.Info("孤立blob掃除ジョブが完了しました",
		slog.Int("prefixes_scanned", summary.PrefixesScanned),
		slog.Int("prefixes_swept", summary.PrefixesSwept),
		slog.Int("keys_deleted", summary.KeysDeleted),
		slog.Int("keys_failed", summary.KeysFailed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return summary, nil
}

func (j *Job) sweepPrefix(ctx context.Context, albumID string, summary *Summary) error {
	album, err := j.albums.FindByID(ctx, albumID)
	if err != nil {
		return err
	}
	if album != nil {
		return nil
	}

	// 写真行が残っている場合はカスケード削除の再実行に任せる
	photos, err := j.photos.ScanByAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	if len(photos) > 0 {
		j.logger.Debug("写真行が残っているため掃除を見送ります",
			slog.String("album_id", albumID),
			slog.Int("photos", len(photos)),
		)
		return nil
	}

	keys, err := j.blobs.ListKeys(ctx, blob.AlbumPrefix(albumID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	report, err := j.deleter.PurgeBlobs(ctx, keys)
	if err != nil {
		return err
	}
	summary.PrefixesSwept++
	summary.KeysDeleted += report.BlobsDeleted
	summary.KeysFailed += len(report.FailedBlobKeys)

	j.logger.Info("孤立blobを削除しました",
		slog.String("album_id", albumID),
		slog.Int("keys_deleted", report.BlobsDeleted),
		slog.Int("keys_failed", len(report.FailedBlobKeys)),
	)
	return nil
}
