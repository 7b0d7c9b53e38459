// Package cascade はアルバムとアカウントのカスケード削除を提供する。
//
// ストアは複数行にまたがるトランザクションを持たないため、削除は次の順で行う。
// 写真のblob → 写真行 → アルバム行、アルバム → アバター → トークン → アカウント行。
// ルート行は必ず最後に削除するので、途中で中断しても同じ呼び出しで再開できる。
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/photolib/internal/blob"
	"github.com/hitoshi/photolib/internal/listing"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/model"
	"github.com/hitoshi/photolib/internal/repository"
)

const (
	// DefaultSweepSize は写真を列挙する1回あたりの件数。
	DefaultSweepSize = 100
	// DefaultMaxBlobBatch はblob一括削除の1バッチあたりのキー数。
	DefaultMaxBlobBatch = blob.MaxBatch
)

// Report はカスケード削除の結果。
type Report struct {
	AlbumsDeleted  int
	PhotosDeleted  int
	BlobsDeleted   int
	FailedBlobKeys []string
}

// PartialFailure はblobの削除に失敗したキーがあるかを返す。
// メタデータの削除は完了しているため、エラーではなく報告として扱う。
func (r *Report) PartialFailure() bool {
	return len(r.FailedBlobKeys) > 0
}

// Deleter はアルバム・アカウント配下のメタデータ行とblobを削除する。
type Deleter struct {
	repos     *repository.Store
	paginator *listing.Paginator
	blobs     blob.Store
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	SweepSize    int // 写真の列挙単位（デフォルト: 100）
	MaxBlobBatch int // blob削除のバッチ上限（デフォルト: 1000）
}

// NewDeleter は新しいDeleterを生成する。
func NewDeleter(
	repos *repository.Store,
	paginator *listing.Paginator,
	blobs blob.Store,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Deleter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deleter{
		repos:        repos,
		paginator:    paginator,
		blobs:        blobs,
		metrics:      mc,
		logger:       logger,
		SweepSize:    DefaultSweepSize,
		MaxBlobBatch: DefaultMaxBlobBatch,
	}
}

// DeleteAlbum はアルバムと配下の写真行・blobを削除する。
// 所有者でない場合はNOT_AUTHORIZEDを返す。アルバム行が既にない場合は
// 中断された削除の再実行として、残っている写真を削除して成功を返す。
func (d *Deleter) DeleteAlbum(ctx context.Context, albumID, requesterID string) (*Report, error) {
	start := time.Now()

	album, err := d.repos.Albums.FindByID(ctx, albumID)
	if err != nil {
		return nil, fmt.Errorf("アルバムの取得に失敗しました: %w", err)
	}
	if album != nil && !album.OwnedBy(requesterID) {
		return nil, model.NewNotAuthorizedError()
	}

	d.logger.Info("アルバムの削除を開始します",
		slog.String("album_id", albumID),
		slog.String("user_id", requesterID),
		slog.Bool("album_row_exists", album != nil),
	)

	report := &Report{}
	if err := d.purgeAlbum(ctx, albumID, report); err != nil {
		return nil, err
	}

	d.finish(report, "album", start, slog.String("album_id", albumID))
	return report, nil
}

// DeleteAccount はアカウントと所有する全アルバム・アバター・トークンを削除する。
// アカウント行が既にない場合も残りを削除して成功を返す。
func (d *Deleter) DeleteAccount(ctx context.Context, userID string) (*Report, error) {
	start := time.Now()

	account, err := d.repos.Accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	d.logger.Info("アカウントの削除を開始します",
		slog.String("user_id", userID),
		slog.Bool("account_row_exists", account != nil),
	)

	// 1. 所有するアルバムを削除
	albums, err := repository.AlbumsOwnedBy(ctx, d.repos.Albums, userID)
	if err != nil {
		return nil, fmt.Errorf("所有アルバムの列挙に失敗しました: %w", err)
	}
	report := &Report{}
	for _, a := range albums {
		if err := d.purgeAlbum(ctx, a.AlbumID, report); err != nil {
			return nil, err
		}
	}

	// 2. アバターを削除
	if account != nil && account.AvatarKey != "" {
		if err := d.deleteBlobs(ctx, []string{account.AvatarKey}, report); err != nil {
			return nil, err
		}
	}

	// 3. ワンタイムトークンを削除
	tokens, err := d.repos.Tokens.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("トークンの列挙に失敗しました: %w", err)
	}
	for _, t := range tokens {
		if err := d.repos.Tokens.DeleteByToken(ctx, t.Token); err != nil {
			return nil, fmt.Errorf("トークンの削除に失敗しました: %w", err)
		}
	}

	// 4. アカウント行を削除
	if err := d.repos.Accounts.DeleteByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}

	d.finish(report, "account", start,
		slog.String("user_id", userID),
		slog.Int("tokens_deleted", len(tokens)),
	)
	return report, nil
}

// PurgeBlobs はキーをバッチ上限ごとに削除する。孤立blobの掃除からも使う。
func (d *Deleter) PurgeBlobs(ctx context.Context, keys []string) (*Report, error) {
	report := &Report{}
	if err := d.deleteBlobs(ctx, keys, report); err != nil {
		return nil, err
	}
	return report, nil
}

// purgeAlbum は写真を列挙しながらblobと写真行を削除し、最後にアルバム行を削除する。
// 列挙は最後にスキャンで突き合わせるので、インデックス未反映の写真も残さない。
// 写真行は対応するblobの削除を試みた後に削除する。
func (d *Deleter) purgeAlbum(ctx context.Context, albumID string, report *Report) error {
	var pending []model.Photo
	var pendingKeys []string

	flush := func() error {
		if err := d.deleteBlobs(ctx, pendingKeys, report); err != nil {
			return err
		}
		for _, ph := range pending {
			if err := d.repos.Photos.DeleteByID(ctx, ph.PhotoID); err != nil {
				return fmt.Errorf("写真行の削除に失敗しました (%s): %w", ph.PhotoID, err)
			}
			report.PhotosDeleted++
		}
		pending, pendingKeys = pending[:0], pendingKeys[:0]
		return nil
	}

	err := d.paginator.EachAll(ctx, albumID, d.SweepSize, func(photos []model.Photo) error {
		for _, ph := range photos {
			pending = append(pending, ph)
			pendingKeys = append(pendingKeys, ph.BlobKeys()...)
		}
		if len(pendingKeys) >= d.batchSize() {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写真の削除に失敗しました (%s): %w", albumID, err)
	}
	if err := flush(); err != nil {
		return fmt.Errorf("写真の削除に失敗しました (%s): %w", albumID, err)
	}

	if err := d.repos.Albums.DeleteByID(ctx, albumID); err != nil {
		return fmt.Errorf("アルバム行の削除に失敗しました (%s): %w", albumID, err)
	}
	report.AlbumsDeleted++
	return nil
}

// deleteBlobs はバッチごとの結果をreportに集計する。キー単位の失敗では中断しない。
// コンテキストのキャンセルのみ呼び出し全体を中断する。
func (d *Deleter) deleteBlobs(ctx context.Context, keys []string, report *Report) error {
	for _, batch := range blob.Chunk(keys, d.batchSize()) {
		res, err := d.blobs.DeleteBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.logger.Warn("blobの一括削除に失敗しました",
				slog.Int("keys", len(batch)),
				slog.String("error", err.Error()),
			)
			res = blob.Partial(0, batch)
		}

		d.metrics.RecordBlobBatch(res.Status.String(), len(batch))
		report.BlobsDeleted += res.Deleted
		if res.Status == blob.BatchPartialFailure {
			d.logger.Warn("一部のblobを削除できませんでした",
				slog.Int("failed", len(res.FailedKeys)),
				slog.Any("failed_keys", res.FailedKeys),
			)
			report.FailedBlobKeys = append(report.FailedBlobKeys, res.FailedKeys...)
		}
	}
	return nil
}

func (d *Deleter) batchSize() int {
	if d.MaxBlobBatch <= 0 || d.MaxBlobBatch > blob.MaxBatch {
		return blob.MaxBatch
	}
	return d.MaxBlobBatch
}

func (d *Deleter) finish(report *Report, kind string, start time.Time, attrs ...slog.Attr) {
	duration := time.Since(start)
	d.metrics.RecordCascade(kind, report.PhotosDeleted, duration)

	args := []any{
		slog.Int("albums_deleted", report.AlbumsDeleted),
		slog.Int("photos_deleted", report.PhotosDeleted),
		slog.Int("blobs_deleted", report.BlobsDeleted),
		slog.Int("blobs_failed", len(report.FailedBlobKeys)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	if report.PartialFailure() {
		d.logger.Warn("削除は完了しましたが一部のblobが残っています", args...)
		return
	}
	d.logger.Info("削除処理が完了しました", args...)
}
