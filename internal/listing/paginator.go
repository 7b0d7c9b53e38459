// Package listing はアルバム内の写真一覧を安定したページ列として提供する。
//
// 一覧は (uploaded_at desc, photo_id desc) で全順序付けされる。インデックス経路と
// スキャン補完経路の両方で同じ順序規則を使うため、どちらの経路で発行した
// カーソルからも同じ位置で再開できる。
//
// 一貫性は弱い: ページ取得の間に追加された写真は、カーソルより前に並べば
// 返されず、後ろに並べば後続のページで返される。
package listing

import (
	"context"
	"log/slog"
	"slices"

	"github.com/hitoshi/photolib/internal/cursor"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/model"
	"github.com/hitoshi/photolib/internal/repository"
)

const (
	// DefaultPageSize はlimit未指定時のページサイズ。
	DefaultPageSize = 20
	// MaxPageSize はページサイズの上限。これを超える指定は切り詰める。
	MaxPageSize = 100
)

// Page は一覧の1ページ。NextCursorが空なら最終ページ。
type Page struct {
	Photos     []model.Photo
	NextCursor string
}

// Paginator はインデックス経路の問い合わせと1回限りのスキャン補完で
// 1ページを組み立てる。書き込みは行わず、内部で再試行もしない。
type Paginator struct {
	photos  repository.PhotoRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewPaginator はPaginatorを生成する。mcがnilの場合はメトリクスを記録しない。
func NewPaginator(photos repository.PhotoRepository, mc metrics.MetricsCollector, logger *slog.Logger) *Paginator {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paginator{photos: photos, metrics: mc, logger: logger}
}

// ClampLimit はページサイズを [1, MaxPageSize] に収める。0以下はDefaultPageSize。
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// Page はalbumIDの写真を最大limit件返す。tokenが空なら先頭から。
// 不正なトークンはINVALID_CURSOR、別アルバムのトークンはストアを読む前にCURSOR_MISMATCHを返す。
func (p *Paginator) Page(ctx context.Context, albumID string, limit int, token string) (*Page, error) {
	limit = ClampLimit(limit)

	var after *repository.PhotoPosition
	if token != "" {
		pos, err := cursor.Decode(token)
		if err != nil {
			return nil, err
		}
		if !pos.MatchesAlbum(albumID) {
			return nil, model.NewCursorMismatchError(albumID)
		}
		after = &repository.PhotoPosition{UploadedAt: pos.UploadedAt, PhotoID: pos.PhotoID}
	}

	idx, err := p.photos.QueryByAlbum(ctx, repository.IndexQuery{AlbumID: albumID, After: after, Limit: limit})
	if err != nil {
		return nil, err
	}

	rows := slices.Clone(idx.Photos)
	more := idx.HasMore
	usedFallback := false

	// インデックスが続きなしと報告した短いページ（または空ページ）は、
	// 未反映の行がある可能性があるのでスキャンで1回だけ補完する
	if len(rows) < limit && (!idx.HasMore || len(rows) == 0) {
		usedFallback = true
		rows, more, err = p.reconcile(ctx, albumID, after, rows, limit)
		if err != nil {
			return nil, err
		}
	}
	slices.SortFunc(rows, model.PhotoNewerFirst)

	page := &Page{Photos: rows}
	if more && len(rows) > 0 {
		page.NextCursor = cursor.Encode(cursor.FromPhoto(rows[len(rows)-1]))
	}

	p.metrics.RecordPageServed(usedFallback)
	return page, nil
}

// reconcile はスキャン経路の結果をインデックスの行に統合し、先頭limit件と
// その後ろにまだ行が残っているかを返す。
func (p *Paginator) reconcile(ctx context.Context, albumID string, after *repository.PhotoPosition, indexed []model.Photo, limit int) ([]model.Photo, bool, error) {
	scanned, err := p.photos.ScanByAlbum(ctx, albumID)
	if err != nil {
		return nil, false, err
	}

	indexedIDs := make(map[string]bool, len(indexed))
	merged := make([]model.Photo, 0, len(indexed)+len(scanned))
	for _, ph := range indexed {
		indexedIDs[ph.PhotoID] = true
		merged = append(merged, ph)
	}
	for _, ph := range scanned {
		if indexedIDs[ph.PhotoID] {
			continue
		}
		if after != nil && !ph.SortsAfter(after.UploadedAt, after.PhotoID) {
			continue
		}
		merged = append(merged, ph)
	}
	slices.SortFunc(merged, model.PhotoNewerFirst)

	more := len(merged) > limit
	if more {
		merged = merged[:limit]
	}

	recovered := 0
	for _, ph := range merged {
		if !indexedIDs[ph.PhotoID] {
			recovered++
		}
	}
	if recovered > 0 {
		p.metrics.RecordFallbackRecovered(recovered)
		p.logger.Debug("インデックス未反映の写真をスキャンで補完しました",
			slog.String("album_id", albumID),
			slog.Int("recovered", recovered),
		)
	}

	return merged, more, nil
}

// Each はalbumIDの全写真をsweepSize件ずつfnに渡す。最終ページまで駆動する。
// fnがエラーを返した場合はそこで中断する。
func (p *Paginator) Each(ctx context.Context, albumID string, sweepSize int, fn func([]model.Photo) error) error {
	token := ""
	for {
		page, err := p.Page(ctx, albumID, sweepSize, token)
		if err != nil {
			return err
		}
		if len(page.Photos) > 0 {
			if err := fn(page.Photos); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		token = page.NextCursor
	}
}

// EachAll はEachで全ページを駆動した後、スキャンを1回行い、Eachで渡されなかった
// 写真をsweepSize件ずつ同じ順序でfnに渡す。スキャン補完は最終ページでしか
// 働かないため、ページの途中に並ぶインデックス未反映の写真はここで拾う。
// 削除やアカウント単位の集計のように取りこぼしが許されない呼び出し元が使う。
func (p *Paginator) EachAll(ctx context.Context, albumID string, sweepSize int, fn func([]model.Photo) error) error {
	seen := make(map[string]struct{})
	err := p.Each(ctx, albumID, sweepSize, func(photos []model.Photo) error {
		for _, ph := range photos {
			seen[ph.PhotoID] = struct{}{}
		}
		return fn(photos)
	})
	if err != nil {
		return err
	}

	scanned, err := p.photos.ScanByAlbum(ctx, albumID)
	if err != nil {
		return err
	}
	var missed []model.Photo
	for _, ph := range scanned {
		if _, ok := seen[ph.PhotoID]; !ok {
			missed = append(missed, ph)
		}
	}
	if len(missed) == 0 {
		return nil
	}

	slices.SortFunc(missed, model.PhotoNewerFirst)
	p.metrics.RecordFallbackRecovered(len(missed))
	p.logger.Info("列挙後のスキャンでインデックス未反映の写真を検出しました",
		slog.String("album_id", albumID),
		slog.Int("recovered", len(missed)),
	)

	size := ClampLimit(sweepSize)
	for start := 0; start < len(missed); start += size {
		if err := fn(missed[start:min(start+size, len(missed))]); err != nil {
			return err
		}
	}
	return nil
}
