package listing

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/photolib/internal/blob"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/model"
	"github.com/hitoshi/photolib/internal/repository"
)

// DefaultSignedURLTTL は署名付きURLの既定の有効期間。
const DefaultSignedURLTTL = time.Hour

// PhotoView はレスポンス用の写真。URLは都度発行し、保存しない。
// 署名に失敗した場合、該当するURLは空になる。
type PhotoView struct {
	PhotoID    string `json:"photo_id"`
	AlbumID    string `json:"album_id"`
	UploadedAt int64  `json:"uploaded_at"`
	Uploader   string `json:"uploader,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	TakenAt    string `json:"taken_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
	URL        string `json:"url"`
	ThumbURL   string `json:"thumb_url,omitempty"`
}

// Result は写真一覧の結果。
type Result struct {
	Items      []PhotoView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// AlbumView はアルバム一覧のレスポンス用の型。
type AlbumView struct {
	AlbumID   string `json:"album_id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

// Service はアルバムの写真一覧に関するビジネスロジックを提供する。
type Service struct {
	albums    repository.AlbumRepository
	paginator *Paginator
	blobs     blob.Store
	ttl       time.Duration
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceを生成する。ttlが0以下の場合はDefaultSignedURLTTLを使う。
func NewService(
	albums repository.AlbumRepository,
	paginator *Paginator,
	blobs blob.Store,
	ttl time.Duration,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		albums:    albums,
		paginator: paginator,
		blobs:     blobs,
		ttl:       ttl,
		metrics:   mc,
		logger:    logger,
	}
}

// List はrequesterIDが所有するアルバムの写真を1ページ返す。
// アルバムが存在しない場合と所有者でない場合は区別せずNOT_AUTHORIZEDを返す。
// エラー時は部分的なページを返さない。
func (s *Service) List(ctx context.Context, albumID, requesterID string, limit int, token string) (*Result, error) {
	if err := s.authorize(ctx, albumID, requesterID); err != nil {
		return nil, err
	}

	page, err := s.paginator.Page(ctx, albumID, limit, token)
	if err != nil {
		return nil, err
	}

	items := make([]PhotoView, 0, len(page.Photos))
	for _, ph := range page.Photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		items = append(items, s.view(ctx, ph))
	}
	return &Result{Items: items, NextCursor: page.NextCursor}, nil
}

// ListAlbums はrequesterIDが所有するアルバムを作成日時の新しい順に返す。
// オーナーインデックスが利用できない場合はフルスキャンで絞り込む。
func (s *Service) ListAlbums(ctx context.Context, requesterID string) ([]AlbumView, error) {
	albums, err := repository.AlbumsOwnedBy(ctx, s.albums, requesterID)
	if err != nil {
		return nil, err
	}

	views := make([]AlbumView, 0, len(albums))
	for _, a := range albums {
		views = append(views, AlbumView{AlbumID: a.AlbumID, Title: a.Title, CreatedAt: a.CreatedAt})
	}
	return views, nil
}

func (s *Service) authorize(ctx context.Context, albumID, requesterID string) error {
	album, err := s.albums.FindByID(ctx, albumID)
	if err != nil {
		return err
	}
	if !album.OwnedBy(requesterID) {
		return model.NewNotAuthorizedError()
	}
	return nil
}

func (s *Service) view(ctx context.Context, ph model.Photo) PhotoView {
	v := PhotoView{
		PhotoID:    ph.PhotoID,
		AlbumID:    ph.AlbumID,
		UploadedAt: ph.UploadedAt,
		Uploader:   ph.Uploader,
		Width:      ph.Width,
		Height:     ph.Height,
		TakenAt:    ph.TakenAt,
		Size:       ph.Size,
	}
	v.URL = s.sign(ctx, ph.PhotoID, ph.BlobKey)
	if ph.ThumbKey != "" {
		v.ThumbURL = s.sign(ctx, ph.PhotoID, ph.ThumbKey)
	}
	return v
}

// sign は署名付きURLを発行する。失敗は警告ログとメトリクスに記録し、空文字を返す。
func (s *Service) sign(ctx context.Context, photoID, key string) string {
	if key == "" {
		return ""
	}
	url, err := s.blobs.SignedURL(ctx, key, s.ttl)
	if err != nil {
		s.metrics.RecordSignFailure()
		s.logger.Warn("署名付きURLの発行に失敗しました",
			slog.String("photo_id", photoID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return url
}
