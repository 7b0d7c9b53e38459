// Package stats はユーザーごとの利用状況の集計を提供する。
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hitoshi/photolib/internal/listing"
	"github.com/hitoshi/photolib/internal/model"
	"github.com/hitoshi/photolib/internal/repository"
)

// sweepSize は写真を数え上げる1回あたりの件数。
const sweepSize = listing.MaxPageSize

// Usage はユーザーの利用状況。
type Usage struct {
	Albums     int     `json:"albums"`
	Photos     int     `json:"photos"`
	TotalBytes int64   `json:"total_bytes"`
	StorageMB  float64 `json:"storage_mb"`
	Timestamp  int64   `json:"ts"`
}

// Service は利用状況の集計を行う。
type Service struct {
	albums    repository.AlbumRepository
	paginator *listing.Paginator
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(albums repository.AlbumRepository, paginator *listing.Paginator) *Service {
	return &Service{albums: albums, paginator: paginator, now: time.Now}
}

// ForUser はユーザーが所有するアルバム数・写真数・合計バイト数を返す。
func (s *Service) ForUser(ctx context.Context, userID string) (*Usage, error) {
	albums, err := repository.AlbumsOwnedBy(ctx, s.albums, userID)
	if err != nil {
		return nil, fmt.Errorf("所有アルバムの列挙に失敗しました: %w", err)
	}

	usage := &Usage{Albums: len(albums)}
	for _, a := range albums {
		err := s.paginator.EachAll(ctx, a.AlbumID, sweepSize, func(photos []model.Photo) error {
			usage.Photos += len(photos)
			for _, ph := range photos {
				usage.TotalBytes += ph.Size
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("写真の集計に失敗しました (%s): %w", a.AlbumID, err)
		}
	}

	// MiB単位で小数第1位に丸める
	usage.StorageMB = math.Round(float64(usage.TotalBytes)/(1<<20)*10) / 10
	usage.Timestamp = s.now().Unix()
	return usage, nil
}
