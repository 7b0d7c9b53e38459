package listing

import (
	"context"
	"log/slog"
)

// Cover はアルバムの最新の写真の署名付きURLを返す。
// 写真がない場合、または署名に失敗した場合は空文字を返す。
func (s *Service) Cover(ctx context.Context, albumID, requesterID string) (string, error) {
	if err := s.authorize(ctx, albumID, requesterID); err != nil {
		return "", err
	}

	page, err := s.paginator.Page(ctx, albumID, 1, "")
	if err != nil {
		return "", err
	}
	if len(page.Photos) == 0 {
		s.logger.Debug("カバー写真がありません", slog.String("album_id", albumID))
		return "", nil
	}

	newest := page.Photos[0]
	return s.sign(ctx, newest.PhotoID, newest.BlobKey), nil
}
