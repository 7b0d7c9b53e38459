package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/photolib/internal/model"
)

// photoColumns はphotosテーブルのSELECT列。scanPhotoと順序を合わせる。
const photoColumns = `photo_id, album_id, blob_key, thumb_key, uploaded_at,
		        uploader, width, height, taken_at, size_bytes`

// PostgresPhotoRepo はPostgreSQLを使用した写真メタデータリポジトリ。
// インデックス経路は photos(album_id, uploaded_at DESC, photo_id DESC) を使う。
type PostgresPhotoRepo struct {
	db *sql.DB
}

// NewPostgresPhotoRepo はPostgresPhotoRepoを生成する。
func NewPostgresPhotoRepo(db *sql.DB) *PostgresPhotoRepo {
	return &PostgresPhotoRepo{db: db}
}

// buildAlbumIndexQuery はキーセットページネーションのSQLと引数を構築する。
// 続きの有無を判定するためlimit+1件を要求する。
func buildAlbumIndexQuery(q IndexQuery) (string, []interface{}) {
	query := `SELECT ` + photoColumns + `
		 FROM photos
		 WHERE album_id = $1`
	args := []interface{}{q.AlbumID}
	argIndex := 2

	if q.After != nil {
		// 行値比較で (uploaded_at, photo_id) の辞書順に厳密に後ろを取る
		query += fmt.Sprintf(" AND (uploaded_at, photo_id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, q.After.UploadedAt, q.After.PhotoID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY uploaded_at DESC, photo_id DESC LIMIT $%d", argIndex)
	args = append(args, q.Limit+1)

	return query, args
}

// QueryByAlbum はアルバムの写真を新しい順に最大Limit件返す。
func (r *PostgresPhotoRepo) QueryByAlbum(ctx context.Context, q IndexQuery) (*IndexPage, error) {
	query, args := buildAlbumIndexQuery(q)

	photos, err := r.queryPhotos(ctx, query, args...)
	if err != nil {
		return nil, model.NewStoreUnavailableError("写真インデックスの問い合わせ", err)
	}

	hasMore := len(photos) > q.Limit
	if hasMore {
		photos = photos[:q.Limit] // 判定用の1件を除外
	}
	return &IndexPage{Photos: photos, HasMore: hasMore}, nil
}

// ScanByAlbum はアルバムの全写真を順序指定なしで返す。
func (r *PostgresPhotoRepo) ScanByAlbum(ctx context.Context, albumID string) ([]model.Photo, error) {
	photos, err := r.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE album_id = $1`,
		albumID,
	)
	if err != nil {
		return nil, model.NewStoreUnavailableError("写真のスキャン", err)
	}
	return photos, nil
}

// DeleteByID は指定IDの写真行を削除する。対象がなくてもエラーにしない。
func (r *PostgresPhotoRepo) DeleteByID(ctx context.Context, photoID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM photos WHERE photo_id = $1`, photoID); err != nil {
		return model.NewStoreUnavailableError("写真行の削除", err)
	}
	return nil
}

func (r *PostgresPhotoRepo) queryPhotos(ctx context.Context, query string, args ...interface{}) ([]model.Photo, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("写真一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var photos []model.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("写真行の読み取りに失敗しました: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("写真一覧の走査に失敗しました: %w", err)
	}
	return photos, nil
}

// scanPhoto は1行をmodel.Photoに読み込む。
func scanPhoto(rows *sql.Rows) (model.Photo, error) {
	var p model.Photo
	var thumbKey, uploader, takenAt sql.NullString
	err := rows.Scan(
		&p.PhotoID, &p.AlbumID, &p.BlobKey, &thumbKey, &p.UploadedAt,
		&uploader, &p.Width, &p.Height, &takenAt, &p.Size,
	)
	if err != nil {
		return model.Photo{}, err
	}
	p.ThumbKey = nullStringValue(thumbKey)
	p.Uploader = nullStringValue(uploader)
	p.TakenAt = nullStringValue(takenAt)
	return p, nil
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ PhotoRepository = (*PostgresPhotoRepo)(nil)
