package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/photolib/internal/model"
)

// PostgresAlbumRepo はPostgreSQLを使用したアルバムリポジトリ。
type PostgresAlbumRepo struct {
	db *sql.DB
}

// NewPostgresAlbumRepo はPostgresAlbumRepoを生成する。
func NewPostgresAlbumRepo(db *sql.DB) *PostgresAlbumRepo {
	return &PostgresAlbumRepo{db: db}
}

// FindByID は指定IDのアルバムを取得する。見つからない場合はnilを返す。
func (r *PostgresAlbumRepo) FindByID(ctx context.Context, albumID string) (*model.Album, error) {
	album := &model.Album{}
	err := r.db.QueryRowContext(ctx,
		`SELECT album_id, owner_id, title, created_at FROM albums WHERE album_id = $1`,
		albumID,
	).Scan(&album.AlbumID, &album.Owner, &album.Title, &album.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStoreUnavailableError("アルバムの取得", err)
	}
	return album, nil
}

// ListByOwner はalbums(owner_id)インデックスでアルバム一覧を返す。
// PostgreSQLではインデックスは常に利用可能なのでErrIndexUnavailableは返さない。
func (r *PostgresAlbumRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Album, error) {
	albums, err := r.queryAlbums(ctx,
		`SELECT album_id, owner_id, title, created_at FROM albums
		 WHERE owner_id = $1 ORDER BY created_at DESC, album_id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, model.NewStoreUnavailableError("オーナー別アルバム一覧の取得", err)
	}
	return albums, nil
}

// ScanAll は全アルバムを返す。
func (r *PostgresAlbumRepo) ScanAll(ctx context.Context) ([]model.Album, error) {
	albums, err := r.queryAlbums(ctx, `SELECT album_id, owner_id, title, created_at FROM albums`)
	if err != nil {
		return nil, model.NewStoreUnavailableError("アルバムのスキャン", err)
	}
	return albums, nil
}

// DeleteByID は指定IDのアルバム行を削除する。対象がなくてもエラーにしない。
func (r *PostgresAlbumRepo) DeleteByID(ctx context.Context, albumID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM albums WHERE album_id = $1`, albumID); err != nil {
		return model.NewStoreUnavailableError("アルバム行の削除", err)
	}
	return nil
}

func (r *PostgresAlbumRepo) queryAlbums(ctx context.Context, query string, args ...interface{}) ([]model.Album, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("アルバム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var albums []model.Album
	for rows.Next() {
		var a model.Album
		if err := rows.Scan(&a.AlbumID, &a.Owner, &a.Title, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("アルバム行の読み取りに失敗しました: %w", err)
		}
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アルバム一覧の走査に失敗しました: %w", err)
	}
	return albums, nil
}

// compile-time interface check
var _ AlbumRepository = (*PostgresAlbumRepo)(nil)
