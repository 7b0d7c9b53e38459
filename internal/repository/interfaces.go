// Package repository はメタデータストアのインターフェースと実装を定義する。
//
// ストアは結果整合のセカンダリインデックスを前提とする。インデックス経路は
// 書き込みの反映が遅れたり、続きがあっても短いページを返すことがある。
// 呼び出し側（listing.Paginator）はスキャン経路で1回だけ補完する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/photolib/internal/model"
)

// ErrIndexUnavailable はオーナーインデックスなどのセカンダリインデックスが
// 呼び出し時点で利用できないことを表す。呼び出し側はフルスキャンに切り替える。
var ErrIndexUnavailable = errors.New("secondary index is unavailable")

// PhotoPosition はインデックス上の位置 (uploaded_at, photo_id) を表す。
type PhotoPosition struct {
	UploadedAt int64
	PhotoID    string
}

// IndexQuery はアルバム単位のインデックス問い合わせ条件。
type IndexQuery struct {
	AlbumID string
	// After が指定された場合、その位置より厳密に後ろの行から返す。
	After *PhotoPosition
	// Limit は要求件数。実装はこれより少ない件数を返してもよい。
	Limit int
}

// IndexPage はインデックス問い合わせの結果。
type IndexPage struct {
	// Photos は (uploaded_at desc, photo_id desc) 順の行。
	Photos []model.Photo
	// HasMore はインデックスが続きのページがあると報告したかを表す。
	// falseでも未反映の行が残っている可能性がある。
	HasMore bool
}

// PhotoRepository は写真メタデータの永続化インターフェース。
type PhotoRepository interface {
	// QueryByAlbum はアルバムのインデックスを新しい順に問い合わせる。
	QueryByAlbum(ctx context.Context, q IndexQuery) (*IndexPage, error)

	// ScanByAlbum はアルバムの全行を順序保証なしで返す。インデックス遅延時の補完経路。
	ScanByAlbum(ctx context.Context, albumID string) ([]model.Photo, error)

	// DeleteByID は指定IDの写真行を削除する。存在しない場合も成功とする。
	DeleteByID(ctx context.Context, photoID string) error
}

// AlbumRepository はアルバムの永続化インターフェース。
type AlbumRepository interface {
	// FindByID は指定IDのアルバムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, albumID string) (*model.Album, error)

	// ListByOwner はオーナーインデックスでアルバム一覧を返す。
	// インデックスが利用できない場合はErrIndexUnavailableを返す。
	ListByOwner(ctx context.Context, ownerID string) ([]model.Album, error)

	// ScanAll は全アルバムを順序保証なしで返す。
	ScanAll(ctx context.Context) ([]model.Album, error)

	// DeleteByID は指定IDのアルバム行を削除する。存在しない場合も成功とする。
	DeleteByID(ctx context.Context, albumID string) error
}

// AccountRepository はアカウントの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID string) (*model.Account, error)

	// DeleteByID は指定IDのアカウント行を削除する。存在しない場合も成功とする。
	DeleteByID(ctx context.Context, userID string) error
}

// TokenRepository はワンタイムトークンの永続化インターフェース。
type TokenRepository interface {
	// ListByUserID は指定ユーザーを参照する全トークンを返す。
	ListByUserID(ctx context.Context, userID string) ([]model.OneTimeToken, error)

	// DeleteByToken はトークン行を削除する。存在しない場合も成功とする。
	DeleteByToken(ctx context.Context, token string) error
}

// Store は全リポジトリをまとめたもの。バックエンドごとに1つ生成する。
type Store struct {
	Photos   PhotoRepository
	Albums   AlbumRepository
	Accounts AccountRepository
	Tokens   TokenRepository
}

// AlbumsOwnedBy はオーナーインデックスでアルバムを列挙し、
// インデックスが利用できない場合はフルスキャンをクライアント側で絞り込む。
func AlbumsOwnedBy(ctx context.Context, repo AlbumRepository, ownerID string) ([]model.Album, error) {
	albums, err := repo.ListByOwner(ctx, ownerID)
	if err == nil {
		return albums, nil
	}
	if !errors.Is(err, ErrIndexUnavailable) {
		return nil, err
	}

	all, err := repo.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	owned := make([]model.Album, 0, len(all))
	for _, a := range all {
		if a.Owner == ownerID {
			owned = append(owned, a)
		}
	}
	return owned, nil
}
