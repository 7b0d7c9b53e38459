// Package memory はプロセス内で完結するメタデータストアを提供する。
// STORE_BACKEND=memory とテストで使用する。
//
// 結果整合なセカンダリインデックスの挙動を再現するため、インデックスへの
// 反映遅延（HideFromIndex）、短いページ（SetMaxIndexPage）、オーナー
// インデックスの欠如（SetOwnerIndexAvailable）、障害（FailOn）を注入できる。
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/hitoshi/photolib/internal/model"
	"github.com/hitoshi/photolib/internal/repository"
)

// 障害注入と呼び出し回数の計測に使う操作名。
const (
	OpQueryByAlbum  = "photos.query"
	OpScanByAlbum   = "photos.scan"
	OpDeletePhoto   = "photos.delete"
	OpFindAlbum     = "albums.find"
	OpListByOwner   = "albums.list_by_owner"
	OpScanAlbums    = "albums.scan"
	OpDeleteAlbum   = "albums.delete"
	OpFindAccount   = "accounts.find"
	OpDeleteAccount = "accounts.delete"
	OpListTokens    = "tokens.list"
	OpDeleteToken   = "tokens.delete"
)

// Store はメモリ上のメタデータストア。
type Store struct {
	mu       sync.RWMutex
	photos   map[string]model.Photo
	albums   map[string]model.Album
	accounts map[string]model.Account
	tokens   map[string]model.OneTimeToken

	hidden            map[string]bool // インデックス未反映の写真ID
	maxIndexPage      int
	ownerIndexMissing bool
	failures          map[string]error
	calls             map[string]int
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		photos:   make(map[string]model.Photo),
		albums:   make(map[string]model.Album),
		accounts: make(map[string]model.Account),
		tokens:   make(map[string]model.OneTimeToken),
		hidden:   make(map[string]bool),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Repositories はStoreを各リポジトリインターフェースとして公開する。
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Photos:   (*photoRepo)(s),
		Albums:   (*albumRepo)(s),
		Accounts: (*accountRepo)(s),
		Tokens:   (*tokenRepo)(s),
	}
}

// PutAlbum はアルバムを保存する。
func (s *Store) PutAlbum(a model.Album) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.albums[a.AlbumID] = a
}

// PutPhoto は写真を保存する。インデックスにも即時反映される。
func (s *Store) PutPhoto(p model.Photo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[p.PhotoID] = p
}

// PutAccount はアカウントを保存する。
func (s *Store) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.UserID] = a
}

// PutToken はワンタイムトークンを保存する。
func (s *Store) PutToken(t model.OneTimeToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.Token] = t
}

// HideFromIndex は写真をインデックス経路から見えなくする。スキャン経路からは見える。
func (s *Store) HideFromIndex(photoIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range photoIDs {
		s.hidden[id] = true
	}
}

// SetMaxIndexPage はインデックス経路の1回の応答件数の上限を設定する。0で無制限。
func (s *Store) SetMaxIndexPage(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxIndexPage = n
}

// SetOwnerIndexAvailable はオーナーインデックスの有無を切り替える。
func (s *Store) SetOwnerIndexAvailable(available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerIndexMissing = !available
}

// FailOn は指定操作が以後errを返すようにする。errがnilなら解除する。
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls は指定操作の呼び出し回数を返す。
func (s *Store) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// PhotoCount は保存されている写真行の数を返す。
func (s *Store) PhotoCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

// HasAlbum はアルバム行が存在するかを返す。
func (s *Store) HasAlbum(albumID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.albums[albumID]
	return ok
}

// HasAccount はアカウント行が存在するかを返す。
func (s *Store) HasAccount(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[userID]
	return ok
}

// TokenCount は保存されているトークン行の数を返す。
func (s *Store) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// enter は呼び出しを記録し、キャンセルと注入された障害を確認する。
// 呼び出し側がロックを保持している前提。
func (s *Store) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := s.failures[op]; ok {
		return model.NewStoreUnavailableError(op, err)
	}
	return nil
}

type photoRepo Store

func (r *photoRepo) QueryByAlbum(ctx context.Context, q repository.IndexQuery) (*repository.IndexPage, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpQueryByAlbum); err != nil {
		return nil, err
	}

	var visible []model.Photo
	for _, p := range s.photos {
		if p.AlbumID != q.AlbumID || s.hidden[p.PhotoID] {
			continue
		}
		if q.After != nil && !p.SortsAfter(q.After.UploadedAt, q.After.PhotoID) {
			continue
		}
		visible = append(visible, p)
	}
	slices.SortFunc(visible, model.PhotoNewerFirst)

	n := q.Limit
	if s.maxIndexPage > 0 && s.maxIndexPage < n {
		n = s.maxIndexPage
	}
	if n < 0 {
		n = 0
	}
	hasMore := len(visible) > n
	if hasMore {
		visible = visible[:n]
	}
	return &repository.IndexPage{Photos: visible, HasMore: hasMore}, nil
}

func (r *photoRepo) ScanByAlbum(ctx context.Context, albumID string) ([]model.Photo, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpScanByAlbum); err != nil {
		return nil, err
	}

	var photos []model.Photo
	for _, p := range s.photos {
		if p.AlbumID == albumID {
			photos = append(photos, p)
		}
	}
	return photos, nil
}

func (r *photoRepo) DeleteByID(ctx context.Context, photoID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDeletePhoto); err != nil {
		return err
	}
	delete(s.photos, photoID)
	delete(s.hidden, photoID)
	return nil
}

type albumRepo Store

func (r *albumRepo) FindByID(ctx context.Context, albumID string) (*model.Album, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpFindAlbum); err != nil {
		return nil, err
	}

	a, ok := s.albums[albumID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *albumRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Album, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListByOwner); err != nil {
		return nil, err
	}
	if s.ownerIndexMissing {
		return nil, repository.ErrIndexUnavailable
	}
	return s.albumsWhere(func(a model.Album) bool { return a.Owner == ownerID }), nil
}

func (r *albumRepo) ScanAll(ctx context.Context) ([]model.Album, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpScanAlbums); err != nil {
		return nil, err
	}
	return s.albumsWhere(func(model.Album) bool { return true }), nil
}

func (r *albumRepo) DeleteByID(ctx context.Context, albumID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDeleteAlbum); err != nil {
		return err
	}
	delete(s.albums, albumID)
	return nil
}

func (s *Store) albumsWhere(keep func(model.Album) bool) []model.Album {
	var albums []model.Album
	for _, a := range s.albums {
		if keep(a) {
			albums = append(albums, a)
		}
	}
	slices.SortFunc(albums, func(a, b model.Album) int {
		switch {
		case a.CreatedAt != b.CreatedAt:
			if a.CreatedAt > b.CreatedAt {
				return -1
			}
			return 1
		case a.AlbumID > b.AlbumID:
			return -1
		case a.AlbumID < b.AlbumID:
			return 1
		}
		return 0
	})
	return albums
}

type accountRepo Store

func (r *accountRepo) FindByID(ctx context.Context, userID string) (*model.Account, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpFindAccount); err != nil {
		return nil, err
	}

	a, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *accountRepo) DeleteByID(ctx context.Context, userID string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDeleteAccount); err != nil {
		return err
	}
	delete(s.accounts, userID)
	return nil
}

type tokenRepo Store

func (r *tokenRepo) ListByUserID(ctx context.Context, userID string) ([]model.OneTimeToken, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListTokens); err != nil {
		return nil, err
	}

	var tokens []model.OneTimeToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func (r *tokenRepo) DeleteByToken(ctx context.Context, token string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDeleteToken); err != nil {
		return err
	}
	delete(s.tokens, token)
	return nil
}

// compile-time interface check
var (
	_ repository.PhotoRepository   = (*photoRepo)(nil)
	_ repository.AlbumRepository   = (*albumRepo)(nil)
	_ repository.AccountRepository = (*accountRepo)(nil)
	_ repository.TokenRepository   = (*tokenRepo)(nil)
)
