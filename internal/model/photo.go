package model

// Album はアカウントが所有するアルバムを表す。
// Owner と CreatedAt は作成後に変更されない。
type Album struct {
	AlbumID   string
	Owner     string
	Title     string
	CreatedAt int64 // epoch秒
}

// OwnedBy はアルバムが指定ユーザーの所有であるかを返す。
func (a *Album) OwnedBy(userID string) bool {
	return a != nil && userID != "" && a.Owner == userID
}

// Photo は写真のメタデータ行を表す。
// 行はアップロード側が1回のputで作成し、削除はカスケード削除のみが行う。
type Photo struct {
	PhotoID  string
	AlbumID  string
	BlobKey  string // 本体のblobキー
	ThumbKey string // サムネイルのblobキー（任意）

	// UploadedAt は一覧のソートキー。同一アルバム内で一意とは限らない。
	UploadedAt int64

	Uploader string
	Width    int
	Height   int
	TakenAt  string // EXIF由来のRFC3339文字列（任意）
	Size     int64  // バイト数
}

// BlobKeys は写真が参照する全blobキーを返す。空のキーは含めない。
func (p *Photo) BlobKeys() []string {
	keys := make([]string, 0, 2)
	if p.BlobKey != "" {
		keys = append(keys, p.BlobKey)
	}
	if p.ThumbKey != "" {
		keys = append(keys, p.ThumbKey)
	}
	return keys
}

// PhotoNewerFirst は一覧順序の比較関数。
// uploaded_at降順、同値の場合はphoto_id降順で並べる。
// インデックス経路とフォールバック経路の両方で同じ規則を使う。
func PhotoNewerFirst(a, b Photo) int {
	switch {
	case a.UploadedAt > b.UploadedAt:
		return -1
	case a.UploadedAt < b.UploadedAt:
		return 1
	case a.PhotoID > b.PhotoID:
		return -1
	case a.PhotoID < b.PhotoID:
		return 1
	default:
		return 0
	}
}

// SortsAfter は写真が位置 (uploadedAt, photoID) より後ろ（古い側）に並ぶかを返す。
func (p *Photo) SortsAfter(uploadedAt int64, photoID string) bool {
	if p.UploadedAt != uploadedAt {
		return p.UploadedAt < uploadedAt
	}
	return p.PhotoID < photoID
}
