package blob

import (
	"path"
	"strings"
)

// AvatarsPrefix はアバター画像のプレフィックス。アルバムIDとしては扱わない。
const AvatarsPrefix = "avatars"

// thumbSuffix はサムネイルキーの末尾。
const thumbSuffix = "thumb"

// PhotoKey は写真本体のキー "{album_id}/{photo_id}" を返す。
func PhotoKey(albumID, photoID string) string {
	return path.Join(albumID, photoID)
}

// ThumbKey はサムネイルのキー "{album_id}/{photo_id}/thumb" を返す。
func ThumbKey(albumID, photoID string) string {
	return path.Join(albumID, photoID, thumbSuffix)
}

// AvatarKey はユーザーのアバター画像のキーを返す。
func AvatarKey(userID string) string {
	return path.Join(AvatarsPrefix, userID)
}

// AlbumPrefix はアルバム配下の全オブジェクトのプレフィックス "{album_id}/" を返す。
func AlbumPrefix(albumID string) string {
	return strings.Trim(albumID, "/") + "/"
}

// AlbumIDFromPrefix はトップレベルプレフィックスからアルバムIDを取り出す。
// 予約プレフィックスや空文字の場合はokがfalseになる。
func AlbumIDFromPrefix(prefix string) (albumID string, ok bool) {
	id := strings.Trim(prefix, "/")
	if id == "" || strings.Contains(id, "/") || IsReservedPrefix(id) {
		return "", false
	}
	return id, true
}

// IsReservedPrefix はアルバム以外の用途に予約されたプレフィックスかを返す。
func IsReservedPrefix(prefix string) bool {
	return strings.Trim(prefix, "/") == AvatarsPrefix
}
