package model

// Account はユーザーアカウントを表す。
// 削除はカスケード削除でのみ行い、所有アルバムと写真を先に削除する。
type Account struct {
	UserID    string
	Email     string
	AvatarKey string // アバター画像のblobキー（任意）
}

// OneTimeToken はメール確認・パスワードリセット用のワンタイムトークン。
// 発行は認証側の責務で、ここではアカウント削除時の後始末のみ扱う。
type OneTimeToken struct {
	Token     string
	Kind      string // "verify" または "reset"
	UserID    string
	ExpiresAt int64 // epoch秒
}
