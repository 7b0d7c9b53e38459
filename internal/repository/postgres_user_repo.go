package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/photolib/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, userID string) (*model.Account, error) {
	account := &model.Account{}
	var avatarKey sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, email, avatar_key FROM accounts WHERE user_id = $1`,
		userID,
	).Scan(&account.UserID, &account.Email, &avatarKey)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStoreUnavailableError("アカウントの取得", err)
	}
	account.AvatarKey = nullStringValue(avatarKey)
	return account, nil
}

// DeleteByID は指定IDのアカウント行を削除する。
// 再実行時に対象がなくてもエラーにしない。
func (r *PostgresAccountRepo) DeleteByID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID); err != nil {
		return model.NewStoreUnavailableError("アカウント行の削除", err)
	}
	return nil
}

// PostgresTokenRepo はPostgreSQLを使用したワンタイムトークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// ListByUserID は指定ユーザーを参照する全トークンを返す。
func (r *PostgresTokenRepo) ListByUserID(ctx context.Context, userID string) ([]model.OneTimeToken, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token, kind, user_id, expires_at FROM one_time_tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, model.NewStoreUnavailableError("トークン一覧の取得", err)
	}
	defer rows.Close()

	var tokens []model.OneTimeToken
	for rows.Next() {
		var t model.OneTimeToken
		if err := rows.Scan(&t.Token, &t.Kind, &t.UserID, &t.ExpiresAt); err != nil {
			return nil, model.NewStoreUnavailableError("トークン一覧の取得",
				fmt.Errorf("トークン行の読み取りに失敗しました: %w", err))
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStoreUnavailableError("トークン一覧の取得", err)
	}
	return tokens, nil
}

// DeleteByToken はトークン行を削除する。対象がなくてもエラーにしない。
func (r *PostgresTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM one_time_tokens WHERE token = $1`, token); err != nil {
		return model.NewStoreUnavailableError("トークン行の削除", err)
	}
	return nil
}

// NewPostgresStore はPostgreSQLバックエンドの全リポジトリを生成する。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Photos:   NewPostgresPhotoRepo(db),
		Albums:   NewPostgresAlbumRepo(db),
		Accounts: NewPostgresAccountRepo(db),
		Tokens:   NewPostgresTokenRepo(db),
	}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
var _ TokenRepository = (*PostgresTokenRepo)(nil)
