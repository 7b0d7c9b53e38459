package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/photolib/internal/model"
)

type accountItem struct {
	UserID    string `dynamodbav:"user_id"`
	Email     string `dynamodbav:"email"`
	AvatarKey string `dynamodbav:"avatar_key,omitempty"`
}

type tokenItem struct {
	Token     string `dynamodbav:"token"`
	Kind      string `dynamodbav:"type"`
	UserID    string `dynamodbav:"user_id"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoAccountRepo はDynamoDBを使用したアカウントリポジトリ。
type DynamoAccountRepo struct {
	client DynamoAPI
	tables DynamoTables
}

// NewDynamoAccountRepo はDynamoAccountRepoを生成する。
func NewDynamoAccountRepo(client DynamoAPI, tables DynamoTables) *DynamoAccountRepo {
	return &DynamoAccountRepo{client: client, tables: tables}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *DynamoAccountRepo) FindByID(ctx context.Context, userID string) (*model.Account, error) {
	item, err := getByKey(ctx, r.client, r.tables.Users, "user_id", userID)
	if err != nil {
		return nil, model.NewStoreUnavailableError("アカウントの取得", err)
	}
	if item == nil {
		return nil, nil
	}

	var it accountItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, model.NewStoreUnavailableError("アカウントの取得",
			fmt.Errorf("アカウントアイテムのデコードに失敗しました: %w", err))
	}
	return &model.Account{UserID: it.UserID, Email: it.Email, AvatarKey: it.AvatarKey}, nil
}

// DeleteByID は指定IDのアカウントアイテムを削除する。
func (r *DynamoAccountRepo) DeleteByID(ctx context.Context, userID string) error {
	return deleteByKey(ctx, r.client, r.tables.Users, "user_id", userID, "アカウント行の削除")
}

// DynamoTokenRepo はDynamoDBを使用したワンタイムトークンリポジトリ。
// Tokensテーブルはuser_idのインデックスを持たないためスキャンで絞り込む。
type DynamoTokenRepo struct {
	client DynamoAPI
	tables DynamoTables
}

// NewDynamoTokenRepo はDynamoTokenRepoを生成する。
func NewDynamoTokenRepo(client DynamoAPI, tables DynamoTables) *DynamoTokenRepo {
	return &DynamoTokenRepo{client: client, tables: tables}
}

// ListByUserID は指定ユーザーを参照する全トークンを返す。
func (r *DynamoTokenRepo) ListByUserID(ctx context.Context, userID string) ([]model.OneTimeToken, error) {
	var tokens []model.OneTimeToken
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tables.Tokens),
			FilterExpression: aws.String("user_id = :u"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":u": &types.AttributeValueMemberS{Value: userID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, model.NewStoreUnavailableError("トークン一覧の取得", err)
		}

		var items []tokenItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, model.NewStoreUnavailableError("トークン一覧の取得",
				fmt.Errorf("トークンアイテムのデコードに失敗しました: %w", err))
		}
		for _, it := range items {
			tokens = append(tokens, model.OneTimeToken{
				Token: it.Token, Kind: it.Kind, UserID: it.UserID, ExpiresAt: it.ExpiresAt,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			return tokens, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// DeleteByToken はトークンアイテムを削除する。
func (r *DynamoTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	return deleteByKey(ctx, r.client, r.tables.Tokens, "token", token, "トークン行の削除")
}

// compile-time interface check
var _ AccountRepository = (*DynamoAccountRepo)(nil)
var _ TokenRepository = (*DynamoTokenRepo)(nil)
