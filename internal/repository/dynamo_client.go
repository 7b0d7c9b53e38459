package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/hitoshi/photolib/internal/model"
)

// DynamoAPI はリポジトリが使用するDynamoDBクライアントの操作。
// *dynamodb.Client が満たす。テストではモックに差し替える。
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoTables はDynamoDBのテーブル名とインデックス名。
type DynamoTables struct {
	Photos     string // PK: photo_id
	Albums     string // PK: album_id
	Users      string // PK: user_id
	Tokens     string // PK: token
	AlbumIndex string // Photos上のGSI。PK: album_id, SK: uploaded_at
	OwnerIndex string // Albums上のGSI。PK: owner。空の場合は未作成として扱う
}

// DefaultDynamoTables は既存デプロイのテーブル名。
func DefaultDynamoTables() DynamoTables {
	return DynamoTables{
		Photos:     "PhotoMeta",
		Albums:     "Albums",
		Users:      "Users",
		Tokens:     "Tokens",
		AlbumIndex: "album_id-index",
		OwnerIndex: "owner-index",
	}
}

// NewDynamoStore はDynamoDBバックエンドの全リポジトリを生成する。
func NewDynamoStore(client DynamoAPI, tables DynamoTables) *Store {
	return &Store{
		Photos:   NewDynamoPhotoRepo(client, tables),
		Albums:   NewDynamoAlbumRepo(client, tables),
		Accounts: NewDynamoAccountRepo(client, tables),
		Tokens:   NewDynamoTokenRepo(client, tables),
	}
}

// DynamoOptions はDynamoDBクライアントの接続設定。
type DynamoOptions struct {
	Region string
	// Endpoint はDynamoDB Localなどを使う場合に指定する。
	Endpoint  string
	AccessKey string
	SecretKey string
}

// OpenDynamo はAWSの標準設定チェーンからDynamoDBクライアントを生成する。
func OpenDynamo(ctx context.Context, opts DynamoOptions) (*dynamodb.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗しました: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// PingDynamo はUsersテーブルへの軽量な読み取りで疎通を確認する。
func PingDynamo(ctx context.Context, client DynamoAPI, tables DynamoTables) error {
	if _, err := getByKey(ctx, client, tables.Users, "user_id", "__healthcheck__"); err != nil {
		return model.NewStoreUnavailableError("health", err)
	}
	return nil
}

// isIndexMissing はGSIが存在しない（または作成中）ことを示すエラーかを判定する。
func isIndexMissing(err error) bool {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ValidationException"
	}
	return false
}

// deleteByKey は単一キーのアイテムを削除する。DeleteItemは対象がなくても成功する。
func deleteByKey(ctx context.Context, client DynamoAPI, table, attr, value, op string) error {
	_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			attr: &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return model.NewStoreUnavailableError(op, err)
	}
	return nil
}

// getByKey は単一キーのアイテムを取得する。見つからない場合はnilを返す。
func getByKey(ctx context.Context, client DynamoAPI, table, attr, value string) (map[string]types.AttributeValue, error) {
	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			attr: &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}
