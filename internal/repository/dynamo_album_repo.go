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

type albumItem struct {
	AlbumID   string `dynamodbav:"album_id"`
	Owner     string `dynamodbav:"owner"`
	Title     string `dynamodbav:"title"`
	CreatedAt int64  `dynamodbav:"created_at"`
}

func (it albumItem) toModel() model.Album {
	return model.Album{AlbumID: it.AlbumID, Owner: it.Owner, Title: it.Title, CreatedAt: it.CreatedAt}
}

// DynamoAlbumRepo はDynamoDBを使用したアルバムリポジトリ。
type DynamoAlbumRepo struct {
	client DynamoAPI
	tables DynamoTables
}

// NewDynamoAlbumRepo はDynamoAlbumRepoを生成する。
func NewDynamoAlbumRepo(client DynamoAPI, tables DynamoTables) *DynamoAlbumRepo {
	return &DynamoAlbumRepo{client: client, tables: tables}
}

// FindByID は指定IDのアルバムを取得する。見つからない場合はnilを返す。
func (r *DynamoAlbumRepo) FindByID(ctx context.Context, albumID string) (*model.Album, error) {
	item, err := getByKey(ctx, r.client, r.tables.Albums, "album_id", albumID)
	if err != nil {
		return nil, model.NewStoreUnavailableError("アルバムの取得", err)
	}
	if item == nil {
		return nil, nil
	}

	var it albumItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, model.NewStoreUnavailableError("アルバムの取得",
			fmt.Errorf("アルバムアイテムのデコードに失敗しました: %w", err))
	}
	album := it.toModel()
	return &album, nil
}

// ListByOwner はowner-indexでアルバム一覧を返す。
// インデックスが未設定または存在しない場合はErrIndexUnavailableを返す。
func (r *DynamoAlbumRepo) ListByOwner(ctx context.Context, ownerID string) ([]model.Album, error) {
	if r.tables.OwnerIndex == "" {
		return nil, ErrIndexUnavailable
	}

	var albums []model.Album
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tables.Albums),
			IndexName:              aws.String(r.tables.OwnerIndex),
			KeyConditionExpression: aws.String("#o = :o"),
			// ownerはDynamoDBの予約語
			ExpressionAttributeNames: map[string]string{"#o": "owner"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":o": &types.AttributeValueMemberS{Value: ownerID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			if isIndexMissing(err) {
				return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
			}
			return nil, model.NewStoreUnavailableError("オーナー別アルバム一覧の取得", err)
		}

		page, err := decodeAlbums(out.Items)
		if err != nil {
			return nil, model.NewStoreUnavailableError("オーナー別アルバム一覧の取得", err)
		}
		albums = append(albums, page...)

		if len(out.LastEvaluatedKey) == 0 {
			return albums, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// ScanAll はAlbumsテーブル全体をスキャンする。
func (r *DynamoAlbumRepo) ScanAll(ctx context.Context) ([]model.Album, error) {
	var albums []model.Album
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tables.Albums),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, model.NewStoreUnavailableError("アルバムのスキャン", err)
		}

		page, err := decodeAlbums(out.Items)
		if err != nil {
			return nil, model.NewStoreUnavailableError("アルバムのスキャン", err)
		}
		albums = append(albums, page...)

		if len(out.LastEvaluatedKey) == 0 {
			return albums, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// DeleteByID は指定IDのアルバムアイテムを削除する。
func (r *DynamoAlbumRepo) DeleteByID(ctx context.Context, albumID string) error {
	return deleteByKey(ctx, r.client, r.tables.Albums, "album_id", albumID, "アルバム行の削除")
}

func decodeAlbums(raw []map[string]types.AttributeValue) ([]model.Album, error) {
	var items []albumItem
	if err := attributevalue.UnmarshalListOfMaps(raw, &items); err != nil {
		return nil, fmt.Errorf("アルバムアイテムのデコードに失敗しました: %w", err)
	}
	albums := make([]model.Album, 0, len(items))
	for _, it := range items {
		albums = append(albums, it.toModel())
	}
	return albums, nil
}

// compile-time interface check
var _ AlbumRepository = (*DynamoAlbumRepo)(nil)
