package repository

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/photolib/internal/model"
)

// photoItem はPhotoMetaテーブルの1アイテム。
type photoItem struct {
	PhotoID    string `dynamodbav:"photo_id"`
	AlbumID    string `dynamodbav:"album_id"`
	S3Key      string `dynamodbav:"s3_key"`
	ThumbKey   string `dynamodbav:"thumb_key,omitempty"`
	Uploader   string `dynamodbav:"uploader,omitempty"`
	Width      int    `dynamodbav:"width"`
	Height     int    `dynamodbav:"height"`
	TakenAt    string `dynamodbav:"taken_at,omitempty"`
	UploadedAt int64  `dynamodbav:"uploaded_at"`
	Size       int64  `dynamodbav:"size,omitempty"`
}

func (it photoItem) toModel() model.Photo {
	return model.Photo{
		PhotoID:    it.PhotoID,
		AlbumID:    it.AlbumID,
		BlobKey:    it.S3Key,
		ThumbKey:   it.ThumbKey,
		UploadedAt: it.UploadedAt,
		Uploader:   it.Uploader,
		Width:      it.Width,
		Height:     it.Height,
		TakenAt:    it.TakenAt,
		Size:       it.Size,
	}
}

// DynamoPhotoRepo はDynamoDBを使用した写真メタデータリポジトリ。
//
// GSIのソートキーはuploaded_atのみなので、同一uploaded_atの行の順序は
// DynamoDB側では決まらない。境界のタイムスタンプは包含的に読み、
// photo_idによるタイブレークはプロセス内で適用する。
type DynamoPhotoRepo struct {
	client DynamoAPI
	tables DynamoTables
}

// NewDynamoPhotoRepo はDynamoPhotoRepoを生成する。
func NewDynamoPhotoRepo(client DynamoAPI, tables DynamoTables) *DynamoPhotoRepo {
	return &DynamoPhotoRepo{client: client, tables: tables}
}

// QueryByAlbum はalbum_id-indexを降順に問い合わせ、カーソルより後ろの行を最大Limit件返す。
func (r *DynamoPhotoRepo) QueryByAlbum(ctx context.Context, q IndexQuery) (*IndexPage, error) {
	keyCond := "album_id = :a"
	values := map[string]types.AttributeValue{
		":a": &types.AttributeValueMemberS{Value: q.AlbumID},
	}
	if q.After != nil {
		keyCond += " AND uploaded_at <= :t"
		values[":t"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(q.After.UploadedAt, 10)}
	}

	var collected []model.Photo
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tables.Photos),
			IndexName:                 aws.String(r.tables.AlbumIndex),
			KeyConditionExpression:    aws.String(keyCond),
			ExpressionAttributeValues: values,
			ScanIndexForward:          aws.Bool(false),
			Limit:                     aws.Int32(int32(q.Limit + 1)),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, model.NewStoreUnavailableError("写真インデックスの問い合わせ", err)
		}

		var items []photoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, model.NewStoreUnavailableError("写真インデックスの問い合わせ",
				fmt.Errorf("写真アイテムのデコードに失敗しました: %w", err))
		}

		var lastSeen int64
		for _, it := range items {
			p := it.toModel()
			lastSeen = p.UploadedAt
			if q.After != nil && !p.SortsAfter(q.After.UploadedAt, q.After.PhotoID) {
				continue
			}
			collected = append(collected, p)
		}

		startKey = out.LastEvaluatedKey
		if len(startKey) == 0 {
			break
		}
		if boundaryComplete(collected, q.Limit, lastSeen) {
			break
		}
	}

	slices.SortFunc(collected, model.PhotoNewerFirst)
	hasMore := len(collected) > q.Limit
	if hasMore {
		collected = collected[:q.Limit]
	}
	return &IndexPage{Photos: collected, HasMore: hasMore}, nil
}

// boundaryComplete は集めた行がlimit件を超え、かつlimit件目と同じuploaded_atの行を
// すべて受け取り終えたかを返す。GSIは降順なので、より古い行を見た時点で確定する。
func boundaryComplete(collected []model.Photo, limit int, lastSeen int64) bool {
	if limit < 1 || len(collected) <= limit {
		return false
	}
	sorted := slices.Clone(collected)
	slices.SortFunc(sorted, model.PhotoNewerFirst)
	return lastSeen < sorted[limit-1].UploadedAt
}

// ScanByAlbum はPhotoMetaテーブルをスキャンしてアルバムの全写真を返す。
// スキャンはテーブル本体を読むため、GSIの反映遅延の影響を受けない。
func (r *DynamoPhotoRepo) ScanByAlbum(ctx context.Context, albumID string) ([]model.Photo, error) {
	var photos []model.Photo
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tables.Photos),
			FilterExpression: aws.String("album_id = :a"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":a": &types.AttributeValueMemberS{Value: albumID},
			},
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, model.NewStoreUnavailableError("写真のスキャン", err)
		}

		var items []photoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, model.NewStoreUnavailableError("写真のスキャン",
				fmt.Errorf("写真アイテムのデコードに失敗しました: %w", err))
		}
		for _, it := range items {
			photos = append(photos, it.toModel())
		}

		if len(out.LastEvaluatedKey) == 0 {
			return photos, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// DeleteByID は指定IDの写真アイテムを削除する。
func (r *DynamoPhotoRepo) DeleteByID(ctx context.Context, photoID string) error {
	return deleteByKey(ctx, r.client, r.tables.Photos, "photo_id", photoID, "写真行の削除")
}

// compile-time interface check
var _ PhotoRepository = (*DynamoPhotoRepo)(nil)
