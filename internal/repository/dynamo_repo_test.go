package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hitoshi/photolib/internal/model"
)

// mockDynamo はDynamoAPIのモック実装。
type mockDynamo struct {
	getItemFn    func(ctx context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	queryFn      func(ctx context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	scanFn       func(ctx context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	deleteItemFn func(ctx context.Context, in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error)
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, in)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, in)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, in)
	}
	return &dynamodb.ScanOutput{}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, in)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func photoAV(id, album string, uploadedAt int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"photo_id":    &types.AttributeValueMemberS{Value: id},
		"album_id":    &types.AttributeValueMemberS{Value: album},
		"s3_key":      &types.AttributeValueMemberS{Value: album + "/" + id},
		"width":       &types.AttributeValueMemberN{Value: "0"},
		"height":      &types.AttributeValueMemberN{Value: "0"},
		"uploaded_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(uploadedAt, 10)},
	}
}

func TestDynamoPhotoRepo_ImplementsInterface(t *testing.T) {
	var _ PhotoRepository = (*DynamoPhotoRepo)(nil)
	var _ AlbumRepository = (*DynamoAlbumRepo)(nil)
	var _ AccountRepository = (*DynamoAccountRepo)(nil)
	var _ TokenRepository = (*DynamoTokenRepo)(nil)
}

// 同一uploaded_atの行はGSI上で順不同でも、photo_id降順に並べ替えられること
func TestDynamoPhotoRepo_QueryByAlbum_AppliesTieBreak(t *testing.T) {
	client := &mockDynamo{
		queryFn: func(_ context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			if in.ScanIndexForward == nil || *in.ScanIndexForward {
				t.Error("expected descending index query")
			}
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				photoAV("a", "album-1", 100),
				photoAV("b", "album-1", 100),
			}}, nil
		},
	}
	repo := NewDynamoPhotoRepo(client, DefaultDynamoTables())

	page, err := repo.QueryByAlbum(context.Background(), IndexQuery{AlbumID: "album-1", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Photos) != 2 || page.Photos[0].PhotoID != "b" || page.Photos[1].PhotoID != "a" {
		t.Fatalf("expected order [b a], got %+v", page.Photos)
	}
	if page.HasMore {
		t.Error("expected HasMore=false when the index is exhausted")
	}
	if page.Photos[0].BlobKey != "album-1/b" {
		t.Errorf("BlobKey = %q, want album-1/b", page.Photos[0].BlobKey)
	}
}

// カーソル位置のタイムスタンプは包含的に読み、カーソル以前の行はプロセス内で除外すること
func TestDynamoPhotoRepo_QueryByAlbum_InclusiveBoundary(t *testing.T) {
	client := &mockDynamo{
		queryFn: func(_ context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			if got := *in.KeyConditionExpression; got != "album_id = :a AND uploaded_at <= :t" {
				t.Errorf("KeyConditionExpression = %q", got)
			}
			return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
				photoAV("c", "album-1", 100),
				photoAV("b", "album-1", 100),
				photoAV("a", "album-1", 100),
				photoAV("z", "album-1", 90),
			}}, nil
		},
	}
	repo := NewDynamoPhotoRepo(client, DefaultDynamoTables())

	page, err := repo.QueryByAlbum(context.Background(), IndexQuery{
		AlbumID: "album-1",
		After:   &PhotoPosition{UploadedAt: 100, PhotoID: "b"},
		Limit:   10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Photos) != 2 || page.Photos[0].PhotoID != "a" || page.Photos[1].PhotoID != "z" {
		t.Fatalf("expected [a z], got %+v", page.Photos)
	}
}

// 境界のタイムスタンプを読み切るまで次のページを取得し、limitを超えた分でHasMoreを立てること
func TestDynamoPhotoRepo_QueryByAlbum_FollowsPagesAcrossTies(t *testing.T) {
	pages := [][]map[string]types.AttributeValue{
		{photoAV("a", "album-1", 100), photoAV("b", "album-1", 100)},
		{photoAV("c", "album-1", 100), photoAV("d", "album-1", 50)},
	}
	calls := 0
	client := &mockDynamo{
		queryFn: func(_ context.Context, in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			out := &dynamodb.QueryOutput{Items: pages[calls]}
			if calls == 0 {
				out.LastEvaluatedKey = map[string]types.AttributeValue{
					"photo_id": &types.AttributeValueMemberS{Value: "b"},
				}
			} else if in.ExclusiveStartKey == nil {
				t.Error("expected ExclusiveStartKey on the second page")
			}
			calls++
			return out, nil
		},
	}
	repo := NewDynamoPhotoRepo(client, DefaultDynamoTables())

	page, err := repo.QueryByAlbum(context.Background(), IndexQuery{AlbumID: "album-1", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 queries, got %d", calls)
	}
	if len(page.Photos) != 2 || page.Photos[0].PhotoID != "c" || page.Photos[1].PhotoID != "b" {
		t.Fatalf("expected [c b], got %+v", page.Photos)
	}
	if !page.HasMore {
		t.Error("expected HasMore=true")
	}
}

func TestDynamoPhotoRepo_QueryByAlbum_WrapsErrors(t *testing.T) {
	client := &mockDynamo{
		queryFn: func(context.Context, *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return nil, errors.New("throttled")
		},
	}
	repo := NewDynamoPhotoRepo(client, DefaultDynamoTables())

	_, err := repo.QueryByAlbum(context.Background(), IndexQuery{AlbumID: "album-1", Limit: 2})
	if !model.IsCode(err, model.ErrCodeStoreUnavailable) {
		t.Fatalf("expected STORE_UNAVAILABLE, got %v", err)
	}
}

func TestDynamoPhotoRepo_ScanByAlbum_FollowsPagination(t *testing.T) {
	calls := 0
	client := &mockDynamo{
		scanFn: func(_ context.Context, in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			calls++
			if calls == 1 {
				return &dynamodb.ScanOutput{
					Items: []map[string]types.AttributeValue{photoAV("p1", "album-1", 1)},
					LastEvaluatedKey: map[string]types.AttributeValue{
						"photo_id": &types.AttributeValueMemberS{Value: "p1"},
					},
				}, nil
			}
			return &dynamodb.ScanOutput{
				Items: []map[string]types.AttributeValue{photoAV("p2", "album-1", 2)},
			}, nil
		},
	}
	repo := NewDynamoPhotoRepo(client, DefaultDynamoTables())

	photos, err := repo.ScanByAlbum(context.Background(), "album-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("expected 2 photos, got %d", len(photos))
	}
}

func TestDynamoAlbumRepo_FindByID_NotFound(t *testing.T) {
	repo := NewDynamoAlbumRepo(&mockDynamo{}, DefaultDynamoTables())

	album, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if album != nil {
		t.Fatalf("expected nil album, got %+v", album)
	}
}

func TestDynamoAlbumRepo_ListByOwner_MissingIndex(t *testing.T) {
	t.Run("インデックス名が未設定", func(t *testing.T) {
		tables := DefaultDynamoTables()
		tables.OwnerIndex = ""
		repo := NewDynamoAlbumRepo(&mockDynamo{}, tables)

		_, err := repo.ListByOwner(context.Background(), "u1")
		if !errors.Is(err, ErrIndexUnavailable) {
			t.Fatalf("expected ErrIndexUnavailable, got %v", err)
		}
	})

	t.Run("GSIが存在しない", func(t *testing.T) {
		client := &mockDynamo{
			queryFn: func(context.Context, *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
				return nil, fmt.Errorf("operation error: %w", &types.ResourceNotFoundException{})
			},
		}
		repo := NewDynamoAlbumRepo(client, DefaultDynamoTables())

		_, err := repo.ListByOwner(context.Background(), "u1")
		if !errors.Is(err, ErrIndexUnavailable) {
			t.Fatalf("expected ErrIndexUnavailable, got %v", err)
		}
	})
}

func TestDynamoTokenRepo_DeleteByToken_UsesTokenKey(t *testing.T) {
	var deleted string
	client := &mockDynamo{
		deleteItemFn: func(_ context.Context, in *dynamodb.DeleteItemInput) (*dynamodb.DeleteItemOutput, error) {
			if *in.TableName != "Tokens" {
				t.Errorf("TableName = %q, want Tokens", *in.TableName)
			}
			deleted = in.Key["token"].(*types.AttributeValueMemberS).Value
			return &dynamodb.DeleteItemOutput{}, nil
		},
	}
	repo := NewDynamoTokenRepo(client, DefaultDynamoTables())

	if err := repo.DeleteByToken(context.Background(), "tok-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "tok-1" {
		t.Errorf("deleted token = %q, want tok-1", deleted)
	}
}

func TestPingDynamo(t *testing.T) {
	var gotTable string
	client := &mockDynamo{
		getItemFn: func(_ context.Context, in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			gotTable = *in.TableName
			return &dynamodb.GetItemOutput{}, nil
		},
	}
	if err := PingDynamo(context.Background(), client, DefaultDynamoTables()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTable != "Users" {
		t.Errorf("table = %q, want Users", gotTable)
	}

	client.getItemFn = func(_ context.Context, _ *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return nil, errors.New("no route to host")
	}
	err := PingDynamo(context.Background(), client, DefaultDynamoTables())
	if !model.IsCode(err, model.ErrCodeStoreUnavailable) {
		t.Errorf("err = %v, want STORE_UNAVAILABLE", err)
	}
}
