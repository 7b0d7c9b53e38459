package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API はS3Storeが使用するS3クライアントの操作。*s3.Client が満たす。
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Presigner は署名付きURLの発行に使う操作。*s3.PresignClient が満たす。
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options はS3クライアントの接続設定。
type S3Options struct {
	Bucket string
	Region string
	// Endpoint はS3互換ストレージ（MinIOなど）を使う場合に指定する。
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Store はAmazon S3（および互換ストレージ）のblobストア。
type S3Store struct {
	client  S3API
	presign S3Presigner
	bucket  string
}

// NewS3Store はクライアントを指定してS3Storeを生成する。
func NewS3Store(client S3API, presign S3Presigner, bucket string) *S3Store {
	return &S3Store{client: client, presign: presign, bucket: bucket}
}

// OpenS3 はAWSの標準設定チェーンからS3Storeを生成する。
// AccessKeyが指定された場合は静的クレデンシャルを使う。
func OpenS3(ctx context.Context, opts S3Options) (*S3Store, error) {
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

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

// Put はオブジェクトを保存する。
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3へのアップロードに失敗しました (%s): %w", key, err)
	}
	return nil
}

// SignedURL はGetObjectの署名付きURLを発行する。
func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("署名付きURLの発行に失敗しました (%s): %w", key, err)
	}
	return req.URL, nil
}

// DeleteBatch はDeleteObjectsで最大MaxBatch件をまとめて削除する。
// 存在しないキーはS3側で成功として扱われる。
func (s *S3Store) DeleteBatch(ctx context.Context, keys []string) (BatchResult, error) {
	if len(keys) > MaxBatch {
		return BatchResult{}, ErrBatchTooLarge
	}
	if len(keys) == 0 {
		return OK(0), nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return BatchResult{}, fmt.Errorf("S3の一括削除に失敗しました: %w", err)
	}

	failed := make([]string, 0, len(out.Errors))
	for _, e := range out.Errors {
		failed = append(failed, aws.ToString(e.Key))
	}
	return Partial(len(keys)-len(failed), failed), nil
}

// ListPrefixes は区切り文字"/"でトップレベルのプレフィックスを列挙する。
func (s *S3Store) ListPrefixes(ctx context.Context) ([]string, error) {
	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3のプレフィックス一覧の取得に失敗しました: %w", err)
		}
		for _, p := range page.CommonPrefixes {
			if p.Prefix != nil {
				prefixes = append(prefixes, *p.Prefix)
			}
		}
	}
	return prefixes, nil
}

// ListKeys はprefix配下の全キーを列挙する。
func (s *S3Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3のオブジェクト一覧の取得に失敗しました (%s): %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}
	return keys, nil
}

// compile-time interface check
var _ Store = (*S3Store)(nil)
