package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultGCSDeleteConcurrency はGCSの削除を並行実行する既定の上限。
const DefaultGCSDeleteConcurrency = 16

// GCSOptions はGoogle Cloud Storageの接続設定。
type GCSOptions struct {
	Bucket string
	// CredentialsFile が空の場合はApplication Default Credentialsを使う。
	CredentialsFile string
	// SignerEmail と SignerPrivateKey を指定すると、その鍵で署名付きURLを発行する。
	// 未指定の場合はクライアントの認証情報から署名者を解決する。
	SignerEmail       string
	SignerPrivateKey  string
	DeleteConcurrency int
}

// GCSStore はGoogle Cloud Storageのblobストア。
// GCSには複数オブジェクトの一括削除がないため、DeleteBatchは個別削除を並行実行する。
type GCSStore struct {
	client      *storage.Client
	bucket      string
	signerEmail string
	signerKey   []byte
	concurrency int
}

// OpenGCS はGCSStoreを生成する。
func OpenGCS(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("GCSクライアントの生成に失敗しました: %w", err)
	}

	concurrency := opts.DeleteConcurrency
	if concurrency <= 0 {
		concurrency = DefaultGCSDeleteConcurrency
	}

	s := &GCSStore{
		client:      client,
		bucket:      opts.Bucket,
		signerEmail: opts.SignerEmail,
		concurrency: concurrency,
	}
	if opts.SignerPrivateKey != "" {
		// 環境変数経由で渡された鍵はリテラルの\nを含む
		s.signerKey = []byte(strings.ReplaceAll(opts.SignerPrivateKey, `\n`, "\n"))
	}
	return s, nil
}

// Close はGCSクライアントを閉じる。
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// Put はオブジェクトを保存する。
func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("GCSへのアップロードに失敗しました (%s): %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCSへのアップロードに失敗しました (%s): %w", key, err)
	}
	return nil
}

// SignedURL はV4署名付きURLを発行する。
func (s *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, s.signedURLOptions(ttl))
	if err != nil {
		return "", fmt.Errorf("署名付きURLの発行に失敗しました (%s): %w", key, err)
	}
	return url, nil
}

func (s *GCSStore) signedURLOptions(ttl time.Duration) *storage.SignedURLOptions {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	if s.signerEmail != "" && len(s.signerKey) > 0 {
		opts.GoogleAccessID = s.signerEmail
		opts.PrivateKey = s.signerKey
	}
	return opts
}

// DeleteBatch はキーを並行に個別削除する。存在しないオブジェクトは成功扱い。
// 呼び出し側のコンテキストがキャンセルされた場合のみerrorを返す。
func (s *GCSStore) DeleteBatch(ctx context.Context, keys []string) (BatchResult, error) {
	if len(keys) > MaxBatch {
		return BatchResult{}, ErrBatchTooLarge
	}

	bucket := s.client.Bucket(s.bucket)
	var mu sync.Mutex
	var failed []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			err := bucket.Object(key).Delete(gctx)
			if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			mu.Lock()
			failed = append(failed, key)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}
	return Partial(len(keys)-len(failed), failed), nil
}

// ListPrefixes は区切り文字"/"でトップレベルのプレフィックスを列挙する。
func (s *GCSStore) ListPrefixes(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Delimiter: "/"})
	var prefixes []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return prefixes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("GCSのプレフィックス一覧の取得に失敗しました: %w", err)
		}
		if attrs.Prefix != "" {
			prefixes = append(prefixes, attrs.Prefix)
		}
	}
}

// ListKeys はprefix配下の全キーを列挙する。
func (s *GCSStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	query := &storage.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, fmt.Errorf("GCSクエリの構築に失敗しました: %w", err)
	}

	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("GCSのオブジェクト一覧の取得に失敗しました (%s): %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
}

// compile-time interface check
var _ Store = (*GCSStore)(nil)
