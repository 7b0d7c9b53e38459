package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryStore はプロセス内のblobストア。BLOB_BACKEND=memory とテストで使用する。
type MemoryStore struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	failKeys   map[string]bool
	signErr    error
	batchSizes []int
	now        func() time.Time
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		failKeys: make(map[string]bool),
		now:      time.Now,
	}
}

// Put はオブジェクトを保存する。
func (m *MemoryStore) Put(ctx context.Context, key string, body io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("オブジェクトの読み込みに失敗しました (%s): %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

// SignedURL は期限をクエリに含む擬似的なURLを返す。
func (m *MemoryStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.signErr != nil {
		return "", m.signErr
	}
	expires := m.now().Add(ttl).Unix()
	return fmt.Sprintf("memory://blob/%s?expires=%d", url.PathEscape(key), expires), nil
}

// DeleteBatch はキーを削除する。FailKeysで指定したキーは失敗として返す。
func (m *MemoryStore) DeleteBatch(ctx context.Context, keys []string) (BatchResult, error) {
	if len(keys) > MaxBatch {
		return BatchResult{}, ErrBatchTooLarge
	}
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, len(keys))

	var failed []string
	for _, k := range keys {
		if m.failKeys[k] {
			failed = append(failed, k)
			continue
		}
		delete(m.objects, k)
	}
	return Partial(len(keys)-len(failed), failed), nil
}

// ListPrefixes はトップレベルのプレフィックスを昇順で返す。
func (m *MemoryStore) ListPrefixes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	for k := range m.objects {
		if i := strings.Index(k, "/"); i > 0 {
			seen[k[:i+1]] = true
		}
	}
	prefixes := make([]string, 0, len(seen))
	for p := range seen {
		prefixes = append(prefixes, p)
	}
	slices.Sort(prefixes)
	return prefixes, nil
}

// ListKeys はprefix配下のキーを昇順で返す。
func (m *MemoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// FailKeys は指定キーの削除が以後失敗するようにする。
func (m *MemoryStore) FailKeys(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.failKeys[k] = true
	}
}

// FailSigning は以後のSignedURLがerrを返すようにする。nilで解除する。
func (m *MemoryStore) FailSigning(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signErr = err
}

// Has はオブジェクトが存在するかを返す。
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

// Len は保存されているオブジェクト数を返す。
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// BatchSizes はこれまでのDeleteBatch呼び出しごとのキー数を返す。
func (m *MemoryStore) BatchSizes() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.batchSizes)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
