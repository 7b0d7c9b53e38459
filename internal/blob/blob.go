// Package blob はバイナリオブジェクト（写真本体・サムネイル・アバター）の
// 保存先を抽象化する。S3、GCS、メモリの実装を持つ。
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// MaxBatch はDeleteBatchの1回あたりの最大キー数（S3 DeleteObjectsの上限）。
const MaxBatch = 1000

// ErrBatchTooLarge はDeleteBatchにMaxBatchを超えるキーが渡された場合に返される。
var ErrBatchTooLarge = errors.New("blob: delete batch exceeds MaxBatch keys")

// BatchStatus はバッチ削除の結果の種類。
type BatchStatus int

const (
	// BatchOK はバッチ内の全キーが削除された（または元から存在しなかった）ことを表す。
	BatchOK BatchStatus = iota
	// BatchPartialFailure は一部のキーの削除に失敗したことを表す。
	BatchPartialFailure
)

func (s BatchStatus) String() string {
	switch s {
	case BatchOK:
		return "ok"
	case BatchPartialFailure:
		return "partial_failure"
	default:
		return "unknown"
	}
}

// BatchResult はDeleteBatchの結果。バッチは原子的ではなく、キー単位で成否が分かれる。
type BatchResult struct {
	Status     BatchStatus
	Deleted    int
	FailedKeys []string
}

// OK は全キー成功の結果を返す。
func OK(deleted int) BatchResult {
	return BatchResult{Status: BatchOK, Deleted: deleted}
}

// Partial は一部失敗の結果を返す。failedが空ならOKになる。
func Partial(deleted int, failed []string) BatchResult {
	if len(failed) == 0 {
		return OK(deleted)
	}
	return BatchResult{Status: BatchPartialFailure, Deleted: deleted, FailedKeys: failed}
}

// Store はblobストアのインターフェース。
type Store interface {
	// Put はオブジェクトを保存する。
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// SignedURL はttlの間だけ有効な読み取り用URLを発行する。
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// DeleteBatch は最大MaxBatch件のキーを削除する。存在しないキーは成功扱い。
	// キー単位の失敗はBatchResultで返し、errorは呼び出し全体の失敗に限る。
	DeleteBatch(ctx context.Context, keys []string) (BatchResult, error)

	// ListPrefixes はトップレベルのプレフィックス（"{album_id}/" など）を返す。
	ListPrefixes(ctx context.Context) ([]string, error)

	// ListKeys はprefix配下の全キーを返す。
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Chunk はキーをsize件ごとのバッチに分割する。sizeはMaxBatchを上限とする。
func Chunk(keys []string, size int) [][]string {
	if size <= 0 || size > MaxBatch {
		size = MaxBatch
	}
	var batches [][]string
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		batches = append(batches, keys[start:end])
	}
	return batches
}
