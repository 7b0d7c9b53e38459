// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/photolib/internal/logger"
)

// バックエンドの種類。
const (
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamo"
	BackendMemory   = "memory"
	BackendS3       = "s3"
	BackendGCS      = "gcs"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backends
	StoreBackend string // postgres | dynamo | memory
	BlobBackend  string // s3 | gcs | memory

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// DynamoDB
	DynamoPhotosTable string
	DynamoAlbumsTable string
	DynamoUsersTable  string
	DynamoTokensTable string
	DynamoAlbumIndex  string
	DynamoOwnerIndex  string
	DynamoEndpoint    string

	// AWS
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Blob
	BlobBucket           string
	S3Endpoint           string
	GCSCredentialsFile   string
	GCSSignerEmail       string
	GCSSignerPrivateKey  string
	GCSDeleteConcurrency int
	SignedURLTTL         time.Duration
	BlobDeleteBatchSize  int

	// Auth
	JWTSecret string

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitDelete  int

	// Worker
	OrphanSweepSchedule string

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", BackendPostgres))
	cfg.BlobBackend = strings.ToLower(getEnvString("BLOB_BACKEND", BackendS3))

	switch cfg.StoreBackend {
	case BackendPostgres, BackendDynamo, BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q", cfg.StoreBackend)
	}
	switch cfg.BlobBackend {
	case BackendS3, BackendGCS, BackendMemory:
	default:
		return nil, fmt.Errorf("unsupported BLOB_BACKEND: %q", cfg.BlobBackend)
	}

	// Required fields
	var missing []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" && cfg.StoreBackend == BackendPostgres {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BlobBucket = os.Getenv("BLOB_BUCKET")
	if cfg.BlobBucket == "" && (cfg.BlobBackend == BackendS3 || cfg.BlobBackend == BackendGCS) {
		missing = append(missing, "BLOB_BUCKET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)

	cfg.DynamoPhotosTable = getEnvString("DDB_PHOTOS_TABLE", "PhotoMeta")
	cfg.DynamoAlbumsTable = getEnvString("DDB_ALBUMS_TABLE", "Albums")
	cfg.DynamoUsersTable = getEnvString("DDB_USERS_TABLE", "Users")
	cfg.DynamoTokensTable = getEnvString("DDB_TOKENS_TABLE", "Tokens")
	cfg.DynamoAlbumIndex = getEnvString("DDB_ALBUM_INDEX", "album_id-index")
	cfg.DynamoOwnerIndex = getEnvString("DDB_OWNER_INDEX", "owner-index")
	cfg.DynamoEndpoint = getEnvString("DDB_ENDPOINT", "")

	cfg.AWSRegion = getEnvString("AWS_REGION", "ap-northeast-1")
	cfg.AWSAccessKeyID = getEnvString("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvString("AWS_SECRET_ACCESS_KEY", "")

	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.GCSCredentialsFile = getEnvString("GCS_CREDENTIALS_FILE", "")
	cfg.GCSSignerEmail = getEnvString("GCS_SIGNER_EMAIL", "")
	cfg.GCSSignerPrivateKey = getEnvString("GCS_SIGNER_PRIVATE_KEY", "")
	cfg.GCSDeleteConcurrency = getEnvInt("GCS_DELETE_CONCURRENCY", 16)
	cfg.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", time.Hour)
	cfg.BlobDeleteBatchSize = getEnvInt("BLOB_DELETE_BATCH_SIZE", 1000)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitDelete = getEnvInt("RATE_LIMIT_DELETE", 10)

	cfg.OrphanSweepSchedule = getEnvString("ORPHAN_SWEEP_SCHEDULE", "@daily")
	cfg.LogLevel = logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	cfg.ServerPort = getEnvString("SERVER_PORT", getEnvString("PORT", "8080"))
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
