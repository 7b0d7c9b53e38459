package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/photolib/internal/blob"
	"github.com/hitoshi/photolib/internal/config"
	"github.com/hitoshi/photolib/internal/database"
	"github.com/hitoshi/photolib/internal/handler"
	"github.com/hitoshi/photolib/internal/repository"
	"github.com/hitoshi/photolib/internal/repository/memory"
)

// backends は設定で選択したメタデータストアとblobストア。
type backends struct {
	repos  *repository.Store
	blobs  blob.Store
	health handler.HealthChecker
	// db はPostgreSQLバックエンドのときのみ設定される。
	db      *sql.DB
	closers []func() error
}

// Close は開いた接続をすべて閉じる。
func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openBackends はSTORE_BACKENDとBLOB_BACKENDに従ってストアを開く。
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	if err := b.openStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openBlobStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		b.closers = append(b.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		b.repos = repository.NewPostgresStore(db)
		b.health = db
		b.db = db

	case config.BackendDynamo:
		client, err := repository.OpenDynamo(ctx, repository.DynamoOptions{
			Region:    cfg.AWSRegion,
			Endpoint:  cfg.DynamoEndpoint,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return err
		}
		tables := dynamoTables(cfg)
		b.repos = repository.NewDynamoStore(client, tables)
		b.health = handler.HealthCheckerFunc(func(ctx context.Context) error {
			return repository.PingDynamo(ctx, client, tables)
		})
		slog.Info("dynamodb client configured", slog.String("region", cfg.AWSRegion))

	case config.BackendMemory:
		b.repos = memory.NewStore().Repositories()
		slog.Warn("in-memory metadata store in use; data is not persisted")

	default:
		return fmt.Errorf("unsupported store backend: %q", cfg.StoreBackend)
	}
	return nil
}

func (b *backends) openBlobStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.BlobBackend {
	case config.BackendS3:
		store, err := blob.OpenS3(ctx, blob.S3Options{
			Bucket:    cfg.BlobBucket,
			Region:    cfg.AWSRegion,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return err
		}
		b.blobs = store

	case config.BackendGCS:
		store, err := blob.OpenGCS(ctx, blob.GCSOptions{
			Bucket:            cfg.BlobBucket,
			CredentialsFile:   cfg.GCSCredentialsFile,
			SignerEmail:       cfg.GCSSignerEmail,
			SignerPrivateKey:  cfg.GCSSignerPrivateKey,
			DeleteConcurrency: cfg.GCSDeleteConcurrency,
		})
		if err != nil {
			return err
		}
		b.closers = append(b.closers, store.Close)
		b.blobs = store

	case config.BackendMemory:
		b.blobs = blob.NewMemoryStore()
		slog.Warn("in-memory blob store in use; objects are not persisted")

	default:
		return fmt.Errorf("unsupported blob backend: %q", cfg.BlobBackend)
	}
	slog.Info("blob store configured",
		slog.String("backend", cfg.BlobBackend),
		slog.String("bucket", cfg.BlobBucket),
	)
	return nil
}

func dynamoTables(cfg *config.Config) repository.DynamoTables {
	return repository.DynamoTables{
		Photos:     cfg.DynamoPhotosTable,
		Albums:     cfg.DynamoAlbumsTable,
		Users:      cfg.DynamoUsersTable,
		Tokens:     cfg.DynamoTokensTable,
		AlbumIndex: cfg.DynamoAlbumIndex,
		OwnerIndex: cfg.DynamoOwnerIndex,
	}
}
