package sqlstore

import (
	"context"
	"database/sql"
	"io/fs"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/migrations"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config adapts core.StoreConfig to the go-persistence-bun config contract.
type Config struct {
	Driver string
	DSN    string
	Debug  bool
}

func (c Config) GetDebug() bool                { return c.Debug }
func (c Config) GetDriver() string             { return c.Driver }
func (c Config) GetServer() string             { return c.DSN }
func (c Config) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c Config) GetOtelIdentifier() string     { return "go-slack-dispatch" }

// Open connects to the configured database, applies the embedded migrations
// for its dialect and returns the persistence client.
func Open(ctx context.Context, cfg core.StoreConfig) (*persistence.Client, error) {
	driver, dialect, migrationDialect, err := resolveDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, core.WrapError(err, goerrors.CategoryInternal, "sqlstore: open database", core.ErrorInternal, map[string]any{"driver": cfg.Driver})
	}
	if cfg.Driver == core.StoreDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(Config{Driver: driver, DSN: cfg.DSN, Debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, core.WrapError(err, goerrors.CategoryInternal, "sqlstore: new persistence client", core.ErrorInternal, nil)
	}
	_, err = migrations.Register(ctx, func(_ context.Context, registered string, _ string, fsys fs.FS) error {
		if registered != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, core.WrapError(err, goerrors.CategoryInternal, "sqlstore: migrate", core.ErrorInternal, nil)
	}
	return client, nil
}

// NewClaimStoreFromPersistence accepts a *bun.DB or any client exposing DB().
func NewClaimStoreFromPersistence(client any) (*ClaimStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewClaimStore(db)
}

func resolveDriver(name string) (string, schema.Dialect, string, error) {
	switch name {
	case core.StoreDriverSQLite:
		return "sqlite3", sqlitedialect.New(), migrations.DialectSQLite, nil
	case core.StoreDriverPostgres:
		return "postgres", pgdialect.New(), migrations.DialectPostgres, nil
	default:
		return "", nil, "", storeError("sqlstore: unsupported driver "+name, goerrors.CategoryValidation, core.ErrorConfigInvalid)
	}
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, storeError("sqlstore: persistence client is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, storeError("sqlstore: persistence client returned nil bun db", goerrors.CategoryInternal, core.ErrorInternal)
		}
		return db, nil
	default:
		return nil, storeError("sqlstore: unsupported persistence client type", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
}
