// Package migrations ships the claim ledger schema for every supported
// dialect and registers it with a migration runner.
package migrations

import (
	"context"
	"io/fs"
	"slices"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	SourceLabel = "go-slack-dispatch"
	rootPath    = "data/sql/migrations"
)

// Dialect is one migration tree.
type Dialect struct {
	Name string
	Path string
	FS   fs.FS
}

type Registration struct {
	SourceLabel string
	Targets     []string
	Dialects    []Dialect
}

// RegisterFunc receives each selected dialect tree, typically forwarding it
// to persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithValidationTargets restricts registration to the named dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		normalized := normalizeTargets(targets)
		if len(normalized) > 0 {
			r.Targets = normalized
		}
	}
}

// WithSource swaps the migration tree, mostly for tests.
func WithSource(root fs.FS) Option {
	return func(r *Registration) {
		if root == nil {
			return
		}
		if dialects, err := Dialects(root); err == nil {
			r.Dialects = dialects
		}
	}
}

// Dialects splits root into the postgres tree and its sqlite subtree. Both
// must contain at least one *.up.sql file.
func Dialects(root fs.FS) ([]Dialect, error) {
	if root == nil {
		root = GetMigrationsFS()
	}
	base, err := fs.Sub(root, rootPath)
	if err != nil {
		return nil, migrationError("migrations: resolve migration root", err, nil)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, migrationError("migrations: resolve sqlite migrations", err, nil)
	}
	dialects := []Dialect{
		{Name: DialectPostgres, Path: rootPath, FS: base},
		{Name: DialectSQLite, Path: rootPath + "/sqlite", FS: sqliteFS},
	}
	for _, dialect := range dialects {
		matches, err := fs.Glob(dialect.FS, "*.up.sql")
		if err != nil {
			return nil, migrationError("migrations: glob migration files", err, map[string]any{"dialect": dialect.Name})
		}
		if len(matches) == 0 {
			return nil, migrationError("migrations: dialect has no up migrations", nil, map[string]any{
				"dialect": dialect.Name,
				"path":    dialect.Path,
			})
		}
	}
	return dialects, nil
}

func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: SourceLabel,
		Targets:     []string{DialectPostgres, DialectSQLite},
	}
	dialects, err := Dialects(nil)
	if err != nil {
		return reg, err
	}
	reg.Dialects = dialects
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if registerFn == nil {
		return reg, migrationError("migrations: register function is required", nil, nil)
	}

	for _, dialect := range reg.Dialects {
		if !slices.Contains(reg.Targets, dialect.Name) {
			continue
		}
		if err := registerFn(ctx, dialect.Name, reg.SourceLabel, dialect.FS); err != nil {
			return reg, migrationError("migrations: register dialect", err, map[string]any{
				"dialect": dialect.Name,
				"path":    dialect.Path,
			})
		}
	}
	return reg, nil
}

func normalizeTargets(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" && !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out
}

func migrationError(message string, source error, metadata map[string]any) error {
	return core.WrapError(source, goerrors.CategoryInternal, message, core.ErrorInternal, metadata)
}
