// Package migrations embeds the invoice store schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed files/*.sql
var schemaFiles embed.FS

// Up applies pending invoice store migrations and returns the resulting schema version.
func Up(ctx context.Context, db *sql.DB) (int64, error) {
	goose.SetBaseFS(schemaFiles)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "files"); err != nil {
		return 0, fmt.Errorf("migrate invoice store: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read invoice store schema version: %w", err)
	}
	return version, nil
}
