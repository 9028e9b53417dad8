package account

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keeperlink/internal/account/migrations"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// openDatabase opens the SQLite file at path and migrates it to the latest
// schema.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations. It is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}
