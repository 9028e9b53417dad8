// Package imex exports the account database into a passphrase-sealed
// snapshot file and imports such a snapshot back into a live database.
package imex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/cryptox"
	"github.com/dmitrijs2005/keeperlink/internal/dbx"
	"github.com/google/uuid"
)

// Tables that describe the database itself rather than account data.
const gooseTable = "goose_db_version"

const snapshotSchema = "snapshot"

// ExportDatabase writes a consistent copy of db to dest, compressed and
// sealed with passphrase. dest must not exist.
func ExportDatabase(ctx context.Context, db *sql.DB, dest, passphrase string, workFactor int) error {
	tmp := filepath.Join(filepath.Dir(dest), "."+uuid.NewString()+".vacuum")
	defer os.Remove(tmp)

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, tmp); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	if err := cryptox.SealFile(dest, tmp, passphrase, workFactor); err != nil {
		return fmt.Errorf("seal snapshot: %w", err)
	}
	return nil
}

// ImportDatabase replaces the contents of every account table of db with the
// rows of the sealed snapshot at src. Tables are copied in one transaction;
// on failure db is left untouched. All errors wrap common.ErrImport.
func ImportDatabase(ctx context.Context, db *sql.DB, src, passphrase string) error {
	if err := importDatabase(ctx, db, src, passphrase); err != nil {
		return fmt.Errorf("%w: %w", common.ErrImport, err)
	}
	return nil
}

func importDatabase(ctx context.Context, db *sql.DB, src, passphrase string) error {
	tmpDir, err := os.MkdirTemp("", "keeperlink-import-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	plain := filepath.Join(tmpDir, "snapshot.db")
	if err := cryptox.OpenFile(plain, src, passphrase); err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}

	return dbx.WithConn(ctx, db, func(ctx context.Context, conn *sql.Conn) (err error) {
		if _, err := conn.ExecContext(ctx, `ATTACH DATABASE ? AS `+snapshotSchema, plain); err != nil {
			return fmt.Errorf("attach snapshot: %w", err)
		}
		defer func() {
			if _, derr := conn.ExecContext(context.WithoutCancel(ctx), `DETACH DATABASE `+snapshotSchema); derr != nil {
				err = errors.Join(err, fmt.Errorf("detach snapshot: %w", derr))
			}
		}()

		if err := checkSchemaVersion(ctx, conn); err != nil {
			return err
		}

		tables, err := commonTables(ctx, conn)
		if err != nil {
			return err
		}

		return dbx.WithTx(ctx, conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
			for _, t := range tables {
				if err := copyTable(ctx, tx, t); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// checkSchemaVersion refuses snapshots migrated past the local schema.
func checkSchemaVersion(ctx context.Context, conn *sql.Conn) error {
	local, err := maxVersion(ctx, conn, "main")
	if err != nil {
		return err
	}
	remote, err := maxVersion(ctx, conn, snapshotSchema)
	if err != nil {
		return err
	}
	if remote > local {
		return fmt.Errorf("snapshot schema version %d is newer than local %d", remote, local)
	}
	return nil
}

func maxVersion(ctx context.Context, conn *sql.Conn, schema string) (int64, error) {
	var n int
	err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+schema+`.sqlite_master WHERE type = 'table' AND name = ?`, gooseTable).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("inspect %s schema: %w", schema, err)
	}
	if n == 0 {
		return 0, nil
	}

	var v sql.NullInt64
	err = conn.QueryRowContext(ctx,
		`SELECT MAX(version_id) FROM `+schema+`.`+gooseTable+` WHERE is_applied`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read %s schema version: %w", schema, err)
	}
	return v.Int64, nil
}

func commonTables(ctx context.Context, conn *sql.Conn) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT m.name FROM main.sqlite_master m
		JOIN `+snapshotSchema+`.sqlite_master s ON s.name = m.name AND s.type = 'table'
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND m.name <> ?
		ORDER BY m.name`, gooseTable)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// copyTable replaces main.table with snapshot.table, restricted to the
// columns both sides know about.
func copyTable(ctx context.Context, tx dbx.DBTX, table string) error {
	cols, err := commonColumns(ctx, tx, table)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM main.`+quoteIdent(table)); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil
	}

	list := strings.Join(cols, ", ")
	q := fmt.Sprintf(`INSERT INTO main.%s (%s) SELECT %s FROM %s.%s`,
		quoteIdent(table), list, list, snapshotSchema, quoteIdent(table))
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}
	return nil
}

func commonColumns(ctx context.Context, tx dbx.DBTX, table string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT m.name FROM pragma_table_info(?, 'main') m
		JOIN pragma_table_info(?, '`+snapshotSchema+`') s ON s.name = m.name
		ORDER BY m.cid`, table, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, quoteIdent(name))
	}
	return cols, rows.Err()
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ClearDatabase deletes every row of every account table of db in one
// transaction. Schema and migration bookkeeping are kept.
func ClearDatabase(ctx context.Context, db *sql.DB) error {
	return dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT name FROM main.sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name <> ?
			ORDER BY name`, gooseTable)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		var tables []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return err
			}
			tables = append(tables, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM main.`+quoteIdent(t)); err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
}
