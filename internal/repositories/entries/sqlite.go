package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/dbx"
	"github.com/dmitrijs2005/keeperlink/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Put upserts an entry by id. A zero UpdatedAt is set to the current time.
func (r *SQLiteRepository) Put(ctx context.Context, e *models.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	query := `INSERT INTO entries (id, kind, title, body, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET kind = excluded.kind,
				title = excluded.title,
				body = excluded.body,
				updated_at = excluded.updated_at
	`
	body := e.Body
	if body == nil {
		body = []byte{}
	}
	_, err := r.db.ExecContext(ctx, query, e.ID, string(e.Kind), e.Title, body, e.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT id, kind, title, body, updated_at FROM entries WHERE id = ?`
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.Entry, error) {
	query := `SELECT id, kind, title, body, updated_at FROM entries ORDER BY title, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByID removes an entry. It expects exactly one row to be affected.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("entry %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.Entry, error) {
	var (
		e    models.Entry
		kind string
		ts   int64
	)
	if err := s.Scan(&e.ID, &kind, &e.Title, &e.Body, &ts); err != nil {
		return nil, err
	}
	e.Kind = models.EntryKind(kind)
	e.UpdatedAt = time.Unix(0, ts).UTC()
	return &e, nil
}
