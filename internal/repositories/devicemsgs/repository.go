// Package devicemsgs stores messages addressed to this device. The cache is
// reset whenever a backup replaces the account database.
package devicemsgs

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/dbx"
	"github.com/dmitrijs2005/keeperlink/internal/models"
)

type Repository interface {
	Add(ctx context.Context, label, text string) (int64, error)
	List(ctx context.Context) ([]models.DeviceMessage, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, label, text string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO device_msgs (label, text, created_at) VALUES (?, ?, ?)`,
		label, text, time.Now().UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to add device message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get device message id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.DeviceMessage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, label, text, created_at FROM device_msgs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device messages: %w", err)
	}
	defer rows.Close()

	var result []models.DeviceMessage
	for rows.Next() {
		var (
			m  models.DeviceMessage
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.Label, &m.Text, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan device message: %w", err)
		}
		m.CreatedAt = time.Unix(0, ts).UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_msgs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count device messages: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM device_msgs`); err != nil {
		return fmt.Errorf("failed to delete device messages: %w", err)
	}
	return nil
}
