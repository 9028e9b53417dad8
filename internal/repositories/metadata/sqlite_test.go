package metadata

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet_InsertThenGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, KeyAddr, []byte("alice@example.org")))

	v, err := r.Get(ctx, KeyAddr)
	require.NoError(t, err)
	require.Equal(t, []byte("alice@example.org"), v)
}

func TestGet_NotExists_ReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSet_UpsertOverwritesValue(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "k", []byte("new")))

	v, err := r.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestListDeleteClear(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte{0xAA}))
	require.NoError(t, r.Set(ctx, "b", []byte{0xBB, 0xCC}))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": {0xAA}, "b": {0xBB, 0xCC}}, m)

	require.NoError(t, r.Delete(ctx, "a"))
	require.NoError(t, r.Delete(ctx, "a"), "delete is idempotent")

	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 1)

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestBoolHelpers(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	v, err := GetBool(ctx, r, KeyConfigured)
	require.NoError(t, err)
	assert.False(t, v, "missing key reads as false")

	require.NoError(t, SetBool(ctx, r, KeyConfigured, true))
	v, err = GetBool(ctx, r, KeyConfigured)
	require.NoError(t, err)
	assert.True(t, v)

	require.NoError(t, SetBool(ctx, r, KeyConfigured, false))
	v, err = GetBool(ctx, r, KeyConfigured)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestErrorsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := NewSQLiteRepository(db)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM metadata WHERE key = ?`)).
		WithArgs("k").WillReturnError(boom)
	_, err = r.Get(ctx, "k")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to get metadata[k]")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO metadata`)).
		WithArgs("k", []byte("v")).WillReturnError(boom)
	err = r.Set(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to set metadata[k]")

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata WHERE key = ?`)).
		WithArgs("k").WillReturnError(boom)
	require.ErrorIs(t, r.Delete(ctx, "k"), boom)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM metadata`)).WillReturnError(boom)
	require.ErrorIs(t, r.Clear(ctx), boom)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM metadata`)).WillReturnError(boom)
	_, err = r.List(ctx)
	require.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_ScanErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"key"}).AddRow("only-one-column")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key, value FROM metadata`)).WillReturnRows(rows)

	_, err = NewSQLiteRepository(db).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan metadata row")
}
