package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/models"
	"github.com/dmitrijs2005/keeperlink/internal/qr"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sealedSnapshot exports a configured account sealed with token and returns
// its bytes.
func sealedSnapshot(t *testing.T, token transfer.AuthToken) []byte {
	t.Helper()
	ctx := context.Background()
	src := newAccount(t, "alice@example.org")
	require.NoError(t, src.Entries().Put(ctx, &models.Entry{ID: "n1", Kind: models.EntryKindNote, Title: "note"}))

	path := filepath.Join(t.TempDir(), common.DBFileBackupName)
	require.NoError(t, src.ExportDatabase(ctx, path, token.String()))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func backupCode(t *testing.T) (qr.Backup, transfer.AuthToken) {
	t.Helper()
	tok, err := transfer.NewAuthToken()
	require.NoError(t, err)
	return qr.Backup{Ticket: transfer.Ticket{Addr: "127.0.0.1:1", Hash: transfer.HashBytes([]byte("root")), Token: tok}}, tok
}

func TestGetBackup_Preconditions(t *testing.T) {
	ctx := context.Background()
	code, _ := backupCode(t)

	t.Run("wrong kind", func(t *testing.T) {
		acct := newAccount(t, "")
		err := GetBackup(ctx, acct, &fakeEngine{}, qr.Text{Text: "hello"})
		require.ErrorIs(t, err, common.ErrConfig)
		assert.Contains(t, err.Error(), "text")
	})

	t.Run("configured account", func(t *testing.T) {
		acct := newAccount(t, "bob@example.org")
		require.ErrorIs(t, GetBackup(ctx, acct, &fakeEngine{}, code), common.ErrConfig)
	})

	t.Run("io running", func(t *testing.T) {
		acct := newAccount(t, "")
		acct.StartIO(ctx)
		defer acct.StopIO()
		require.ErrorIs(t, GetBackup(ctx, acct, &fakeEngine{}, code), common.ErrConfig)
	})
}

func TestGetBackup_WritesBlobsAndImports(t *testing.T) {
	ctx := context.Background()
	code, tok := backupCode(t)
	acct := newAccount(t, "")
	_, err := acct.DeviceMessages().Add(ctx, "stale", "from before")
	require.NoError(t, err)

	eng := &fakeEngine{blobs: []blob{
		{name: common.DBFileBackupName, data: sealedSnapshot(t, tok)},
		{name: "a.jpg", data: []byte("aaa")},
		{name: "b.png", data: []byte("bbbb")},
	}}
	require.NoError(t, GetBackup(ctx, acct, eng, code))

	assert.ElementsMatch(t, []string{"a.jpg", "b.png"}, blobNames(t, acct))
	b, err := os.ReadFile(filepath.Join(acct.BlobDir(), "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "bbbb", string(b))

	ok, err := acct.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	addr, err := acct.Addr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", addr)

	n, err := acct.DeviceMessages().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "device messages are reset")
}

func TestGetBackup_FailureSweepsBlobDir(t *testing.T) {
	ctx := context.Background()
	code, tok := backupCode(t)
	aborted := errors.New("transfer aborted by provider")

	tests := []struct {
		name    string
		blobs   []blob
		getErr  error
		wantErr error
	}{
		{
			name:    "aborted after first blob",
			blobs:   []blob{{name: "a.jpg", data: []byte("a")}},
			getErr:  aborted,
			wantErr: aborted,
		},
		{
			name:    "nameless blob",
			blobs:   []blob{{name: "a.jpg", data: []byte("a")}, {name: "", data: []byte("x")}},
			wantErr: common.ErrProtocol,
		},
		{
			name:    "path traversal",
			blobs:   []blob{{name: "../escape", data: []byte("x")}},
			wantErr: common.ErrProtocol,
		},
		{
			name:    "no database",
			blobs:   []blob{{name: "a.jpg", data: []byte("a")}},
			wantErr: common.ErrProtocol,
		},
		{
			name: "database import fails",
			blobs: []blob{
				{name: "a.jpg", data: []byte("a")},
				{name: common.DBFileBackupName, data: []byte("not a sealed snapshot")},
			},
			wantErr: common.ErrImport,
		},
		{
			name: "aborted after database",
			blobs: []blob{
				{name: common.DBFileBackupName, data: sealedSnapshot(t, tok)},
				{name: "a.jpg", data: []byte("a")},
			},
			getErr:  aborted,
			wantErr: aborted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := newAccount(t, "")
			err := GetBackup(ctx, acct, &fakeEngine{blobs: tt.blobs, getErr: tt.getErr}, code)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, blobNames(t, acct), "blob dir must be swept")
			assert.NoFileExists(t, filepath.Join(acct.BlobDir(), common.DBFileBackupName+common.QuarantineSuffix))

			ok, err := acct.IsConfigured(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "account stays unconfigured")
		})
	}
}

func TestBlobWriter_QuarantinesDatabase(t *testing.T) {
	ctx := context.Background()
	acct := newAccount(t, "")
	tok, err := transfer.NewAuthToken()
	require.NoError(t, err)
	w := &blobWriter{acct: acct, dir: acct.BlobDir(), token: tok, logger: acct.Logger()}

	data := []byte("garbage")
	ds := transfer.NewDataStream(bytesReader(data), transfer.HashBytes(data), int64(len(data)))
	_, err = w.OnBlob(ctx, transfer.HashBytes(data), ds, common.DBFileBackupName)
	require.ErrorIs(t, err, common.ErrImport)
	assert.Empty(t, blobNames(t, acct), "quarantine file is removed even when import fails")
	assert.False(t, w.imported)
}
