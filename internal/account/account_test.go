package account

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.ScryptWorkFactor = 10
	cfg.HousekeepingInterval = 10 * time.Millisecond
	cfg.Normalize()
	return cfg
}

func openTest(t *testing.T) *Account {
	t.Helper()
	acct, err := Open(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = acct.Close() })
	return acct
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestOpen_CreatesDirsAndSchema(t *testing.T) {
	acct := openTest(t)

	info, err := os.Stat(acct.BlobDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	for _, tbl := range []string{"goose_db_version", "metadata", "entries", "device_msgs"} {
		assert.True(t, tableExists(t, acct.DB(), tbl), tbl)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	acct := openTest(t)
	require.NoError(t, RunMigrations(context.Background(), acct.DB()))
	require.NoError(t, RunMigrations(context.Background(), acct.DB()))
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	acct := openTest(t)

	ok, err := acct.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = acct.EnsureSecretKey(ctx)
	require.ErrorIs(t, err, common.ErrConfig)

	require.ErrorIs(t, acct.Configure(ctx, ""), common.ErrConfig)
	require.NoError(t, acct.Configure(ctx, "alice@example.org"))

	ok, err = acct.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	addr, err := acct.Addr(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.org", addr)

	id, err := acct.EnsureSecretKey(ctx)
	require.NoError(t, err)
	assert.NotNil(t, id.Recipient())

	n, err := acct.DeviceMessages().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.ErrorIs(t, acct.Configure(ctx, "bob@example.org"), common.ErrConfig)
}

func TestOngoing(t *testing.T) {
	acct := openTest(t)

	h, err := acct.AllocOngoing()
	require.NoError(t, err)
	assert.True(t, acct.HasOngoing())

	_, err = acct.AllocOngoing()
	require.ErrorIs(t, err, common.ErrBusy)

	acct.StopOngoing(context.Background())
	<-h.Done()
	assert.False(t, acct.HasOngoing())
}

func TestIOScheduler_SweepsQuarantine(t *testing.T) {
	acct := openTest(t)
	stale := filepath.Join(acct.BlobDir(), common.DBFileBackupName+common.QuarantineSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	keep := filepath.Join(acct.BlobDir(), "a.jpg")
	require.NoError(t, os.WriteFile(keep, []byte("a"), 0o600))

	assert.False(t, acct.IsIORunning())
	acct.StartIO(context.Background())
	acct.StartIO(context.Background())
	assert.True(t, acct.IsIORunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
	assert.FileExists(t, keep)

	acct.StopIO()
	acct.StopIO()
	assert.False(t, acct.IsIORunning())
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()

	src := openTest(t)
	require.NoError(t, src.Configure(ctx, "alice@example.org"))
	require.NoError(t, src.Entries().Put(ctx, &models.Entry{ID: "e1", Kind: models.EntryKindNote, Title: "hello", Body: []byte("world")}))
	srcKey, err := src.EnsureSecretKey(ctx)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), common.DBFileBackupName)
	require.NoError(t, src.ExportDatabase(ctx, dest, "token"))

	dst := openTest(t)
	require.NoError(t, dst.ImportDatabase(ctx, dest, "token"))

	ok, err := dst.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	dstKey, err := dst.EnsureSecretKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, srcKey.String(), dstKey.String())

	e, err := dst.Entries().GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), e.Body)

	require.NoError(t, dst.ResetDeviceMessages(ctx))
	n, err := dst.DeviceMessages().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImport_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	src := openTest(t)
	dest := filepath.Join(t.TempDir(), common.DBFileBackupName)
	require.NoError(t, src.ExportDatabase(ctx, dest, "token"))

	dst := openTest(t)
	require.ErrorIs(t, dst.ImportDatabase(ctx, dest, "other"), common.ErrImport)
}

func TestWipeData(t *testing.T) {
	ctx := context.Background()
	acct := openTest(t)
	require.NoError(t, acct.Configure(ctx, "alice@example.org"))

	require.NoError(t, acct.WipeData(ctx))

	ok, err := acct.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = acct.EnsureSecretKey(ctx)
	require.ErrorIs(t, err, common.ErrConfig)
}
