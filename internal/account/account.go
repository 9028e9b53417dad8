package account

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"filippo.io/age"
	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/dbx"
	"github.com/dmitrijs2005/keeperlink/internal/filex"
	"github.com/dmitrijs2005/keeperlink/internal/imex"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/ongoing"
	"github.com/dmitrijs2005/keeperlink/internal/repositories/devicemsgs"
	"github.com/dmitrijs2005/keeperlink/internal/repositories/entries"
	"github.com/dmitrijs2005/keeperlink/internal/repositories/metadata"
)

type Account struct {
	cfg     *config.Config
	db      *sql.DB
	logger  logging.Logger
	blobDir string

	meta    metadata.Repository
	entries entries.Repository
	msgs    devicemsgs.Repository

	ongoing ongoing.Slot

	ioMu   sync.Mutex
	ioStop context.CancelFunc
	ioDone chan struct{}
}

// Open prepares the data directories and opens the account database.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Account, error) {
	if _, err := filex.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	blobDir, err := filex.EnsureDir(cfg.BlobDir)
	if err != nil {
		return nil, err
	}
	if _, err := filex.EnsureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	return &Account{
		cfg:     cfg,
		db:      db,
		logger:  logger.With("component", "account"),
		blobDir: blobDir,
		meta:    metadata.NewSQLiteRepository(db),
		entries: entries.NewSQLiteRepository(db),
		msgs:    devicemsgs.NewSQLiteRepository(db),
	}, nil
}

func (a *Account) BlobDir() string                       { return a.blobDir }
func (a *Account) DB() *sql.DB                           { return a.db }
func (a *Account) Logger() logging.Logger                { return a.logger }
func (a *Account) Config() *config.Config                { return a.cfg }
func (a *Account) Entries() entries.Repository           { return a.entries }
func (a *Account) DeviceMessages() devicemsgs.Repository { return a.msgs }

func (a *Account) IsConfigured(ctx context.Context) (bool, error) {
	return metadata.GetBool(ctx, a.meta, metadata.KeyConfigured)
}

// Addr returns the configured account address, or "" for a fresh account.
func (a *Account) Addr(ctx context.Context) (string, error) {
	v, err := a.meta.Get(ctx, metadata.KeyAddr)
	return string(v), err
}

// Configure turns a fresh account into a configured one with a newly
// generated long-term secret key.
func (a *Account) Configure(ctx context.Context, addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty address", common.ErrConfig)
	}
	configured, err := a.IsConfigured(ctx)
	if err != nil {
		return err
	}
	if configured {
		return fmt.Errorf("%w: account is already configured", common.ErrConfig)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generate secret key: %w", err)
	}

	key := []byte(identity.String())
	defer common.WipeByteArray(key)

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		meta := metadata.NewSQLiteRepository(tx)
		if err := meta.Set(ctx, metadata.KeySecretKey, key); err != nil {
			return err
		}
		if err := meta.Set(ctx, metadata.KeyAddr, []byte(addr)); err != nil {
			return err
		}
		if _, err := devicemsgs.NewSQLiteRepository(tx).Add(ctx, "welcome", "Account "+addr+" configured"); err != nil {
			return err
		}
		return metadata.SetBool(ctx, meta, metadata.KeyConfigured, true)
	})
	if err != nil {
		return err
	}

	a.logger.Info(ctx, "account configured", "addr", addr, "recipient", identity.Recipient().String())
	return nil
}

// EnsureSecretKey returns the long-term secret key, failing with
// common.ErrConfig when the account has none.
func (a *Account) EnsureSecretKey(ctx context.Context) (*age.X25519Identity, error) {
	v, err := a.meta.Get(ctx, metadata.KeySecretKey)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: no secret key, account is not configured", common.ErrConfig)
	}
	defer common.WipeByteArray(v)
	identity, err := age.ParseX25519Identity(string(v))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed secret key: %w", common.ErrConfig, err)
	}
	return identity, nil
}

// AllocOngoing takes the ongoing-operation slot. It fails fast with
// common.ErrBusy when another operation holds it.
func (a *Account) AllocOngoing() (*ongoing.Handle, error) {
	return a.ongoing.Alloc()
}

// StopOngoing asks the current ongoing operation, if any, to stop.
func (a *Account) StopOngoing(ctx context.Context) {
	if a.ongoing.Busy() {
		a.logger.Info(ctx, "stopping ongoing operation")
	}
	a.ongoing.Stop()
}

func (a *Account) HasOngoing() bool {
	return a.ongoing.Busy()
}

// ExportDatabase writes a sealed snapshot of the account database to dest.
func (a *Account) ExportDatabase(ctx context.Context, dest, passphrase string) error {
	return imex.ExportDatabase(ctx, a.db, dest, passphrase, a.cfg.ScryptWorkFactor)
}

// ImportDatabase replaces the account data with the sealed snapshot at src.
func (a *Account) ImportDatabase(ctx context.Context, src, passphrase string) error {
	if err := imex.ImportDatabase(ctx, a.db, src, passphrase); err != nil {
		return err
	}
	a.logger.Info(ctx, "database imported", "src", filepath.Base(src))
	return nil
}

// WipeData deletes all account data, returning a configured account to the
// fresh state. Blob files are not touched.
func (a *Account) WipeData(ctx context.Context) error {
	if err := imex.ClearDatabase(ctx, a.db); err != nil {
		return err
	}
	a.logger.Warn(ctx, "account data wiped")
	return nil
}

// ResetDeviceMessages drops the cached device messages.
func (a *Account) ResetDeviceMessages(ctx context.Context) error {
	if err := a.msgs.DeleteAll(ctx); err != nil {
		return err
	}
	a.logger.Debug(ctx, "device messages reset")
	return nil
}

// Close stops background I/O and closes the database.
func (a *Account) Close() error {
	a.StopIO()
	return a.db.Close()
}
