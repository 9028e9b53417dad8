package backup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/keeperlink/internal/account"
	"github.com/dmitrijs2005/keeperlink/internal/blobdir"
	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/qr"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

const writeBufferSize = 128 << 10

// GetBackup fetches the backup described by code into a fresh account.
//
// The account must be unconfigured and its background I/O stopped. On
// failure every entry of the blob directory is removed, so the blob
// directory is expected to be empty beforehand, and an already imported
// database is wiped again.
func GetBackup(ctx context.Context, acct *account.Account, engine Engine, code qr.Qr) error {
	b, ok := code.(qr.Backup)
	if !ok {
		return fmt.Errorf("%w: code of kind %s is not a backup", common.ErrConfig, kindOf(code))
	}
	configured, err := acct.IsConfigured(ctx)
	if err != nil {
		return err
	}
	if configured {
		return fmt.Errorf("%w: cannot import a backup into an account in use", common.ErrConfig)
	}
	if acct.IsIORunning() {
		return fmt.Errorf("%w: cannot import a backup while I/O is running", common.ErrConfig)
	}

	t := b.Ticket
	logger := acct.Logger().With("component", "backup_receiver", "peer", t.PeerID.ShortString())
	w := &blobWriter{acct: acct, dir: acct.BlobDir(), token: t.Token, logger: logger}

	logger.Info(ctx, "receiving backup", "addr", t.Addr)
	err = mapError(ctx, engine.Get(ctx, t.Hash, t.Token, transfer.Options{Addr: t.Addr, PeerID: t.PeerID}, w))
	if err == nil && !w.imported {
		err = fmt.Errorf("%w: backup carries no database", common.ErrProtocol)
	}
	if err == nil {
		err = acct.ResetDeviceMessages(ctx)
	}
	if err != nil {
		if serr := blobdir.Sweep(w.dir); serr != nil {
			logger.Error(ctx, "cannot clean up blob directory", "err", serr)
		}
		if w.imported {
			if werr := acct.WipeData(context.WithoutCancel(ctx)); werr != nil {
				logger.Error(ctx, "cannot roll back imported database", "err", werr)
			}
		}
		logger.Warn(ctx, "backup receive failed", "err", err)
		return err
	}

	logger.Info(ctx, "backup received", "blobs", w.blobs)
	return nil
}

func kindOf(code qr.Qr) string {
	if code == nil {
		return "none"
	}
	return code.Kind().String()
}

// blobWriter stores received blobs in the blob directory. The database
// snapshot is written under a quarantine name and imported right away.
type blobWriter struct {
	acct   *account.Account
	dir    string
	token  transfer.AuthToken
	logger logging.Logger

	blobs    int
	imported bool
}

func (w *blobWriter) OnConnected(ctx context.Context) error {
	w.logger.Debug(ctx, "connected to provider")
	return nil
}

func (w *blobWriter) OnCollection(ctx context.Context, c *transfer.Collection) error {
	w.logger.Debug(ctx, "collection announced", "blobs", len(c.Blobs))
	return nil
}

func (w *blobWriter) OnBlob(ctx context.Context, _ transfer.Hash, data *transfer.DataStream, name string) (_ *transfer.DataStream, err error) {
	if name == "" {
		return nil, fmt.Errorf("%w: received a nameless blob", common.ErrProtocol)
	}

	isDB := name == common.DBFileBackupName
	var path string
	if isDB {
		path = filepath.Join(w.dir, name+common.QuarantineSuffix)
		defer func() {
			if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				err = errors.Join(err, rerr)
			}
		}()
	} else {
		path, err = blobdir.Join(w.dir, name)
		if err != nil {
			return nil, err
		}
	}

	if err := writeBlob(path, data); err != nil {
		return nil, err
	}

	if isDB {
		if err := w.acct.ImportDatabase(ctx, path, w.token.String()); err != nil {
			return nil, fmt.Errorf("cannot import database: %w", err)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("database import file %s: %w", path, err)
		}
		w.imported = true
	} else {
		w.blobs++
	}
	return data, nil
}

func writeBlob(path string, data io.Reader) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriterSize(f, writeBufferSize)
	if _, err := io.Copy(bw, data); err != nil {
		return err
	}
	return bw.Flush()
}
