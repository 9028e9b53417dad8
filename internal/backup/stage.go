package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/keeperlink/internal/account"
	"github.com/dmitrijs2005/keeperlink/internal/blobdir"
	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/filex"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

// staged is a started session together with what a getter needs to reach it.
type staged struct {
	session  Session
	ticket   transfer.Ticket
	snapshot string
	blobs    int
}

// stage exports the database into dir and starts providing it together with
// the blob directory.
func stage(ctx context.Context, acct *account.Account, engine Engine, dir string) (*staged, error) {
	aliased, err := filex.Within(dir, acct.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("%w: staging dir: %w", common.ErrConfig, err)
	}
	if aliased {
		return nil, fmt.Errorf("%w: staging dir %s overlaps the blob directory", common.ErrConfig, dir)
	}

	if _, err := acct.EnsureSecretKey(ctx); err != nil {
		return nil, err
	}

	token, err := transfer.NewAuthToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStaging, err)
	}

	dir, err = filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStaging, err)
	}
	snapshot := filepath.Join(dir, common.DBFileBackupName)
	if err := os.Remove(snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: remove stale snapshot: %w", common.ErrStaging, err)
	}
	if err := acct.ExportDatabase(ctx, snapshot, token.String()); err != nil {
		return nil, fmt.Errorf("%w: export database: %w", common.ErrStaging, err)
	}

	st, err := startSession(ctx, acct, engine, snapshot, token)
	if err != nil {
		_ = os.Remove(snapshot)
		return nil, err
	}
	return st, nil
}

func startSession(ctx context.Context, acct *account.Account, engine Engine, snapshot string, token transfer.AuthToken) (*staged, error) {
	blobs, err := blobdir.Contents(acct.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("%w: list blobs: %w", common.ErrStaging, err)
	}

	sources := make([]transfer.DataSource, 0, len(blobs)+1)
	sources = append(sources, transfer.DataSource{Path: snapshot, Name: common.DBFileBackupName})
	for _, b := range blobs {
		sources = append(sources, transfer.DataSource{Path: b.Path, Name: b.Name})
	}

	session, hash, err := engine.Provide(ctx, sources, token)
	if err != nil {
		return nil, fmt.Errorf("%w: start transfer: %w", common.ErrStaging, err)
	}

	ticket, err := session.Ticket(hash)
	if err != nil {
		session.Abort()
		return nil, fmt.Errorf("%w: ticket: %w", common.ErrStaging, err)
	}
	return &staged{session: session, ticket: ticket, snapshot: snapshot, blobs: len(blobs)}, nil
}
