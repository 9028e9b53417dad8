package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keeperlink/internal/backup"
	"github.com/dmitrijs2005/keeperlink/internal/blobdir"
	"github.com/dmitrijs2005/keeperlink/internal/models"
	"github.com/dmitrijs2005/keeperlink/internal/qr"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

func (a *App) initAccount(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: init <addr>", ErrUsage)
	}
	if err := a.acct.Configure(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "account %s configured\n", args[0])
	return nil
}

func (a *App) addNote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: note <title> [text]", ErrUsage)
	}
	e := &models.Entry{
		ID:    uuid.NewString(),
		Kind:  models.EntryKindNote,
		Title: args[0],
		Body:  []byte(strings.Join(args[1:], " ")),
	}
	if err := a.acct.Entries().Put(ctx, e); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added %s\n", e.ID)
	return nil
}

func (a *App) list(ctx context.Context) error {
	entries, err := a.acct.Entries().List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "no entries")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-6s %s (%s)\n", e.ID, e.Kind, e.Title, humanize.Time(e.UpdatedAt))
	}
	return nil
}

func (a *App) status(ctx context.Context) error {
	configured, err := a.acct.IsConfigured(ctx)
	if err != nil {
		return err
	}
	addr, err := a.acct.Addr(ctx)
	if err != nil {
		return err
	}
	entries, err := a.acct.Entries().Count(ctx)
	if err != nil {
		return err
	}
	msgs, err := a.acct.DeviceMessages().Count(ctx)
	if err != nil {
		return err
	}
	blobs, err := blobdir.Contents(a.acct.BlobDir())
	if err != nil {
		return err
	}
	var size int64
	for _, b := range blobs {
		size += b.Size
	}

	if !configured {
		addr = "(unconfigured)"
	}
	fmt.Fprintf(a.out, "account:  %s\n", addr)
	fmt.Fprintf(a.out, "entries:  %d\n", entries)
	fmt.Fprintf(a.out, "messages: %d\n", msgs)
	fmt.Fprintf(a.out, "blobs:    %d (%s)\n", len(blobs), humanize.Bytes(uint64(size)))
	return nil
}

func (a *App) provide(ctx context.Context) error {
	a.acct.StartIO(ctx)
	defer a.acct.StopIO()

	p, err := backup.Prepare(ctx, a.acct, a.engine, a.config.StagingDir)
	if err != nil {
		return err
	}

	payload, err := qr.Format(p.QR())
	if err != nil {
		a.acct.StopOngoing(ctx)
		<-p.Done()
		return err
	}
	fmt.Fprintf(a.out, "scan this on the new device:\n%s\n", payload)
	if a.ready != nil {
		a.ready(payload)
	}

	<-p.Done()
	if err := p.Err(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "backup transferred")
	return nil
}

func (a *App) receive(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: receive <payload>", ErrUsage)
	}
	code, err := qr.Parse(args[0])
	if err != nil {
		return err
	}

	h, err := a.acct.AllocOngoing()
	if err != nil {
		return err
	}
	defer h.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-h.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := backup.GetBackup(ctx, a.acct, a.engine, code); err != nil {
		return err
	}
	addr, err := a.acct.Addr(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "account %s received\n", addr)
	return nil
}
