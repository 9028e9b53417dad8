package account

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/blobdir"
)

// StartIO launches the background housekeeping scheduler. Starting an
// already running scheduler is a no-op.
func (a *Account) StartIO(ctx context.Context) {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()

	if a.ioStop != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	a.ioStop = cancel
	a.ioDone = done

	go func() {
		defer close(done)
		a.housekeeping(ctx)
	}()
	a.logger.Info(ctx, "background I/O started")
}

// StopIO stops the scheduler and waits for it to exit.
func (a *Account) StopIO() {
	a.ioMu.Lock()
	stop, done := a.ioStop, a.ioDone
	a.ioStop, a.ioDone = nil, nil
	a.ioMu.Unlock()

	if stop == nil {
		return
	}
	stop()
	<-done
}

func (a *Account) IsIORunning() bool {
	a.ioMu.Lock()
	defer a.ioMu.Unlock()
	return a.ioStop != nil
}

func (a *Account) housekeeping(ctx context.Context) {
	interval := a.cfg.HousekeepingInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := blobdir.SweepQuarantine(a.blobDir)
			if err != nil {
				a.logger.Warn(ctx, "housekeeping failed", "err", err)
				continue
			}
			if n > 0 {
				a.logger.Info(ctx, "removed stale quarantine files", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
