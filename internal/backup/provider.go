package backup

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/dmitrijs2005/keeperlink/internal/account"
	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/ongoing"
	"github.com/dmitrijs2005/keeperlink/internal/qr"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

// State of a providing session.
type State int32

const (
	StatePreparing State = iota
	StateListening
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StateListening:
		return "listening"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Provider offers the account backup to one getter and supervises the
// transfer until it settles.
type Provider struct {
	session  Session
	events   Events
	ticket   transfer.Ticket
	snapshot string
	handle   *ongoing.Handle
	logger   logging.Logger

	state atomic.Int32
	done  chan struct{}
	err   error
}

// Prepare stages the backup from dir and starts providing it. The
// ongoing-operation slot of acct is held from the start of staging until the
// provider settles; stopping it cancels the backup. ctx bounds the whole
// lifetime of the provider, not only the staging.
//
// Cancellation during staging returns an error wrapping common.ErrCancelled
// and leaves no session running.
func Prepare(ctx context.Context, acct *account.Account, engine Engine, dir string) (*Provider, error) {
	handle, err := acct.AllocOngoing()
	if err != nil {
		return nil, err
	}
	logger := acct.Logger().With("component", "backup_provider")

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		st  *staged
		err error
	}
	ch := make(chan result, 1)
	go func() {
		st, err := stage(stageCtx, acct, engine, dir)
		ch <- result{st, err}
	}()

	var (
		r         result
		cancelled bool
	)
	select {
	case r = <-ch:
	case <-handle.Done():
		cancelled = true
	case <-ctx.Done():
		cancelled = true
	}
	if !cancelled {
		select {
		case <-handle.Done():
			cancelled = true
		case <-ctx.Done():
			cancelled = true
		default:
		}
	} else {
		cancel()
		r = <-ch
	}

	if cancelled {
		if r.st != nil {
			r.st.session.Abort()
			<-r.st.session.Done()
			_ = os.Remove(r.st.snapshot)
		}
		handle.Release()
		logger.Info(ctx, "backup preparation cancelled")
		return nil, fmt.Errorf("%w: backup preparation", common.ErrCancelled)
	}
	if r.err != nil {
		handle.Release()
		logger.Error(ctx, "backup preparation failed", "err", r.err)
		return nil, r.err
	}

	p := newProvider(r.st, handle, logger)
	go p.supervise(ctx)
	return p, nil
}

func newProvider(st *staged, handle *ongoing.Handle, logger logging.Logger) *Provider {
	p := &Provider{
		session:  st.session,
		events:   st.session.Subscribe(),
		ticket:   st.ticket,
		snapshot: st.snapshot,
		handle:   handle,
		logger:   logger.With("peer", st.ticket.PeerID.ShortString()),
		done:     make(chan struct{}),
	}
	p.state.Store(int32(StateListening))
	p.logger.Info(context.Background(), "backup ready", "addr", st.ticket.Addr, "blobs", st.blobs)
	return p
}

// QR returns the code a getter scans.
func (p *Provider) QR() qr.Qr { return qr.Backup{Ticket: p.ticket} }

func (p *Provider) Ticket() transfer.Ticket { return p.ticket }

func (p *Provider) State() State { return State(p.state.Load()) }

// Done is closed once the provider has settled.
func (p *Provider) Done() <-chan struct{} { return p.done }

// Err is the outcome; it is only meaningful after Done is closed.
func (p *Provider) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the provider settles or ctx ends.
func (p *Provider) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Provider) supervise(ctx context.Context) {
	defer close(p.done)
	defer p.handle.Release()

	state, err := p.watch(ctx)
	if rerr := os.Remove(p.snapshot); rerr != nil && !os.IsNotExist(rerr) {
		p.logger.Warn(ctx, "cannot remove staged snapshot", "err", rerr)
	}

	p.err = err
	p.state.Store(int32(state))
	if err != nil {
		p.logger.Warn(ctx, "backup transfer ended", "state", state, "err", err)
		return
	}
	p.logger.Info(ctx, "backup transfer completed")
}

// watch races the session's own termination against its events and the
// cancellation signals. Only session termination can report success; every
// other exit aborts the session first.
func (p *Provider) watch(ctx context.Context) (State, error) {
	events := p.events.C()
	for {
		select {
		case <-p.session.Done():
			return p.joined()
		default:
		}

		select {
		case <-p.session.Done():
			return p.joined()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case transfer.EventTransferCollectionCompleted:
				p.logger.Info(ctx, "getter received the backup, shutting down")
				p.session.Abort()
			case transfer.EventTransferAborted:
				p.session.Abort()
				return StateFailed, fmt.Errorf("%w: transfer aborted: %s", common.ErrProtocol, ev.Reason)
			default:
				p.logger.Debug(ctx, "transfer event", "kind", ev.Kind, "name", ev.Name)
			}

		case <-p.events.Lagged():
			p.session.Abort()
			return StateFailed, fmt.Errorf("%w: missed events", common.ErrProtocol)

		case <-p.handle.Done():
			p.session.Abort()
			return StateCancelled, fmt.Errorf("%w: backup provider stopped", common.ErrCancelled)

		case <-ctx.Done():
			p.session.Abort()
			return StateCancelled, fmt.Errorf("%w: %w", common.ErrCancelled, ctx.Err())
		}
	}
}

func (p *Provider) joined() (State, error) {
	if err := p.session.Err(); err != nil {
		return StateFailed, fmt.Errorf("transfer session: %w", err)
	}
	return StateCompleted, nil
}
