package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/account"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = t.TempDir()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ScryptWorkFactor = 10
	cfg.ShutdownGrace = time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.Normalize()
	return cfg
}

func newAccount(t *testing.T, addr string) *account.Account {
	t.Helper()
	acct, err := account.Open(context.Background(), testConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = acct.Close() })
	if addr != "" {
		require.NoError(t, acct.Configure(context.Background(), addr))
	}
	return acct
}

func putBlob(t *testing.T, acct *account.Account, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(acct.BlobDir(), name), []byte(content), 0o600))
}

func blobNames(t *testing.T, acct *account.Account) []string {
	t.Helper()
	entries, err := os.ReadDir(acct.BlobDir())
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// fakeSession is a scripted listening session. Abort closes Done unless
// holdOnAbort is set.
type fakeSession struct {
	events chan transfer.Event
	lagged chan struct{}
	done   chan struct{}
	err    error
	ticket transfer.Ticket

	holdOnAbort bool
	aborts      atomic.Int32
	finishOnce  sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan transfer.Event, 8),
		lagged: make(chan struct{}),
		done:   make(chan struct{}),
		ticket: transfer.Ticket{Addr: "127.0.0.1:1", Hash: transfer.HashBytes([]byte("root"))},
	}
}

func (s *fakeSession) Subscribe() Events        { return s }
func (s *fakeSession) C() <-chan transfer.Event { return s.events }
func (s *fakeSession) Lagged() <-chan struct{}  { return s.lagged }
func (s *fakeSession) Done() <-chan struct{}    { return s.done }
func (s *fakeSession) Err() error               { <-s.done; return s.err }

func (s *fakeSession) Abort() {
	s.aborts.Add(1)
	if !s.holdOnAbort {
		s.finish(nil)
	}
}

func (s *fakeSession) Ticket(hash transfer.Hash) (transfer.Ticket, error) {
	t := s.ticket
	t.Hash = hash
	return t, nil
}

func (s *fakeSession) finish(err error) {
	s.finishOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

type blob struct {
	name string
	data []byte
}

// fakeEngine hands out one session and replays blobs to getters.
type fakeEngine struct {
	session    *fakeSession
	provideErr error
	// gate, when set, blocks Provide until it is closed.
	gate    chan struct{}
	entered chan struct{}
	sources []transfer.DataSource

	blobs  []blob
	getErr error
}

func (e *fakeEngine) Provide(ctx context.Context, sources []transfer.DataSource, _ transfer.AuthToken) (Session, transfer.Hash, error) {
	e.sources = sources
	if e.entered != nil {
		close(e.entered)
	}
	if e.gate != nil {
		<-e.gate
	}
	if e.provideErr != nil {
		return nil, transfer.Hash{}, e.provideErr
	}
	return e.session, transfer.HashBytes([]byte("root")), nil
}

func (e *fakeEngine) Get(ctx context.Context, _ transfer.Hash, _ transfer.AuthToken, _ transfer.Options, h transfer.Handler) error {
	if err := h.OnConnected(ctx); err != nil {
		return err
	}
	if err := h.OnCollection(ctx, &transfer.Collection{}); err != nil {
		return err
	}
	for _, b := range e.blobs {
		hash := transfer.HashBytes(b.data)
		ds := transfer.NewDataStream(bytes.NewReader(b.data), hash, int64(len(b.data)))
		if _, err := h.OnBlob(ctx, hash, ds, b.name); err != nil {
			return err
		}
	}
	return e.getErr
}

func waitDone(t *testing.T, p *Provider) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("provider did not settle")
	}
}

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
