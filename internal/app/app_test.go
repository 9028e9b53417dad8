package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/stretchr/testify/assert"
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
	cfg.LogLevel = "error"
	cfg.Normalize()
	return cfg
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	a, err := NewApp(context.Background(), testConfig(t), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, out
}

func TestRun_Usage(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.ErrorIs(t, a.Run(ctx, nil), ErrUsage)
	assert.Contains(t, out.String(), "usage:")

	require.ErrorIs(t, a.Run(ctx, []string{"frobnicate"}), ErrUsage)
	require.ErrorIs(t, a.Run(ctx, []string{"init"}), ErrUsage)
	require.ErrorIs(t, a.Run(ctx, []string{"receive"}), ErrUsage)

	out.Reset()
	require.NoError(t, a.Run(ctx, []string{"help"}))
	assert.Contains(t, out.String(), "receive <payload>")
}

func TestRun_InitNoteListStatus(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "(unconfigured)")

	require.NoError(t, a.Run(ctx, []string{"init", "alice@example.org"}))
	require.ErrorIs(t, a.Run(ctx, []string{"init", "alice@example.org"}), common.ErrConfig)

	out.Reset()
	require.NoError(t, a.Run(ctx, []string{"list"}))
	assert.Contains(t, out.String(), "no entries")

	require.NoError(t, a.Run(ctx, []string{"note", "groceries", "milk", "eggs"}))
	out.Reset()
	require.NoError(t, a.Run(ctx, []string{"list"}))
	assert.Contains(t, out.String(), "groceries")

	out.Reset()
	require.NoError(t, a.Run(ctx, []string{"status"}))
	assert.Contains(t, out.String(), "alice@example.org")
	assert.Contains(t, out.String(), "entries:  1")
}

func TestRun_ReceiveRejectsNonBackupCode(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.Run(context.Background(), []string{"receive", "https://example.org"})
	require.ErrorIs(t, err, common.ErrConfig)
}

func TestRun_ProvideRequiresConfiguredAccount(t *testing.T) {
	a, _ := newTestApp(t)
	err := a.Run(context.Background(), []string{"provide"})
	require.ErrorIs(t, err, common.ErrConfig)
}

func TestRun_ProvideAndReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	src, srcOut := newTestApp(t)
	require.NoError(t, src.Run(ctx, []string{"init", "alice@example.org"}))
	require.NoError(t, src.Run(ctx, []string{"note", "groceries", "milk"}))

	payloads := make(chan string, 1)
	src.ready = func(p string) { payloads <- p }

	provided := make(chan error, 1)
	go func() { provided <- src.Run(ctx, []string{"provide"}) }()

	var payload string
	select {
	case payload = <-payloads:
	case err := <-provided:
		t.Fatalf("provide returned early: %v", err)
	case <-ctx.Done():
		t.Fatal("provider never became ready")
	}

	dst, dstOut := newTestApp(t)
	require.NoError(t, dst.Run(ctx, []string{"receive", payload}))
	assert.Contains(t, dstOut.String(), "account alice@example.org received")

	require.NoError(t, <-provided)
	assert.Contains(t, srcOut.String(), "backup transferred")

	dstOut.Reset()
	require.NoError(t, dst.Run(ctx, []string{"list"}))
	assert.Contains(t, dstOut.String(), "groceries")
}

func TestStop_CancelsProvide(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, _ := newTestApp(t)
	require.NoError(t, a.Run(ctx, []string{"init", "alice@example.org"}))

	ready := make(chan struct{})
	a.ready = func(string) { close(ready) }

	provided := make(chan error, 1)
	go func() { provided <- a.Run(ctx, []string{"provide"}) }()

	select {
	case <-ready:
	case <-ctx.Done():
		t.Fatal("provider never became ready")
	}
	a.Stop(ctx)

	require.ErrorIs(t, <-provided, common.ErrCancelled)
}
