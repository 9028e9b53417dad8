// Package app wires the account, the transfer engine and the backup flows
// into the keeperlink command-line interface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/keeperlink/internal/account"
	"github.com/dmitrijs2005/keeperlink/internal/backup"
	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

var ErrUsage = errors.New("usage error")

const usage = `usage: keeperlink [flags] <command> [args]

commands:
  init <addr>            configure a fresh account
  note <title> [text]    add a note to the account
  list                   list account entries
  status                 show account state
  provide                offer this account to a second device
  receive <payload>      fetch an account offered by another device
`

type App struct {
	config *config.Config
	logger logging.Logger
	out    io.Writer
	acct   *account.Account
	engine backup.Engine

	// ready is called with the QR payload once a provider is listening.
	ready func(payload string)
}

func NewApp(ctx context.Context, cfg *config.Config, out io.Writer) (*App, error) {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	acct, err := account.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open account: %w", err)
	}

	return &App{
		config: cfg,
		logger: logger,
		out:    out,
		acct:   acct,
		engine: backup.NewEngine(transfer.NewNode(cfg, logger)),
	}, nil
}

func (a *App) Close() error {
	return a.acct.Close()
}

// Run executes the command named by args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "init":
		return a.initAccount(ctx, rest)
	case "note":
		return a.addNote(ctx, rest)
	case "list":
		return a.list(ctx)
	case "status":
		return a.status(ctx)
	case "provide":
		return a.provide(ctx)
	case "receive":
		return a.receive(ctx, rest)
	case "help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// Stop cancels the ongoing provide or receive, if any.
func (a *App) Stop(ctx context.Context) {
	a.acct.StopOngoing(ctx)
}

// InitSignalHandler stops the ongoing operation on SIGINT or SIGTERM.
func (a *App) InitSignalHandler(ctx context.Context) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-sigs:
				a.logger.Info(ctx, "interrupt received")
				a.Stop(ctx)
			case <-ctx.Done():
				signal.Stop(sigs)
				return
			}
		}
	}()
}
