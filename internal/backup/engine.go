package backup

import (
	"context"

	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

// Events is a single-reader stream of transfer events.
type Events interface {
	C() <-chan transfer.Event
	// Lagged is closed once events were dropped before being read.
	Lagged() <-chan struct{}
}

// Session is a listening provider.
type Session interface {
	Subscribe() Events
	// Done is closed when the session has shut down; Err then reports how.
	Done() <-chan struct{}
	Err() error
	// Abort asks the session to shut down and returns immediately.
	Abort()
	Ticket(hash transfer.Hash) (transfer.Ticket, error)
}

// Engine is the transfer machinery the backup flows run on.
type Engine interface {
	Provide(ctx context.Context, sources []transfer.DataSource, token transfer.AuthToken) (Session, transfer.Hash, error)
	Get(ctx context.Context, hash transfer.Hash, token transfer.AuthToken, opts transfer.Options, h transfer.Handler) error
}

// NewEngine adapts a transfer node.
func NewEngine(n *transfer.Node) Engine {
	return &nodeEngine{node: n}
}

type nodeEngine struct {
	node *transfer.Node
}

func (e *nodeEngine) Provide(ctx context.Context, sources []transfer.DataSource, token transfer.AuthToken) (Session, transfer.Hash, error) {
	p, hash, err := e.node.Provide(ctx, sources, token)
	if err != nil {
		return nil, transfer.Hash{}, err
	}
	return providerSession{p}, hash, nil
}

func (e *nodeEngine) Get(ctx context.Context, hash transfer.Hash, token transfer.AuthToken, opts transfer.Options, h transfer.Handler) error {
	_, err := e.node.Get(ctx, hash, token, opts, h)
	return err
}

type providerSession struct {
	*transfer.Provider
}

func (s providerSession) Subscribe() Events {
	return s.Provider.Subscribe()
}
