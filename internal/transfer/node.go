package transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/config"
	"github.com/dmitrijs2005/keeperlink/internal/logging"
)

// Node holds the engine settings shared by providing and getting.
type Node struct {
	ListenAddr      string
	EventBufferSize int
	ShutdownGrace   time.Duration
	DialTimeout     time.Duration
	Logger          logging.Logger
}

func NewNode(cfg *config.Config, logger logging.Logger) *Node {
	return &Node{
		ListenAddr:      cfg.ListenAddr,
		EventBufferSize: cfg.EventBufferSize,
		ShutdownGrace:   cfg.ShutdownGrace,
		DialTimeout:     cfg.DialTimeout,
		Logger:          logger,
	}
}

type identity struct {
	cert tls.Certificate
	peer PeerID
}

// Provide hashes sources, starts a provider and returns it with the
// collection root hash. The provider runs until aborted.
func (n *Node) Provide(ctx context.Context, sources []DataSource, token AuthToken) (*Provider, Hash, error) {
	db, root, err := CreateCollection(ctx, sources)
	if err != nil {
		return nil, Hash{}, err
	}

	cert, peer, err := newIdentity()
	if err != nil {
		return nil, Hash{}, err
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", n.listenAddr())
	if err != nil {
		return nil, Hash{}, fmt.Errorf("listen %s: %w", n.listenAddr(), err)
	}

	p, err := newProvider(lis, db, token, identity{cert: cert, peer: peer}, n)
	if err != nil {
		_ = lis.Close()
		return nil, Hash{}, err
	}
	p.serve(ctx)
	return p, root, nil
}

func (n *Node) logger() logging.Logger {
	if n.Logger == nil {
		return logging.Discard()
	}
	return n.Logger
}

func (n *Node) listenAddr() string {
	if n.ListenAddr == "" {
		return "0.0.0.0:0"
	}
	return n.ListenAddr
}

func (n *Node) dialTimeout() time.Duration {
	if n.DialTimeout <= 0 {
		return 10 * time.Second
	}
	return n.DialTimeout
}
