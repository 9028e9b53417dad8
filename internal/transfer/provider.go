package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/keeperlink/internal/logging"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"
)

// Provider serves one Database to at most one getter at a time until it is
// aborted or its server fails.
type Provider struct {
	db     *Database
	token  AuthToken
	peer   PeerID
	addr   string
	lis    net.Listener
	srv    *grpc.Server
	events *Broadcaster
	logger logging.Logger
	grace  time.Duration

	busy atomic.Bool

	abortOnce sync.Once
	aborted   atomic.Bool
	stopped   chan struct{}

	done chan struct{}
	err  error
}

func newProvider(lis net.Listener, db *Database, token AuthToken, cert identity, n *Node) (*Provider, error) {
	addr, err := advertisedAddr(lis.Addr())
	if err != nil {
		return nil, err
	}

	grace := n.ShutdownGrace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	p := &Provider{
		db:      db,
		token:   token,
		peer:    cert.peer,
		addr:    addr,
		lis:     lis,
		events:  NewBroadcaster(n.EventBufferSize),
		logger:  n.logger().With("component", "provider", "peer", cert.peer.ShortString()),
		grace:   grace,
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}

	p.srv = grpc.NewServer(
		grpc.Creds(credentials.NewTLS(serverTLSConfig(cert.cert))),
		grpc.ForceServerCodec(cborCodec{}),
	)
	p.srv.RegisterService(&serviceDesc, p)
	return p, nil
}

func (p *Provider) serve(ctx context.Context) {
	p.logger.Info(ctx, "providing collection",
		"addr", p.addr,
		"hash", p.db.Root().String(),
		"blobs", len(p.db.collection.Blobs),
		"size", humanize.Bytes(uint64(p.db.collection.TotalSize())))

	go func() {
		err := p.srv.Serve(p.lis)
		if p.aborted.Load() {
			<-p.stopped
			err = nil
		} else {
			p.srv.Stop()
			if err == nil {
				err = errors.New("provider server stopped unexpectedly")
			}
		}
		p.err = err
		p.events.Close()
		close(p.done)
	}()
}

// Subscribe returns a new event subscription.
func (p *Provider) Subscribe() *Subscription { return p.events.Subscribe() }

// Done is closed once the server has shut down.
func (p *Provider) Done() <-chan struct{} { return p.done }

// Err is valid after Done is closed. It is nil after Abort.
func (p *Provider) Err() error {
	<-p.done
	return p.err
}

func (p *Provider) PeerID() PeerID { return p.peer }
func (p *Provider) Addr() string   { return p.addr }
func (p *Provider) Hash() Hash     { return p.db.Root() }

// Ticket returns the ticket for hash, which must be the served root.
func (p *Provider) Ticket(hash Hash) (Ticket, error) {
	if hash != p.db.Root() {
		return Ticket{}, fmt.Errorf("%w: %s is not provided here", ErrInvalidTicket, hash)
	}
	return Ticket{Addr: p.addr, PeerID: p.peer, Hash: hash, Token: p.token}, nil
}

// Abort shuts the server down without blocking. In-flight streams get
// ShutdownGrace to finish before connections are closed.
func (p *Provider) Abort() {
	p.abortOnce.Do(func() {
		p.aborted.Store(true)
		go func() {
			defer close(p.stopped)
			graceful := make(chan struct{})
			go func() {
				p.srv.GracefulStop()
				close(graceful)
			}()
			select {
			case <-graceful:
			case <-time.After(p.grace):
				p.srv.Stop()
				<-graceful
			}
		}()
	})
}

// Get implements the streaming endpoint.
func (p *Provider) Get(ctx context.Context, req *getRequest, stream grpc.ServerStream) error {
	connID := uuid.NewString()
	logger := p.logger.With("conn", connID)
	p.events.Publish(Event{Kind: EventClientConnected, ConnectionID: connID})

	if !p.busy.CompareAndSwap(false, true) {
		logger.Warn(ctx, "rejecting concurrent request")
		return status.Error(codes.ResourceExhausted, "a transfer is already in progress")
	}
	defer p.busy.Store(false)

	if !p.token.Equal(req.Token) {
		logger.Warn(ctx, "rejecting request with wrong token")
		return status.Error(codes.Unauthenticated, "invalid auth token")
	}
	p.events.Publish(Event{Kind: EventGetRequestReceived, ConnectionID: connID, Hash: req.Hash})

	if req.Hash != p.db.Root() {
		return status.Errorf(codes.NotFound, "collection %s not found", req.Hash)
	}

	start := time.Now()
	if err := p.send(ctx, stream, connID); err != nil {
		logger.Warn(ctx, "transfer aborted", "err", err)
		p.events.Publish(Event{Kind: EventTransferAborted, ConnectionID: connID, Hash: req.Hash, Reason: err.Error()})
		return err
	}

	size := p.db.collection.TotalSize()
	p.events.Publish(Event{Kind: EventTransferCollectionCompleted, ConnectionID: connID, Hash: req.Hash, Size: size})
	logger.Info(ctx, "transfer completed",
		"size", humanize.Bytes(uint64(size)),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (p *Provider) send(ctx context.Context, stream grpc.ServerStream, connID string) error {
	if err := stream.SendMsg(&frame{Collection: p.db.encoded}); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	for i, blob := range p.db.collection.Blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stream.SendMsg(&frame{Blob: &blob}); err != nil {
			return err
		}
		if err := p.sendFile(stream, p.db.paths[i], blob.Size, buf); err != nil {
			return fmt.Errorf("send %s: %w", blob.Name, err)
		}
		p.events.Publish(Event{
			Kind:         EventTransferBlobCompleted,
			ConnectionID: connID,
			Hash:         blob.Hash,
			Name:         blob.Name,
			Size:         blob.Size,
		})
	}
	return nil
}

// sendFile streams exactly size bytes of path. A file that shrank since it
// was hashed is an error; one that grew is truncated to size and will fail
// verification on the getter if its prefix changed.
func (p *Provider) sendFile(stream grpc.ServerStream, path string, size int64, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := io.LimitReader(f, size)
	var sent int64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if serr := stream.SendMsg(&frame{Data: buf[:n]}); serr != nil {
				return serr
			}
			sent += int64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if sent != size {
		return fmt.Errorf("file changed: sent %d of %d bytes", sent, size)
	}
	return nil
}

// advertisedAddr replaces an unspecified listen IP with the first
// non-loopback IPv4 address of the host.
func advertisedAddr(a net.Addr) (string, error) {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return a.String(), nil
	}
	if !tcp.IP.IsUnspecified() {
		return tcp.String(), nil
	}

	ip := net.IPv4(127, 0, 0, 1)
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}
	for _, ia := range addrs {
		ipn, ok := ia.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() || ipn.IP.To4() == nil {
			continue
		}
		ip = ipn.IP.To4()
		break
	}
	return net.JoinHostPort(ip.String(), fmt.Sprint(tcp.Port)), nil
}
