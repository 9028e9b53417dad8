package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
)

// Options address the provider to fetch from.
type Options struct {
	Addr   string
	PeerID PeerID
}

// Handler receives the transfer as it progresses. Blobs are delivered one at
// a time in collection order.
type Handler interface {
	OnConnected(ctx context.Context) error
	OnCollection(ctx context.Context, c *Collection) error
	// OnBlob consumes the blob data. Whatever the handler leaves unread is
	// drained and verified after it returns.
	OnBlob(ctx context.Context, hash Hash, data *DataStream, name string) (*DataStream, error)
}

// Stats summarizes a finished transfer.
type Stats struct {
	Blobs   int
	Bytes   int64
	Elapsed time.Duration
}

// DataStream reads a single blob off the wire and verifies its BLAKE3 hash
// incrementally. The read that consumes the final byte fails with
// ErrHashMismatch instead of letting a corrupt blob reach EOF.
type DataStream struct {
	recv      func() (*frame, error)
	want      Hash
	remaining int64
	buf       []byte
	hasher    *blake3.Hasher
	read      int64
	err       error
}

func newDataStream(recv func() (*frame, error), info BlobInfo) *DataStream {
	return &DataStream{recv: recv, want: info.Hash, remaining: info.Size, hasher: blake3.New()}
}

// NewDataStream verifies r against hash while reading; r must yield exactly
// size bytes.
func NewDataStream(r io.Reader, hash Hash, size int64) *DataStream {
	buf := make([]byte, chunkSize)
	recv := func() (*frame, error) {
		n, err := r.Read(buf)
		if n > 0 {
			return &frame{Data: append([]byte(nil), buf[:n]...)}, nil
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, err
	}
	return newDataStream(recv, BlobInfo{Hash: hash, Size: size})
}

func (d *DataStream) Hash() Hash { return d.want }

// BytesRead reports how many verified-so-far bytes were delivered.
func (d *DataStream) BytesRead() int64 { return d.read }

func (d *DataStream) Read(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(d.buf) == 0 {
		if d.remaining == 0 {
			if err := d.verify(); err != nil {
				return 0, err
			}
			d.err = io.EOF
			return 0, io.EOF
		}
		f, err := d.recv()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			d.err = err
			return 0, err
		}
		if f.Data == nil || f.Blob != nil || f.Collection != nil {
			d.err = fmt.Errorf("%w: expected blob data", ErrUnexpectedFrame)
			return 0, d.err
		}
		if int64(len(f.Data)) > d.remaining {
			d.err = fmt.Errorf("%w: blob longer than announced", ErrUnexpectedFrame)
			return 0, d.err
		}
		d.buf = f.Data
		d.remaining -= int64(len(f.Data))
	}

	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	_, _ = d.hasher.Write(p[:n])
	d.read += int64(n)

	if d.remaining == 0 && len(d.buf) == 0 {
		if err := d.verify(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (d *DataStream) verify() error {
	var got Hash
	copy(got[:], d.hasher.Sum(nil))
	if got != d.want {
		d.err = fmt.Errorf("blob %s: %w", d.want, ErrHashMismatch)
		return d.err
	}
	return nil
}

func (d *DataStream) drain() error {
	_, err := io.Copy(io.Discard, d)
	return err
}

// Get fetches the collection hash from the provider described by opts and
// feeds it to h.
func (n *Node) Get(ctx context.Context, hash Hash, token AuthToken, opts Options, h Handler) (Stats, error) {
	start := time.Now()
	logger := n.logger().With("component", "getter", "peer", opts.PeerID.ShortString())

	conn, err := grpc.NewClient(opts.Addr,
		grpc.WithTransportCredentials(credentials.NewTLS(clientTLSConfig(opts.PeerID))),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(cborCodec{})),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: n.dialTimeout(),
		}),
	)
	if err != nil {
		return Stats{}, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], getMethod)
	if err != nil {
		return Stats{}, err
	}
	if err := stream.SendMsg(&getRequest{Hash: hash, Token: token}); err != nil {
		return Stats{}, recvErr(stream, err)
	}
	if err := stream.CloseSend(); err != nil {
		return Stats{}, err
	}

	recv := func() (*frame, error) {
		f := new(frame)
		if err := stream.RecvMsg(f); err != nil {
			return nil, err
		}
		return f, nil
	}

	first, err := recv()
	if err != nil {
		return Stats{}, err
	}
	if first.Collection == nil {
		return Stats{}, fmt.Errorf("%w: expected collection", ErrUnexpectedFrame)
	}
	if err := h.OnConnected(ctx); err != nil {
		return Stats{}, err
	}
	coll, err := decodeCollection(first.Collection, hash)
	if err != nil {
		return Stats{}, err
	}
	logger.Info(ctx, "collection received",
		"blobs", len(coll.Blobs),
		"size", humanize.Bytes(uint64(coll.TotalSize())))
	if err := h.OnCollection(ctx, coll); err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, want := range coll.Blobs {
		f, err := recv()
		if err != nil {
			return stats, unexpectedEOF(err)
		}
		if f.Blob == nil || *f.Blob != want {
			return stats, fmt.Errorf("%w: expected header for %q", ErrUnexpectedFrame, want.Name)
		}

		ds := newDataStream(recv, want)
		out, err := h.OnBlob(ctx, want.Hash, ds, want.Name)
		if err != nil {
			return stats, err
		}
		if out == nil {
			out = ds
		}
		if err := out.drain(); err != nil {
			return stats, err
		}
		stats.Blobs++
		stats.Bytes += want.Size
	}

	var extra frame
	if err := stream.RecvMsg(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			err = fmt.Errorf("%w: trailing data after collection", ErrUnexpectedFrame)
		}
		return stats, err
	}

	stats.Elapsed = time.Since(start)
	logger.Info(ctx, "transfer finished",
		"blobs", stats.Blobs,
		"size", humanize.Bytes(uint64(stats.Bytes)),
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// recvErr surfaces the server status behind a failed send.
func recvErr(stream grpc.ClientStream, sendErr error) error {
	if !errors.Is(sendErr, io.EOF) {
		return sendErr
	}
	var f frame
	if err := stream.RecvMsg(&f); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return sendErr
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("collection incomplete: %w", io.ErrUnexpectedEOF)
	}
	return err
}
