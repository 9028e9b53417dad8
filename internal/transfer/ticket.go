package transfer

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrInvalidTicket = errors.New("invalid ticket")

const (
	ticketFieldAddr  protowire.Number = 1
	ticketFieldPeer  protowire.Number = 2
	ticketFieldHash  protowire.Number = 3
	ticketFieldToken protowire.Number = 4
)

// Ticket carries everything a getter needs to fetch a collection.
type Ticket struct {
	Addr   string
	PeerID PeerID
	Hash   Hash
	Token  AuthToken
}

// MarshalBinary encodes the ticket as protobuf wire format.
func (t Ticket) MarshalBinary() ([]byte, error) {
	if t.Addr == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidTicket)
	}
	b := make([]byte, 0, len(t.Addr)+3*34+2)
	b = protowire.AppendTag(b, ticketFieldAddr, protowire.BytesType)
	b = protowire.AppendString(b, t.Addr)
	b = protowire.AppendTag(b, ticketFieldPeer, protowire.BytesType)
	b = protowire.AppendBytes(b, t.PeerID[:])
	b = protowire.AppendTag(b, ticketFieldHash, protowire.BytesType)
	b = protowire.AppendBytes(b, t.Hash[:])
	b = protowire.AppendTag(b, ticketFieldToken, protowire.BytesType)
	b = protowire.AppendBytes(b, t.Token[:])
	return b, nil
}

// UnmarshalBinary decodes a ticket. Unknown fields are skipped; every known
// field is required.
func (t *Ticket) UnmarshalBinary(b []byte) error {
	var (
		out  Ticket
		seen uint8
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrInvalidTicket, protowire.ParseError(n))
		}
		b = b[n:]

		if typ != protowire.BytesType || num < ticketFieldAddr || num > ticketFieldToken {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %w", ErrInvalidTicket, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrInvalidTicket, protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case ticketFieldAddr:
			out.Addr = string(v)
		case ticketFieldPeer:
			if len(v) != len(out.PeerID) {
				return fmt.Errorf("%w: peer id has %d bytes", ErrInvalidTicket, len(v))
			}
			copy(out.PeerID[:], v)
		case ticketFieldHash:
			h, err := hashFromSlice(v)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidTicket, err)
			}
			out.Hash = h
		case ticketFieldToken:
			if len(v) != TokenSize {
				return fmt.Errorf("%w: token has %d bytes", ErrInvalidTicket, len(v))
			}
			copy(out.Token[:], v)
		}
		seen |= 1 << num
	}

	const all = 1<<ticketFieldAddr | 1<<ticketFieldPeer | 1<<ticketFieldHash | 1<<ticketFieldToken
	if seen != all || out.Addr == "" {
		return fmt.Errorf("%w: missing fields", ErrInvalidTicket)
	}
	*t = out
	return nil
}
