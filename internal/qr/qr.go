// Package qr parses and formats the payloads carried by out-of-band QR codes.
package qr

import (
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/keeperlink/internal/common"
	"github.com/dmitrijs2005/keeperlink/internal/transfer"
)

var ErrInvalidPayload = errors.New("invalid qr payload")

// Kind tells the QR variants apart.
type Kind int

const (
	KindBackup Kind = iota + 1
	KindURL
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindBackup:
		return "backup"
	case KindURL:
		return "url"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Qr is the decoded content of a scanned code. The set of implementations is
// closed: Backup, URL and Text.
type Qr interface {
	Kind() Kind
	isQr()
}

// Backup is a capability to fetch an account backup.
type Backup struct {
	Ticket transfer.Ticket
}

type URL struct {
	URL string
}

type Text struct {
	Text string
}

func (Backup) Kind() Kind { return KindBackup }
func (URL) Kind() Kind    { return KindURL }
func (Text) Kind() Kind   { return KindText }

func (Backup) isQr() {}
func (URL) isQr()    {}
func (Text) isQr()   {}

// Upper-case, unpadded base32 keeps the payload inside the QR alphanumeric
// character set.
var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Parse decodes a scanned payload. A malformed backup payload is an error;
// anything unrecognised is returned as Text.
func Parse(s string) (Qr, error) {
	s = strings.TrimSpace(s)

	if rest, ok := cutPrefixFold(s, common.BackupQRScheme); ok {
		b, err := encoding.DecodeString(strings.ToUpper(rest))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		var t transfer.Ticket
		if err := t.UnmarshalBinary(b); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return Backup{Ticket: t}, nil
	}

	if u, err := url.Parse(s); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return URL{URL: s}, nil
	}
	return Text{Text: s}, nil
}

// Format renders q as a QR payload.
func Format(q Qr) (string, error) {
	switch v := q.(type) {
	case Backup:
		b, err := v.Ticket.MarshalBinary()
		if err != nil {
			return "", err
		}
		return common.BackupQRScheme + encoding.EncodeToString(b), nil
	case URL:
		return v.URL, nil
	case Text:
		return v.Text, nil
	default:
		return "", fmt.Errorf("%w: unsupported kind %T", ErrInvalidPayload, q)
	}
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}
