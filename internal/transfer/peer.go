package transfer

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/zeebo/blake3"
)

var ErrPeerMismatch = errors.New("peer identity mismatch")

// PeerID identifies a provider by the BLAKE3 digest of its certificate's
// public key.
type PeerID [32]byte

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// ShortString returns the first 10 hex characters for logs.
func (p PeerID) ShortString() string {
	return p.String()[:10]
}

func peerIDOf(cert *x509.Certificate) PeerID {
	return PeerID(blake3.Sum256(cert.RawSubjectPublicKeyInfo))
}

// newIdentity creates an ephemeral self-signed ed25519 certificate.
func newIdentity() (tls.Certificate, PeerID, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, PeerID{}, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, PeerID{}, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "keeperlink provider"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, pub, priv)
	if err != nil {
		return tls.Certificate{}, PeerID{}, fmt.Errorf("create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, PeerID{}, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
		Leaf:        leaf,
	}
	return cert, peerIDOf(leaf), nil
}

func serverTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
}

// clientTLSConfig accepts exactly the certificate whose public key hashes to
// want. Chain verification is replaced by the pin.
func clientTLSConfig(want PeerID) *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			if len(rawCerts) == 0 {
				return fmt.Errorf("%w: no certificate presented", ErrPeerMismatch)
			}
			cert, err := x509.ParseCertificate(rawCerts[0])
			if err != nil {
				return fmt.Errorf("%w: %w", ErrPeerMismatch, err)
			}
			got := peerIDOf(cert)
			if !equalBytes(got[:], want[:]) {
				return fmt.Errorf("%w: got %s, want %s", ErrPeerMismatch, got.ShortString(), want.ShortString())
			}
			return nil
		},
	}
}
