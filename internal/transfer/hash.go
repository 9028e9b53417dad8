package transfer

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

const HashSize = 32

var (
	ErrHashMismatch = errors.New("hash mismatch")
	ErrInvalidHash  = errors.New("invalid hash")
)

// Hash is a BLAKE3-256 digest.
type Hash [HashSize]byte

func HashBytes(b []byte) Hash {
	return Hash(blake3.Sum256(b))
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != HashSize {
		return h, fmt.Errorf("%w: %q", ErrInvalidHash, s)
	}
	copy(h[:], b)
	return h, nil
}

func hashFromSlice(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: %d bytes", ErrInvalidHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// hashFile returns the digest and size of the file at path.
func hashFile(path string) (Hash, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Hash{}, 0, err
	}
	defer f.Close()

	hasher := blake3.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return Hash{}, 0, fmt.Errorf("hash %s: %w", path, err)
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, n, nil
}

func equalBytes(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
