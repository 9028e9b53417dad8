package transfer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const TokenSize = 32

var ErrInvalidToken = errors.New("invalid auth token")

// AuthToken is the shared secret a getter presents to a provider. Its text
// form is lowercase hex.
type AuthToken [TokenSize]byte

func NewAuthToken() (AuthToken, error) {
	var t AuthToken
	if _, err := rand.Read(t[:]); err != nil {
		return t, fmt.Errorf("generate auth token: %w", err)
	}
	return t, nil
}

func (t AuthToken) String() string {
	return hex.EncodeToString(t[:])
}

// Equal compares in constant time.
func (t AuthToken) Equal(o AuthToken) bool {
	return equalBytes(t[:], o[:])
}

func (t AuthToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *AuthToken) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil || len(b) != TokenSize {
		return ErrInvalidToken
	}
	copy(t[:], b)
	return nil
}
