// Package cryptox seals database snapshots with a passphrase.
//
// A sealed stream is the zstd-compressed plaintext encrypted to an age scrypt
// recipient. The passphrase is the transfer auth token, so a snapshot can
// only be opened by whoever holds the capability ticket.
package cryptox

import (
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// DefaultWorkFactor is the scrypt cost (log2) used when the caller passes 0.
const DefaultWorkFactor = 18

// maxWorkFactor is the highest scrypt cost Open accepts.
const maxWorkFactor = 22

var ErrEmptyPassphrase = errors.New("empty passphrase")

// Seal compresses src and encrypts it to dst under passphrase.
func Seal(dst io.Writer, src io.Reader, passphrase string, workFactor int) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(workFactor)

	encrypted, err := age.Encrypt(dst, recipient)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}

	compressed, err := zstd.NewWriter(encrypted, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd encoder: %w", err)
	}

	if _, err := io.Copy(compressed, src); err != nil {
		compressed.Close()
		return fmt.Errorf("sealing: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	return nil
}

// Open reverses Seal. A wrong passphrase fails before anything is written
// to dst.
func Open(dst io.Writer, src io.Reader, passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}
	identity.SetMaxWorkFactor(maxWorkFactor)

	plain, err := age.Decrypt(src, identity)
	if err != nil {
		return fmt.Errorf("decrypting: %w", err)
	}

	dec, err := zstd.NewReader(plain)
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	if _, err := io.Copy(dst, dec); err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	return nil
}

// SealFile seals the file at src into a new file at dst.
func SealFile(dst, src, passphrase string, workFactor int) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(dst, func(w io.Writer) error {
		return Seal(w, in, passphrase, workFactor)
	})
}

// OpenFile opens the sealed file at src into a new plaintext file at dst.
func OpenFile(dst, src, passphrase string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	return writeFile(dst, func(w io.Writer) error {
		return Open(w, in, passphrase)
	})
}

// writeFile creates path, runs fn on it and removes the file again if
// anything fails.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := fn(out); err != nil {
		return err
	}
	return out.Sync()
}
