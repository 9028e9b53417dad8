// Package common defines shared constants, sentinel errors and small helpers
// used across keeperlink components. Callers should use errors.Is to match
// the error values.
package common

import "errors"

var (
	// Configuration / precondition errors: wrong capability kind, account in
	// use, background I/O running, missing secret key, staging dir aliasing.
	ErrConfig = errors.New("configuration error")

	// Staging errors on the provider side: export, enumeration, engine start.
	ErrStaging = errors.New("staging error")

	// Protocol errors: nameless or malformed blobs, aborted transfers,
	// missed events.
	ErrProtocol = errors.New("protocol error")

	// Database import errors on the getter side.
	ErrImport = errors.New("import error")

	// The operation was cancelled externally.
	ErrCancelled = errors.New("cancelled")

	// The ongoing-operation slot is already held.
	ErrBusy = errors.New("another operation is already running")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)
