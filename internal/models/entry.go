// Package models defines the records stored in the account database.
package models

import (
	"errors"
	"strings"
	"time"
)

// EntryKind classifies an entry.
type EntryKind string

const (
	EntryKindNote  EntryKind = "note"
	EntryKindLogin EntryKind = "login"
	EntryKindMedia EntryKind = "media"
)

var ErrIncorrectEntry = errors.New("entry must have a kind and a title")

// Entry is a user record of the account. Media entries reference a file in
// the blob directory by name through Body.
type Entry struct {
	ID        string
	Kind      EntryKind
	Title     string
	Body      []byte
	UpdatedAt time.Time
}

// Validate checks the fields required for persistence.
func (e *Entry) Validate() error {
	if e.Kind == "" || strings.TrimSpace(e.Title) == "" {
		return ErrIncorrectEntry
	}
	return nil
}

// DeviceMessage is a locally cached message addressed to this device.
type DeviceMessage struct {
	ID        int64
	Label     string
	Text      string
	CreatedAt time.Time
}
