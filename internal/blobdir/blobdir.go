// Package blobdir manages the account's flat directory of media blobs.
package blobdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/keeperlink/internal/common"
)

// Blob is a regular file found in the blob directory.
type Blob struct {
	Name string
	Path string
	Size int64
}

// Contents lists the regular files of dir, sorted by name. The listing is a
// single point-in-time snapshot; files added afterwards are not included.
func Contents(dir string) ([]Blob, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	blobs := make([]Blob, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, Blob{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

// Join resolves a peer-supplied name inside dir. Names must be a single path
// element and must not carry the quarantine suffix.
func Join(dir, name string) (string, error) {
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty blob name", common.ErrProtocol)
	case name == "." || name == "..":
		return "", fmt.Errorf("%w: invalid blob name %q", common.ErrProtocol, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return "", fmt.Errorf("%w: blob name %q is not a plain file name", common.ErrProtocol, name)
	case strings.HasSuffix(name, common.QuarantineSuffix):
		return "", fmt.Errorf("%w: reserved blob name %q", common.ErrProtocol, name)
	}
	return filepath.Join(dir, name), nil
}

// Sweep removes every entry of dir, leaving the directory itself in place.
func Sweep(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SweepQuarantine removes leftover quarantine files and returns how many
// were deleted.
func SweepQuarantine(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), common.QuarantineSuffix) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
