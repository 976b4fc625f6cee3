// Package manifest checks that a directory is a configuration source by looking
// for its marker file.
package manifest

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// DefaultMarker identifies a flake-based configuration tree.
const DefaultMarker = "flake.nix"

// Verify returns a validation error unless dir contains marker as a regular file.
// An empty marker selects DefaultMarker.
func Verify(dir, marker string) error {
	if marker == "" {
		marker = DefaultMarker
	}
	path := filepath.Join(dir, marker)

	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, fs.ErrInvalid) {
			return syncerrors.ManifestMissing(dir, marker)
		}
		return syncerrors.FilesystemError("stat manifest", err).WithContext("path", path)
	}
	if !info.Mode().IsRegular() {
		return syncerrors.ManifestMissing(dir, marker)
	}
	return nil
}

// Marker binds a marker name so callers can pass a single verifier around.
type Marker string

// Verify checks dir against m.
func (m Marker) Verify(dir string) error { return Verify(dir, string(m)) }

// Name returns the marker file name, falling back to DefaultMarker.
func (m Marker) Name() string {
	if m == "" {
		return DefaultMarker
	}
	return string(m)
}
