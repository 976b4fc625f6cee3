package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

func TestVerify(t *testing.T) {
	dir := t.TempDir()

	err := Verify(dir, "")
	require.Error(t, err)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryValidation))
	require.Contains(t, err.Error(), "flake.nix")

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultMarker), []byte("{}"), 0o600))
	require.NoError(t, Verify(dir, ""))
	require.NoError(t, Marker("").Verify(dir))
}

func TestVerify_CustomMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configuration.nix"), nil, 0o600))

	require.NoError(t, Verify(dir, "configuration.nix"))
	require.Error(t, Verify(dir, "flake.nix"))
	require.Equal(t, "configuration.nix", Marker("configuration.nix").Name())
	require.Equal(t, DefaultMarker, Marker("").Name())
}

func TestVerify_DirectoryIsNotAMarker(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, DefaultMarker), 0o750))

	err := Verify(dir, "")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryValidation))
}

func TestVerify_MissingDirectory(t *testing.T) {
	err := Verify(filepath.Join(t.TempDir(), "absent"), "")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryValidation))
}
