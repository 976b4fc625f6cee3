package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"os"
	"path/filepath"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// File serves remotes on a locally mounted filesystem (file:///srv/cfg.tar.zst).
// The version tag is the SHA-256 of the file's content.
type File struct{}

// NewFile returns the file backend.
func NewFile() *File { return &File{} }

func filePath(remote *url.URL) (string, error) {
	p := remote.Path
	if p == "" {
		p = remote.Opaque
	}
	if p == "" || (remote.Host != "" && remote.Host != "localhost") {
		return "", syncerrors.ConfigInvalid("remote", "file remote needs an absolute local path: "+redact(remote))
	}
	return filepath.FromSlash(p), nil
}

func (f *File) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	path, err := filePath(remote)
	if err != nil {
		return "", err
	}

	// #nosec G304 - path is the operator-configured remote
	fh, err := os.Open(path)
	if err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), err)
	}
	defer func() { _ = fh.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (f *File) Pull(_ context.Context, remote *url.URL) (io.ReadCloser, error) {
	path, err := filePath(remote)
	if err != nil {
		return nil, err
	}
	// #nosec G304 - path is the operator-configured remote
	fh, err := os.Open(path)
	if err != nil {
		return nil, syncerrors.TransportFailed("pull", redact(remote), err)
	}
	return fh, nil
}

// Push writes through a temporary file and a rename, so readers never see a partial object.
func (f *File) Push(ctx context.Context, r io.Reader, remote *url.URL) error {
	path, err := filePath(remote)
	if err != nil {
		return err
	}
	fail := func(err error) error { return syncerrors.TransportFailed("push", redact(remote), err) }

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fail(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(err)
	}
	return nil
}
