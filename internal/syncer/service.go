// Package syncer wires transport, archive codec, manifest check and activator
// into the operations exposed on the command line and reused by the daemon.
package syncer

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/url"
	"os"

	"git.home.luguber.info/inful/cfgsync/internal/activate"
	"git.home.luguber.info/inful/cfgsync/internal/archive"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
	"git.home.luguber.info/inful/cfgsync/internal/manifest"
	"git.home.luguber.info/inful/cfgsync/internal/transport"
)

// Service performs one-shot sync operations.
type Service struct {
	transport transport.Transport
	codec     archive.Codec
	activator activate.Activator
	marker    manifest.Marker
}

// New returns a Service. A nil codec selects archive.TarZstd.
func New(t transport.Transport, codec archive.Codec, activator activate.Activator, marker manifest.Marker) *Service {
	if codec == nil {
		codec = archive.TarZstd{}
	}
	return &Service{transport: t, codec: codec, activator: activator, marker: marker}
}

// Marker returns the manifest marker the service validates against.
func (s *Service) Marker() manifest.Marker { return s.marker }

// FetchVersionTag returns the remote's current version tag.
func (s *Service) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	if remote == nil {
		return "", syncerrors.ConfigRequired("remote")
	}
	return s.transport.FetchVersionTag(ctx, remote)
}

// Pull downloads the remote archive and unpacks it under dst, which must then hold
// a valid configuration source.
func (s *Service) Pull(ctx context.Context, remote *url.URL, dst string) error {
	if remote == nil {
		return syncerrors.ConfigRequired("remote")
	}
	rc, err := s.transport.Pull(ctx, remote)
	if err != nil {
		return err
	}

	unpackErr := s.codec.Unpack(ctx, rc, dst)
	closeErr := rc.Close()
	if unpackErr != nil {
		return unpackErr
	}
	if closeErr != nil {
		return closeErr
	}

	if err := s.marker.Verify(dst); err != nil {
		return err
	}
	slog.Debug("Pulled configuration", logfields.Remote(remote.Redacted()), logfields.Path(dst))
	return nil
}

// Push packs src and uploads it to remote. The manifest is checked before any
// network call is made.
func (s *Service) Push(ctx context.Context, src string, remote *url.URL) error {
	if remote == nil {
		return syncerrors.ConfigRequired("remote")
	}
	if err := s.marker.Verify(src); err != nil {
		return err
	}

	// a failed pack must abort the upload rather than end it early
	pushCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	packDone := make(chan error, 1)
	go func() {
		err := s.codec.Pack(pushCtx, src, pw)
		if err != nil {
			cancel()
		}
		pw.CloseWithError(err)
		packDone <- err
	}()

	pushErr := s.transport.Push(pushCtx, pr, remote)
	// unblock the packer if the upload stopped reading early
	_ = pr.Close()
	if packErr := <-packDone; packErr != nil && !stderrors.Is(packErr, io.ErrClosedPipe) {
		return packErr
	}
	if pushErr != nil {
		return pushErr
	}

	slog.Info("Pushed configuration", logfields.Remote(remote.Redacted()), logfields.Path(src))
	return nil
}

// Pack writes the archive of src to a new file at dst. An existing dst is never overwritten.
func (s *Service) Pack(ctx context.Context, src, dst string) error {
	if err := s.marker.Verify(src); err != nil {
		return err
	}

	// #nosec G304 - dst is an operator-supplied output path
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if stderrors.Is(err, os.ErrExist) {
			return syncerrors.ValidationFailed("dst", dst+" already exists")
		}
		return syncerrors.FilesystemError("create archive", err).WithContext("path", dst)
	}

	packErr := s.codec.Pack(ctx, src, f)
	closeErr := f.Close()
	if packErr == nil && closeErr != nil {
		packErr = syncerrors.FilesystemError("close archive", closeErr).WithContext("path", dst)
	}
	if packErr != nil {
		_ = os.Remove(dst)
		return packErr
	}
	return nil
}

// Activate applies the configuration found in src.
func (s *Service) Activate(ctx context.Context, src, configuration string) error {
	return s.activator.Activate(ctx, src, configuration)
}
