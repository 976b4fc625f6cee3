// Package transport moves configuration archives between the node and a remote,
// dispatching on the remote URL's scheme.
//
// Backends make exactly one attempt per call. Retrying is left to the caller
// (the daemon retries implicitly on its next poll).
package transport

import (
	"context"
	"io"
	"net/url"
)

// Transport is the capability every remote backend provides.
type Transport interface {
	// FetchVersionTag returns an opaque token that changes whenever the remote content changes.
	FetchVersionTag(ctx context.Context, remote *url.URL) (string, error)
	// Pull opens the raw remote content. The caller must Close it.
	Pull(ctx context.Context, remote *url.URL) (io.ReadCloser, error)
	// Push replaces the remote content with everything read from r.
	Push(ctx context.Context, r io.Reader, remote *url.URL) error
}

// redact renders a remote for logs and errors without credentials.
func redact(remote *url.URL) string {
	if remote == nil {
		return ""
	}
	return remote.Redacted()
}
