package transport

import (
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// Registry maps URL schemes to backends. It is itself a Transport that forwards
// each call to the backend registered for the remote's scheme.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Transport
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Transport)}
}

// Register binds scheme (case-insensitive) to t, replacing any previous binding.
func (r *Registry) Register(scheme string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[strings.ToLower(scheme)] = t
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for s := range r.backends {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the backend for remote's scheme or an unsupported-scheme error.
func (r *Registry) Lookup(remote *url.URL) (Transport, error) {
	if remote == nil {
		return nil, syncerrors.ConfigRequired("remote")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.backends[strings.ToLower(remote.Scheme)]
	if !ok {
		return nil, syncerrors.UnsupportedScheme(remote.Scheme)
	}
	return t, nil
}

func (r *Registry) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	t, err := r.Lookup(remote)
	if err != nil {
		return "", err
	}
	return t.FetchVersionTag(ctx, remote)
}

func (r *Registry) Pull(ctx context.Context, remote *url.URL) (io.ReadCloser, error) {
	t, err := r.Lookup(remote)
	if err != nil {
		return nil, err
	}
	return t.Pull(ctx, remote)
}

func (r *Registry) Push(ctx context.Context, rd io.Reader, remote *url.URL) error {
	t, err := r.Lookup(remote)
	if err != nil {
		return err
	}
	return t.Push(ctx, rd, remote)
}
