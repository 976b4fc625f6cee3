package helpers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/url"
	"sync"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// MemoryTransport keeps remote objects in memory. Version tags are content hashes
// unless overridden with SetTag.
type MemoryTransport struct {
	mu      sync.Mutex
	objects map[string][]byte
	tags    map[string]string

	// Injected failures, returned by the matching operation when set.
	TagErr  error
	PullErr error
	PushErr error

	TagCalls  int
	PullCalls int
	PushCalls int
}

// NewMemoryTransport returns an empty in-memory remote.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{objects: map[string][]byte{}, tags: map[string]string{}}
}

// Put stores content at remote under tag (the content hash when tag is empty).
func (m *MemoryTransport) Put(remote string, content []byte, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tag == "" {
		sum := sha256.Sum256(content)
		tag = hex.EncodeToString(sum[:])
	}
	m.objects[remote] = append([]byte(nil), content...)
	m.tags[remote] = tag
}

// SetTag overrides the tag reported for remote.
func (m *MemoryTransport) SetTag(remote, tag string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags[remote] = tag
}

// Object returns the stored content for remote.
func (m *MemoryTransport) Object(remote string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[remote]
	return b, ok
}

// Calls returns the total number of transport calls.
func (m *MemoryTransport) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.TagCalls + m.PullCalls + m.PushCalls
}

func (m *MemoryTransport) FetchVersionTag(_ context.Context, remote *url.URL) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TagCalls++
	if m.TagErr != nil {
		return "", m.TagErr
	}
	tag, ok := m.tags[remote.String()]
	if !ok {
		return "", syncerrors.TransportFailed("fetch version tag", remote.String(), io.ErrUnexpectedEOF)
	}
	return tag, nil
}

func (m *MemoryTransport) Pull(_ context.Context, remote *url.URL) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PullCalls++
	if m.PullErr != nil {
		return nil, m.PullErr
	}
	b, ok := m.objects[remote.String()]
	if !ok {
		return nil, syncerrors.TransportFailed("pull", remote.String(), io.ErrUnexpectedEOF)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryTransport) Push(_ context.Context, r io.Reader, remote *url.URL) error {
	m.mu.Lock()
	m.PushCalls++
	pushErr := m.PushErr
	m.mu.Unlock()
	if pushErr != nil {
		return pushErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.Put(remote.String(), b, "")
	return nil
}

// Activation records one call to RecordingActivator.
type Activation struct {
	Dir           string
	Configuration string
	// Marker reports whether the marker file was present at activation time.
	Marker bool
}

// RecordingActivator records activations and optionally fails them.
type RecordingActivator struct {
	mu    sync.Mutex
	Err   error
	calls []Activation
	// MarkerName is checked for presence at activation time (flake.nix when empty).
	MarkerName string
}

func (a *RecordingActivator) Activate(_ context.Context, dir, configuration string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := a.MarkerName
	if name == "" {
		name = "flake.nix"
	}
	a.calls = append(a.calls, Activation{Dir: dir, Configuration: configuration, Marker: exists(dir, name)})
	return a.Err
}

// Calls returns a copy of the recorded activations.
func (a *RecordingActivator) Calls() []Activation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Activation(nil), a.calls...)
}
