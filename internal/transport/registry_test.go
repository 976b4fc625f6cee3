package transport

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

type fakeTransport struct {
	tag    string
	object []byte
	pushed []byte
	calls  []string
}

func (f *fakeTransport) FetchVersionTag(_ context.Context, remote *url.URL) (string, error) {
	f.calls = append(f.calls, "tag "+remote.String())
	return f.tag, nil
}

func (f *fakeTransport) Pull(_ context.Context, remote *url.URL) (io.ReadCloser, error) {
	f.calls = append(f.calls, "pull "+remote.String())
	return io.NopCloser(bytes.NewReader(f.object)), nil
}

func (f *fakeTransport) Push(_ context.Context, r io.Reader, remote *url.URL) error {
	f.calls = append(f.calls, "push "+remote.String())
	b, err := io.ReadAll(r)
	f.pushed = b
	return err
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestRegistryDispatch(t *testing.T) {
	fake := &fakeTransport{tag: "v1", object: []byte("payload")}
	r := NewRegistry()
	r.Register("OBJ", fake)
	ctx := context.Background()
	remote := mustParse(t, "obj://bucket/cfg.tar.zst")

	tag, err := r.FetchVersionTag(ctx, remote)
	require.NoError(t, err)
	require.Equal(t, "v1", tag)

	rc, err := r.Pull(ctx, remote)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "payload", string(b))

	require.NoError(t, r.Push(ctx, strings.NewReader("up"), remote))
	require.Equal(t, "up", string(fake.pushed))
	require.Len(t, fake.calls, 3)
}

func TestRegistryUnsupportedScheme(t *testing.T) {
	r := NewRegistry()
	r.Register("s3", &fakeTransport{})
	ctx := context.Background()
	remote := mustParse(t, "ftp://host/cfg")

	_, err := r.FetchVersionTag(ctx, remote)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryUnsupportedScheme))
	require.Contains(t, err.Error(), "protocol not supported: ftp")
	require.False(t, syncerrors.IsRetryable(err))

	_, err = r.Pull(ctx, remote)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryUnsupportedScheme))

	err = r.Push(ctx, strings.NewReader(""), remote)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryUnsupportedScheme))
}

func TestRegistryNilRemote(t *testing.T) {
	_, err := NewRegistry().Lookup(nil)
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryConfig))
}

func TestNewDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"file", "git+file", "git+http", "git+https", "git+ssh", "s3"}, r.Schemes())

	s3, err := r.Lookup(mustParse(t, "s3://b/k"))
	require.NoError(t, err)
	require.IsType(t, &S3CLI{}, s3)

	r, err = NewDefaultRegistry(Options{S3Driver: DriverSDK, Region: "eu-north-1"})
	require.NoError(t, err)
	s3, err = r.Lookup(mustParse(t, "s3://b/k"))
	require.NoError(t, err)
	require.IsType(t, &S3SDK{}, s3)

	_, err = NewDefaultRegistry(Options{S3Driver: "carrier-pigeon"})
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryConfig))
}
