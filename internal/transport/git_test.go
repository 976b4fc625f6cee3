package transport

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cfgsync/internal/archive"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

func TestSplitGitURL(t *testing.T) {
	cases := []struct{ raw, repo, ref string }{
		{"git+https://example.com/org/cfg.git", "https://example.com/org/cfg.git", ""},
		{"git+https://example.com/org/cfg.git#prod", "https://example.com/org/cfg.git", "prod"},
		{"git+ssh://git@example.com/org/cfg.git#refs/tags/v1", "ssh://git@example.com/org/cfg.git", "refs/tags/v1"},
		{"git+file:///srv/cfg#main", "file:///srv/cfg", "main"},
	}
	for _, tc := range cases {
		repo, ref, err := splitGitURL(mustParse(t, tc.raw))
		require.NoError(t, err)
		require.Equal(t, tc.repo, repo)
		require.Equal(t, tc.ref, ref)
	}

	_, _, err := splitGitURL(mustParse(t, "https://example.com/x"))
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryUnsupportedScheme))
}

func TestResolveRef(t *testing.T) {
	main := plumbing.NewHash("1111111111111111111111111111111111111111")
	tag := plumbing.NewHash("2222222222222222222222222222222222222222")
	refs := []*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), main),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v1"), tag),
	}

	cases := map[string]string{
		"":                main.String(),
		"main":            main.String(),
		"v1":              tag.String(),
		"refs/heads/main": main.String(),
	}
	for ref, want := range cases {
		got, err := resolveRef(refs, ref)
		require.NoError(t, err, ref)
		require.Equal(t, want, got, ref)
	}

	_, err := resolveRef(refs, "missing")
	require.Error(t, err)
}

// initRepo creates a repository with one commit containing files and returns its path and head.
func initRepo(t *testing.T, files map[string]string) (string, plumbing.Hash) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	hash, err := wt.Commit("configuration", &git.CommitOptions{
		Author: &object.Signature{Name: "ops", Email: "ops@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(t, err)
	return dir, hash
}

func gitFileURL(dir, ref string) *url.URL {
	u := &url.URL{Scheme: "git+file", Path: filepath.ToSlash(dir)}
	u.Fragment = ref
	return u
}

func TestGit_FetchVersionTagAndPull(t *testing.T) {
	dir, head := initRepo(t, map[string]string{
		"flake.nix":       "{ }",
		"hosts/nodeA.nix": "{ }",
	})
	g := NewGit(1)
	ctx := context.Background()

	tag, err := g.FetchVersionTag(ctx, gitFileURL(dir, ""))
	require.NoError(t, err)
	require.Equal(t, head.String(), tag)

	tag, err = g.FetchVersionTag(ctx, gitFileURL(dir, "master"))
	require.NoError(t, err)
	require.Equal(t, head.String(), tag)

	rc, err := g.Pull(ctx, gitFileURL(dir, "master"))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	dst := t.TempDir()
	require.NoError(t, archive.TarZstd{}.Unpack(ctx, bytes.NewReader(data), dst))
	b, err := os.ReadFile(filepath.Join(dst, "hosts", "nodeA.nix"))
	require.NoError(t, err)
	require.Equal(t, "{ }", string(b))
	_, err = os.Stat(filepath.Join(dst, ".git"))
	require.True(t, os.IsNotExist(err), ".git must not be shipped")
}

func TestGit_MissingRef(t *testing.T) {
	dir, _ := initRepo(t, map[string]string{"flake.nix": "{ }"})
	_, err := NewGit(0).FetchVersionTag(context.Background(), gitFileURL(dir, "no-such-branch"))
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryTransport))
}

func TestGit_PushUnsupported(t *testing.T) {
	err := NewGit(0).Push(context.Background(), strings.NewReader(""), mustParse(t, "git+https://example.com/x.git"))
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryUnsupportedScheme))
}
