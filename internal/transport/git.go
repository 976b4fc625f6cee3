package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/cfgsync/internal/archive"
	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/logfields"
)

// GitSchemes are the schemes served by the git backend. The part after "git+"
// is the underlying git transport; the URL fragment selects a branch or tag.
var GitSchemes = []string{"git+https", "git+http", "git+ssh", "git+file"}

// Git serves configuration trees straight from a git repository. The version tag
// is the commit (or tag object) hash of the selected ref; a pull clones that ref
// and streams its working tree as an archive.
type Git struct {
	depth int
}

// NewGit returns the git backend. depth > 0 makes network clones shallow.
func NewGit(depth int) *Git {
	return &Git{depth: depth}
}

// splitGitURL turns git+https://host/repo.git#main into ("https://host/repo.git", "main").
func splitGitURL(remote *url.URL) (string, string, error) {
	scheme, ok := strings.CutPrefix(strings.ToLower(remote.Scheme), "git+")
	if !ok || scheme == "" {
		return "", "", syncerrors.UnsupportedScheme(remote.Scheme)
	}
	u := *remote
	u.Scheme = scheme
	ref := u.Fragment
	u.Fragment, u.RawFragment = "", ""
	return u.String(), ref, nil
}

func (g *Git) FetchVersionTag(ctx context.Context, remote *url.URL) (string, error) {
	repoURL, ref, err := splitGitURL(remote)
	if err != nil {
		return "", err
	}

	r := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := r.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), fmt.Errorf("failed to list remote references: %w", err))
	}

	hash, err := resolveRef(refs, ref)
	if err != nil {
		return "", syncerrors.TransportFailed("fetch version tag", redact(remote), err)
	}
	return hash, nil
}

// resolveRef finds the hash for ref among advertised references. An empty ref means HEAD.
func resolveRef(refs []*plumbing.Reference, ref string) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	var candidates []plumbing.ReferenceName
	switch {
	case ref == "":
		candidates = []plumbing.ReferenceName{plumbing.HEAD}
	case strings.HasPrefix(ref, "refs/"):
		candidates = []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	default:
		candidates = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(ref),
			plumbing.NewTagReferenceName(ref),
		}
	}

	for _, name := range candidates {
		r, ok := byName[name]
		// Follow symbolic references (HEAD -> refs/heads/main) a bounded number of times.
		for hops := 0; ok && r.Type() == plumbing.SymbolicReference && hops < 5; hops++ {
			r, ok = byName[r.Target()]
		}
		if ok && r.Type() == plumbing.HashReference {
			return r.Hash().String(), nil
		}
	}
	if ref == "" {
		ref = "HEAD"
	}
	return "", fmt.Errorf("reference %q not found on remote", ref)
}

func (g *Git) cloneOptions(repoURL, ref string, name plumbing.ReferenceName) *git.CloneOptions {
	opts := &git.CloneOptions{
		URL:          repoURL,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if ref != "" {
		opts.ReferenceName = name
	}
	// The in-process file transport does not negotiate shallow clones.
	if g.depth > 0 && !strings.HasPrefix(repoURL, "file:") {
		opts.Depth = g.depth
	}
	return opts
}

func (g *Git) clone(ctx context.Context, dir, repoURL, ref string) error {
	names := []plumbing.ReferenceName{""}
	switch {
	case strings.HasPrefix(ref, "refs/"):
		names = []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	case ref != "":
		names = []plumbing.ReferenceName{plumbing.NewBranchReferenceName(ref), plumbing.NewTagReferenceName(ref)}
	}

	var err error
	for _, name := range names {
		_, err = git.PlainCloneContext(ctx, dir, false, g.cloneOptions(repoURL, ref, name))
		if err == nil || !isMissingRef(err) {
			return err
		}
		// a failed attempt may leave a partial repository behind
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return rmErr
		}
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return mkErr
		}
	}
	return err
}

func isMissingRef(err error) bool {
	return stderrors.Is(err, plumbing.ErrReferenceNotFound) || stderrors.Is(err, git.NoMatchingRefSpecError{})
}

func (g *Git) Pull(ctx context.Context, remote *url.URL) (io.ReadCloser, error) {
	repoURL, ref, err := splitGitURL(remote)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "cfgsync-git-*")
	if err != nil {
		return nil, syncerrors.FilesystemError("create clone directory", err)
	}
	if err := g.clone(ctx, dir, repoURL, ref); err != nil {
		_ = os.RemoveAll(dir)
		return nil, syncerrors.TransportFailed("pull", redact(remote), fmt.Errorf("failed to clone repository: %w", err))
	}
	slog.Debug("Cloned configuration repository", logfields.Remote(redact(remote)), logfields.Path(dir))

	stream := archive.Stream(ctx, archive.TarZstd{Exclude: []string{".git"}}, dir)
	return &cloneReader{ReadCloser: stream, dir: dir}, nil
}

func (g *Git) Push(context.Context, io.Reader, *url.URL) error {
	return syncerrors.UnsupportedOperation("git", "push")
}

// cloneReader removes the clone once the archive stream is closed.
type cloneReader struct {
	io.ReadCloser
	dir string
}

func (c *cloneReader) Close() error {
	err := c.ReadCloser.Close()
	if rmErr := os.RemoveAll(c.dir); err == nil {
		err = rmErr
	}
	return err
}
