package helpers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// SetupTestGitRepo initializes a temporary git repository for testing.
// Returns the repository, its worktree, and the absolute path to the temporary directory.
func SetupTestGitRepo(t *testing.T) (*git.Repository, *git.Worktree, string) {
	t.Helper()

	tempDir := t.TempDir()

	repo, err := git.PlainInit(tempDir, false)
	if err != nil {
		t.Fatalf("failed to initialize git repo: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}

	return repo, w, tempDir
}

// CommitFiles writes files into the worktree, stages them and commits.
func CommitFiles(t *testing.T, w *git.Worktree, dir string, files map[string]string) plumbing.Hash {
	t.Helper()

	WriteTree(t, dir, files)
	for name := range files {
		if _, err := w.Add(filepath.ToSlash(name)); err != nil {
			t.Fatalf("failed to stage %s: %v", name, err)
		}
	}

	hash, err := w.Commit("update configuration", &git.CommitOptions{
		Author: &object.Signature{Name: "ops", Email: "ops@example.com", When: time.Unix(1700000000, 0)},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	return hash
}

// RemoveAndCommit deletes a tracked file and commits the removal.
func RemoveAndCommit(t *testing.T, w *git.Worktree, dir, name string) plumbing.Hash {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, filepath.FromSlash(name))); err != nil {
		t.Fatalf("failed to remove %s: %v", name, err)
	}
	if _, err := w.Remove(name); err != nil {
		t.Fatalf("failed to stage removal of %s: %v", name, err)
	}
	hash, err := w.Commit("remove "+name, &git.CommitOptions{
		Author: &object.Signature{Name: "ops", Email: "ops@example.com", When: time.Unix(1700000100, 0)},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
	return hash
}
