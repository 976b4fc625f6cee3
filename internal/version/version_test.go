package version

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}

	if Version != "unknown" {
		t.Logf("Version is: %s (expected 'unknown' or version set via ldflags)", Version)
	}
}

func TestCommitPrefersLinkedValue(t *testing.T) {
	orig := GitCommit
	t.Cleanup(func() { GitCommit = orig })

	GitCommit = "abc123"
	if got := Commit(); got != "abc123" {
		t.Errorf("Commit() = %q, want abc123", got)
	}

	GitCommit = "unknown"
	if Commit() == "" {
		t.Error("Commit() should never be empty")
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "cfgsync "+Version) {
		t.Errorf("unexpected banner %q", s)
	}
	if !strings.Contains(s, "built "+BuildTime) {
		t.Errorf("banner %q lacks build time", s)
	}
}
