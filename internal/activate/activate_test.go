package activate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
	"git.home.luguber.info/inful/cfgsync/internal/manifest"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "activate.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifest.DefaultMarker), []byte("{}"), 0o600))
	return dir
}

func TestArgs(t *testing.T) {
	c := NewCommand(nil, "")
	require.Equal(t, []string{"nixos-rebuild", "switch", "--flake", ".#nodeA"}, c.Args("/tmp/x", "nodeA"))

	c = NewCommand([]string{"apply", "--dir={path}", "{configuration}"}, "")
	require.Equal(t, []string{"apply", "--dir=/srv/cfg", "web"}, c.Args("/srv/cfg", "web"))
}

func TestActivate_RunsInSourceDir(t *testing.T) {
	record := filepath.Join(t.TempDir(), "record")
	script := writeScript(t, `echo "$(pwd) $*" > "`+record+`"`)
	src := sourceDir(t)

	var out bytes.Buffer
	c := NewCommand([]string{script, "{configuration}"}, "", WithOutput(&out, &out))
	require.NoError(t, c.Activate(context.Background(), src, "nodeA"))

	b, err := os.ReadFile(record)
	require.NoError(t, err)
	fields := strings.Fields(string(b))
	require.Equal(t, []string{"nodeA"}, fields[1:])

	want, err := filepath.EvalSymlinks(src)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(fields[0])
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestActivate_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo building >&2\necho 'error: attribute missing' >&2\nexit 3\n")
	var out bytes.Buffer
	c := NewCommand([]string{script}, "", WithOutput(&out, &out))

	err := c.Activate(context.Background(), sourceDir(t), "nodeA")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryActivation))
	require.Contains(t, err.Error(), "attribute missing")
	require.Contains(t, out.String(), "building")
}

func TestActivate_LongStderrKeepsLastLine(t *testing.T) {
	script := writeScript(t, `i=0
while [ $i -lt 3000 ]; do echo "evaluating derivation $i" >&2; i=$((i+1)); done
echo 'error: builder for hello.drv failed' >&2
exit 1
`)
	var out bytes.Buffer
	c := NewCommand([]string{script}, "", WithOutput(&out, &out))

	err := c.Activate(context.Background(), sourceDir(t), "nodeA")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryActivation))
	require.Contains(t, err.Error(), "builder for hello.drv failed")
	require.NotContains(t, err.Error(), "evaluating derivation")
	require.Greater(t, out.Len(), stderrTailBytes)
}

func TestTailWriter(t *testing.T) {
	w := &tailWriter{max: 16}
	for i := 0; i < 100; i++ {
		n, err := w.Write([]byte("0123456789"))
		require.NoError(t, err)
		require.Equal(t, 10, n)
		require.LessOrEqual(t, len(w.buf), 16)
	}
	require.Equal(t, "456789"+"0123456789", w.String())

	n, err := w.Write([]byte(strings.Repeat("x", 40) + "tail"))
	require.NoError(t, err)
	require.Equal(t, 44, n)
	require.Equal(t, strings.Repeat("x", 12)+"tail", w.String())

	short := &tailWriter{max: 16}
	_, _ = short.Write([]byte("abc"))
	_, _ = short.Write([]byte("def"))
	require.Equal(t, "abcdef", short.String())
}

func TestActivate_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")
	var out bytes.Buffer
	c := NewCommand([]string{script}, "", WithTimeout(100*time.Millisecond), WithOutput(&out, &out))

	start := time.Now()
	err := c.Activate(context.Background(), sourceDir(t), "nodeA")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryActivation))
	require.Contains(t, err.Error(), "timed out")
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestActivate_ValidatesBeforeRunning(t *testing.T) {
	record := filepath.Join(t.TempDir(), "record")
	script := writeScript(t, `touch "`+record+`"`)
	c := NewCommand([]string{script}, "")

	err := c.Activate(context.Background(), t.TempDir(), "nodeA")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryValidation))
	_, statErr := os.Stat(record)
	require.True(t, os.IsNotExist(statErr), "command must not run without a manifest")

	err = c.Activate(context.Background(), sourceDir(t), "")
	require.True(t, syncerrors.IsCategory(err, syncerrors.CategoryConfig))
}
