// Package archive packs a configuration tree into a single zstd-compressed tar
// stream and materializes such a stream into a directory.
//
// Packing is deterministic: entries are written in lexical walk order with
// modification times, owners and access times cleared, so the same tree always
// produces the same bytes (and therefore the same remote version tag).
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	syncerrors "git.home.luguber.info/inful/cfgsync/internal/errors"
)

// Codec packs and unpacks directory trees.
type Codec interface {
	Pack(ctx context.Context, srcDir string, w io.Writer) error
	Unpack(ctx context.Context, r io.Reader, dstDir string) error
}

// TarZstd is the default Codec.
type TarZstd struct {
	// Exclude lists slash-separated relative paths skipped while packing,
	// together with everything beneath them.
	Exclude []string
}

var epoch = time.Unix(0, 0).UTC()

// Pack writes the tree rooted at srcDir to w.
func (c TarZstd) Pack(ctx context.Context, srcDir string, w io.Writer) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return syncerrors.InternalError("create zstd encoder", err)
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)
		if c.excluded(name) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		return writeEntry(tw, path, name, d)
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = zw.Close()
		return syncerrors.FilesystemError("pack "+srcDir, walkErr)
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return syncerrors.FilesystemError("finish tar stream", err)
	}
	if err := zw.Close(); err != nil {
		return syncerrors.FilesystemError("finish zstd stream", err)
	}
	return nil
}

func (c TarZstd) excluded(name string) bool {
	for _, ex := range c.Exclude {
		ex = strings.Trim(ex, "/")
		if name == ex || strings.HasPrefix(name, ex+"/") {
			return true
		}
	}
	return false
}

func writeEntry(tw *tar.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch mode := info.Mode(); {
	case mode.IsRegular(), mode.IsDir():
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	default:
		// sockets, devices and pipes have no place in a configuration tree
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("make header %s: %w", name, err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	normalize(hdr)

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}

func normalize(hdr *tar.Header) {
	hdr.ModTime = epoch
	hdr.AccessTime = time.Time{}
	hdr.ChangeTime = time.Time{}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	hdr.Mode &= 0o7777
	hdr.Format = tar.FormatPAX
	hdr.PAXRecords = nil
}

// Unpack materializes the stream under dstDir, creating it when absent. Existing
// paths that conflict with archive entries are replaced.
func (c TarZstd) Unpack(ctx context.Context, r io.Reader, dstDir string) error {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return syncerrors.InternalError("create zstd decoder", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return syncerrors.FilesystemError("create destination", err).WithContext("path", dstDir)
	}
	root, err := filepath.EvalSymlinks(dstDir)
	if err != nil {
		return syncerrors.FilesystemError("resolve destination", err).WithContext("path", dstDir)
	}

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return keepClassified(err, syncerrors.ValidationFailed("archive", err.Error()))
		}
		if err := extractEntry(tr, hdr, root); err != nil {
			return err
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, root string) error {
	target, err := safeTarget(root, hdr.Name)
	if err != nil {
		return err
	}
	if target == root {
		return nil
	}
	if err := ensureParent(root, target); err != nil {
		return err
	}
	perm := fs.FileMode(hdr.Mode).Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if info, err := os.Lstat(target); err == nil && !info.IsDir() {
			if err := os.RemoveAll(target); err != nil {
				return syncerrors.FilesystemError("replace "+hdr.Name, err)
			}
		}
		if err := os.MkdirAll(target, perm|0o700); err != nil {
			return syncerrors.FilesystemError("create directory "+hdr.Name, err)
		}
	case tar.TypeReg:
		if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
			if err := os.RemoveAll(target); err != nil {
				return syncerrors.FilesystemError("replace "+hdr.Name, err)
			}
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm|0o600)
		if err != nil {
			return syncerrors.FilesystemError("create file "+hdr.Name, err)
		}
		_, copyErr := io.Copy(f, tr)
		closeErr := f.Close()
		if copyErr != nil {
			return keepClassified(copyErr, syncerrors.FilesystemError("write file "+hdr.Name, copyErr))
		}
		if closeErr != nil {
			return syncerrors.FilesystemError("close file "+hdr.Name, closeErr)
		}
		if err := os.Chmod(target, perm|0o600); err != nil {
			return syncerrors.FilesystemError("chmod "+hdr.Name, err)
		}
	case tar.TypeSymlink:
		if err := os.RemoveAll(target); err != nil {
			return syncerrors.FilesystemError("replace "+hdr.Name, err)
		}
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return syncerrors.FilesystemError("create symlink "+hdr.Name, err)
		}
	}
	return nil
}

// keepClassified returns err unchanged when it already carries a category, such as
// a transport failure surfacing through the source stream, and fallback otherwise.
func keepClassified(err error, fallback *syncerrors.SyncError) error {
	if _, ok := syncerrors.As(err); ok {
		return err
	}
	return fallback
}

// safeTarget maps an archive name onto root, refusing names that escape it.
func safeTarget(root, name string) (string, error) {
	clean := strings.TrimSuffix(name, "/")
	if clean == "" || clean == "." {
		return root, nil
	}
	local := filepath.FromSlash(clean)
	if !filepath.IsLocal(local) {
		return "", syncerrors.ValidationFailed("archive", "entry escapes destination: "+name)
	}
	return filepath.Join(root, local), nil
}

// ensureParent creates the directories between root and target. A symlink on the
// way is refused, since a packed tree never has entries beneath one; a regular
// file on the way is replaced.
func ensureParent(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}

	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		switch {
		case err == nil && info.Mode()&fs.ModeSymlink != 0:
			return syncerrors.ValidationFailed("archive", "entry beneath symlink: "+target)
		case err == nil && info.IsDir():
			continue
		case err == nil:
			if err := os.Remove(cur); err != nil {
				return syncerrors.FilesystemError("replace", err).WithContext("path", cur)
			}
		case !os.IsNotExist(err):
			return syncerrors.FilesystemError("stat", err).WithContext("path", cur)
		}
		if err := os.Mkdir(cur, 0o755); err != nil {
			return syncerrors.FilesystemError("create directory", err).WithContext("path", cur)
		}
	}
	return nil
}
