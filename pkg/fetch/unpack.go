package fetch

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Decompress wraps r in a decompressor chosen by magic bytes: gzip, xz, or
// none.
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return gzip.NewReader(br)
	case bytes.HasPrefix(head, xzMagic):
		return xz.NewReader(br)
	default:
		return br, nil
	}
}

// Unpack extracts the tar stream in r into dest, which is created if
// needed. Entries that would land outside dest are rejected, by name or by
// passing through a symlink unpacked earlier. Symlink targets are stored as
// given and never followed while unpacking.
func Unpack(ctx context.Context, r io.Reader, dest string) error {
	stream, err := Decompress(r)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	type dirTime struct {
		path string
		hdr  *tar.Header
	}
	var dirs []dirTime

	tr := tar.NewReader(stream)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := within(dest, hdr.Name)
		if err != nil {
			return err
		}
		mode := os.FileMode(hdr.Mode).Perm()

		// A directory entry must not itself be a symlink; for the rest only
		// the parents matter, the entry replaces whatever is at target.
		checked := filepath.Dir(target)
		if hdr.Typeflag == tar.TypeDir {
			checked = target
		}
		if err := noSymlinks(dest, checked, hdr.Name); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			dirs = append(dirs, dirTime{target, hdr})

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := writeFile(target, tr, mode); err != nil {
				return err
			}
			_ = os.Chtimes(target, hdr.AccessTime, hdr.ModTime)

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", hdr.Name, err)
			}

		case tar.TypeLink:
			source, err := within(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := noSymlinks(dest, filepath.Dir(source), hdr.Linkname); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("failed to create hard link %s: %w", hdr.Name, err)
			}

		default:
			// Devices and fifos have no place in a runtime archive.
			continue
		}
	}

	// Apply directory modes and times last so writing children does not
	// disturb them.
	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		if err := os.Chmod(d.path, os.FileMode(d.hdr.Mode).Perm()); err != nil {
			return err
		}
		_ = os.Chtimes(d.path, d.hdr.AccessTime, d.hdr.ModTime)
	}
	return nil
}

// within joins name onto dest and fails if the result escapes dest.
func within(dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

// noSymlinks fails when a component of path below dest is a symlink. Missing
// components end the walk; MkdirAll creates them as real directories.
func noSymlinks(dest, path, name string) error {
	rel, err := filepath.Rel(dest, path)
	if err != nil {
		return fmt.Errorf("archive entry %q escapes the destination", name)
	}
	if rel == "." {
		return nil
	}

	current := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", current, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("archive entry %q escapes the destination through symlink %s", name, current)
		}
	}
	return nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	_ = os.Remove(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}
