// Package storefs holds the filesystem helpers shared by the reference
// cache and the profile compiler: tree copies with a fixed ignore set,
// atomic file writes (temp + rename), and import of OS trees into a billy
// filesystem. Everything operates on billy.Filesystem so tests can run
// against memfs and the engine against osfs.
package storefs

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// ignored names are never copied into cache entries or compiled profiles.
var ignored = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".venv":        true,
}

// Ignored reports whether a directory entry name is excluded from copies.
func Ignored(name string) bool { return ignored[name] }

// CopyTree copies src (a file or directory) to dst within fs, skipping
// ignored names. Existing files at dst are overwritten.
func CopyTree(fs billy.Filesystem, src, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return copyFile(fs, src, dst, info.Mode())
	}
	if err := fs.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	entries, err := fs.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src, err)
	}
	for _, e := range entries {
		if Ignored(e.Name()) {
			continue
		}
		s := fs.Join(src, e.Name())
		d := fs.Join(dst, e.Name())
		if e.IsDir() {
			if err := CopyTree(fs, s, d); err != nil {
				return err
			}
		} else if err := copyFile(fs, s, d, e.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(fs billy.Filesystem, src, dst string, mode os.FileMode) error {
	if dir := path.Dir(dst); dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	in, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return nil
}

// ImportTree copies an OS directory (or file) at osSrc into fs at dst,
// skipping ignored names. Used to move fetcher output into the cache.
func ImportTree(fs billy.Filesystem, osSrc, dst string) error {
	info, err := os.Stat(osSrc)
	if err != nil {
		return fmt.Errorf("stat %s: %w", osSrc, err)
	}
	if !info.IsDir() {
		return ImportFile(fs, osSrc, dst)
	}
	if err := fs.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	entries, err := os.ReadDir(osSrc)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", osSrc, err)
	}
	for _, e := range entries {
		if Ignored(e.Name()) {
			continue
		}
		s := filepath.Join(osSrc, e.Name())
		d := fs.Join(dst, e.Name())
		if e.IsDir() {
			if err := ImportTree(fs, s, d); err != nil {
				return err
			}
		} else if err := ImportFile(fs, s, d); err != nil {
			return err
		}
	}
	return nil
}

// ImportFile copies one OS file into fs at dst.
func ImportFile(fs billy.Filesystem, osSrc, dst string) error {
	data, err := os.ReadFile(osSrc)
	if err != nil {
		return fmt.Errorf("read %s: %w", osSrc, err)
	}
	if dir := path.Dir(dst); dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(fs, dst, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

// WriteFileAtomic writes data to name via a temp file in the same directory
// followed by a rename, so readers never observe a torn file.
func WriteFileAtomic(fs billy.Filesystem, name string, data []byte) error {
	dir := path.Dir(name)
	if dir != "." && dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	tmp, err := fs.TempFile(dir, ".loadout-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("close temp: %w", err)
	}
	if err := fs.Rename(tmpName, name); err != nil {
		_ = fs.Remove(tmpName) // best-effort cleanup
		return fmt.Errorf("rename temp to %s: %w", name, err)
	}
	return nil
}
