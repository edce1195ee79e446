// Package fsbackend implements the splitstore.Backend Storage ABI
// against the local filesystem, for single-node
// deployments and tests that would otherwise need a real S3 endpoint.
package fsbackend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/duskline/duskline/internal/splitstore"
)

// Backend stores every object as a file under Root, preserving the
// object path's directory structure.
type Backend struct {
	Root string
}

// New builds a Backend rooted at root, creating it if absent.
func New(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsbackend: creating root %s: %w", root, err)
	}
	return &Backend{Root: root}, nil
}

var _ splitstore.Backend = (*Backend)(nil)

func (b *Backend) resolve(path string) string {
	return filepath.Join(b.Root, filepath.FromSlash(path))
}

func (b *Backend) Put(_ context.Context, path string, payload io.Reader) error {
	full := b.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("fsbackend: preparing dir for %s: %w", path, err)
	}
	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("fsbackend: creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, payload); err != nil {
		return fmt.Errorf("fsbackend: writing %s: %w", path, err)
	}
	return nil
}

func (b *Backend) GetSlice(_ context.Context, path string, r splitstore.ByteRange) ([]byte, error) {
	f, err := os.Open(b.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("fsbackend: opening %s: %w", path, err)
	}
	defer f.Close()
	buf := make([]byte, r.End-r.Start)
	if _, err := f.ReadAt(buf, r.Start); err != nil && err != io.EOF {
		return nil, fmt.Errorf("fsbackend: reading slice of %s: %w", path, err)
	}
	return buf, nil
}

func (b *Backend) CopyToFile(_ context.Context, path, localPath string) error {
	src, err := os.Open(b.resolve(path))
	if err != nil {
		return fmt.Errorf("fsbackend: opening %s: %w", path, err)
	}
	defer src.Close()
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("fsbackend: preparing dir for %s: %w", localPath, err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("fsbackend: creating %s: %w", localPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("fsbackend: copying %s to %s: %w", path, localPath, err)
	}
	return nil
}

func (b *Backend) Delete(_ context.Context, path string) error {
	if err := os.Remove(b.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsbackend: deleting %s: %w", path, err)
	}
	return nil
}

func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(b.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("fsbackend: stat %s: %w", path, err)
}

func (b *Backend) ListPrefix(_ context.Context, prefix string) ([]string, error) {
	var out []string
	root := b.resolve(prefix)
	walkRoot := filepath.Dir(root)
	if _, err := os.Stat(walkRoot); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	err := filepath.WalkDir(b.Root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(b.Root, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if strings.HasPrefix(key, prefix) {
				out = append(out, key)
			}
			return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsbackend: list_prefix %s: %w", prefix, err)
	}
	return out, nil
}
