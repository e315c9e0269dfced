package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"handsign/internal/models"
)

const maxCreateAttempts = 8

// Local stores blobs as files under root. Locators are "<prefix>/<name>".
type Local struct {
	root   string
	prefix string
	names  *nameSeq
}

func NewLocal(root, prefix string) *Local {
	return &Local{root: root, prefix: prefix, names: newNameSeq()}
}

func (s *Local) Root() string { return s.root }

func (s *Local) Save(ctx context.Context, r io.Reader, ext string) (string, error) {
	const op = "blobstore.Local.Save"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}

	ext = CleanExt(ext)
	var (
		f    *os.File
		name string
		err  error
	)
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		name = s.names.nextName(ext)
		f, err = os.OpenFile(filepath.Join(s.root, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil || !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}

	_, copyErr := io.Copy(f, ctxReader{ctx: ctx, r: r})
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}

	return path.Join(s.prefix, name), nil
}

func (s *Local) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	const op = "blobstore.Local.Open"

	rel, err := relative(s.prefix, locator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, fs.ErrNotExist)
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

// Put writes through a temp file and renames it into place so readers never
// see a partial object.
func (s *Local) Put(ctx context.Context, locator string, r io.Reader) error {
	const op = "blobstore.Local.Put"

	rel, err := relative(s.prefix, locator)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	dst := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	_, copyErr := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorageWrite, err)
	}
	return nil
}
