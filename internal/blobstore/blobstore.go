// Package blobstore keeps uploaded images under generated, time-derived names
// and hands back storage-relative locators for them.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Store is the byte-storage abstraction used by the ingestion coordinator.
type Store interface {
	// Save writes r under a new unique name ending in ext and returns its locator.
	Save(ctx context.Context, r io.Reader, ext string) (string, error)
	// Open returns the object at locator; a missing object yields fs.ErrNotExist.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	// Put writes r at locator, replacing any existing object.
	Put(ctx context.Context, locator string, r io.Reader) error
}

var errBadLocator = errors.New("locator outside of store")

const maxExtLen = 16

// CleanExt returns ext when it is a plain ".xyz" extension and "" otherwise.
func CleanExt(ext string) string {
	if len(ext) < 2 || len(ext) > maxExtLen || ext[0] != '.' {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return ""
		}
	}
	return ext
}

// nameSeq issues strictly increasing millisecond stamps, so two saves in the
// same millisecond still get distinct names.
type nameSeq struct {
	last atomic.Int64
	now  func() time.Time
}

func newNameSeq() *nameSeq {
	return &nameSeq{now: time.Now}
}

func (s *nameSeq) next() int64 {
	for {
		last := s.last.Load()
		stamp := s.now().UnixMilli()
		if stamp <= last {
			stamp = last + 1
		}
		if s.last.CompareAndSwap(last, stamp) {
			return stamp
		}
	}
}

func (s *nameSeq) nextName(ext string) string {
	return strconv.FormatInt(s.next(), 10) + ext
}

// relative strips prefix from locator and rejects anything escaping it.
func relative(prefix, locator string) (string, error) {
	rest, ok := strings.CutPrefix(locator, prefix+"/")
	if !ok || rest == "" {
		return "", fmt.Errorf("%w: %q", errBadLocator, locator)
	}
	clean := path.Clean(rest)
	if clean != rest || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("%w: %q", errBadLocator, locator)
	}
	return clean, nil
}

// ctxReader stops a copy once the request that feeds it is gone.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
