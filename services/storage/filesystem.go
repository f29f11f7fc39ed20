package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/ticketstack/internal/enum"
	"github.com/customeros/ticketstack/internal/tracing"
)

const tmpSuffix = ".tmp"

// FilesystemStore writes attachments below a local uploads root.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) *FilesystemStore {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "uploads/tickets"
	}
	return &FilesystemStore{root: filepath.Clean(root)}
}

func (s *FilesystemStore) Root() string {
	return s.root
}

func (s *FilesystemStore) Backend() string {
	return enum.StorageLocal.String()
}

func (s *FilesystemStore) EnsureRoot(_ context.Context) error {
	return os.MkdirAll(s.root, 0o750)
}

// Write streams content into a temp file and renames it into place.
func (s *FilesystemStore) Write(ctx context.Context, storagePath string, content io.Reader, _ string) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "FilesystemStore.Write")
	defer span.Finish()
	span.SetTag("storage.path", storagePath)

	target, err := s.resolvePath(storagePath)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if err = os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return 0, err
	}

	tmpPath := target + tmpSuffix
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "create attachment file")
	}

	n, err := io.Copy(f, content)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "write attachment file")
	}

	if err = os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "rename attachment file")
	}
	return n, nil
}

func (s *FilesystemStore) Delete(_ context.Context, storagePath string) error {
	target, err := s.resolvePath(storagePath)
	if err != nil {
		return err
	}
	err = os.Remove(target)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// SweepTemp removes temp files left by interrupted writes.
func (s *FilesystemStore) SweepTemp(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err = os.Remove(p); err == nil {
			removed++
		}
		return nil
	})
	return removed, err
}

// resolvePath accepts paths relative to the working directory that lie
// inside root, or paths relative to root.
func (s *FilesystemStore) resolvePath(storagePath string) (string, error) {
	storagePath = filepath.Clean(strings.TrimSpace(storagePath))
	if storagePath == "" || storagePath == "." {
		return "", errors.New("invalid storage path")
	}

	candidate := storagePath
	if rel, err := filepath.Rel(s.root, storagePath); err != nil || strings.HasPrefix(rel, "..") {
		candidate = filepath.Join(s.root, strings.TrimPrefix(filepath.Clean("/"+storagePath), "/"))
	}

	rel, err := filepath.Rel(s.root, candidate)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.Errorf("storage path %s escapes uploads root", storagePath)
	}
	return candidate, nil
}
