package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // thumbnails of WebP uploads

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/mediastore"
)

// maxNameAttempts bounds how many later timestamps Store tries when a file
// with the same name was already stored in the same second.
const maxNameAttempts = 10

var _ mediastore.MediaStore = (*LocalMediaStore)(nil)

type LocalMediaStore struct {
	root           string
	maxInlineVideo int64
	now            func() time.Time
}

// NewLocalMediaStore stores uploads under root/uploads/{photos,videos}.
// Recorded paths are relative to root.
func NewLocalMediaStore(root string, maxInlineVideo int64) (*LocalMediaStore, error) {
	for _, kind := range []domain.MediaKind{domain.MediaPhoto, domain.MediaVideo} {
		if err := os.MkdirAll(filepath.Join(root, mediastore.UploadsDir, string(kind)), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", kind, err)
		}
	}
	if maxInlineVideo <= 0 {
		maxInlineVideo = mediastore.DefaultMaxInlineVideo
	}
	return &LocalMediaStore{root: root, maxInlineVideo: maxInlineVideo, now: time.Now}, nil
}

func (s *LocalMediaStore) Store(ctx context.Context, kind domain.MediaKind, originalName string, r io.Reader) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown media kind %q", domain.ErrValidation, kind)
	}
	name, err := sanitizeName(originalName)
	if err != nil {
		return "", err
	}

	var (
		f       *os.File
		relPath string
		absPath string
	)
	ts := s.now().Unix()
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		relPath = filepath.ToSlash(filepath.Join(mediastore.UploadsDir, string(kind), fmt.Sprintf("%d_%s", ts+int64(attempt), name)))
		absPath = filepath.Join(s.root, filepath.FromSlash(relPath))
		f, err = os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil || !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to create file: %w", domain.ErrIO, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Error("failed to close file after write error", "error", cerr)
		}
		if rerr := os.Remove(absPath); rerr != nil {
			slog.Error("failed to remove file after write error", "error", rerr)
		}
		return "", fmt.Errorf("%w: failed to write file: %w", domain.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		if rerr := os.Remove(absPath); rerr != nil {
			slog.Error("failed to remove file after close error", "error", rerr)
		}
		return "", fmt.Errorf("%w: failed to close file: %w", domain.ErrIO, err)
	}
	return relPath, nil
}

func (s *LocalMediaStore) Remove(ctx context.Context, p string) error {
	absPath, err := s.resolve(p)
	if err != nil {
		return err
	}

	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to delete file: %w", domain.ErrIO, err)
	}
	return nil
}

func (s *LocalMediaStore) InlineForDisplay(p string, kind domain.MediaKind) []byte {
	absPath, err := s.resolve(p)
	if err != nil {
		return nil
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return nil
	}
	if kind == domain.MediaVideo && info.Size() > s.maxInlineVideo {
		return nil
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil
	}
	return data
}

func (s *LocalMediaStore) Open(ctx context.Context, p string) (io.ReadCloser, string, error) {
	absPath, err := s.resolve(p)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: media %s", domain.ErrNotFound, p)
		}
		return nil, "", fmt.Errorf("%w: failed to open file: %w", domain.ErrIO, err)
	}
	return f, mediastore.MimeType(absPath, mediastore.KindOf(p)), nil
}

// Thumbnail returns a JPEG no larger than maxDim on either side, honouring the
// photo's EXIF orientation.
func (s *LocalMediaStore) Thumbnail(ctx context.Context, p string, maxDim int) ([]byte, error) {
	absPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	if maxDim <= 0 {
		return nil, fmt.Errorf("%w: thumbnail size must be positive", domain.ErrValidation)
	}

	img, err := imaging.Open(absPath, imaging.AutoOrientation(true))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: media %s", domain.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	thumb := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// resolve maps a recorded path to an absolute path and rejects anything
// outside root/uploads. Absolute recorded paths are accepted when they point
// inside that directory.
func (s *LocalMediaStore) resolve(p string) (string, error) {
	absBase, err := filepath.Abs(filepath.Join(s.root, mediastore.UploadsDir))
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	candidate := filepath.FromSlash(p)
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.root, candidate)
	}
	absPath, err := filepath.Abs(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path outside media directory: %s", domain.ErrValidation, p)
	}
	return absPath, nil
}

func sanitizeName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrValidation, name)
	}
	return name, nil
}
