package mediastore

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/vbonduro/lifemap/internal/domain"
)

// DefaultMaxInlineVideo caps the size of a video embedded in a popup.
const DefaultMaxInlineVideo = 15 * 1024 * 1024

// UploadsDir is the directory, relative to the working directory, holding
// uploads/photos and uploads/videos.
const UploadsDir = "uploads"

type MediaStore interface {
	// Store writes r under uploads/<kind>/<unix seconds>_<originalName> and
	// returns that path as it is recorded in the journal.
	Store(ctx context.Context, kind domain.MediaKind, originalName string, r io.Reader) (string, error)
	// Remove deletes the asset; a missing file is not an error.
	Remove(ctx context.Context, path string) error
	// InlineForDisplay returns the asset bytes, or nil when the file is missing
	// or is a video above the inline cap.
	InlineForDisplay(path string, kind domain.MediaKind) []byte
	Open(ctx context.Context, path string) (io.ReadCloser, string, error)
	Thumbnail(ctx context.Context, path string, maxDim int) ([]byte, error)
}

var photoExts = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var videoExts = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// MimeType guesses the content type from the file extension.
func MimeType(p string, kind domain.MediaKind) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(p, "\\", "/")))
	if kind == domain.MediaVideo {
		if m, ok := videoExts[ext]; ok {
			return m
		}
		return "video/mp4"
	}
	if m, ok := photoExts[ext]; ok {
		return m
	}
	return "image/jpeg"
}

// AcceptsExtension reports whether an upload named name is allowed for kind.
func AcceptsExtension(name string, kind domain.MediaKind) bool {
	ext := strings.ToLower(path.Ext(name))
	if kind == domain.MediaVideo {
		_, ok := videoExts[ext]
		return ok
	}
	_, ok := photoExts[ext]
	return ok
}

// KindOf infers the media kind from a recorded path such as
// uploads/videos/1700000000_clip.mp4.
func KindOf(p string) domain.MediaKind {
	if strings.Contains(strings.ReplaceAll(p, "\\", "/"), "/"+string(domain.MediaVideo)+"/") {
		return domain.MediaVideo
	}
	return domain.MediaPhoto
}

// DisplayName is the original upload name: the basename without the
// timestamp prefix added by Store.
func DisplayName(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	if i := strings.IndexByte(base, '_'); i > 0 && isDigits(base[:i]) {
		return base[i+1:]
	}
	return base
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
