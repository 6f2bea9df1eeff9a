package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/events"
	"github.com/vbonduro/lifemap/internal/mediastore"
)

// maxUploadSize bounds a whole multipart submission, photos and videos together.
const maxUploadSize = 200 * 1024 * 1024 // 200 MB

// maxThumbSize bounds the ?thumb= query parameter.
const maxThumbSize = 2048

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// readUploads collects the "photos" and "videos" files of a parsed multipart
// form. Photos must sniff as an image; videos are accepted by extension.
func (s *Server) readUploads(form *multipart.Form) ([]events.Upload, error) {
	if form == nil {
		return nil, nil
	}
	var uploads []events.Upload
	for _, kind := range []domain.MediaKind{domain.MediaPhoto, domain.MediaVideo} {
		for _, fh := range form.File[string(kind)] {
			if !mediastore.AcceptsExtension(fh.Filename, kind) {
				return nil, fmt.Errorf("%w: unsupported %s file %q", domain.ErrValidation, kind, fh.Filename)
			}
			data, err := s.readFormFile(fh)
			if err != nil {
				return nil, err
			}
			if kind == domain.MediaPhoto {
				if _, ok := allowedImageMIME(data); !ok {
					return nil, fmt.Errorf("%w: %q is not a supported image", domain.ErrValidation, fh.Filename)
				}
			}
			uploads = append(uploads, events.Upload{Kind: kind, Name: fh.Filename, Data: data})
			s.logger.Debug("received upload", "kind", kind, "name", fh.Filename, "size", humanize.Bytes(uint64(len(data))))
		}
	}
	return uploads, nil
}

func (s *Server) readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func (s *Server) handlePhotoMetadata(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		s.badRequest(w, "failed to parse form")
		return
	}
	defer s.removeTempFiles(r.MultipartForm)

	fhs := r.MultipartForm.File["photo"]
	if len(fhs) == 0 {
		s.badRequest(w, "photo file required")
		return
	}
	data, err := s.readFormFile(fhs[0])
	if err != nil {
		s.writeError(w, "read photo", err)
		return
	}
	if _, ok := allowedImageMIME(data); !ok {
		s.badRequest(w, "unsupported image format")
		return
	}

	sug, err := s.service.SuggestFromPhoto(r.Context(), data)
	if err != nil {
		s.writeError(w, "read photo metadata", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sug)
}

// handleMedia streams a stored upload. With ?thumb=N a photo is served as a
// JPEG no larger than N pixels on either side.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	kind := domain.MediaKind(r.PathValue("kind"))
	if !kind.Valid() {
		http.NotFound(w, r)
		return
	}
	p := path.Join(mediastore.UploadsDir, string(kind), r.PathValue("name"))

	if v := r.URL.Query().Get("thumb"); v != "" && kind == domain.MediaPhoto {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 || size > maxThumbSize {
			s.badRequest(w, "invalid thumb size")
			return
		}
		data, err := s.media.Thumbnail(r.Context(), p, size)
		if err != nil {
			s.writeError(w, "thumbnail", err)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		if _, err := w.Write(data); err != nil {
			s.logger.Error("write thumbnail failed", "path", p, "error", err)
		}
		return
	}

	reader, mimeType, err := s.media.Open(r.Context(), p)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, "open media", err)
		return
	}
	defer closeWithLog(reader, "media reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write media failed", "path", p, "error", err)
	}
}

func (s *Server) removeTempFiles(form *multipart.Form) {
	if form == nil {
		return
	}
	if err := form.RemoveAll(); err != nil {
		s.logger.Error("failed to remove multipart temp files", "error", err)
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
