// Package popup renders the HTML fragment shown when a map marker is opened.
package popup

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/mediastore"
)

//go:embed popup.html
var popupHTML string

const (
	untitled      = "Untitled"
	noDescription = "No description"
)

// inliner is the subset of mediastore.MediaStore the renderer requires.
type inliner interface {
	InlineForDisplay(path string, kind domain.MediaKind) []byte
}

type mediaItem struct {
	Src      template.URL
	Name     string
	MimeType string
}

type popupData struct {
	Title       string
	Date        string
	Location    string
	Description string
	Photos      []mediaItem
	Videos      []mediaItem
	NoMedia     bool
}

type Renderer struct {
	media inliner
	tmpl  *template.Template
}

func NewRenderer(media inliner) *Renderer {
	return &Renderer{
		media: media,
		tmpl:  template.Must(template.New("").Parse(popupHTML)),
	}
}

// Render returns the popup markup for e. User text is HTML-escaped and media
// is embedded as data URIs. Missing files, and videos above the inline cap,
// are left out.
func (r *Renderer) Render(e domain.Event) (string, error) {
	data := popupData{
		Title:       orDefault(e.Title, untitled),
		Date:        e.Date.String(),
		Location:    e.Location.Name,
		Description: orDefault(e.Description, noDescription),
		Photos:      r.inline(e.Media.Photos, domain.MediaPhoto),
		Videos:      r.inline(e.Media.Videos, domain.MediaVideo),
	}
	data.NoMedia = len(data.Photos) == 0 && len(data.Videos) == 0

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "popup", data); err != nil {
		return "", fmt.Errorf("failed to render popup for event %d: %w", e.ID, err)
	}
	return buf.String(), nil
}

func (r *Renderer) inline(paths []string, kind domain.MediaKind) []mediaItem {
	var items []mediaItem
	for _, p := range paths {
		raw := r.media.InlineForDisplay(p, kind)
		if raw == nil {
			continue
		}
		mimeType := mediastore.MimeType(p, kind)
		items = append(items, mediaItem{
			Src:      template.URL("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)),
			Name:     mediastore.DisplayName(p),
			MimeType: mimeType,
		})
	}
	return items
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
