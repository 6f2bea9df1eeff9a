// Package journey manages the catalog of journal files in the data directory
// and which of them is active. The active journal is mirrored into a
// canonical working file that the rest of the application reads and writes.
package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vbonduro/lifemap/internal/domain"
	"github.com/vbonduro/lifemap/internal/journal"
	"github.com/vbonduro/lifemap/internal/store"
)

const journalExt = ".json"

// settingsRepository is the subset of store.SettingsStore the catalog requires.
type settingsRepository interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// mediaRemover is the subset of mediastore.MediaStore the catalog requires.
type mediaRemover interface {
	Remove(ctx context.Context, path string) error
}

type Catalog struct {
	dir        string
	activeFile string
	journals   *journal.Store
	settings   settingsRepository
	media      mediaRemover
	logger     *slog.Logger
}

// NewCatalog manages the journal files in dir. activeFile is the name of the
// canonical working file inside dir; it is never listed as a journey.
func NewCatalog(dir, activeFile string, journals *journal.Store, settings settingsRepository, media mediaRemover, logger *slog.Logger) *Catalog {
	return &Catalog{
		dir:        dir,
		activeFile: activeFile,
		journals:   journals,
		settings:   settings,
		media:      media,
		logger:     logger,
	}
}

// ActivePath is the canonical working file.
func (c *Catalog) ActivePath() string {
	return filepath.Join(c.dir, c.activeFile)
}

func (c *Catalog) path(filename string) string {
	return filepath.Join(c.dir, filename)
}

// Init makes sure the canonical file holds a journal and that an existing
// catalog file is marked active. On first run the canonical journal is copied
// into a catalog file named after its title. It returns the active filename.
func (c *Catalog) Init(ctx context.Context) (string, error) {
	if err := c.journals.EnsureValid(c.ActivePath()); err != nil {
		return "", err
	}

	active, err := c.Active(ctx)
	if err != nil {
		return "", err
	}
	if active != "" {
		if _, err := os.Stat(c.path(active)); err == nil {
			return active, nil
		}
		c.logger.Warn("active journey file is missing, recreating it from the working copy", "journey", active)
	} else {
		j := c.journals.Load(c.ActivePath())
		active = c.uniqueName(Slugify(j.Metadata.Title))
	}

	if err := c.settings.Set(ctx, store.KeyActiveJournal, active); err != nil {
		return "", err
	}
	if err := c.Mirror(ctx); err != nil {
		return "", err
	}
	c.logger.Info("active journey initialized", "journey", active)
	return active, nil
}

// Active returns the active catalog filename, or "" before Init.
func (c *Catalog) Active(ctx context.Context) (string, error) {
	name, ok, err := c.settings.Get(ctx, store.KeyActiveJournal)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return name, nil
}

// Mirror copies the canonical working file into the active catalog file.
func (c *Catalog) Mirror(ctx context.Context) error {
	active, err := c.Active(ctx)
	if err != nil || active == "" {
		return err
	}
	data, err := os.ReadFile(c.ActivePath())
	if err != nil {
		return fmt.Errorf("%w: failed to read working journal: %w", domain.ErrIO, err)
	}
	return journal.WriteFileAtomic(c.path(active), data)
}

// List returns every journal file in the directory, excluding dotfiles and
// the canonical working file, in filename order.
func (c *Catalog) List(ctx context.Context) ([]domain.CatalogEntry, error) {
	active, err := c.Active(ctx)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", domain.ErrIO, c.dir, err)
	}

	entries := []domain.CatalogEntry{}
	for _, de := range dirEntries {
		name := de.Name()
		if !c.isCandidate(name) || !de.Type().IsRegular() {
			continue
		}
		entry := domain.CatalogEntry{Filename: name, Title: TitleFromFilename(name), Active: name == active}
		j, err := c.read(name)
		if err != nil {
			c.logger.Warn("journey file is unreadable", "journey", name, "error", err)
			entry.Corrupt = true
		} else {
			entry.EventCount = len(j.Events)
			if t := strings.TrimSpace(j.Metadata.Title); t != "" {
				entry.Title = t
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SwitchTo copies filename into the canonical working file and marks it
// active. Callers must drop any journal they hold in memory.
func (c *Catalog) SwitchTo(ctx context.Context, filename string) error {
	if err := c.validateFilename(filename); err != nil {
		return err
	}
	active, err := c.Active(ctx)
	if err != nil {
		return err
	}
	if filename == active {
		return fmt.Errorf("%w: %s is already the active journey", domain.ErrValidation, filename)
	}

	data, err := os.ReadFile(c.path(filename))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: journey %s", domain.ErrNotFound, filename)
	}
	if err != nil {
		return fmt.Errorf("%w: failed to read %s: %w", domain.ErrIO, filename, err)
	}
	if _, err := journal.Decode(data); err != nil {
		return fmt.Errorf("cannot switch to %s: %w", filename, err)
	}

	if err := journal.WriteFileAtomic(c.ActivePath(), data); err != nil {
		return err
	}
	if err := c.settings.Set(ctx, store.KeyActiveJournal, filename); err != nil {
		return err
	}
	c.logger.Info("switched journey", "from", active, "to", filename)
	return nil
}

// Create writes an empty journal titled name under its slug and switches to
// it. It returns the new filename.
func (c *Catalog) Create(ctx context.Context, name string) (string, error) {
	filename, err := c.filenameFor(name)
	if err != nil {
		return "", err
	}
	if c.exists(filename) {
		return "", fmt.Errorf("%w: journey %s already exists", domain.ErrConflict, filename)
	}

	if err := c.journals.Save(c.journals.Default(strings.TrimSpace(name)), c.path(filename)); err != nil {
		return "", err
	}
	c.logger.Info("journey created", "journey", filename)
	if err := c.SwitchTo(ctx, filename); err != nil {
		return "", err
	}
	return filename, nil
}

// Rename writes the journal in filename, retitled newName, under the slug of
// newName. The original file is kept. If filename was active the new file
// becomes active. It returns the new filename.
func (c *Catalog) Rename(ctx context.Context, filename, newName string) (string, error) {
	if err := c.validateFilename(filename); err != nil {
		return "", err
	}
	target, err := c.filenameFor(newName)
	if err != nil {
		return "", err
	}
	if !c.exists(filename) {
		return "", fmt.Errorf("%w: journey %s", domain.ErrNotFound, filename)
	}
	if target != filename && c.exists(target) {
		return "", fmt.Errorf("%w: journey %s already exists", domain.ErrConflict, target)
	}

	active, err := c.Active(ctx)
	if err != nil {
		return "", err
	}
	source := c.path(filename)
	if filename == active {
		source = c.ActivePath()
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", domain.ErrIO, filename, err)
	}
	j, err := journal.Decode(data)
	if err != nil {
		return "", fmt.Errorf("cannot rename %s: %w", filename, err)
	}

	j.Metadata.Title = strings.TrimSpace(newName)
	if err := c.journals.Save(j, c.path(target)); err != nil {
		return "", err
	}

	if filename == active {
		if err := c.journals.Save(j, c.ActivePath()); err != nil {
			return "", err
		}
		if err := c.settings.Set(ctx, store.KeyActiveJournal, target); err != nil {
			return "", err
		}
	}
	c.logger.Info("journey renamed", "from", filename, "to", target)
	return target, nil
}

// Delete removes a journal file that is not active and, best-effort, the media
// its events reference. Media still referenced by another journal is kept.
func (c *Catalog) Delete(ctx context.Context, filename string) error {
	if err := c.validateFilename(filename); err != nil {
		return err
	}
	active, err := c.Active(ctx)
	if err != nil {
		return err
	}
	if filename == active {
		return fmt.Errorf("%w: cannot delete the active journey %s", domain.ErrValidation, filename)
	}
	if !c.exists(filename) {
		return fmt.Errorf("%w: journey %s", domain.ErrNotFound, filename)
	}

	var paths []string
	if j, err := c.read(filename); err != nil {
		c.logger.Warn("deleting unreadable journey without media cleanup", "journey", filename, "error", err)
	} else {
		for _, e := range j.Events {
			paths = append(paths, e.Media.Paths()...)
		}
	}

	if err := os.Remove(c.path(filename)); err != nil {
		return fmt.Errorf("%w: failed to delete %s: %w", domain.ErrIO, filename, err)
	}

	shared := c.referencedMedia()
	for _, p := range paths {
		if shared[p] {
			c.logger.Info("keeping media referenced by another journey", "path", p)
			continue
		}
		if err := c.media.Remove(ctx, p); err != nil {
			c.logger.Error("failed to delete media file", "journey", filename, "path", p, "error", err)
		}
	}
	c.logger.Info("journey deleted", "journey", filename, "media", len(paths))
	return nil
}

// referencedMedia collects the media paths of the working file and every
// remaining catalog file.
func (c *Catalog) referencedMedia() map[string]bool {
	refs := map[string]bool{}
	names := []string{c.activeFile}
	if dirEntries, err := os.ReadDir(c.dir); err == nil {
		for _, de := range dirEntries {
			if c.isCandidate(de.Name()) {
				names = append(names, de.Name())
			}
		}
	}
	for _, name := range names {
		j, err := c.read(name)
		if err != nil {
			continue
		}
		for _, e := range j.Events {
			for _, p := range e.Media.Paths() {
				refs[p] = true
			}
		}
	}
	return refs
}

func (c *Catalog) read(filename string) (*domain.Journal, error) {
	data, err := os.ReadFile(c.path(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIO, err)
	}
	return journal.Decode(data)
}

func (c *Catalog) exists(filename string) bool {
	_, err := os.Stat(c.path(filename))
	return err == nil
}

func (c *Catalog) isCandidate(name string) bool {
	return strings.HasSuffix(name, journalExt) && !strings.HasPrefix(name, ".") && name != c.activeFile
}

// validateFilename accepts a bare catalog filename.
func (c *Catalog) validateFilename(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || !c.isCandidate(filename) {
		return fmt.Errorf("%w: invalid journey file %q", domain.ErrValidation, filename)
	}
	return nil
}

func (c *Catalog) filenameFor(name string) (string, error) {
	slug := Slugify(name)
	if slug == "" {
		return "", fmt.Errorf("%w: journey name %q has no usable characters", domain.ErrValidation, name)
	}
	filename := slug + journalExt
	if filename == c.activeFile {
		return "", fmt.Errorf("%w: %s is reserved", domain.ErrConflict, filename)
	}
	return filename, nil
}

// uniqueName returns slug.json, or slug-N.json for the first N not taken.
func (c *Catalog) uniqueName(slug string) string {
	if slug == "" {
		slug = Slugify(journal.DefaultTitle)
	}
	name := slug + journalExt
	for n := 2; c.exists(name) || name == c.activeFile; n++ {
		name = fmt.Sprintf("%s-%d%s", slug, n, journalExt)
	}
	return name
}

var hyphenRuns = regexp.MustCompile(`-{2,}`)

// Slugify derives a filesystem-safe name: lowercase, spaces and underscores
// become hyphens, path separators and leading dots are dropped. A trailing
// .json is removed so "trip.json" and "trip" share a slug.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.TrimSuffix(s, journalExt)
	s = strings.NewReplacer("/", "", `\`, "", " ", "-", "_", "-", "\t", "-").Replace(s)
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.TrimLeft(s, ".")
	return strings.Trim(s, "-")
}

// TitleFromFilename is the display title used when a file has no readable
// title: "summer-trip.json" becomes "Summer Trip".
func TitleFromFilename(filename string) string {
	base := strings.TrimSuffix(filename, journalExt)
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
