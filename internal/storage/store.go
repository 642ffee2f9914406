// Package storage persists finished story packages as a browsable file
// tree: one JSON artifact per job under a per-category directory, with a
// sidecar run log next to it.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/oliveagle/jsonpath"
)

// ErrNotFound is returned when a requested artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	dashRuns     = regexp.MustCompile(`-+`)
)

// Slugify derives a filesystem-safe filename stem from a title.
func Slugify(s string) string {
	s = strings.ToLower(s)
	s = nonSlugChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Store is a key-value-by-path artifact store rooted at a projects
// directory. Concurrent jobs writing different files never conflict.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on first write.
func NewStore(dir string) *Store {
	return &Store{root: dir, logger: slog.Default()}
}

// Root returns the projects root directory.
func (s *Store) Root() string {
	return s.root
}

// cleanName rejects path components that would escape the tree.
func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid name %q", name)
	}
	return name, nil
}

// WriteArtifact persists v as pretty-printed JSON at
// <root>/<category>/<base>.json. When the target already exists the base is
// suffixed with the first 8 characters of jobID instead of overwriting a
// different job's package. Returns the written path and the base actually
// used, so the sidecar log can share the stem.
func (s *Store) WriteArtifact(category, base, jobID string, v any) (string, string, error) {
	category, err := cleanName(category)
	if err != nil {
		return "", "", err
	}
	base, err = cleanName(base)
	if err != nil {
		return "", "", err
	}

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create category dir: %w", err)
	}

	path := filepath.Join(dir, base+".json")
	if _, err := os.Stat(path); err == nil {
		suffix := jobID
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		base = base + "-" + suffix
		path = filepath.Join(dir, base+".json")
		s.logger.Warn("artifact filename collision, appending job id",
			"category", category,
			"file", base+".json",
		)
	}

	if err := writeJSON(path, v); err != nil {
		return "", "", err
	}
	return path, base, nil
}

// WriteRunLog persists the sidecar execution log as <base>.log.json.
func (s *Store) WriteRunLog(category, base string, v any) (string, error) {
	category, err := cleanName(category)
	if err != nil {
		return "", err
	}
	base, err = cleanName(base)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create category dir: %w", err)
	}
	path := filepath.Join(dir, base+".log.json")
	if err := writeJSON(path, v); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Entry is one saved artifact in a category listing.
type Entry struct {
	File    string `json:"file"`
	Title   string `json:"title"`
	SavedAt int64  `json:"savedAt"`
	Minutes *int   `json:"minutes,omitempty"`
	Words   *int   `json:"words,omitempty"`
}

// Category is a named group of saved artifacts, newest first.
type Category struct {
	Name  string  `json:"name"`
	Items []Entry `json:"items"`
}

// ListTree walks the projects root and returns every category with its
// artifacts. Display fields are plucked from the raw JSON via jsonpath so a
// hand-edited or older artifact with extra or missing fields still lists.
func (s *Store) ListTree() (map[string]Category, error) {
	out := make(map[string]Category)

	cats, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return nil, fmt.Errorf("read projects root: %w", err)
	}

	for _, cat := range cats {
		if !cat.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.root, cat.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable category", "category", cat.Name(), "error", err)
			continue
		}

		entries := make([]Entry, 0, len(files))
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".log.json") {
				continue
			}
			entry, err := s.readEntry(cat.Name(), name)
			if err != nil {
				s.logger.Warn("skipping unreadable artifact",
					"category", cat.Name(),
					"file", name,
					"error", err,
				)
				continue
			}
			entries = append(entries, entry)
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].SavedAt > entries[j].SavedAt })
		out[cat.Name()] = Category{Name: cat.Name(), Items: entries}
	}
	return out, nil
}

func (s *Store) readEntry(category, file string) (Entry, error) {
	path := filepath.Join(s.root, category, file)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Entry{}, err
	}

	entry := Entry{File: file, Title: file, SavedAt: info.ModTime().UnixMilli()}
	if v, err := jsonpath.JsonPathLookup(doc, "$.title"); err == nil {
		if title, ok := v.(string); ok && title != "" {
			entry.Title = title
		}
	}
	if v, err := jsonpath.JsonPathLookup(doc, "$.meta.target_minutes"); err == nil {
		if n, ok := asInt(v); ok {
			entry.Minutes = &n
		}
	}
	if v, err := jsonpath.JsonPathLookup(doc, "$.meta.estimated_word_count"); err == nil {
		if n, ok := asInt(v); ok {
			entry.Words = &n
		}
	}
	return entry, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// Read returns the raw JSON of one saved artifact.
func (s *Store) Read(category, file string) ([]byte, error) {
	category, err := cleanName(category)
	if err != nil {
		return nil, err
	}
	file, err = cleanName(file)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.root, category, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return raw, nil
}

// Delete removes an artifact and its sidecar log. Missing sidecars are not
// an error.
func (s *Store) Delete(category, file string) error {
	category, err := cleanName(category)
	if err != nil {
		return err
	}
	file, err = cleanName(file)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(file, ".json")
	path := filepath.Join(s.root, category, base+".json")
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	if err := os.Remove(filepath.Join(s.root, category, base+".log.json")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove sidecar log", "category", category, "file", base+".log.json", "error", err)
	}
	return nil
}
