package themeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrStore reports an unreadable or unwritable theme store.
var ErrStore = errors.New("theme store")

// Store holds typed theme settings.
type Store interface {
	Get(field string) (Value, bool, error)
	Set(field string, v Value) error
}

// Apply infers the type of literal and stores it under field.
func Apply(store Store, field, literal string) error {
	v, err := ParseValue(literal)
	if err != nil {
		return fmt.Errorf("set %s: %w", field, err)
	}
	return store.Set(field, v)
}

type themeDocument struct {
	Active string         `yaml:"active,omitempty"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// FileStore keeps the active theme and its settings in one YAML file. Every
// call reads the file afresh; writes replace it atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Get returns the value of field. A missing file reads as empty; a file that
// cannot be read or parsed is an ErrStore error, not an absent field.
func (s *FileStore) Get(field string) (Value, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Value{}, false, err
	}
	raw, ok := doc.Fields[field]
	if !ok {
		return Value{}, false, nil
	}
	return fromAny(raw), true, nil
}

// Set stores v under field.
func (s *FileStore) Set(field string, v Value) error {
	return s.update(func(doc *themeDocument) {
		if doc.Fields == nil {
			doc.Fields = make(map[string]any)
		}
		doc.Fields[field] = v
	})
}

// Fields returns every stored setting, sorted by name.
func (s *FileStore) Fields() ([]string, map[string]Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(doc.Fields))
	values := make(map[string]Value, len(doc.Fields))
	for k, raw := range doc.Fields {
		names = append(names, k)
		values[k] = fromAny(raw)
	}
	sort.Strings(names)
	return names, values, nil
}

// Active returns the selected theme, or "" when none is selected.
func (s *FileStore) Active() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	return doc.Active, nil
}

// SetActive selects theme.
func (s *FileStore) SetActive(theme string) error {
	return s.update(func(doc *themeDocument) { doc.Active = theme })
}

func (s *FileStore) update(fn func(*themeDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	fn(&doc)
	return s.write(doc)
}

func (s *FileStore) read() (themeDocument, error) {
	var doc themeDocument
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("%w: read %s: %w", ErrStore, s.path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("%w: parse %s: %w", ErrStore, s.path, err)
	}
	return doc, nil
}

func (s *FileStore) write(doc themeDocument) error {
	out := themeDocument{Active: doc.Active}
	if len(doc.Fields) > 0 {
		out.Fields = make(map[string]any, len(doc.Fields))
		for k, raw := range doc.Fields {
			v, ok := raw.(Value)
			if !ok {
				v = fromAny(raw)
			}
			out.Fields[k] = v.node()
		}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrStore, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	tmp, err := os.CreateTemp(dir, ".theme-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStore, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrStore, s.path, err)
	}
	return nil
}

// KindChanged is the envelope kind pushed to frontends when the theme store
// changes on disk.
const KindChanged = "theme.changed"

// Snapshot is the whole store in a JSON-friendly form.
type Snapshot struct {
	Active string         `json:"active"`
	Fields map[string]any `json:"fields"`
}

// Snapshot reads the active theme and every field in one pass.
func (s *FileStore) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Snapshot{}, err
	}
	out := Snapshot{Active: doc.Active, Fields: make(map[string]any, len(doc.Fields))}
	for k, raw := range doc.Fields {
		out.Fields[k] = fromAny(raw).Any()
	}
	return out, nil
}
