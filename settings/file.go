package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// registryDocument is the on-disk layout of the YAML registry.
type registryDocument struct {
	Plugins []PluginRecord `yaml:"plugins"`
}

// FilePersister stores the registry as a YAML document.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for the YAML file at path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the registry file location.
func (p *FilePersister) Path() string {
	return p.path
}

// Load reads the registry. A missing file yields an empty registry.
func (p *FilePersister) Load(ctx context.Context) ([]PluginRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []PluginRecord{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrPersistence, p.path, err)
	}

	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrPersistence, p.path, err)
	}
	if doc.Plugins == nil {
		doc.Plugins = []PluginRecord{}
	}
	return doc.Plugins, nil
}

// Save writes the registry to a temporary file in the same directory and
// renames it over the previous file.
func (p *FilePersister) Save(ctx context.Context, records []PluginRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := yaml.Marshal(registryDocument{Plugins: records})
	if err != nil {
		return fmt.Errorf("%w: encode registry: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrPersistence, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod %s: %w", ErrPersistence, tmpName, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrPersistence, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrPersistence, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrPersistence, tmpName, err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("%w: replace %s: %w", ErrPersistence, p.path, err)
	}
	return nil
}

// Close is a no-op; the file is only open during Load and Save.
func (p *FilePersister) Close() error {
	return nil
}
