package settings

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the plugin registry.
var (
	// ErrPersistence reports an unreadable, malformed or unwritable registry.
	ErrPersistence = errors.New("plugin registry persistence failed")
	// ErrPluginNotFound reports a plugin name absent from the registry.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrDuplicatePlugin reports a second record with an existing name.
	ErrDuplicatePlugin = errors.New("duplicate plugin name")
)

// PluginRecord is one entry of the registry.
type PluginRecord struct {
	Name          string `yaml:"name" json:"name"`
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	BackendEntry  string `yaml:"backend,omitempty" json:"backend,omitempty"`
	FrontendEntry string `yaml:"frontend,omitempty" json:"frontend,omitempty"`

	// Stale is set on listed copies whose plugin is missing on disk. It is
	// never persisted.
	Stale bool `yaml:"-" json:"-"`
}

// Persister loads and saves the complete, ordered registry.
//
// Load on a store that was never written returns an empty slice and no error.
// Save replaces the stored registry atomically.
type Persister interface {
	Load(ctx context.Context) ([]PluginRecord, error)
	Save(ctx context.Context, records []PluginRecord) error
	Close() error
}

func cloneRecords(records []PluginRecord) []PluginRecord {
	out := make([]PluginRecord, len(records))
	copy(out, records)
	return out
}

func indexOf(records []PluginRecord, name string) int {
	for i := range records {
		if records[i].Name == name {
			return i
		}
	}
	return -1
}

func validateRecords(records []PluginRecord) error {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Name == "" {
			return errors.New("plugin name must not be empty")
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePlugin, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}
