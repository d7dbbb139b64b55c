package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the file that marks a directory as a plugin.
const ManifestFile = "plugin.yaml"

// manifest is the subset of a plugin manifest the registry cares about.
type manifest struct {
	Name     string `yaml:"name"`
	Backend  string `yaml:"backend"`
	Frontend string `yaml:"frontend"`
}

// Discover scans dir for plugin directories and returns one disabled record
// per manifest, in directory order. Relative entry points are resolved
// against the plugin directory. A missing dir yields no records.
func Discover(dir string) ([]PluginRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugins dir %s: %w", dir, err)
	}

	var records []PluginRecord
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pluginDir := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(filepath.Join(pluginDir, ManifestFile))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read manifest of %s: %w", e.Name(), err)
		}

		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse manifest of %s: %w", e.Name(), err)
		}
		if m.Name == "" {
			m.Name = e.Name()
		}
		records = append(records, PluginRecord{
			Name:          m.Name,
			BackendEntry:  resolveEntry(pluginDir, m.Backend),
			FrontendEntry: resolveEntry(pluginDir, m.Frontend),
		})
	}
	return records, nil
}

func resolveEntry(pluginDir, entry string) string {
	if entry == "" || filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(pluginDir, entry)
}
