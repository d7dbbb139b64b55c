package themeconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SkinFile marks a directory as a theme.
const SkinFile = "skin.json"

// ErrThemeNotFound is returned when selecting a theme that is not installed.
var ErrThemeNotFound = errors.New("theme not found")

// Theme is an installed theme.
type Theme struct {
	Name   string
	Path   string
	Active bool
}

// ListThemes returns the themes installed under dir in directory order,
// flagging active. A missing dir has no themes.
func ListThemes(dir, active string) ([]Theme, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read themes dir %s: %w", dir, err)
	}

	var themes []Theme
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(path, SkinFile)); err != nil {
			continue
		}
		themes = append(themes, Theme{Name: e.Name(), Path: path, Active: e.Name() == active})
	}
	return themes, nil
}

// UseTheme selects name after checking it is installed under dir.
func UseTheme(store *FileStore, dir, name string) error {
	themes, err := ListThemes(dir, "")
	if err != nil {
		return err
	}
	for _, t := range themes {
		if t.Name == name {
			return store.SetActive(name)
		}
	}
	return fmt.Errorf("%w: %s", ErrThemeNotFound, name)
}
