// Package prefs persists captable user preferences: the theme and, per
// table, the column widths and sort order. Preferences are stored in
// ~/.config/captable/prefs.toml.
package prefs

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// TableView is the remembered presentation of one table.
type TableView struct {
	Widths map[string]int `toml:"widths,omitempty"`
	// Sort holds keys as "property asc" or "property desc", most
	// significant first.
	Sort []string `toml:"sort,omitempty"`
}

// Prefs holds user preferences for captable.
type Prefs struct {
	Theme  string               `toml:"theme"`
	Tables map[string]TableView `toml:"tables,omitempty"`
}

const (
	defaultPrefsPath = "~/.config/captable/prefs.toml"
	defaultTheme     = "Nightfox"
)

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// View returns the stored view of table, or an empty one.
func (p Prefs) View(table string) TableView {
	v := p.Tables[table]
	return TableView{Widths: maps.Clone(v.Widths), Sort: slices.Clone(v.Sort)}
}

// WithView returns a copy of p with the view of table replaced.
func (p Prefs) WithView(table string, v TableView) Prefs {
	tables := make(map[string]TableView, len(p.Tables)+1)
	maps.Copy(tables, p.Tables)
	tables[table] = TableView{Widths: maps.Clone(v.Widths), Sort: slices.Clone(v.Sort)}
	p.Tables = tables
	return p
}

// Load reads preferences from the given path, falling back to defaults if missing.
func Load(path string) (Prefs, error) {
	prefs := Prefs{Theme: defaultTheme}

	resolved, err := resolvePath(path)
	if err != nil {
		return prefs, nil
	}

	bytes, err := os.ReadFile(resolved)
	if err != nil {
		return prefs, nil // Graceful degradation, missing file included
	}

	if err := toml.Unmarshal(bytes, &prefs); err != nil {
		return Prefs{Theme: defaultTheme}, nil // Graceful degradation
	}

	if strings.TrimSpace(prefs.Theme) == "" {
		prefs.Theme = defaultTheme
	}

	return prefs, nil
}

// Save writes preferences to the given path, creating directories as needed.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(resolved, bytes, 0o644); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
