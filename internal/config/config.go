package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Backend selects where the table reads and writes rows.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendHTTP   Backend = "http"
)

// Column describes one column of the managed table.
type Column struct {
	Name     string `toml:"name"`
	Type     string `toml:"type"`
	Title    string `toml:"title"`
	Width    int    `toml:"width"`
	Editable bool   `toml:"editable"`
}

// Config captures everything captable needs to open a table.
type Config struct {
	Backend            Backend
	DBPath             string
	APIBind            string
	LogPath            string
	SeedFile           string
	Table              string
	Columns            []Column
	PageSize           int
	PollInterval       time.Duration
	Timeout            time.Duration
	Policy             string
	ConfirmDeleteAbove int
}

const (
	defaultConfigPath  = "~/.config/captable/config.toml"
	defaultDBPath      = "~/.local/share/captable/captable.db"
	defaultLogPath     = "~/.local/share/captable/captable.log"
	defaultAPIBind     = "127.0.0.1:7488"
	defaultTable       = "items"
	defaultPageSize    = 1000
	defaultPoll        = 30 * time.Second
	defaultTimeout     = 30 * time.Second
	defaultPolicy      = "serial"
	defaultConfirmOver = 10
)

func defaultColumns() []Column {
	return []Column{
		{Name: "title", Type: "text", Title: "Title", Width: 32, Editable: true},
		{Name: "status", Type: "text", Title: "Status", Width: 12, Editable: true},
		{Name: "amount", Type: "real", Title: "Amount", Width: 10, Editable: true},
		{Name: "created", Type: "integer", Title: "Created", Width: 12},
	}
}

func defaults() Config {
	return Config{
		Backend:            BackendSQLite,
		DBPath:             mustExpand(defaultDBPath),
		APIBind:            defaultAPIBind,
		LogPath:            mustExpand(defaultLogPath),
		Table:              defaultTable,
		Columns:            defaultColumns(),
		PageSize:           defaultPageSize,
		PollInterval:       defaultPoll,
		Timeout:            defaultTimeout,
		Policy:             defaultPolicy,
		ConfirmDeleteAbove: defaultConfirmOver,
	}
}

// Load locates and parses the captable config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Backend            string   `toml:"backend"`
		DBPath             string   `toml:"db_path"`
		APIBind            string   `toml:"api_bind"`
		LogPath            string   `toml:"log_path"`
		SeedFile           string   `toml:"seed_file"`
		Table              string   `toml:"table"`
		Columns            []Column `toml:"columns"`
		PageSize           int      `toml:"page_size"`
		PollSeconds        int      `toml:"poll_seconds"`
		TimeoutSeconds     int      `toml:"timeout_seconds"`
		Policy             string   `toml:"policy"`
		ConfirmDeleteAbove *int     `toml:"confirm_delete_above"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	switch backend := Backend(strings.ToLower(strings.TrimSpace(raw.Backend))); backend {
	case "":
	case BackendSQLite, BackendHTTP:
		cfg.Backend = backend
	default:
		return Config{}, fmt.Errorf("parse config: unknown backend %q", raw.Backend)
	}

	if v := strings.TrimSpace(raw.DBPath); v != "" {
		cfg.DBPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.APIBind); v != "" {
		cfg.APIBind = v
	}
	if v := strings.TrimSpace(raw.LogPath); v != "" {
		cfg.LogPath = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.SeedFile); v != "" {
		cfg.SeedFile = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.Table); v != "" {
		cfg.Table = v
	}
	if v := strings.TrimSpace(raw.Policy); v != "" {
		cfg.Policy = strings.ToLower(v)
	}
	if len(raw.Columns) > 0 {
		cols, err := normalizeColumns(raw.Columns)
		if err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
		cfg.Columns = cols
	}
	if raw.PageSize > 0 {
		cfg.PageSize = raw.PageSize
	}
	if raw.PollSeconds > 0 {
		cfg.PollInterval = time.Duration(raw.PollSeconds) * time.Second
	}
	if raw.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(raw.TimeoutSeconds) * time.Second
	}
	if raw.ConfirmDeleteAbove != nil {
		cfg.ConfirmDeleteAbove = *raw.ConfirmDeleteAbove
	}

	return cfg, nil
}

func normalizeColumns(in []Column) ([]Column, error) {
	out := make([]Column, 0, len(in))
	seen := make(map[string]bool, len(in))
	for i, c := range in {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = true
		c.Type = strings.ToLower(strings.TrimSpace(c.Type))
		if c.Type == "" {
			c.Type = "text"
		}
		if strings.TrimSpace(c.Title) == "" {
			c.Title = c.Name
		}
		out = append(out, c)
	}
	return out, nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
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
