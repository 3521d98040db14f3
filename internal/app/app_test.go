package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/five82/captable/internal/config"
	"github.com/five82/captable/internal/prefs"
	"github.com/five82/captable/internal/service"
	"github.com/five82/captable/internal/table"
)

func TestViewConfig_SkipsBadSortKeys(t *testing.T) {
	got := viewConfig(prefs.TableView{
		Widths: map[string]int{"title": 20},
		Sort:   []string{"title desc", "amount sideways", "-created"},
	})
	want := table.ViewConfig{
		Widths: map[string]int{"title": 20},
		Sort: []service.SortKey{
			{Property: "title", Descending: true},
			{Property: "created", Descending: true},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("view config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	missing := filepath.Join(t.TempDir(), "none.toml")

	cfg, err := LoadConfig(Options{ConfigPath: missing, Backend: "http", PollEvery: 7})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != config.BackendHTTP {
		t.Fatalf("Backend = %q, want http", cfg.Backend)
	}
	if cfg.PollInterval.Seconds() != 7 {
		t.Fatalf("PollInterval = %v, want 7s", cfg.PollInterval)
	}
	if _, err := LoadConfig(Options{ConfigPath: missing, Backend: "ftp"}); err == nil {
		t.Fatalf("LoadConfig accepted an unknown backend")
	}
}

func TestOpenBackend_SQLiteSeedsOnce(t *testing.T) {
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.yaml")
	writeFile(t, seed, `rows:
  - title: alpha
    status: open
    amount: 1.5
  - title: beta
    status: done
`)
	cfg := config.Config{
		Backend:  config.BackendSQLite,
		DBPath:   filepath.Join(dir, "db", "rows.db"),
		SeedFile: seed,
		Table:    "items",
		Columns: []config.Column{
			{Name: "title", Type: "text"},
			{Name: "status", Type: "text"},
			{Name: "amount", Type: "real"},
		},
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		svc, closeFn, err := openBackend(ctx, cfg)
		if err != nil {
			t.Fatalf("openBackend #%d: %v", i, err)
		}
		n, err := svc.Count(ctx, service.CountQuery{})
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n != 2 {
			t.Fatalf("open #%d: Count = %d, want 2", i, n)
		}
		if err := closeFn(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
}

func TestServe_RejectsHTTPBackend(t *testing.T) {
	err := Serve(context.Background(), config.Config{Backend: config.BackendHTTP})
	if err == nil {
		t.Fatalf("Serve with http backend returned nil error")
	}
}
