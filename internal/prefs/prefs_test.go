package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != defaultTheme {
		t.Fatalf("Theme = %q, want %q", p.Theme, defaultTheme)
	}
	if v := p.View("items"); v.Widths != nil || v.Sort != nil {
		t.Fatalf("View(items) = %+v, want empty", v)
	}
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	prefsDir := filepath.Join(home, ".config", "captable")
	if err := os.MkdirAll(prefsDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	body := `theme = "Slate"

[tables.items]
sort = ["title asc", "amount desc"]

[tables.items.widths]
title = 40
`
	if err := os.WriteFile(filepath.Join(prefsDir, "prefs.toml"), []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if p.Theme != "Slate" {
		t.Fatalf("Theme = %q, want %q", p.Theme, "Slate")
	}
	want := TableView{Widths: map[string]int{"title": 40}, Sort: []string{"title asc", "amount desc"}}
	if diff := cmp.Diff(want, p.View("items")); diff != "" {
		t.Fatalf("view mismatch (-want +got):\n%s", diff)
	}
}

func TestSave_RoundTripsViews(t *testing.T) {
	prefsFile := filepath.Join(t.TempDir(), "subdir", "prefs.toml")

	p := Prefs{Theme: "Kanagawa"}.WithView("items", TableView{
		Widths: map[string]int{"status": 8},
		Sort:   []string{"created desc"},
	})
	if err := Save(prefsFile, p); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := Load(prefsFile)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(p, loaded); diff != "" {
		t.Fatalf("prefs mismatch (-want +got):\n%s", diff)
	}
}

func TestWithView_DoesNotAlias(t *testing.T) {
	base := Prefs{Theme: "Slate"}.WithView("a", TableView{Sort: []string{"x asc"}})
	next := base.WithView("b", TableView{Sort: []string{"y asc"}})

	if _, ok := base.Tables["b"]; ok {
		t.Fatalf("WithView mutated the receiver")
	}
	v := next.View("a")
	v.Sort[0] = "changed"
	if got := next.View("a").Sort[0]; got != "x asc" {
		t.Fatalf("View leaked internal slice, Sort[0] = %q", got)
	}
}

func TestLoad_FallsBackToDefault(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty theme", "theme = \"\"\n"},
		{"invalid toml", "not valid toml {{{\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefsFile := filepath.Join(t.TempDir(), "prefs.toml")
			if err := os.WriteFile(prefsFile, []byte(tt.body), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			p, err := Load(prefsFile)
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if p.Theme != defaultTheme {
				t.Fatalf("Theme = %q, want %q", p.Theme, defaultTheme)
			}
		})
	}
}
