package ui

import (
	"testing"
	"time"

	"github.com/five82/captable/internal/state"
)

func TestParseCellValue(t *testing.T) {
	tests := []struct {
		name    string
		current any
		text    string
		want    any
		wantErr bool
	}{
		{name: "empty clears", current: "x", text: "  ", want: nil},
		{name: "string", current: "old", text: " new ", want: "new"},
		{name: "nil current keeps text", current: nil, text: "42", want: "42"},
		{name: "int64", current: int64(3), text: "17", want: int64(17)},
		{name: "int rejects text", current: int64(3), text: "abc", wantErr: true},
		{name: "float", current: 1.5, text: "2.25", want: 2.25},
		{name: "float rejects text", current: 1.5, text: "x", wantErr: true},
		{name: "bool", current: false, text: "true", want: true},
		{name: "bool rejects text", current: true, text: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCellValue(tt.current, tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseCellValue(%v, %q) error = nil, want error", tt.current, tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseCellValue(%v, %q) error = %v", tt.current, tt.text, err)
			}
			if got != tt.want {
				t.Fatalf("parseCellValue(%v, %q) = %#v, want %#v", tt.current, tt.text, got, tt.want)
			}
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{int64(12), "12"},
		{2.50, "2.5"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Fatalf("formatValue(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name  string
		s     string
		width int
		right bool
		want  string
	}{
		{"pads left aligned", "ab", 5, false, "ab   "},
		{"pads right aligned", "42", 5, true, "   42"},
		{"truncates", "abcdefgh", 5, false, "abcd…"},
		{"wide runes", "日本語", 4, false, "日… "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fit(tt.s, tt.width, tt.right); got != tt.want {
				t.Fatalf("fit(%q, %d, %v) = %q, want %q", tt.s, tt.width, tt.right, got, tt.want)
			}
		})
	}
}

func TestTruncateMiddle(t *testing.T) {
	if got := truncateMiddle("/home/user/.local/share/captable.log", 11); got != "/home…e.log" {
		t.Fatalf("truncateMiddle = %q, want %q", got, "/home…e.log")
	}
	if got := truncateMiddle("short", 10); got != "short" {
		t.Fatalf("truncateMiddle(short) = %q, want short", got)
	}
}

func TestRowsLabel(t *testing.T) {
	if got := rowsLabel(state.Status{Rows: 1001}); got != "≥ 1000" {
		t.Fatalf("rowsLabel(unknown) = %q, want %q", got, "≥ 1000")
	}
	if got := rowsLabel(state.Status{Rows: 1234, CountKnown: true}); got != "1234" {
		t.Fatalf("rowsLabel(known) = %q, want 1234", got)
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if got := since(now, now.Add(-300*time.Millisecond)); got != "now" {
		t.Fatalf("since(300ms) = %q, want now", got)
	}
	if got := since(now, now.Add(-90*time.Second)); got != "1m30s ago" {
		t.Fatalf("since(90s) = %q, want %q", got, "1m30s ago")
	}
}
