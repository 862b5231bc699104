package cli

import (
	"reflect"
	"testing"
)

func TestNormalizeArgs(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"empty", nil, nil},
		{"known command", []string{"status"}, []string{"status"}},
		{"known command with args", []string{"list", "api"}, []string{"list", "api"}},
		{"alias", []string{"ls"}, []string{"ls"}},
		{"flag first", []string{"--verbose"}, []string{"--verbose"}},
		{"help", []string{"help"}, []string{"help"}},
		{"bare project becomes start", []string{"api"}, []string{"start", "api"}},
		{"project with flags", []string{"api", "--tui"}, []string{"start", "api", "--tui"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeArgs(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("normalizeArgs(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveMode(t *testing.T) {
	if _, err := resolveMode(true, true); err == nil {
		t.Fatal("want error for --tui with --background")
	}
	mode, err := resolveMode(true, false)
	if err != nil || mode != "tui" {
		t.Fatalf("got %q, %v", mode, err)
	}
	mode, _ = resolveMode(false, true)
	if mode != "background" {
		t.Fatalf("got %q", mode)
	}
	mode, _ = resolveMode(false, false)
	if mode != "dashboard" {
		t.Fatalf("got %q", mode)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := truncate("a very long task title", 10); len([]rune(got)) != 10 {
		t.Fatalf("got %q", got)
	}
}
