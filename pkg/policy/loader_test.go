package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const testRego = `# Needs systemd.
# Second line.
# severity: critical
package froyo.site.test

import rego.v1

deny contains "nope" if input.settings.init == "none"
`

func TestLoadFromFile_Rego(t *testing.T) {
	path := filepath.Join(t.TempDir(), "needs-systemd.rego")
	writeFile(t, path, testRego)

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("got %d policies", len(policies))
	}

	p := policies[0]
	if p.Name != "needs-systemd" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Description != "Needs systemd. Second line." {
		t.Errorf("Description = %q", p.Description)
	}
	if p.Severity != SeverityCritical {
		t.Errorf("Severity = %q", p.Severity)
	}
	if !p.Enabled {
		t.Error("policy not enabled")
	}
	if p.Metadata["source"] != path {
		t.Errorf("Metadata = %v", p.Metadata)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "p.json")
	writeFile(t, path, `{"name": "from-json", "rego": "package x\n", "enabled": false}`)

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	p := policies[0]
	if p.Name != "from-json" || p.Enabled || p.Severity != SeverityWarning {
		t.Errorf("policy = %+v", p)
	}

	for name, content := range map[string]string{
		"invalid.json": `{`,
		"noname.json":  `{"rego": "package x"}`,
		"norego.json":  `{"name": "x"}`,
	} {
		path := filepath.Join(dir, name)
		writeFile(t, path, content)
		if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{path}); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b.rego"), testRego)
	writeFile(t, filepath.Join(dir, "nested", "a.rego"), testRego)
	writeFile(t, filepath.Join(dir, "bad.json"), `{`)
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("got %d policies, want 2", len(policies))
	}
	if policies[0].Name != "b" || policies[1].Name != "a" {
		t.Errorf("order = %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPaths_Errors(t *testing.T) {
	dir := t.TempDir()
	unsupported := filepath.Join(dir, "policy.txt")
	writeFile(t, unsupported, "x")

	tests := []struct {
		name string
		path string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.rego")},
		{name: "unsupported", path: unsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{tt.path}); err == nil {
				t.Error("expected an error")
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(ctx, []string{dir}); err == nil {
		t.Error("LoadFromPaths() ignored a cancelled context")
	}
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		content     string
		description string
		severity    Severity
	}{
		{content: "package x\n# not a header\n"},
		{content: "# One.\n\n# Two.\npackage x\n", description: "One. Two."},
		{content: "# severity: ERROR\npackage x\n", severity: SeverityError},
	}
	for _, tt := range tests {
		description, severity := parseHeader(tt.content)
		if description != tt.description || severity != tt.severity {
			t.Errorf("parseHeader(%q) = %q, %q", tt.content, description, severity)
		}
	}
}
