package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/auger/pkg/bytecode"
)

// writeProject creates a directory with one module calling GC.Collect and
// changes into it.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	b := bytecode.NewBuilder("Game")
	player := b.Type("Game", "Player")
	update := player.Method("Update").
		Line("Player.cs", 12).Call(bytecode.Method("System.GC", "Collect"))
	b.Type("Game", "Loop").Method("Tick").
		Line("Loop.cs", 3).Call(update.Ref())
	if err := bytecode.Save(filepath.Join(dir, "Game.bcm"), b.Build()); err != nil {
		t.Fatalf("failed to write module: %v", err)
	}
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp()
	app.Writer = &strings.Builder{}
	app.ErrWriter = &strings.Builder{}
	return app.Run(append([]string{"auger", "--no-cache", "--no-color"}, args...))
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return string(data)
}

// TestGetPaths verifies path handling from CLI arguments.
func TestGetPaths(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "no args defaults to current dir",
			args:     []string{},
			expected: []string{"."},
		},
		{
			name:     "single path",
			args:     []string{"/foo/bar"},
			expected: []string{"/foo/bar"},
		},
		{
			name:     "multiple paths",
			args:     []string{"/foo", "/bar"},
			expected: []string{"/foo", "/bar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &cli.App{
				Action: func(c *cli.Context) error {
					result := getPaths(c)
					if len(result) != len(tt.expected) {
						t.Errorf("getPaths() = %v, want %v", result, tt.expected)
						return nil
					}
					for i := range result {
						if result[i] != tt.expected[i] {
							t.Errorf("getPaths()[%d] = %q, want %q", i, result[i], tt.expected[i])
						}
					}
					return nil
				},
			}
			args := append([]string{"test"}, tt.args...)
			_ = app.Run(args)
		})
	}
}

func TestParseMinSeverity(t *testing.T) {
	if _, err := parseMinSeverity(""); err != nil {
		t.Errorf("empty severity error: %v", err)
	}
	if _, err := parseMinSeverity("major"); err != nil {
		t.Errorf("major error: %v", err)
	}
	if _, err := parseMinSeverity("bogus"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

// TestAuditCommandE2E tests the audit command end-to-end.
func TestAuditCommandE2E(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "out.json")

	if err := run(t, "-f", "json", "-o", out, "audit", dir); err != nil {
		t.Fatalf("audit command failed: %v", err)
	}

	var data struct {
		Issues []struct {
			DescriptorID string `json:"descriptor_id"`
			Severity     string `json:"severity"`
			Location     string `json:"location"`
		} `json:"issues"`
	}
	if err := json.Unmarshal([]byte(readOutput(t, out)), &data); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	found := false
	for _, issue := range data.Issues {
		if issue.DescriptorID == "API0003" {
			found = true
			if issue.Location != "Player.cs:12" {
				t.Errorf("location = %q, want Player.cs:12", issue.Location)
			}
		}
	}
	if !found {
		t.Errorf("API0003 not reported: %+v", data.Issues)
	}
}

func TestAuditCommandTextTree(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "out.txt")

	if err := run(t, "-o", out, "audit", "--tree", dir); err != nil {
		t.Fatalf("audit command failed: %v", err)
	}
	text := readOutput(t, out)
	for _, want := range []string{"API0003", "[major]", "Player.cs:12", "Tick"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestAuditFailOn(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "out.txt")

	err := run(t, "-o", out, "audit", "--fail-on", "major", dir)
	if !errors.Is(err, errIssuesFound) {
		t.Errorf("--fail-on major error = %v, want errIssuesFound", err)
	}
	if err := run(t, "-o", out, "audit", "--fail-on", "critical", dir); err != nil {
		t.Errorf("--fail-on critical error = %v, want nil", err)
	}
	if err := run(t, "-o", out, "audit", "--fail-on", "bogus", dir); err == nil {
		t.Error("expected error for invalid --fail-on")
	}
}

func TestAuditUnsupportedPlatform(t *testing.T) {
	dir := writeProject(t)
	if err := run(t, "-o", filepath.Join(dir, "out.txt"), "audit", "-p", "ps5", dir); err == nil {
		t.Error("expected error for an unsupported platform")
	}
}

func TestNoModules(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := run(t, "audit", dir); err != nil {
		t.Errorf("audit of empty dir error: %v", err)
	}
}

func TestStatusLinesGoToErrWriter(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	app := newApp()
	var stdout, stderr strings.Builder
	app.Writer = &stdout
	app.ErrWriter = &stderr
	if err := app.Run([]string{"auger", "--no-cache", "--no-color", "audit", dir}); err != nil {
		t.Fatalf("audit of empty dir error: %v", err)
	}
	if !strings.Contains(stderr.String(), "warning: No modules found") {
		t.Errorf("status output:\n%s", stderr.String())
	}
	if strings.Contains(stdout.String(), "No modules found") {
		t.Errorf("status line written to results:\n%s", stdout.String())
	}
}

func TestReportSaveShowValidate(t *testing.T) {
	dir := writeProject(t)
	saved := filepath.Join(dir, "report.json")

	if err := run(t, "-o", filepath.Join(dir, "audit.txt"), "audit", "--save", saved, dir); err != nil {
		t.Fatalf("audit --save failed: %v", err)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("report not saved: %v", err)
	}

	if err := run(t, "report", "validate", saved); err != nil {
		t.Errorf("report validate failed: %v", err)
	}

	out := filepath.Join(dir, "show.md")
	if err := run(t, "-f", "markdown", "-o", out, "report", "show", "--id", "API0003", saved); err != nil {
		t.Fatalf("report show failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, "API0003") {
		t.Errorf("report show missing API0003:\n%s", text)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"version": "x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "report", "validate", bad); err == nil {
		t.Error("expected validation error for malformed report")
	}
	if err := run(t, "report", "show"); err == nil {
		t.Error("expected error without a report path")
	}
}

func TestDescriptorsCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	out := filepath.Join(dir, "list.txt")

	if err := run(t, "-o", out, "descriptors", "list"); err != nil {
		t.Fatalf("descriptors list failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, "API0003") {
		t.Errorf("descriptors list missing API0003:\n%s", text)
	}

	if err := run(t, "-o", out, "descriptors", "show", "api0003"); err != nil {
		t.Fatalf("descriptors show failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, "Explicit garbage collection") {
		t.Errorf("descriptors show missing title:\n%s", text)
	}
	if err := run(t, "descriptors", "show", "NOPE0001"); err == nil {
		t.Error("expected error for unknown descriptor")
	}
}

func TestGraphCommand(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "graph.txt")

	if err := run(t, "-o", out, "graph", dir); err != nil {
		t.Fatalf("graph command failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, "Call edges") {
		t.Errorf("graph output missing stats:\n%s", text)
	}

	if err := run(t, "-o", out, "graph", "--method", "Game.Player::Update()", dir); err != nil {
		t.Fatalf("graph --method failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, "Tick") {
		t.Errorf("caller tree missing Tick:\n%s", text)
	}
}

func TestDumpCommand(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "dump.txt")

	if err := run(t, "-o", out, "dump", filepath.Join(dir, "Game.bcm")); err != nil {
		t.Fatalf("dump command failed: %v", err)
	}
	text := readOutput(t, out)
	for _, want := range []string{"module Game", "System.GC::Collect", "Player.cs:12"} {
		if !strings.Contains(text, want) {
			t.Errorf("dump output missing %q:\n%s", want, text)
		}
	}
	if err := run(t, "dump"); err == nil {
		t.Error("expected error without a module path")
	}
}

func TestParamsCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	out := filepath.Join(dir, "params.json")

	if err := run(t, "-f", "json", "-o", out, "params"); err != nil {
		t.Fatalf("params command failed: %v", err)
	}
	if text := readOutput(t, out); !strings.Contains(text, `"platform"`) {
		t.Errorf("params output missing layers:\n%s", text)
	}
	if err := run(t, "-o", out, "params", "-p", "android"); err != nil {
		t.Fatalf("params -p android failed: %v", err)
	}
	if err := run(t, "params", "-p", "ps5"); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestConfigCommands(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := run(t, "config", "validate"); err != nil {
		t.Errorf("default config validate failed: %v", err)
	}

	good := filepath.Join(dir, "good.toml")
	if err := os.WriteFile(good, []byte("[analysis]\nplatform = \"android\"\n\n[[rules]]\nid = \"API0003\"\nseverity = \"critical\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "-c", good, "config", "validate"); err != nil {
		t.Errorf("config validate failed: %v", err)
	}

	app := newApp()
	var buf strings.Builder
	app.Writer = &buf
	if err := app.Run([]string{"auger", "-c", good, "config", "show"}); err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(buf.String(), "# Configuration from: "+good) || !strings.Contains(buf.String(), "android") {
		t.Errorf("config show output:\n%s", buf.String())
	}

	unknown := filepath.Join(dir, "unknown.toml")
	if err := os.WriteFile(unknown, []byte("[[rules]]\nid = \"API9999\"\nseverity = \"critical\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "-c", unknown, "config", "validate"); err == nil {
		t.Error("expected error for a rule naming an unknown descriptor")
	}
}

func TestCacheCommands(t *testing.T) {
	dir := writeProject(t)
	out := filepath.Join(dir, "stats.json")
	cached := func(args ...string) {
		t.Helper()
		app := newApp()
		app.Writer = &strings.Builder{}
		app.ErrWriter = &strings.Builder{}
		if err := app.Run(append([]string{"auger", "--no-color"}, args...)); err != nil {
			t.Fatalf("auger %v failed: %v", args, err)
		}
	}
	entries := func() int {
		t.Helper()
		cached("-f", "json", "-o", out, "cache", "stats")
		var stats struct {
			Entries int `json:"entries"`
		}
		if err := json.Unmarshal([]byte(readOutput(t, out)), &stats); err != nil {
			t.Fatalf("stats output is not JSON: %v", err)
		}
		return stats.Entries
	}

	cached("-o", filepath.Join(dir, "audit.txt"), "audit", dir)
	if n := entries(); n != 1 {
		t.Fatalf("entries after audit = %d, want 1", n)
	}

	cached("cache", "invalidate", dir)
	if n := entries(); n != 0 {
		t.Errorf("entries after invalidate = %d, want 0", n)
	}

	cached("-o", filepath.Join(dir, "audit.txt"), "audit", dir)
	cached("cache", "clear")
	if _, err := os.Stat(filepath.Join(dir, ".auger", "cache")); !os.IsNotExist(err) {
		t.Error("cache clear should remove the cache directory")
	}
}

func TestMCPManifestCommand(t *testing.T) {
	app := newApp()
	var buf strings.Builder
	app.Writer = &buf
	if err := app.Run([]string{"auger", "mcp", "manifest"}); err != nil {
		t.Fatalf("mcp manifest failed: %v", err)
	}
	if !strings.Contains(buf.String(), "io.github.panbanda/auger") {
		t.Errorf("manifest output:\n%s", buf.String())
	}
}

func TestVersionVariable(t *testing.T) {
	if version == "" {
		t.Error("version should have a default value")
	}
}
