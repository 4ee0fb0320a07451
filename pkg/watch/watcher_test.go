package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/panbanda/auger/pkg/analyzer/builtin"
	"github.com/panbanda/auger/pkg/auditor"
	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/config"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeModule(t *testing.T, path string, callee string) {
	t.Helper()
	b := bytecode.NewBuilder("Game")
	b.Type("Game", "Player").Method("Update").
		Line("Player.cs", 12).Call(bytecode.Method("System."+callee, "Concat", "string", "string"))
	require.NoError(t, bytecode.Save(path, b.Build()))
}

type fixture struct {
	dir     string
	module  string
	auditor *auditor.Auditor
	rep     *report.Report
	params  auditor.Params
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	module := filepath.Join(dir, "Game.bcm")
	writeModule(t, module, "Object")

	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	a, err := auditor.New(cfg, builtin.Registry())
	require.NoError(t, err)

	p := a.DefaultParams([]string{module})
	rep, err := a.Audit(context.Background(), p)
	require.NoError(t, err)
	return &fixture{dir: dir, module: module, auditor: a, rep: rep, params: p}
}

func (f *fixture) watcher(t *testing.T, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := NewWatcher(f.auditor, f.rep, f.params, []string{f.dir}, debounce)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestNewWatcherDebounce(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultDebounce, f.watcher(t, 0).debounce)
	assert.Equal(t, DefaultDebounce, f.watcher(t, -time.Second).debounce)
	assert.Equal(t, time.Second, f.watcher(t, time.Second).debounce)
}

func TestRelevant(t *testing.T) {
	f := newFixture(t)
	f.params.SettingsPath = filepath.Join(f.dir, "project.yaml")
	w := f.watcher(t, 0)

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(f.dir, "Game.bcm"), true},
		{filepath.Join(f.dir, "Game.sym"), true},
		{filepath.Join(f.dir, "Plugins", "Engine.BCM"), true},
		{filepath.Join(f.dir, "project.yaml"), true},
		{filepath.Join(f.dir, "notes.txt"), false},
		{filepath.Join(f.dir, "obj", "Game.bcm"), false},
		{filepath.Join(f.dir, ".auger", "cache", "Game.bcm"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.relevant(tt.path), tt.path)
	}
}

func TestHandleEventFiltersOps(t *testing.T) {
	w := newFixture(t).watcher(t, 0)
	path := filepath.Join(w.roots[0], "Game.bcm")

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod})
	assert.Empty(t, w.pending)

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(w.roots[0], "readme.md"), Op: fsnotify.Write})
	assert.Len(t, w.pending, 1)
}

func TestTakeReadyWaitsForQuiet(t *testing.T) {
	w := newFixture(t).watcher(t, time.Hour)
	now := time.Now()
	w.pending["a.bcm"] = now.Add(-2 * time.Hour)
	w.pending["b.bcm"] = now

	assert.Nil(t, w.takeReady(), "a settling change holds back the batch")

	w.pending["b.bcm"] = now.Add(-2 * time.Hour)
	assert.Equal(t, []string{"a.bcm", "b.bcm"}, w.takeReady())
	assert.Empty(t, w.pending)
}

func TestReauditReplacesIssues(t *testing.T) {
	f := newFixture(t)
	require.Empty(t, f.rep.FindByDescriptorID("API0002"))

	w := f.watcher(t, 0)
	var got []string
	w.SetCallback(func(rep *report.Report, changed []string, err error) {
		require.NoError(t, err)
		got = changed
	})

	writeModule(t, f.module, "String")
	w.reaudit(context.Background(), []string{f.module})

	assert.Equal(t, []string{f.module}, got)
	assert.Len(t, f.rep.FindByDescriptorID("API0002"), 1)

	writeModule(t, f.module, "Object")
	w.reaudit(context.Background(), []string{f.module})
	assert.Empty(t, f.rep.FindByDescriptorID("API0002"), "stale issues are cleared")
}

func TestReauditIncludesSettingsOnChange(t *testing.T) {
	f := newFixture(t)
	settings := filepath.Join(f.dir, "project.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("gc:\n  incremental: false\n"), 0o644))
	f.params.SettingsPath = settings

	w := f.watcher(t, 0)
	w.reaudit(context.Background(), []string{f.module})
	assert.Empty(t, f.rep.FindByCategory(models.CategorySettings), "settings are only re-checked when they change")

	w.reaudit(context.Background(), []string{settings})
	assert.Len(t, f.rep.FindByDescriptorID("SET0003"), 1)
}

func TestStartReauditsOnChange(t *testing.T) {
	f := newFixture(t)
	w := f.watcher(t, 50*time.Millisecond)

	done := make(chan []string, 4)
	w.SetCallback(func(_ *report.Report, changed []string, _ error) {
		select {
		case done <- changed:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return len(w.WatchedDirs()) > 0 }, 2*time.Second, 10*time.Millisecond)
	writeModule(t, f.module, "String")

	select {
	case changed := <-done:
		assert.Contains(t, changed, f.module)
	case <-time.After(5 * time.Second):
		t.Fatal("no re-audit after module change")
	}
	assert.Len(t, f.rep.FindByDescriptorID("API0002"), 1)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
