// Package watch re-audits modules when they change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/auger/pkg/auditor"
	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/report"
	"github.com/panbanda/auger/pkg/scan"
)

// DefaultDebounce is the quiet period after the last change before a
// re-audit starts.
const DefaultDebounce = 500 * time.Millisecond

// Callback receives the report after each re-audit together with the
// changed paths that triggered it.
type Callback func(rep *report.Report, changed []string, err error)

// Watcher monitors module directories and re-audits the code and assembly
// categories of an existing report when modules change.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	auditor   *auditor.Auditor
	rep       *report.Report
	params    auditor.Params
	roots     []string
	include   []string
	exclude   []string
	debounce  time.Duration
	callback  Callback
	logger    *slog.Logger
	mu        sync.Mutex
	pending   map[string]time.Time
}

// NewWatcher creates a watcher over roots. Re-audits start from p and
// update rep in place.
func NewWatcher(a *auditor.Auditor, rep *report.Report, p auditor.Params, roots []string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	cfg := a.Config()

	return &Watcher{
		fsWatcher: fsWatcher,
		auditor:   a,
		rep:       rep,
		params:    p,
		roots:     roots,
		include:   cfg.Modules.Include,
		exclude:   cfg.Modules.Exclude,
		debounce:  debounce,
		logger:    slog.Default().With(slog.String("component", "watch")),
		pending:   make(map[string]time.Time),
	}, nil
}

// SetCallback sets the function called after every re-audit.
func (w *Watcher) SetCallback(cb Callback) {
	w.callback = cb
}

// Start watches until ctx is done. Re-audits run one at a time.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.roots {
		if err := w.addDirs(root); err != nil {
			return err
		}
	}
	if w.params.SettingsPath != "" {
		if err := w.fsWatcher.Add(filepath.Dir(w.params.SettingsPath)); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processDebounced(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// addDirs watches root and its subdirectories, skipping excluded ones.
func (w *Watcher) addDirs(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.fsWatcher.Add(filepath.Dir(root))
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.excluded(root, path, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// excluded matches path against the exclude globs. Directories are
// matched as if they held a file so "**/obj/**" skips obj itself.
func (w *Watcher) excluded(root, path string, dir bool) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/_"
	}
	for _, pattern := range w.exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path can alter the report.
func (w *Watcher) relevant(path string) bool {
	if w.params.SettingsPath != "" && filepath.Clean(path) == filepath.Clean(w.params.SettingsPath) {
		return true
	}
	if !bytecode.IsModulePath(path) && !strings.EqualFold(filepath.Ext(path), bytecode.SymbolsExt) {
		return false
	}
	for _, root := range w.roots {
		if w.excluded(root, path, false) {
			return false
		}
	}
	return true
}

// handleEvent processes a filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !w.relevant(event.Name) {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebounced re-audits once pending changes have been quiet for the
// debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if changed := w.takeReady(); len(changed) > 0 {
				w.reaudit(ctx, changed)
			}
		}
	}
}

// takeReady removes and returns the changes that have been quiet for the
// debounce period. Nothing is returned while any change is still settling.
func (w *Watcher) takeReady() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	for _, lastMod := range w.pending {
		if now.Sub(lastMod) < w.debounce {
			return nil
		}
	}
	ready := make([]string, 0, len(w.pending))
	for path := range w.pending {
		ready = append(ready, path)
	}
	clear(w.pending)
	slices.Sort(ready)
	return ready
}

// reaudit replaces the code and assembly issues of the report, and the
// settings issues when the settings file changed.
func (w *Watcher) reaudit(ctx context.Context, changed []string) {
	p := w.params
	p.Report = w.rep
	p.Categories = []models.Category{models.CategoryCode, models.CategoryAssembly}
	if p.SettingsPath != "" && slices.ContainsFunc(changed, func(c string) bool {
		return filepath.Clean(c) == filepath.Clean(p.SettingsPath)
	}) {
		p.Categories = append(p.Categories, models.CategorySettings)
	}

	modules, err := scan.Discover(w.roots, w.include, w.exclude)
	if err != nil {
		w.notify(changed, err)
		return
	}
	p.ModulePaths = modules

	w.logger.Debug("re-auditing", slog.Int("changed", len(changed)), slog.Int("modules", len(modules)))
	_, err = w.auditor.Audit(ctx, p)
	w.notify(changed, err)
}

func (w *Watcher) notify(changed []string, err error) {
	if err != nil {
		w.logger.Warn("re-audit failed", slog.Any("error", err))
	}
	if w.callback != nil {
		w.callback(w.rep, changed, err)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the watched directories.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
