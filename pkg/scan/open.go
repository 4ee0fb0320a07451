package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/panbanda/auger/pkg/bytecode"
)

// ModuleError reports a module that could not be loaded.
type ModuleError struct {
	Path string
	Err  error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Path, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// Result holds the modules Open could load and the ones it could not.
type Result struct {
	Modules  []*bytecode.Module
	Failures []*ModuleError
}

// Open loads modules concurrently. A module that fails to load is recorded
// in Failures and excluded; the others are returned in input order.
// Only context cancellation makes Open itself fail.
func Open(ctx context.Context, paths []string) (*Result, error) {
	loaded := make([]*bytecode.Module, len(paths))
	var (
		mu       sync.Mutex
		failures []*ModuleError
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			mod, err := bytecode.Load(path)
			if err != nil {
				mu.Lock()
				failures = append(failures, &ModuleError{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			loaded[i] = mod
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Failures: failures}
	for _, mod := range loaded {
		if mod != nil {
			res.Modules = append(res.Modules, mod)
		}
	}
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Path < res.Failures[j].Path })
	return res, nil
}

// Discover expands paths into module files. Directories are walked; files
// are kept as given. include and exclude are doublestar patterns matched
// against slash-separated paths relative to each walked directory. An empty
// include list matches every module.
func Discover(paths, include, exclude []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !bytecode.IsModulePath(path) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if matchAny(exclude, rel) {
				return nil
			}
			if len(include) > 0 && !matchAny(include, rel) {
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
