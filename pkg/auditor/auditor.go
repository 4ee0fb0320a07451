// Package auditor runs analyzer modules over a project and collects their
// issues into a report.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/auger/internal/cache"
	"github.com/panbanda/auger/internal/vcs"
	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/config"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/report"
	"github.com/panbanda/auger/pkg/rules"
)

// ErrUnsupportedPlatform is returned when the target platform is not one of
// the configured supported platforms.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ErrNotFixable is returned by Fix for issues whose descriptor has no fixer.
var ErrNotFixable = errors.New("issue cannot be fixed automatically")

// Auditor owns the analyzer modules and the descriptor catalog of a
// session. It can run any number of audits.
type Auditor struct {
	cfg     *config.Config
	modules []analyzer.Module
	catalog *descriptor.Catalog
	params  *params.Store
	rules   *rules.Set
	cache   *cache.Cache
	logger  *slog.Logger
	version string
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithLogger sets the logger passed to modules.
func WithLogger(l *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = l
	}
}

// WithToolVersion sets the version recorded in report sessions.
func WithToolVersion(v string) Option {
	return func(a *Auditor) {
		a.version = v
	}
}

// WithCache overrides the scan cache built from the configuration.
func WithCache(c *cache.Cache) Option {
	return func(a *Auditor) {
		a.cache = c
	}
}

// New creates an auditor from a configuration and the modules of registry.
// Every module is initialized here; a descriptor id registered twice, by
// modules or by extra descriptor files, fails.
func New(cfg *config.Config, registry *analyzer.Registry, opts ...Option) (*Auditor, error) {
	a := &Auditor{
		cfg:     cfg.Clone(),
		catalog: descriptor.NewCatalog(),
		params:  params.FromLayers(cfg.Params),
		logger:  slog.Default(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}

	ictx := &analyzer.Context{Catalog: a.catalog, Params: a.params, Logger: a.logger}
	for _, m := range registry.New() {
		if err := m.Initialize(ictx); err != nil {
			return nil, fmt.Errorf("initializing module %s: %w", m.Name(), err)
		}
		a.modules = append(a.modules, m)
	}
	for _, path := range a.cfg.Descriptors.Files {
		ds, err := descriptor.LoadYAMLFile(path)
		if err != nil {
			return nil, err
		}
		if err := a.catalog.RegisterAll(ds); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if err := a.cfg.Validate(a.catalog); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a.rules = rules.NewSet(a.cfg.Rules...)

	if a.cache == nil {
		a.cache = cache.Disabled()
		if a.cfg.Cache.Enabled {
			c, err := cache.New(a.cfg.Cache.Dir, a.cfg.Cache.TTL, true)
			if err != nil {
				a.logger.Warn("cache disabled", slog.Any("error", err))
			} else {
				a.cache = c
			}
		}
	}
	return a, nil
}

// Catalog returns the descriptors registered by modules and configuration.
func (a *Auditor) Catalog() *descriptor.Catalog {
	return a.catalog
}

// Config returns the auditor's copy of the configuration.
func (a *Auditor) Config() *config.Config {
	return a.cfg
}

// Modules returns the initialized modules in run order.
func (a *Auditor) Modules() []analyzer.Module {
	return slices.Clone(a.modules)
}

// Params returns a copy of the parameter store with module defaults
// registered.
func (a *Auditor) Params() *params.Store {
	return a.params.Clone()
}

// Params selects what an audit analyzes.
type Params struct {
	Platform       models.Platform
	RuntimeVersion string
	ModulePaths    []string
	SettingsPath   string
	// Categories limits the audit to modules producing them. Empty runs
	// every module.
	Categories []models.Category
	// Report, when set, is re-analyzed: issues of the audited categories
	// are cleared and replaced.
	Report *report.Report
}

// DefaultParams returns the parameters configured for modulePaths.
func (a *Auditor) DefaultParams(modulePaths []string) Params {
	return Params{
		Platform:       a.cfg.Platform(),
		RuntimeVersion: a.cfg.Analysis.RuntimeVersion,
		ModulePaths:    modulePaths,
		SettingsPath:   a.cfg.Settings.Path,
		Categories:     a.cfg.Categories(),
	}
}

// Callbacks observe an asynchronous audit. Every field is optional.
// OnIssues and OnModuleDone may be called concurrently when modules run in
// parallel.
type Callbacks struct {
	OnIssues     func(issues []*models.Issue)
	OnModuleDone func(info report.ModuleInfo)
	OnComplete   func(rep *report.Report, err error)
}

// Audit runs an audit and blocks until it completes. The report is
// returned even when err is non-nil.
func (a *Auditor) Audit(ctx context.Context, p Params) (*report.Report, error) {
	type result struct {
		rep *report.Report
		err error
	}
	done := make(chan result, 1)
	a.AuditAsync(ctx, p, Callbacks{
		OnComplete: func(rep *report.Report, err error) {
			done <- result{rep, err}
		},
	})
	res := <-done
	return res.rep, res.err
}

// AuditAsync starts an audit and returns immediately. cb.OnComplete is
// called exactly once, from the audit goroutine.
func (a *Auditor) AuditAsync(ctx context.Context, p Params, cb Callbacks) {
	go func() {
		rep, err := a.run(ctx, p, cb)
		if cb.OnComplete != nil {
			cb.OnComplete(rep, err)
		}
	}()
}

func (a *Auditor) run(ctx context.Context, p Params, cb Callbacks) (*report.Report, error) {
	rep := p.Report
	if rep == nil {
		rep = a.newReport(p)
	}

	if !a.supports(p.Platform) {
		a.logger.Error("platform not supported", slog.String("platform", p.Platform.String()))
		return rep, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, p.Platform)
	}

	var selected []analyzer.Module
	for _, m := range a.modules {
		if analyzer.Handles(m, p.Categories) {
			selected = append(selected, m)
		}
	}
	if p.Report != nil {
		for _, m := range selected {
			for _, c := range m.Categories() {
				rep.ClearIssues(c)
			}
		}
	}

	store := rep.Params()
	store.SetAnalysisPlatform(p.Platform)
	req := &analyzer.Request{
		Platform:       p.Platform,
		RuntimeVersion: p.RuntimeVersion,
		ModulePaths:    p.ModulePaths,
		SettingsPath:   p.SettingsPath,
		Catalog:        a.catalog,
		Params:         store,
		Rules:          rep.Rules(),
		CallDepth:      a.cfg.Analysis.CallDepth,
		Cache:          a.cache,
		Logger:         a.logger,
	}
	sink := analyzer.SinkFunc(func(issues ...*models.Issue) {
		if len(issues) == 0 {
			return
		}
		rep.AddIssues(issues...)
		if cb.OnIssues != nil {
			cb.OnIssues(issues)
		}
	})

	exec := func(m analyzer.Module) {
		info := a.runModule(ctx, m, req, sink)
		rep.RecordModuleInfo(info)
		if cb.OnModuleDone != nil {
			cb.OnModuleDone(info)
		}
	}
	if a.cfg.Analysis.Parallel {
		wp := pool.New().WithMaxGoroutines(runtime.NumCPU())
		for _, m := range selected {
			wp.Go(func() { exec(m) })
		}
		wp.Wait()
	} else {
		for _, m := range selected {
			exec(m)
		}
	}

	a.logger.Info("audit finished",
		slog.Int("modules", len(selected)),
		slog.Int("issues", rep.NumTotalIssues()))
	return rep, ctx.Err()
}

// runModule runs one module, containing its panics and errors.
func (a *Auditor) runModule(ctx context.Context, m analyzer.Module, req *analyzer.Request, sink analyzer.Sink) report.ModuleInfo {
	info := report.ModuleInfo{
		Name:       m.Name(),
		Categories: m.Categories(),
		StartTime:  time.Now(),
	}
	logger := a.logger.With(slog.String("module", m.Name()))

	if err := ctx.Err(); err != nil {
		info.EndTime = info.StartTime
		info.Outcome = report.OutcomeCancelled
		info.Error = err.Error()
		logger.Debug("module skipped", slog.Any("error", err))
		return info
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = m.Audit(ctx, req, sink)
	})
	info.EndTime = time.Now()

	switch recovered := pc.Recovered(); {
	case recovered != nil:
		info.Outcome = report.OutcomeFailure
		info.Error = recovered.String()
		logger.Error("module panicked", slog.String("panic", recovered.String()))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		info.Outcome = report.OutcomeCancelled
		info.Error = err.Error()
		logger.Warn("module cancelled")
	case err != nil:
		info.Outcome = report.OutcomeFailure
		info.Error = err.Error()
		logger.Error("module failed", slog.Any("error", err))
	default:
		info.Outcome = report.OutcomeSuccess
		logger.Debug("module finished", slog.Duration("duration", info.Duration()))
	}
	return info
}

func (a *Auditor) supports(p models.Platform) bool {
	if p == models.PlatformDefault {
		return true
	}
	return slices.Contains(a.cfg.SupportedPlatforms(), p)
}

func (a *Auditor) newReport(p Params) *report.Report {
	hostname, _ := os.Hostname()
	dir := "."
	if len(p.ModulePaths) > 0 {
		dir = filepath.Dir(p.ModulePaths[0])
	}
	return report.New(
		report.WithSession(report.Session{
			ToolVersion:    a.version,
			Hostname:       hostname,
			OS:             runtime.GOOS,
			Arch:           runtime.GOARCH,
			Platform:       p.Platform,
			RuntimeVersion: p.RuntimeVersion,
			Revision:       vcs.Revision(dir),
			Timestamp:      time.Now().UTC(),
		}),
		report.WithCatalog(a.catalog),
		report.WithParams(a.params.Clone()),
		report.WithRules(a.rules.Clone()),
	)
}

// Fix applies the fixer of the issue's descriptor and marks the issue
// fixed in rep.
func (a *Auditor) Fix(ctx context.Context, rep *report.Report, issue *models.Issue) error {
	if !issue.IsIssue() {
		return ErrNotFixable
	}
	d, err := a.catalog.Lookup(issue.DescriptorID)
	if err != nil {
		return err
	}
	if !d.CanFix() {
		return fmt.Errorf("%w: %s", ErrNotFixable, d.ID)
	}
	if err := d.Fixer()(ctx, issue); err != nil {
		return fmt.Errorf("fixing %s: %w", d.ID, err)
	}
	if !rep.MarkFixed(issue) {
		return fmt.Errorf("issue %s is not part of the report", d.ID)
	}
	return nil
}
