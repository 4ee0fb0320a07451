// Package code is the bytecode analyzer module: it scans compiled modules
// for calls and conversions that match API descriptors and attaches caller
// hierarchies to every finding.
package code

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/panics"

	"github.com/panbanda/auger/internal/cache"
	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/callgraph"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/match"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/scan"
)

// Name is the module name.
const Name = "code"

//go:embed descriptors.yaml
var descriptorsYAML []byte

// Descriptors returns the descriptors the module registers.
func Descriptors() []*descriptor.Descriptor {
	return descriptor.MustLoadYAML(descriptorsYAML)
}

// Module scans bytecode.
type Module struct {
	logger *slog.Logger
}

// New creates the module.
func New() analyzer.Module {
	return &Module{logger: slog.Default().With(slog.String("component", Name))}
}

var _ analyzer.Module = (*Module)(nil)

// Name implements analyzer.Module.
func (m *Module) Name() string { return Name }

// Categories implements analyzer.Module.
func (m *Module) Categories() []models.Category {
	return []models.Category{models.CategoryCode}
}

// Initialize registers the API and opcode descriptors.
func (m *Module) Initialize(ictx *analyzer.Context) error {
	if ictx.Logger != nil {
		m.logger = ictx.Logger.With(slog.String("component", Name))
	}
	return ictx.Catalog.RegisterAll(Descriptors())
}

// result is what scanning one compiled module produces. It is also the
// cached form.
type result struct {
	Issues []*models.Issue  `msgpack:"issues"`
	Edges  []callgraph.Edge `msgpack:"edges"`
}

// Audit scans every compiled module of the request. Cancellation is
// checked between modules; a module being scanned always finishes.
func (m *Module) Audit(ctx context.Context, req *analyzer.Request, sink analyzer.Sink) error {
	logger := m.logger
	if req.Logger != nil {
		logger = req.Logger.With(slog.String("component", Name))
	}

	opened, err := scan.Open(ctx, req.ModulePaths)
	if err != nil {
		return err
	}
	for _, f := range opened.Failures {
		logger.Warn("skipping module", slog.String("path", f.Path), slog.Any("error", f.Err))
		sink.Add(&models.Issue{
			Category:    models.CategoryCode,
			Severity:    models.SeverityInfo,
			Description: fmt.Sprintf("Module could not be loaded: %v", f.Err),
			Location:    &models.Location{Path: f.Path},
		})
	}

	matcher := match.New(req.Catalog,
		match.WithPlatform(req.Platform),
		match.WithRuntimeVersion(req.RuntimeVersion),
		match.WithLogger(logger))
	fingerprint := m.fingerprint(req, matcher)

	tracker := analyzer.TrackerFromContext(ctx)
	tracker.Add(len(opened.Modules))

	graph := callgraph.New()
	var issues []*models.Issue
	var cancelErr error
	for _, mod := range opened.Modules {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		res, ok := m.cached(req.Cache, mod, fingerprint)
		if !ok {
			res, ok = m.scanModule(logger, matcher, mod)
			if !ok {
				tracker.Tick(mod.Path)
				continue
			}
			m.store(req.Cache, mod, fingerprint, res, logger)
		}
		for _, e := range res.Edges {
			graph.Add(e)
		}
		issues = append(issues, res.Issues...)
		tracker.Tick(mod.Path)
	}

	graph.BuildHierarchies(issues, req.CallDepth)
	logger.Debug("code analysis finished",
		slog.Int("modules", len(opened.Modules)),
		slog.Int("issues", len(issues)),
		slog.Int("edges", graph.Len()))
	sink.Add(issues...)
	return cancelErr
}

// scanModule matches every instruction of mod. A panic while scanning is
// contained to the module.
func (m *Module) scanModule(logger *slog.Logger, matcher *match.Matcher, mod *bytecode.Module) (*result, bool) {
	res := &result{}
	var pc panics.Catcher
	pc.Try(func() {
		graph := callgraph.New()
		scanner := scan.New(scan.WithLogger(logger))
		for in := range scanner.Instructions(mod) {
			if in.OpCode.IsCall() && in.Callee != nil {
				graph.Add(edgeFor(in))
			}
			if issue, ok := matcher.Match(in); ok {
				res.Issues = append(res.Issues, issue)
			}
		}
		res.Edges = graph.Edges()
		if n := scanner.Stats().SkippedCount(); n > 0 {
			logger.Debug("methods without debug information",
				slog.String("module", mod.Name), slog.Uint64("count", n))
		}
	})
	if recovered := pc.Recovered(); recovered != nil {
		logger.Error("module scan failed",
			slog.String("module", mod.Name), slog.String("panic", recovered.String()))
		return nil, false
	}
	return res, true
}

func edgeFor(in scan.Instruction) callgraph.Edge {
	e := callgraph.Edge{
		Caller:       in.MethodID(),
		Callee:       in.Callee.FullName(),
		CallerType:   in.Caller.DeclaringType.FullName(),
		CallerMethod: in.Caller.Name,
		Module:       in.Module,
	}
	if in.Location != nil {
		loc := *in.Location
		e.Location = &loc
	}
	return e
}

// fingerprint identifies everything besides the module bytes that affects
// a scan result.
func (m *Module) fingerprint(req *analyzer.Request, matcher *match.Matcher) string {
	parts := []string{string(req.Platform), req.RuntimeVersion, strconv.Itoa(matcher.Len())}
	for _, d := range req.Catalog.List() {
		if descriptor.IsApplicable(d, req.Platform, req.RuntimeVersion) {
			parts = append(parts, descriptorKey(d))
		}
	}
	return cache.HashStrings(parts...)
}

// descriptorKey joins the descriptor fields that decide what matches and
// how the issue reads.
func descriptorKey(d *descriptor.Descriptor) string {
	platforms := make([]string, 0, len(d.Platforms))
	for _, p := range d.Platforms {
		platforms = append(platforms, string(p))
	}
	return strings.Join([]string{
		d.ID, d.Type, d.Method, d.OpCode, d.MessageFormat, d.Title,
		string(d.DefaultSeverity), strings.Join(platforms, ","), d.MinVersion, d.MaxVersion,
	}, "\x1f")
}

func (m *Module) cached(c *cache.Cache, mod *bytecode.Module, fingerprint string) (*result, bool) {
	if !c.Enabled() {
		return nil, false
	}
	hash, err := moduleHash(mod)
	if err != nil {
		return nil, false
	}
	var res result
	if !c.Get(CacheKey(mod.Path), hash+fingerprint, &res) {
		return nil, false
	}
	return &res, true
}

func (m *Module) store(c *cache.Cache, mod *bytecode.Module, fingerprint string, res *result, logger *slog.Logger) {
	if !c.Enabled() {
		return
	}
	hash, err := moduleHash(mod)
	if err != nil {
		return
	}
	if err := c.Set(CacheKey(mod.Path), hash+fingerprint, res); err != nil {
		logger.Warn("cache write failed", slog.String("module", mod.Name), slog.Any("error", err))
	}
}

// moduleHash hashes the module file and its sidecar symbols, if any.
func moduleHash(mod *bytecode.Module) (string, error) {
	hash, err := cache.HashFile(mod.Path)
	if err != nil {
		return "", err
	}
	if symHash, err := cache.HashFile(bytecode.SymbolsPath(mod.Path)); err == nil {
		hash += symHash
	}
	return hash, nil
}

// CacheKey is the cache key under which the scan of the module at path is
// stored.
func CacheKey(path string) string {
	return Name + ":" + path
}

// CallGraph loads the modules at paths and records every call edge. Modules
// that fail to load are returned alongside the graph.
func CallGraph(ctx context.Context, paths []string) (*callgraph.Graph, []*scan.ModuleError, error) {
	opened, err := scan.Open(ctx, paths)
	if err != nil {
		return nil, nil, err
	}
	graph := callgraph.New()
	for in := range scan.New().All(opened.Modules) {
		if in.OpCode.IsCall() && in.Callee != nil {
			graph.Add(edgeFor(in))
		}
	}
	return graph, opened.Failures, ctx.Err()
}
