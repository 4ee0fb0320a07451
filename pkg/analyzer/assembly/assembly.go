// Package assembly checks compiled modules as a whole: build mode, debug
// symbols and size.
package assembly

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"fortio.org/safecast"

	"github.com/panbanda/auger/pkg/analyzer"
	"github.com/panbanda/auger/pkg/bytecode"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/scan"
)

// Name is the module name.
const Name = "assembly"

// Descriptor ids.
const (
	DebugBuildID     = "ASM0001"
	MissingSymbolsID = "ASM0002"
	ModuleSizeID     = "ASM0003"
)

// ModuleSizeLimitKB is the parameter bounding module size.
const ModuleSizeLimitKB = "ModuleSizeLimitKB"

const defaultModuleSizeLimitKB = 2048

// maxListedTokens bounds the tokens listed on a skipped-methods issue.
const maxListedTokens = 10

//go:embed descriptors.yaml
var descriptorsYAML []byte

// Descriptors returns the descriptors the module registers.
func Descriptors() []*descriptor.Descriptor {
	return descriptor.MustLoadYAML(descriptorsYAML)
}

// Module implements analyzer.Module.
type Module struct {
	logger *slog.Logger
}

// New creates the module.
func New() analyzer.Module {
	return &Module{logger: slog.Default().With(slog.String("component", Name))}
}

func (m *Module) Name() string { return Name }

func (m *Module) Categories() []models.Category {
	return []models.Category{models.CategoryAssembly}
}

func (m *Module) Initialize(ictx *analyzer.Context) error {
	if ictx.Logger != nil {
		m.logger = ictx.Logger.With(slog.String("component", Name))
	}
	ictx.Params.Register(ModuleSizeLimitKB, defaultModuleSizeLimitKB)
	return ictx.Catalog.RegisterAll(Descriptors())
}

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
		logger.Debug("module not loaded", slog.String("path", f.Path), slog.Any("error", f.Err))
	}

	limit, err := req.Params.GetFor(ModuleSizeLimitKB, req.Platform)
	if err != nil {
		return err
	}

	c := checker{req: req, logger: logger}
	tracker := analyzer.TrackerFromContext(ctx)
	tracker.Add(len(opened.Modules))
	for _, mod := range opened.Modules {
		if err := ctx.Err(); err != nil {
			return err
		}
		sink.Add(c.check(mod, limit)...)
		tracker.Tick(mod.Path)
	}
	return nil
}

type checker struct {
	req    *analyzer.Request
	logger *slog.Logger
}

func (c *checker) check(mod *bytecode.Module, limitKB int) []*models.Issue {
	var issues []*models.Issue
	if mod.DebugBuild {
		issues = c.add(issues, mod, DebugBuildID, mod.Name)
	}
	if !mod.HasSymbols() {
		issues = c.add(issues, mod, MissingSymbolsID, mod.Name)
	} else if skipped := c.skipped(mod); skipped != nil {
		issues = append(issues, skipped)
	}

	sizeKB, err := safecast.Conv[int](mod.Size / 1024)
	if err != nil {
		c.logger.Warn("module size out of range", slog.String("module", mod.Name), slog.Int64("bytes", mod.Size))
		return issues
	}
	if sizeKB > limitKB {
		issues = c.add(issues, mod, ModuleSizeID, mod.Name, sizeKB, limitKB)
	}
	return issues
}

// add appends an issue for id when the descriptor applies to the session.
func (c *checker) add(issues []*models.Issue, mod *bytecode.Module, id string, args ...any) []*models.Issue {
	d, ok := c.req.Catalog.Get(id)
	if !ok || !descriptor.IsApplicable(d, c.req.Platform, c.req.RuntimeVersion) {
		return issues
	}
	msg, fits := d.Message(args...)
	if !fits {
		c.logger.Warn("descriptor message does not fit its arguments", slog.String("descriptor", id))
	}
	return append(issues, &models.Issue{
		Category:     models.CategoryAssembly,
		Description:  msg,
		DescriptorID: id,
		Location:     &models.Location{Path: mod.Path},
		Properties:   []string{mod.Name},
	})
}

// skipped reports methods that carry a body but no debug information in a
// module that otherwise has symbols.
func (c *checker) skipped(mod *bytecode.Module) *models.Issue {
	scanner := scan.New(scan.WithLogger(c.logger))
	for range scanner.Instructions(mod) {
	}
	bm := scanner.Stats().SkippedMethods(mod.Name)
	n := bm.GetCardinality()
	if n == 0 {
		return nil
	}

	props := []string{mod.Name}
	it := bm.Iterator()
	for i := 0; it.HasNext() && i < maxListedTokens; i++ {
		props = append(props, fmt.Sprintf("0x%08x", it.Next()))
	}
	return &models.Issue{
		Category:    models.CategoryAssembly,
		Severity:    models.SeverityInfo,
		Description: fmt.Sprintf("%d methods of '%s' have no debug information and were not analyzed", n, mod.Name),
		Location:    &models.Location{Path: mod.Path},
		Properties:  props,
	}
}
