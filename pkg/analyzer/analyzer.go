// Package analyzer defines the contract between the orchestrator and the
// diagnostic modules it runs.
//
// Modules are supplied explicitly through a Registry of Provider functions;
// there is no discovery at runtime.
package analyzer

import (
	"context"
	"log/slog"
	"slices"

	"github.com/panbanda/auger/internal/cache"
	"github.com/panbanda/auger/pkg/descriptor"
	"github.com/panbanda/auger/pkg/models"
	"github.com/panbanda/auger/pkg/params"
	"github.com/panbanda/auger/pkg/rules"
)

// Module is one diagnostic module.
type Module interface {
	// Name identifies the module in reports and logs.
	Name() string
	// Categories lists the issue categories the module produces.
	Categories() []models.Category
	// Initialize registers the module's descriptors and parameters. It runs
	// once per session, before any audit.
	Initialize(ictx *Context) error
	// Audit analyzes the request and streams issues to sink. Modules should
	// check ctx between units of work; an audit interrupted by cancellation
	// returns ctx.Err().
	Audit(ctx context.Context, req *Request, sink Sink) error
}

// Context is passed to Module.Initialize.
type Context struct {
	Catalog *descriptor.Catalog
	Params  *params.Store
	Logger  *slog.Logger
}

// Request carries everything a module needs for one audit.
type Request struct {
	Platform       models.Platform
	RuntimeVersion string
	// ModulePaths are the compiled modules to analyze.
	ModulePaths []string
	// SettingsPath is the project settings file, if any.
	SettingsPath string

	Catalog   *descriptor.Catalog
	Params    *params.Store
	Rules     *rules.Set
	CallDepth int
	Cache     *cache.Cache
	Logger    *slog.Logger
}

// Sink receives issues as a module produces them.
type Sink interface {
	Add(issues ...*models.Issue)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(issues ...*models.Issue)

// Add calls f.
func (f SinkFunc) Add(issues ...*models.Issue) {
	f(issues...)
}

// Provider constructs a module.
type Provider func() Module

// Registry is an ordered list of module providers.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry from providers.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: slices.Clone(providers)}
}

// Register appends a provider.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Providers returns the registered providers in order.
func (r *Registry) Providers() []Provider {
	return slices.Clone(r.providers)
}

// New instantiates every module.
func (r *Registry) New() []Module {
	mods := make([]Module, 0, len(r.providers))
	for _, p := range r.providers {
		mods = append(mods, p())
	}
	return mods
}

// Handles reports whether m produces any of the given categories. An empty
// list matches every module.
func Handles(m Module, categories []models.Category) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range m.Categories() {
		if slices.Contains(categories, c) {
			return true
		}
	}
	return false
}
